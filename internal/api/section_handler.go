package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Anumulaashok/resume-builder-backend/internal/metrics"
	"github.com/Anumulaashok/resume-builder-backend/internal/resume"
)

// SectionHandler 暴露分区与条目的增删改查。所有修改都经过 Engine，
// 由它完成归属校验、条目校验与排序维护。
type SectionHandler struct {
	engine *resume.Engine
}

func NewSectionHandler(engine *resume.Engine) *SectionHandler {
	return &SectionHandler{engine: engine}
}

// sectionTarget 从路径中取出用户、简历与分区标识，失败时已写出响应。
type sectionTarget struct {
	userID    uint
	resumeID  uint
	sectionID string
	itemID    string
}

func (h *SectionHandler) target(c *gin.Context) (sectionTarget, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return sectionTarget{}, false
	}
	resumeID, err := parseUintParam(c, "resumeId")
	if err != nil {
		NotFound(c, "Resume not found")
		return sectionTarget{}, false
	}
	return sectionTarget{
		userID:    userID,
		resumeID:  resumeID,
		sectionID: c.Param("sectionId"),
		itemID:    c.Param("itemId"),
	}, true
}

// observe 记录一次修改结果并在失败时输出错误。
func observe(c *gin.Context, operation string, err error) bool {
	if err == nil {
		metrics.ObserveSectionMutation(operation, "ok")
		return true
	}
	outcome := string(resume.KindOf(err))
	if outcome == "" {
		outcome = "internal"
	}
	metrics.ObserveSectionMutation(operation, outcome)
	writeDomainError(c, err)
	return false
}

// GET /v1/sections/types
func (h *SectionHandler) GetSectionTypes(c *gin.Context) {
	OK(c, http.StatusOK, h.engine.SectionTypes())
}

// GET /v1/resumes/:resumeId/sections/:sectionId
func (h *SectionHandler) GetSection(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	section, err := h.engine.GetSection(c.Request.Context(), t.resumeID, t.userID, t.sectionID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	OK(c, http.StatusOK, section)
}

// POST /v1/resumes/:resumeId/sections
func (h *SectionHandler) AddSection(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	var req resume.SectionCandidate
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	section, err := h.engine.AddSection(c.Request.Context(), t.resumeID, t.userID, req)
	if !observe(c, "add_section", err) {
		return
	}
	OK(c, http.StatusCreated, section)
}

// PUT /v1/resumes/:resumeId/sections/:sectionId
func (h *SectionHandler) UpdateSection(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	var patch resume.SectionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	section, err := h.engine.UpdateSection(c.Request.Context(), t.resumeID, t.userID, t.sectionID, patch)
	if !observe(c, "update_section", err) {
		return
	}
	OK(c, http.StatusOK, section)
}

// DELETE /v1/resumes/:resumeId/sections/:sectionId
func (h *SectionHandler) DeleteSection(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	err := h.engine.DeleteSection(c.Request.Context(), t.resumeID, t.userID, t.sectionID)
	if !observe(c, "delete_section", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Section deleted successfully"})
}

// POST /v1/resumes/:resumeId/sections/:sectionId/items
func (h *SectionHandler) AddSectionItem(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	raw, ok := bindRawObject(c)
	if !ok {
		return
	}

	item, err := h.engine.AddSectionItem(c.Request.Context(), t.resumeID, t.userID, t.sectionID, raw)
	if !observe(c, "add_item", err) {
		return
	}
	OK(c, http.StatusCreated, item)
}

// PUT /v1/resumes/:resumeId/sections/:sectionId/items/:itemId
func (h *SectionHandler) UpdateSectionItem(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	raw, ok := bindRawObject(c)
	if !ok {
		return
	}

	item, err := h.engine.UpdateSectionItem(c.Request.Context(), t.resumeID, t.userID, t.sectionID, t.itemID, raw)
	if !observe(c, "update_item", err) {
		return
	}
	OK(c, http.StatusOK, item)
}

// DELETE /v1/resumes/:resumeId/sections/:sectionId/items/:itemId
func (h *SectionHandler) DeleteSectionItem(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	err := h.engine.DeleteSectionItem(c.Request.Context(), t.resumeID, t.userID, t.sectionID, t.itemID)
	if !observe(c, "delete_item", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Item deleted successfully"})
}

type toggleItemRequest struct {
	Enabled *bool `json:"enabled"`
}

// PATCH /v1/resumes/:resumeId/sections/:sectionId/items/:itemId/status
func (h *SectionHandler) ToggleItemStatus(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	var req toggleItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	item, err := h.engine.ToggleItemStatus(c.Request.Context(), t.resumeID, t.userID, t.sectionID, t.itemID, req.Enabled)
	if !observe(c, "toggle_item", err) {
		return
	}
	OK(c, http.StatusOK, item)
}

type sectionOrderRequest struct {
	SectionOrder []string `json:"sectionOrder"`
}

// PUT /v1/resumes/:resumeId/sections/order
func (h *SectionHandler) UpdateSectionOrder(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	var req sectionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Section order must be an array of section IDs")
		return
	}

	order, err := h.engine.UpdateSectionOrder(c.Request.Context(), t.resumeID, t.userID, req.SectionOrder)
	if !observe(c, "reorder_sections", err) {
		return
	}
	OK(c, http.StatusOK, gin.H{"sectionOrder": order})
}

// bindRawObject 读取请求体并确认它是 JSON 对象，字段校验交给 Engine。
func bindRawObject(c *gin.Context) (json.RawMessage, bool) {
	var raw json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		BadRequest(c, "invalid request body")
		return nil, false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil || probe == nil {
		BadRequest(c, "request body must be a JSON object")
		return nil, false
	}
	return raw, true
}
