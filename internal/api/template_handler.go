package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Anumulaashok/resume-builder-backend/internal/api/middleware"
	"github.com/Anumulaashok/resume-builder-backend/internal/database"
)

// TemplateHandler 负责用户自定义简历结构模板的增删改查。
type TemplateHandler struct {
	db *gorm.DB
}

func NewTemplateHandler(db *gorm.DB) *TemplateHandler {
	return &TemplateHandler{db: db}
}

type createTemplateRequest struct {
	Name        string         `json:"name" binding:"required"`
	Description string         `json:"description"`
	Structure   datatypes.JSON `json:"structure" binding:"required"`
}

// updateTemplateRequest 中 nil 字段保持原值。
type updateTemplateRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Structure   *datatypes.JSON `json:"structure"`
}

type templateResponse struct {
	ID          uint           `json:"id"`
	UserID      uint           `json:"userId"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Structure   datatypes.JSON `json:"structure"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func newTemplateResponse(t database.Template) templateResponse {
	return templateResponse{
		ID:          t.ID,
		UserID:      t.UserID,
		Name:        t.Name,
		Description: t.Description,
		Structure:   t.Structure,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// POST /v1/templates
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" || isJSONNull(req.Structure) {
		BadRequest(c, "Missing required fields (name, structure)")
		return
	}

	model := database.Template{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Structure:   req.Structure,
		UserID:      userID,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&model).Error; err != nil {
		middleware.LoggerFromContext(c).Error("create template failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	OK(c, http.StatusCreated, newTemplateResponse(model))
}

// GET /v1/templates/my
func (h *TemplateHandler) ListMyTemplates(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var rows []database.Template
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list templates failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	out := make([]templateResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, newTemplateResponse(row))
	}
	OK(c, http.StatusOK, out)
}

// GET /v1/templates/:templateId
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	model, ok := h.loadOwned(c, "Not authorized to access this template")
	if !ok {
		return
	}
	OK(c, http.StatusOK, newTemplateResponse(*model))
}

// PATCH /v1/templates/:templateId
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	var req updateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			BadRequest(c, "name cannot be empty")
			return
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Structure != nil {
		if isJSONNull(*req.Structure) {
			BadRequest(c, "structure cannot be empty")
			return
		}
		updates["structure"] = *req.Structure
	}
	if len(updates) == 0 {
		BadRequest(c, "Update data cannot be empty")
		return
	}

	model, ok := h.loadOwned(c, "Not authorized to update this template")
	if !ok {
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Model(model).Updates(updates).Error; err != nil {
		middleware.LoggerFromContext(c).Error("update template failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	OK(c, http.StatusOK, newTemplateResponse(*model))
}

// DELETE /v1/templates/:templateId
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	model, ok := h.loadOwned(c, "Not authorized to delete this template")
	if !ok {
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Delete(model).Error; err != nil {
		middleware.LoggerFromContext(c).Error("delete template failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Template removed successfully"})
}

// loadOwned 读取路径中的模板并确认归属。模板属于他人时返回 401。
func (h *TemplateHandler) loadOwned(c *gin.Context, forbiddenMsg string) (*database.Template, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}
	templateID, err := parseUintParam(c, "templateId")
	if err != nil {
		BadRequest(c, "Invalid Template ID format")
		return nil, false
	}

	var model database.Template
	if err := h.db.WithContext(c.Request.Context()).First(&model, templateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "Template not found")
			return nil, false
		}
		middleware.LoggerFromContext(c).Error("query template failed", slog.Any("error", err))
		Internal(c, "internal error")
		return nil, false
	}
	if model.UserID != userID {
		Error(c, http.StatusUnauthorized, forbiddenMsg)
		return nil, false
	}
	return &model, true
}

func isJSONNull(raw datatypes.JSON) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
