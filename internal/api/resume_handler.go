package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/Anumulaashok/resume-builder-backend/internal/api/middleware"
	"github.com/Anumulaashok/resume-builder-backend/internal/database"
	"github.com/Anumulaashok/resume-builder-backend/internal/resume"
	"github.com/Anumulaashok/resume-builder-backend/internal/tasks"
	"github.com/Anumulaashok/resume-builder-backend/internal/worker"
)

// TaskEnqueuer 投递后台任务，*asynq.Client 满足该接口。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ExportStateStore 读写简历的导出状态。
type ExportStateStore interface {
	GetExportState(ctx context.Context, resumeID, ownerID uint) (database.ExportState, error)
	SetExportState(ctx context.Context, resumeID uint, state database.ExportState) error
}

// ExportStorage 访问导出文件所在的对象存储。
type ExportStorage interface {
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// ResumeHandler 负责简历整体层面的 API：增删改查、基本信息、AI 生成与导出。
type ResumeHandler struct {
	service *resume.Service
	tasks   TaskEnqueuer
	exports ExportStateStore
	storage ExportStorage
	linkTTL time.Duration
}

// NewResumeHandler 构造 ResumeHandler。
func NewResumeHandler(service *resume.Service, taskClient TaskEnqueuer, exports ExportStateStore, storage ExportStorage, linkTTL time.Duration) *ResumeHandler {
	if linkTTL <= 0 {
		linkTTL = 15 * time.Minute
	}
	return &ResumeHandler{
		service: service,
		tasks:   taskClient,
		exports: exports,
		storage: storage,
		linkTTL: linkTTL,
	}
}

// resumeRequest 取出用户与路径中的简历 ID，失败时已写出响应。
func resumeRequest(c *gin.Context) (userID, resumeID uint, ok bool) {
	userID, ok = userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return 0, 0, false
	}
	resumeID, err := parseUintParam(c, "resumeId")
	if err != nil {
		NotFound(c, "Resume not found")
		return 0, 0, false
	}
	return userID, resumeID, true
}

// GET /v1/resumes
func (h *ResumeHandler) ListResumes(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	docs, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	OK(c, http.StatusOK, docs)
}

// POST /v1/resumes
// 请求体是整份简历文档：title、basics、sections 与可选的 sectionOrder。
func (h *ResumeHandler) CreateResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	doc, err := h.service.Create(c.Request.Context(), userID, raw)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	middleware.LoggerFromContext(c).Info("resume created", slog.Uint64("resume_id", uint64(doc.ID)))
	OK(c, http.StatusCreated, doc)
}

// GET /v1/resumes/:resumeId
func (h *ResumeHandler) GetResume(c *gin.Context) {
	userID, resumeID, ok := resumeRequest(c)
	if !ok {
		return
	}
	doc, err := h.service.Get(c.Request.Context(), resumeID, userID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	OK(c, http.StatusOK, doc)
}

// PUT /v1/resumes/:resumeId
func (h *ResumeHandler) UpdateResume(c *gin.Context) {
	userID, resumeID, ok := resumeRequest(c)
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	doc, err := h.service.Replace(c.Request.Context(), resumeID, userID, raw)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	OK(c, http.StatusOK, doc)
}

// DELETE /v1/resumes/:resumeId
// 删除简历后清理其导出文件，清理失败只记录日志。
func (h *ResumeHandler) DeleteResume(c *gin.Context) {
	userID, resumeID, ok := resumeRequest(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.service.Delete(ctx, resumeID, userID); err != nil {
		writeDomainError(c, err)
		return
	}

	if h.storage != nil {
		prefix := worker.ExportObjectPrefix(userID, resumeID)
		if err := h.storage.DeletePrefix(ctx, prefix); err != nil {
			middleware.LoggerFromContext(c).Warn("delete exported files failed",
				slog.String("prefix", prefix),
				slog.Any("error", err),
			)
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Resume deleted successfully"})
}

// GET /v1/resumes/:resumeId/basics
func (h *ResumeHandler) GetBasics(c *gin.Context) {
	userID, resumeID, ok := resumeRequest(c)
	if !ok {
		return
	}
	basics, err := h.service.Basics(c.Request.Context(), resumeID, userID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	OK(c, http.StatusOK, basics)
}

// PUT /v1/resumes/:resumeId/basics
func (h *ResumeHandler) UpdateBasics(c *gin.Context) {
	userID, resumeID, ok := resumeRequest(c)
	if !ok {
		return
	}
	var req resume.Basics
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	basics, err := h.service.UpdateBasics(c.Request.Context(), resumeID, userID, req)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	OK(c, http.StatusOK, basics)
}

// GET /v1/resumes/:resumeId/sections
func (h *ResumeHandler) GetSections(c *gin.Context) {
	userID, resumeID, ok := resumeRequest(c)
	if !ok {
		return
	}
	view, err := h.service.Sections(c.Request.Context(), resumeID, userID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	OK(c, http.StatusOK, view)
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

// POST /v1/resumes/generate
// 同步调用 AI 生成摘要并创建新简历。
func (h *ResumeHandler) GenerateResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	doc, err := h.service.GenerateFromPrompt(c.Request.Context(), userID, req.Prompt)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	OK(c, http.StatusCreated, doc)
}

// POST /v1/resumes/:resumeId/summary
// 归属与参数在此同步校验，AI 调用交给后台任务，结果通过 WebSocket 推送。
func (h *ResumeHandler) RegenerateSummary(c *gin.Context) {
	userID, resumeID, ok := resumeRequest(c)
	if !ok {
		return
	}
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeDomainError(c, &resume.Error{Kind: resume.KindMissingField, Field: "prompt", Message: "Prompt is required"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.service.Get(ctx, resumeID, userID); err != nil {
		writeDomainError(c, err)
		return
	}

	task, err := tasks.NewSummaryTask(tasks.SummaryPayload{
		ResumeID:      resumeID,
		UserID:        userID,
		Prompt:        req.Prompt,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	info, err := h.tasks.EnqueueContext(ctx, task)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	OK(c, http.StatusAccepted, gin.H{"taskId": info.ID, "status": "queued"})
}

// POST /v1/resumes/:resumeId/export
func (h *ResumeHandler) ExportResume(c *gin.Context) {
	userID, resumeID, ok := resumeRequest(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("resume_id", uint64(resumeID)))

	if _, err := h.service.Get(ctx, resumeID, userID); err != nil {
		writeDomainError(c, err)
		return
	}

	task, err := tasks.NewExportTask(tasks.ExportPayload{
		ResumeID:      resumeID,
		UserID:        userID,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}

	if err := h.exports.SetExportState(ctx, resumeID, database.ExportState{Status: database.ExportStatusPending}); err != nil {
		writeDomainError(c, err)
		return
	}
	info, err := h.tasks.EnqueueContext(ctx, task)
	if err != nil {
		if stateErr := h.exports.SetExportState(ctx, resumeID, database.ExportState{Status: database.ExportStatusFailed}); stateErr != nil {
			logger.Error("mark export failed", slog.Any("error", stateErr))
		}
		writeDomainError(c, err)
		return
	}

	logger.Info("resume export enqueued", slog.String("task_id", info.ID))
	OK(c, http.StatusAccepted, gin.H{"taskId": info.ID, "status": database.ExportStatusPending})
}

// GET /v1/resumes/:resumeId/export/link
// 导出完成前返回 409 与当前状态。
func (h *ResumeHandler) GetExportLink(c *gin.Context) {
	userID, resumeID, ok := resumeRequest(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.service.Get(ctx, resumeID, userID); err != nil {
		writeDomainError(c, err)
		return
	}
	state, err := h.exports.GetExportState(ctx, resumeID, userID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if state.Status != database.ExportStatusCompleted || state.ObjectKey == "" {
		status := state.Status
		if status == database.ExportStatusNone {
			status = "not_requested"
		}
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "export is not ready", "status": status})
		return
	}

	if h.storage == nil {
		writeDomainError(c, errors.New("object storage is not configured"))
		return
	}
	url, err := h.storage.GeneratePresignedURL(ctx, state.ObjectKey, h.linkTTL)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	OK(c, http.StatusOK, gin.H{"url": url, "expiresIn": int(h.linkTTL.Seconds())})
}
