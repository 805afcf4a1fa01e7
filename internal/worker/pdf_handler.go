package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"

	"github.com/Anumulaashok/resume-builder-backend/internal/database"
	"github.com/Anumulaashok/resume-builder-backend/internal/errcode"
	"github.com/Anumulaashok/resume-builder-backend/internal/resume"
	"github.com/Anumulaashok/resume-builder-backend/internal/tasks"
)

// ResumeLoader 读取属于指定用户的简历。
type ResumeLoader interface {
	FindOwned(ctx context.Context, resumeID, ownerID uint) (*resume.Resume, error)
}

// ExportStateWriter 记录导出进度。
type ExportStateWriter interface {
	SetExportState(ctx context.Context, resumeID uint, state database.ExportState) error
}

// PDFPrinter 把 HTML 打印为 PDF。
type PDFPrinter interface {
	Print(ctx context.Context, html string) ([]byte, error)
}

// ObjectUploader 把文件写入对象存储。
type ObjectUploader interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
}

// ExportObjectPrefix 返回简历导出文件的对象前缀，删除简历时按前缀清理。
func ExportObjectPrefix(userID, resumeID uint) string {
	return fmt.Sprintf("exports/%d/%d/", userID, resumeID)
}

// ExportTaskHandler 负责消费简历导出任务。
type ExportTaskHandler struct {
	resumes  ResumeLoader
	states   ExportStateWriter
	printer  PDFPrinter
	storage  ObjectUploader
	notifier Notifier
	logger   *slog.Logger
}

// NewExportTaskHandler 创建任务处理器。
func NewExportTaskHandler(
	resumes ResumeLoader,
	states ExportStateWriter,
	printer PDFPrinter,
	storage ObjectUploader,
	notifier Notifier,
	logger *slog.Logger,
) *ExportTaskHandler {
	return &ExportTaskHandler{
		resumes:  resumes,
		states:   states,
		printer:  printer,
		storage:  storage,
		notifier: notifier,
		logger:   logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *ExportTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	payload, err := tasks.DecodeExport(t)
	if err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("resume_id", uint64(payload.ResumeID)),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)
	log.Info("starting resume export task")

	doc, err := h.resumes.FindOwned(ctx, payload.ResumeID, payload.UserID)
	if err != nil {
		if errors.Is(err, resume.ErrNotFound) {
			log.Warn("resume not found, skipping task")
			h.notify(ctx, log, payload.UserID, TaskNotifyMessage{
				Kind:          NotifyKindExport,
				Status:        "error",
				ResumeID:      payload.ResumeID,
				CorrelationID: payload.CorrelationID,
				ErrorCode:     errcode.ResourceMissing,
				ErrorMessage:  "resume no longer exists",
			})
			return nil
		}
		log.Error("query resume failed", slog.Any("error", err))
		return err
	}

	defer func() {
		if retErr == nil || !isFinalAsynqAttempt(ctx) {
			return
		}
		if err := h.states.SetExportState(ctx, doc.ID, database.ExportState{Status: database.ExportStatusFailed}); err != nil {
			log.Error("mark export failed", slog.Any("error", err))
		}
		h.notify(ctx, log, doc.OwnerID, TaskNotifyMessage{
			Kind:          NotifyKindExport,
			Status:        "error",
			ResumeID:      doc.ID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		})
	}()

	html, err := RenderResumeHTML(doc)
	if err != nil {
		log.Error("render resume html failed", slog.Any("error", err))
		return err
	}

	pdfBytes, err := h.printer.Print(ctx, html)
	if err != nil {
		log.Error("print pdf failed", slog.Any("error", err))
		return err
	}

	objectName := ExportObjectPrefix(doc.OwnerID, doc.ID) + uuid.NewString() + ".pdf"
	if _, err := h.storage.UploadFile(ctx, objectName, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf"); err != nil {
		log.Error("upload pdf to minio failed", slog.Any("error", err))
		return err
	}

	state := database.ExportState{Status: database.ExportStatusCompleted, ObjectKey: objectName}
	if err := h.states.SetExportState(ctx, doc.ID, state); err != nil {
		log.Error("update export state failed", slog.Any("error", err))
		return err
	}

	h.notify(ctx, log, doc.OwnerID, TaskNotifyMessage{
		Kind:          NotifyKindExport,
		Status:        "completed",
		ResumeID:      doc.ID,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	})

	log.Info("resume export task completed", slog.String("object", objectName), slog.Int("bytes", len(pdfBytes)))
	return nil
}

func (h *ExportTaskHandler) notify(ctx context.Context, log *slog.Logger, userID uint, msg TaskNotifyMessage) {
	if err := h.notifier.Notify(ctx, userID, msg); err != nil {
		log.Error("publish notification failed", slog.Any("error", err))
	}
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
