package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Anumulaashok/resume-builder-backend/internal/errcode"
	"github.com/Anumulaashok/resume-builder-backend/internal/resume"
	"github.com/Anumulaashok/resume-builder-backend/internal/tasks"
)

// SummaryRegenerator 为已有简历重新生成摘要。*resume.Service 满足该接口。
type SummaryRegenerator interface {
	RegenerateSummary(ctx context.Context, resumeID, ownerID uint, prompt string) (*resume.Resume, error)
}

// SummaryTaskHandler 消费摘要生成任务，完成后通知用户。
type SummaryTaskHandler struct {
	service  SummaryRegenerator
	notifier Notifier
	logger   *slog.Logger
}

func NewSummaryTaskHandler(service SummaryRegenerator, notifier Notifier, logger *slog.Logger) *SummaryTaskHandler {
	return &SummaryTaskHandler{service: service, notifier: notifier, logger: logger}
}

// ProcessTask 实现 asynq.Handler。不可重试的错误立即通知用户；
// 其余交给 asynq 重试，最后一次失败时通知。
func (h *SummaryTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := tasks.DecodeSummary(t)
	if err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("resume_id", uint64(payload.ResumeID)),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)

	msg := TaskNotifyMessage{
		Kind:          NotifyKindSummary,
		ResumeID:      payload.ResumeID,
		CorrelationID: payload.CorrelationID,
	}

	_, err = h.service.RegenerateSummary(ctx, payload.ResumeID, payload.UserID, payload.Prompt)
	msg.ErrorCode = errcode.FromError(err)
	if err == nil {
		msg.Status = "completed"
		h.publish(ctx, log, payload.UserID, msg)
		log.Info("summary regenerated")
		return nil
	}

	msg.Status = "error"
	msg.ErrorMessage = err.Error()
	if !errcode.Retryable(msg.ErrorCode) {
		log.Warn("summary task dropped", slog.Any("error", err), slog.Int("error_code", msg.ErrorCode))
		h.publish(ctx, log, payload.UserID, msg)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log.Error("regenerate summary failed", slog.Any("error", err))
	if isFinalAsynqAttempt(ctx) {
		h.publish(ctx, log, payload.UserID, msg)
	}
	return err
}

func (h *SummaryTaskHandler) publish(ctx context.Context, log *slog.Logger, userID uint, msg TaskNotifyMessage) {
	if err := h.notifier.Notify(ctx, userID, msg); err != nil {
		log.Error("publish notification failed", slog.Any("error", err))
	}
}
