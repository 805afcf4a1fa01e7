package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeResumeExport  = "resume:export"
	TypeResumeSummary = "resume:summary"
)

// ExportPayload 描述导出简历 PDF 所需的最小信息。
type ExportPayload struct {
	ResumeID      uint   `json:"resume_id"`
	UserID        uint   `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
}

// SummaryPayload 描述为已有简历重新生成摘要的任务。
type SummaryPayload struct {
	ResumeID      uint   `json:"resume_id"`
	UserID        uint   `json:"user_id"`
	Prompt        string `json:"prompt"`
	CorrelationID string `json:"correlation_id"`
}

// NewExportTask 构造一个新的简历导出任务。
func NewExportTask(payload ExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode export payload: %w", err)
	}
	return asynq.NewTask(TypeResumeExport, data, asynq.MaxRetry(3)), nil
}

// NewSummaryTask 构造一个摘要生成任务。
func NewSummaryTask(payload SummaryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode summary payload: %w", err)
	}
	return asynq.NewTask(TypeResumeSummary, data, asynq.MaxRetry(2)), nil
}

// DecodeExport 解析导出任务的载荷。
func DecodeExport(t *asynq.Task) (ExportPayload, error) {
	var p ExportPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode export payload: %w", err)
	}
	if p.ResumeID == 0 || p.UserID == 0 {
		return p, fmt.Errorf("export payload missing resume or user id")
	}
	return p, nil
}

// DecodeSummary 解析摘要任务的载荷。
func DecodeSummary(t *asynq.Task) (SummaryPayload, error) {
	var p SummaryPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode summary payload: %w", err)
	}
	if p.ResumeID == 0 || p.UserID == 0 {
		return p, fmt.Errorf("summary payload missing resume or user id")
	}
	return p, nil
}
