package errcode

import (
	"errors"

	"github.com/Anumulaashok/resume-builder-backend/internal/resume"
)

// 后台任务通知中的错误码：
// 0 表示成功；4xxx 为用户侧问题（资源不存在、输入不合法、并发冲突）；
// 5xxx 为系统或上游故障。
const (
	OK              = 0
	InvalidInput    = 4000
	ResourceMissing = 4004
	Conflict        = 4009
	SystemError     = 5000
	UpstreamError   = 5002
	AIDisabled      = 5003
)

// FromError 把任务执行错误映射为通知错误码。
func FromError(err error) int {
	if err == nil {
		return OK
	}
	if errors.Is(err, resume.ErrSummarizerUnavailable) {
		return AIDisabled
	}
	switch resume.KindOf(err) {
	case resume.KindNotFound, resume.KindNotAuthorized:
		return ResourceMissing
	case resume.KindValidation, resume.KindDuplicateID, resume.KindInvalidOrder, resume.KindMissingField:
		return InvalidInput
	case resume.KindConflict:
		return Conflict
	}
	return UpstreamError
}

// Retryable 报告该错误码对应的任务是否值得交给 asynq 重试。
func Retryable(code int) bool {
	switch code {
	case Conflict, SystemError, UpstreamError:
		return true
	}
	return false
}
