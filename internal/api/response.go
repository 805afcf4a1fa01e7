package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Anumulaashok/resume-builder-backend/internal/ai"
	"github.com/Anumulaashok/resume-builder-backend/internal/api/middleware"
	"github.com/Anumulaashok/resume-builder-backend/internal/resume"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
}

// OK 以统一信封返回数据。
func OK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, errorBody{Error: msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "unauthorized"})
}

func Unauthorized(c *gin.Context)           { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// statusForError 把领域错误映射为 HTTP 状态码。
func statusForError(err error) int {
	switch {
	case errors.Is(err, resume.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, resume.ErrNotAuthorized):
		return http.StatusUnauthorized
	case errors.Is(err, resume.ErrValidation),
		errors.Is(err, resume.ErrDuplicateID),
		errors.Is(err, resume.ErrInvalidOrder),
		errors.Is(err, resume.ErrMissingField):
		return http.StatusBadRequest
	case errors.Is(err, resume.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ai.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, resume.ErrSummarizerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError 输出领域错误。内部错误只记录日志，不把细节返回给客户端。
func writeDomainError(c *gin.Context, err error) {
	status := statusForError(err)
	logger := middleware.LoggerFromContext(c)

	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	case http.StatusBadGateway:
		logger.Warn("ai upstream failed", slog.Any("error", err))
		Error(c, status, "AI service is unavailable, please try again later")
		return
	}

	body := errorBody{Error: err.Error()}
	var domainErr *resume.Error
	if errors.As(err, &domainErr) {
		body.Field = domainErr.Field
	}
	c.JSON(status, body)
}

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get(middleware.UserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}

var errInvalidID = errors.New("invalid id")

// parseUintParam 解析路径中的数字 ID。
func parseUintParam(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errInvalidID
	}
	return uint(id), nil
}
