package middleware

import (
	"context"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationIDHeader 在请求与响应中携带关联 ID，后台任务通知会原样带回。
const CorrelationIDHeader = "X-Correlation-ID"

const correlationIDKey = "correlationID"

type correlationCtxKey struct{}

// 只接受不超过 64 位的字母、数字、点、下划线与连字符，其余一律重新生成。
var correlationIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// CorrelationIDMiddleware 确保每个请求都带有 Correlation ID，并写入 request context。
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if !correlationIDPattern.MatchString(id) {
			id = uuid.NewString()
		}

		c.Set(correlationIDKey, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), correlationCtxKey{}, id))
		c.Header(CorrelationIDHeader, id)

		c.Next()
	}
}

// GetCorrelationID 从 gin 上下文中取出 Correlation ID。
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(correlationIDKey)
}

// CorrelationIDFromContext 供不持有 gin.Context 的调用方使用。
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationCtxKey{}).(string)
	return id
}
