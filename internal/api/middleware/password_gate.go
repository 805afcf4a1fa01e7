package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const passwordChangeRequiredMessage = "password change required"

// RequirePasswordChangeCompletedMiddleware 阻止未完成改密的账号访问业务接口。
// 仅依赖 access token 内的 must_change_password 声明，不查库。
func RequirePasswordChangeCompletedMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(MustChangePasswordKey) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": passwordChangeRequiredMessage})
			return
		}
		c.Next()
	}
}
