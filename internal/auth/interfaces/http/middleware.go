// Package http 认证中间件
package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/kpstreasury/internal/auth/application"
	authdomain "github.com/wyfcoding/kpstreasury/internal/auth/domain"
	userdomain "github.com/wyfcoding/kpstreasury/internal/user/domain"
	"github.com/wyfcoding/pkg/response"
)

// RequireAuth 解析 Bearer 令牌并把安全主体写入请求上下文
func RequireAuth(tokens *application.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			response.ErrorWithStatus(c, http.StatusUnauthorized, "missing bearer token", "")
			c.Abort()
			return
		}

		principal, err := tokens.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			response.ErrorWithStatus(c, http.StatusUnauthorized, "invalid or expired token", "")
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(authdomain.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

// RequireRole 基于角色能力的访问控制，在 RequireAuth 之后使用
func RequireRole(allow func(userdomain.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := authdomain.PrincipalFromContext(c.Request.Context())
		if !ok {
			response.ErrorWithStatus(c, http.StatusUnauthorized, "authentication required", "")
			c.Abort()
			return
		}
		if !allow(principal.Role) {
			response.ErrorWithStatus(c, http.StatusForbidden, "insufficient permissions", "")
			c.Abort()
			return
		}
		c.Next()
	}
}
