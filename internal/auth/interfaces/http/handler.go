// Package http 认证接口层
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/kpstreasury/internal/apperror"
	"github.com/wyfcoding/kpstreasury/internal/auth/application"
	authdomain "github.com/wyfcoding/kpstreasury/internal/auth/domain"
	"github.com/wyfcoding/pkg/response"
)

type Handler struct {
	svc *application.AuthService
}

func NewHandler(svc *application.AuthService) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册路由；/me 与 /validate 需要有效令牌
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/auth")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)

	authed := g.Group("")
	authed.Use(RequireAuth(h.svc.Tokens()))
	authed.GET("/me", h.Me)
	authed.GET("/validate", h.Validate)
}

func (h *Handler) Register(c *gin.Context) {
	var cmd application.RegisterCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	user, err := h.svc.Register(c.Request.Context(), cmd)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, user)
}

func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	token, user, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{
		"token":    token,
		"type":     "Bearer",
		"username": user.Username,
		"role":     user.Role,
	})
}

// Me 返回当前令牌对应的安全主体
func (h *Handler) Me(c *gin.Context) {
	principal, ok := authdomain.PrincipalFromContext(c.Request.Context())
	if !ok {
		response.ErrorWithStatus(c, http.StatusUnauthorized, "authentication required", "")
		return
	}
	response.Success(c, gin.H{
		"user_id":  principal.UserID,
		"username": principal.Username,
		"email":    principal.Email,
		"role":     principal.Role,
	})
}

// Validate 令牌有效性检查，中间件通过即有效
func (h *Handler) Validate(c *gin.Context) {
	response.Success(c, gin.H{"valid": true})
}
