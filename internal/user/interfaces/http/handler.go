// Package http 用户接口层
// 用户管理仅限管理员；可用性检查开放（供注册页使用）；改密是登录用户的自助操作。
package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/kpstreasury/internal/apperror"
	authapp "github.com/wyfcoding/kpstreasury/internal/auth/application"
	authdomain "github.com/wyfcoding/kpstreasury/internal/auth/domain"
	authhttp "github.com/wyfcoding/kpstreasury/internal/auth/interfaces/http"
	"github.com/wyfcoding/kpstreasury/internal/user/application"
	"github.com/wyfcoding/kpstreasury/internal/user/domain"
	"github.com/wyfcoding/pkg/response"
)

type Handler struct {
	service *application.UserService
}

func NewHandler(service *application.UserService) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, tokens *authapp.TokenManager) {
	g := r.Group("/users")

	g.GET("/check-username/:username", h.CheckUsername)
	g.GET("/check-email/:email", h.CheckEmail)

	self := g.Group("", authhttp.RequireAuth(tokens))
	self.PATCH("/me/password", h.ChangeOwnPassword)

	admin := g.Group("", authhttp.RequireAuth(tokens), authhttp.RequireRole(domain.Role.CanManageUsers))
	{
		admin.POST("", h.Create)
		admin.GET("", h.List)
		admin.GET("/:id", h.Get)
		admin.GET("/username/:username", h.GetByUsername)
		admin.GET("/email/:email", h.GetByEmail)
		admin.GET("/role/:role", h.ListByRole)
		admin.GET("/enabled", h.ListEnabled)
		admin.GET("/search", h.SearchByName)
		admin.GET("/stats/by-role", h.CountByRole)
		admin.PUT("/:id", h.Update)
		admin.PATCH("/:id/enable", h.Enable)
		admin.PATCH("/:id/disable", h.Disable)
		admin.DELETE("/:id", h.Delete)
	}
}

func performedBy(c *gin.Context) string {
	if p, ok := authdomain.PrincipalFromContext(c.Request.Context()); ok {
		return p.Username
	}
	return ""
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid id", c.Param("id"))
		return 0, false
	}
	return id, true
}

func (h *Handler) Create(c *gin.Context) {
	var cmd application.CreateUserCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	user, err := h.service.CreateUser(c.Request.Context(), cmd, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, user)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	user, err := h.service.GetUser(c.Request.Context(), id)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, user)
}

func (h *Handler) GetByUsername(c *gin.Context) {
	user, err := h.service.GetUserByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, user)
}

func (h *Handler) GetByEmail(c *gin.Context) {
	user, err := h.service.GetUserByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, user)
}

func (h *Handler) List(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	users, total, err := h.service.ListUsers(c.Request.Context(), offset, limit)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"items": users, "total": total})
}

func (h *Handler) ListByRole(c *gin.Context) {
	users, err := h.service.ListByRole(c.Request.Context(), domain.Role(c.Param("role")))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, users)
}

func (h *Handler) ListEnabled(c *gin.Context) {
	users, err := h.service.ListEnabled(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, users)
}

func (h *Handler) SearchByName(c *gin.Context) {
	users, err := h.service.SearchByName(c.Request.Context(), c.Query("name"))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, users)
}

func (h *Handler) CountByRole(c *gin.Context) {
	counts, err := h.service.CountByRole(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, counts)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var cmd application.UpdateUserCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	user, err := h.service.UpdateUser(c.Request.Context(), id, cmd, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, user)
}

func (h *Handler) Enable(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	user, err := h.service.EnableUser(c.Request.Context(), id, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, user)
}

func (h *Handler) Disable(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	user, err := h.service.DisableUser(c.Request.Context(), id, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, user)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteUser(c.Request.Context(), id, performedBy(c)); err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"deleted": id})
}

// ChangeOwnPassword 登录用户修改自己的密码
func (h *Handler) ChangeOwnPassword(c *gin.Context) {
	principal, ok := authdomain.PrincipalFromContext(c.Request.Context())
	if !ok {
		response.ErrorWithStatus(c, http.StatusUnauthorized, "authentication required", "")
		return
	}
	var req struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.service.ChangePassword(c.Request.Context(), principal.UserID, req.OldPassword, req.NewPassword); err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"changed": true})
}

func (h *Handler) CheckUsername(c *gin.Context) {
	available, err := h.service.IsUsernameAvailable(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"available": available})
}

func (h *Handler) CheckEmail(c *gin.Context) {
	available, err := h.service.IsEmailAvailable(c.Request.Context(), c.Param("email"))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"available": available})
}
