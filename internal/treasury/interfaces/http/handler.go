// Package http 司库账户接口层
// 读接口对查看角色开放，写接口要求管理角色，删除仅限管理员。
package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/kpstreasury/internal/apperror"
	authapp "github.com/wyfcoding/kpstreasury/internal/auth/application"
	authdomain "github.com/wyfcoding/kpstreasury/internal/auth/domain"
	authhttp "github.com/wyfcoding/kpstreasury/internal/auth/interfaces/http"
	"github.com/wyfcoding/kpstreasury/internal/treasury/application"
	"github.com/wyfcoding/kpstreasury/internal/treasury/domain"
	userdomain "github.com/wyfcoding/kpstreasury/internal/user/domain"
	"github.com/wyfcoding/pkg/response"
)

type Handler struct {
	service *application.TreasuryService
}

func NewHandler(service *application.TreasuryService) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, tokens *authapp.TokenManager) {
	g := r.Group("/treasury")
	g.Use(authhttp.RequireAuth(tokens))

	read := g.Group("", authhttp.RequireRole(userdomain.Role.CanViewTreasury))
	{
		read.GET("", h.List)
		read.GET("/:id", h.Get)
		read.GET("/number/:accountNumber", h.GetByNumber)
		read.GET("/status/:status", h.ListByStatus)
		read.GET("/type/:type", h.ListByType)
		read.GET("/currency/:currency", h.ListByCurrency)
		read.GET("/bank/:bankName", h.ListByBank)
		read.GET("/search", h.Search)
		read.GET("/check-number/:accountNumber", h.CheckNumber)
		read.GET("/reports/total-balance", h.TotalBalance)
		read.GET("/reports/total-available", h.TotalAvailable)
		read.GET("/reports/summary", h.Summary)
		read.GET("/reports/low-balance", h.LowBalance)
	}

	write := g.Group("", authhttp.RequireRole(userdomain.Role.CanManageTreasury))
	{
		write.POST("", h.Create)
		write.PUT("/:id", h.Update)
		write.PATCH("/:id/balance", h.UpdateBalance)
		write.PATCH("/:id/available-balance", h.UpdateAvailableBalance)
		write.PATCH("/:id/activate", h.Activate)
		write.PATCH("/:id/deactivate", h.Deactivate)
		write.PATCH("/:id/suspend", h.Suspend)
		write.POST("/transfer", h.Transfer)
	}

	admin := g.Group("", authhttp.RequireRole(userdomain.Role.CanManageUsers))
	{
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

func pagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return offset, limit
}

func (h *Handler) Create(c *gin.Context) {
	var cmd application.CreateAccountCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	account, err := h.service.CreateAccount(c.Request.Context(), cmd, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, account)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	account, err := h.service.GetAccount(c.Request.Context(), id)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, account)
}

func (h *Handler) GetByNumber(c *gin.Context) {
	account, err := h.service.GetAccountByNumber(c.Request.Context(), c.Param("accountNumber"))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, account)
}

func (h *Handler) List(c *gin.Context) {
	offset, limit := pagination(c)
	accounts, total, err := h.service.ListAccounts(c.Request.Context(), offset, limit)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"items": accounts, "total": total})
}

func (h *Handler) ListByStatus(c *gin.Context) {
	accounts, err := h.service.ListByStatus(c.Request.Context(), domain.AccountStatus(c.Param("status")))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, accounts)
}

func (h *Handler) ListByType(c *gin.Context) {
	accounts, err := h.service.ListByType(c.Request.Context(), domain.AccountType(c.Param("type")))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, accounts)
}

func (h *Handler) ListByCurrency(c *gin.Context) {
	accounts, err := h.service.ListByCurrency(c.Request.Context(), c.Param("currency"))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, accounts)
}

func (h *Handler) ListByBank(c *gin.Context) {
	accounts, err := h.service.ListByBankName(c.Request.Context(), c.Param("bankName"))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, accounts)
}

func (h *Handler) Search(c *gin.Context) {
	var filter domain.AccountFilter
	if v := c.Query("status"); v != "" {
		status := domain.AccountStatus(v)
		filter.Status = &status
	}
	if v := c.Query("account_type"); v != "" {
		accountType := domain.AccountType(v)
		filter.AccountType = &accountType
	}
	if v := c.Query("currency"); v != "" {
		filter.Currency = &v
	}
	if v := c.Query("bank_name"); v != "" {
		filter.BankName = &v
	}

	offset, limit := pagination(c)
	accounts, total, err := h.service.SearchAccounts(c.Request.Context(), filter, offset, limit)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"items": accounts, "total": total})
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var cmd application.UpdateAccountCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	account, err := h.service.UpdateAccount(c.Request.Context(), id, cmd, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, account)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteAccount(c.Request.Context(), id, performedBy(c)); err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"deleted": id})
}

type balanceReq struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func (h *Handler) UpdateBalance(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req balanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	account, err := h.service.UpdateBalance(c.Request.Context(), id, req.Amount, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, account)
}

func (h *Handler) UpdateAvailableBalance(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req balanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	account, err := h.service.UpdateAvailableBalance(c.Request.Context(), id, req.Amount, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, account)
}

func (h *Handler) Activate(c *gin.Context) {
	h.setStatus(c, h.service.ActivateAccount)
}

func (h *Handler) Deactivate(c *gin.Context) {
	h.setStatus(c, h.service.DeactivateAccount)
}

func (h *Handler) Suspend(c *gin.Context) {
	h.setStatus(c, h.service.SuspendAccount)
}

func (h *Handler) setStatus(c *gin.Context, fn func(ctx context.Context, id uint64, performedBy string) (*domain.Account, error)) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	account, err := fn(c.Request.Context(), id, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, account)
}

func (h *Handler) Transfer(c *gin.Context) {
	var cmd application.TransferFundsCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	account, err := h.service.TransferFunds(c.Request.Context(), cmd, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, account)
}

func (h *Handler) CheckNumber(c *gin.Context) {
	available, err := h.service.IsAccountNumberAvailable(c.Request.Context(), c.Param("accountNumber"))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"available": available})
}

func (h *Handler) TotalBalance(c *gin.Context) {
	currency := c.DefaultQuery("currency", "USD")
	status := domain.AccountStatus(c.DefaultQuery("status", string(domain.AccountStatusActive)))
	total, err := h.service.TotalBalance(c.Request.Context(), currency, status)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"currency": currency, "status": status, "total_balance": total})
}

func (h *Handler) TotalAvailable(c *gin.Context) {
	total, err := h.service.TotalAvailableBalance(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"total_available_balance": total})
}

func (h *Handler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, summary)
}

func (h *Handler) LowBalance(c *gin.Context) {
	threshold := decimal.Zero
	if v := c.Query("threshold"); v != "" {
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid threshold", v)
			return
		}
		threshold = parsed
	}
	accounts, err := h.service.LowBalanceAccounts(c.Request.Context(), threshold)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, accounts)
}
