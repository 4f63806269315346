// Package http 抵押品接口层
// 读接口对查看角色开放，写接口要求管理角色，删除仅限管理员。
package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/kpstreasury/internal/apperror"
	authapp "github.com/wyfcoding/kpstreasury/internal/auth/application"
	authdomain "github.com/wyfcoding/kpstreasury/internal/auth/domain"
	authhttp "github.com/wyfcoding/kpstreasury/internal/auth/interfaces/http"
	"github.com/wyfcoding/kpstreasury/internal/collateral/application"
	"github.com/wyfcoding/kpstreasury/internal/collateral/domain"
	userdomain "github.com/wyfcoding/kpstreasury/internal/user/domain"
	"github.com/wyfcoding/pkg/response"
)

type Handler struct {
	service *application.CollateralService
}

func NewHandler(service *application.CollateralService) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, tokens *authapp.TokenManager) {
	g := r.Group("/collateral")
	g.Use(authhttp.RequireAuth(tokens))

	read := g.Group("", authhttp.RequireRole(userdomain.Role.CanViewCollateral))
	{
		read.GET("", h.List)
		read.GET("/:id", h.Get)
		read.GET("/status/:status", h.ListByStatus)
		read.GET("/type/:type", h.ListByType)
		read.GET("/rating/:rating", h.ListByRating)
		read.GET("/currency/:currency", h.ListByCurrency)
		read.GET("/counterparty/:counterparty", h.ListByCounterparty)
		read.GET("/eligible", h.EligibleByMinRating)
		read.GET("/expiring", h.Expiring)
		read.GET("/search", h.Search)
		read.GET("/reports/total-eligible", h.TotalEligible)
		read.GET("/reports/summary-by-type", h.SummaryByType)
		read.GET("/reports/concentration", h.Concentration)
		read.GET("/reports/high-risk", h.HighRisk)
		read.GET("/reports/risk-exposure", h.RiskExposure)
		read.GET("/reports/average-haircut", h.AverageHaircut)
		read.GET("/reports/average-haircut/:type", h.AverageHaircutForType)
	}

	write := g.Group("", authhttp.RequireRole(userdomain.Role.CanManageCollateral))
	{
		write.POST("", h.Create)
		write.PUT("/:id", h.Update)
		write.PATCH("/:id/market-value", h.UpdateMarketValue)
		write.PATCH("/:id/revalue", h.Revalue)
		write.PATCH("/:id/status", h.UpdateStatus)
		write.PATCH("/:id/eligible", h.MarkEligible)
		write.PATCH("/:id/ineligible", h.MarkIneligible)
		write.PATCH("/:id/matured", h.MarkMatured)
		write.PATCH("/:id/pledge", h.Pledge)
		write.PATCH("/:id/return", h.Return)
		write.POST("/process-matured", h.ProcessMatured)
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
	var cmd application.CreateCollateralCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	collateral, err := h.service.CreateCollateral(c.Request.Context(), cmd, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, collateral)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	collateral, err := h.service.GetCollateral(c.Request.Context(), id)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, collateral)
}

func (h *Handler) List(c *gin.Context) {
	offset, limit := pagination(c)
	collaterals, total, err := h.service.ListCollaterals(c.Request.Context(), offset, limit)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"items": collaterals, "total": total})
}

func (h *Handler) ListByStatus(c *gin.Context) {
	collaterals, err := h.service.ListByStatus(c.Request.Context(), domain.CollateralStatus(c.Param("status")))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, collaterals)
}

func (h *Handler) ListByType(c *gin.Context) {
	collaterals, err := h.service.ListByType(c.Request.Context(), domain.CollateralType(c.Param("type")))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, collaterals)
}

func (h *Handler) ListByRating(c *gin.Context) {
	collaterals, err := h.service.ListByRating(c.Request.Context(), domain.Rating(c.Param("rating")))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, collaterals)
}

func (h *Handler) ListByCurrency(c *gin.Context) {
	collaterals, err := h.service.ListByCurrency(c.Request.Context(), c.Param("currency"))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, collaterals)
}

func (h *Handler) ListByCounterparty(c *gin.Context) {
	collaterals, err := h.service.ListByCounterparty(c.Request.Context(), c.Param("counterparty"))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, collaterals)
}

func (h *Handler) EligibleByMinRating(c *gin.Context) {
	minRating := domain.Rating(c.DefaultQuery("min_rating", string(domain.RatingBBB)))
	collaterals, err := h.service.ListEligibleByMinRating(c.Request.Context(), minRating)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, collaterals)
}

func (h *Handler) Expiring(c *gin.Context) {
	if v := c.Query("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid days", v)
			return
		}
		collaterals, err := h.service.ListExpiringInDays(c.Request.Context(), days)
		if err != nil {
			response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
			return
		}
		response.Success(c, collaterals)
		return
	}

	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid from date", c.Query("from"))
		return
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid to date", c.Query("to"))
		return
	}
	collaterals, err := h.service.ListExpiringBetween(c.Request.Context(), from, to)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, collaterals)
}

func (h *Handler) Search(c *gin.Context) {
	var filter domain.CollateralFilter
	if v := c.Query("collateral_type"); v != "" {
		collateralType := domain.CollateralType(v)
		filter.CollateralType = &collateralType
	}
	if v := c.Query("min_rating"); v != "" {
		rating := domain.Rating(v)
		filter.MinRating = &rating
	}
	if v := c.Query("currency"); v != "" {
		filter.Currency = &v
	}
	if v := c.Query("status"); v != "" {
		status := domain.CollateralStatus(v)
		filter.Status = &status
	}
	if v := c.Query("min_market_value"); v != "" {
		minValue, err := decimal.NewFromString(v)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid min_market_value", v)
			return
		}
		filter.MinMarketValue = &minValue
	}

	offset, limit := pagination(c)
	collaterals, total, err := h.service.SearchCollaterals(c.Request.Context(), filter, offset, limit)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"items": collaterals, "total": total})
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var cmd application.UpdateCollateralCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	collateral, err := h.service.UpdateCollateral(c.Request.Context(), id, cmd, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, collateral)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteCollateral(c.Request.Context(), id, performedBy(c)); err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"deleted": id})
}

func (h *Handler) UpdateMarketValue(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		MarketValue decimal.Decimal `json:"market_value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	collateral, err := h.service.UpdateMarketValue(c.Request.Context(), id, req.MarketValue, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, collateral)
}

func (h *Handler) Revalue(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		MarketValue decimal.Decimal `json:"market_value" binding:"required"`
		Haircut     decimal.Decimal `json:"haircut"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	collateral, err := h.service.Revalue(c.Request.Context(), id, req.MarketValue, req.Haircut, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, collateral)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		Status domain.CollateralStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	collateral, err := h.service.UpdateStatus(c.Request.Context(), id, req.Status, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, collateral)
}

func (h *Handler) MarkEligible(c *gin.Context)   { h.setStatus(c, h.service.MarkEligible) }
func (h *Handler) MarkIneligible(c *gin.Context) { h.setStatus(c, h.service.MarkIneligible) }
func (h *Handler) MarkMatured(c *gin.Context)    { h.setStatus(c, h.service.MarkMatured) }
func (h *Handler) Pledge(c *gin.Context)         { h.setStatus(c, h.service.Pledge) }
func (h *Handler) Return(c *gin.Context)         { h.setStatus(c, h.service.Return) }

func (h *Handler) setStatus(c *gin.Context, fn func(ctx context.Context, id uint64, performedBy string) (*domain.Collateral, error)) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	collateral, err := fn(c.Request.Context(), id, performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, collateral)
}

func (h *Handler) ProcessMatured(c *gin.Context) {
	count, err := h.service.ProcessMaturedCollaterals(c.Request.Context(), performedBy(c))
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"processed": count})
}

func (h *Handler) TotalEligible(c *gin.Context) {
	total, err := h.service.TotalEligibleValue(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"total_eligible_value": total})
}

func (h *Handler) SummaryByType(c *gin.Context) {
	summary, err := h.service.SummaryByType(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, summary)
}

func (h *Handler) Concentration(c *gin.Context) {
	concentration, err := h.service.ConcentrationByRating(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, concentration)
}

func (h *Handler) HighRisk(c *gin.Context) {
	threshold := decimal.Zero
	if v := c.Query("threshold"); v != "" {
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid threshold", v)
			return
		}
		threshold = parsed
	}
	collaterals, err := h.service.HighRiskCollaterals(c.Request.Context(), threshold)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, collaterals)
}

func (h *Handler) RiskExposure(c *gin.Context) {
	exposure, err := h.service.TotalRiskExposure(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"total_risk_exposure": exposure})
}

func (h *Handler) AverageHaircut(c *gin.Context) {
	averages, err := h.service.AverageHaircutByType(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, averages)
}

func (h *Handler) AverageHaircutForType(c *gin.Context) {
	collateralType := domain.CollateralType(c.Param("type"))
	average, err := h.service.AverageHaircutForType(c.Request.Context(), collateralType)
	if err != nil {
		response.ErrorWithStatus(c, apperror.HTTPStatus(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"collateral_type": collateralType, "average_haircut": average})
}
