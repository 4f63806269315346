// Package application 抵押品应用层
// 估值口径：任何触及市值或折扣率的写路径都重算折后价值；
// 到期清扫在单事务内完成，事件在提交后发布。
package application

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/kpstreasury/internal/apperror"
	"github.com/wyfcoding/kpstreasury/internal/collateral/domain"
	"github.com/wyfcoding/kpstreasury/internal/events"
)

// DefaultHighRiskHaircut 高风险折扣率阈值
var DefaultHighRiskHaircut = decimal.NewFromFloat(0.15)

// CollateralService 抵押品应用服务
type CollateralService struct {
	repo      domain.CollateralRepository
	txManager domain.TransactionManager
	publisher *events.Publisher
	logger    *slog.Logger
}

// NewCollateralService 创建抵押品应用服务
func NewCollateralService(
	repo domain.CollateralRepository,
	txManager domain.TransactionManager,
	publisher *events.Publisher,
	logger *slog.Logger,
) *CollateralService {
	return &CollateralService{
		repo:      repo,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("module", "collateral"),
	}
}

// CreateCollateralCommand 创建抵押品命令
type CreateCollateralCommand struct {
	CollateralType domain.CollateralType `json:"collateral_type"`
	Description    string                `json:"description"`
	MarketValue    decimal.Decimal       `json:"market_value"`
	Haircut        decimal.Decimal       `json:"haircut"`
	Currency       string                `json:"currency"`
	Rating         domain.Rating         `json:"rating"`
	MaturityDate   time.Time             `json:"maturity_date"`
	Counterparty   string                `json:"counterparty"`
	Location       string                `json:"location"`
}

// CreateCollateral 创建抵押品：到期日必须严格晚于当前时间
func (s *CollateralService) CreateCollateral(ctx context.Context, cmd CreateCollateralCommand, performedBy string) (*domain.Collateral, error) {
	collateral := &domain.Collateral{
		CollateralType: cmd.CollateralType,
		Description:    cmd.Description,
		MarketValue:    cmd.MarketValue,
		Haircut:        cmd.Haircut,
		EligibleValue:  domain.ComputeEligibleValue(cmd.MarketValue, cmd.Haircut),
		Currency:       cmd.Currency,
		Rating:         cmd.Rating,
		MaturityDate:   cmd.MaturityDate,
		Status:         domain.CollateralStatusEligible,
		Counterparty:   cmd.Counterparty,
		Location:       cmd.Location,
	}
	if err := collateral.Validate(true); err != nil {
		return nil, err
	}

	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		return s.repo.Save(ctx, collateral)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Collateral(ctx, events.CollateralEvent{
		Envelope:       events.NewEnvelope(events.EventCollateralCreated),
		CollateralID:   collateral.ID,
		CollateralType: string(collateral.CollateralType),
		MarketValue:    collateral.MarketValue,
		EligibleValue:  collateral.EligibleValue,
		Status:         string(collateral.Status),
		PerformedBy:    performedBy,
	})
	s.logger.InfoContext(ctx, "collateral created",
		"collateral_id", collateral.ID, "type", collateral.CollateralType,
		"eligible_value", collateral.EligibleValue)
	return collateral, nil
}

// GetCollateral 按 ID 查询
func (s *CollateralService) GetCollateral(ctx context.Context, id uint64) (*domain.Collateral, error) {
	collateral, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if collateral == nil {
		return nil, apperror.NotFound("collateral", id)
	}
	return collateral, nil
}

// ListCollaterals 分页列表
func (s *CollateralService) ListCollaterals(ctx context.Context, offset, limit int) ([]*domain.Collateral, int64, error) {
	return s.repo.List(ctx, offset, limit)
}

// ListByStatus 按状态查询
func (s *CollateralService) ListByStatus(ctx context.Context, status domain.CollateralStatus) ([]*domain.Collateral, error) {
	if !status.Valid() {
		return nil, apperror.Validation("status", "unknown collateral status")
	}
	return s.repo.ListByStatus(ctx, status)
}

// ListByType 按类型查询
func (s *CollateralService) ListByType(ctx context.Context, collateralType domain.CollateralType) ([]*domain.Collateral, error) {
	if !collateralType.Valid() {
		return nil, apperror.Validation("collateral_type", "unknown collateral type")
	}
	return s.repo.ListByType(ctx, collateralType)
}

// ListByRating 按评级查询
func (s *CollateralService) ListByRating(ctx context.Context, rating domain.Rating) ([]*domain.Collateral, error) {
	if !rating.Valid() {
		return nil, apperror.Validation("rating", "unknown rating")
	}
	return s.repo.ListByRating(ctx, rating)
}

// ListByCurrency 按币种查询
func (s *CollateralService) ListByCurrency(ctx context.Context, currency string) ([]*domain.Collateral, error) {
	return s.repo.ListByCurrency(ctx, currency)
}

// ListByCounterparty 按交易对手查询
func (s *CollateralService) ListByCounterparty(ctx context.Context, counterparty string) ([]*domain.Collateral, error) {
	return s.repo.ListByCounterparty(ctx, counterparty)
}

// ListEligibleByMinRating 信用质量不低于 minRating 的可抵押品
func (s *CollateralService) ListEligibleByMinRating(ctx context.Context, minRating domain.Rating) ([]*domain.Collateral, error) {
	if !minRating.Valid() {
		return nil, apperror.Validation("rating", "unknown rating")
	}
	return s.repo.ListEligibleByRatings(ctx, domain.RatingsAtLeast(minRating))
}

// ListExpiringBetween 到期日落在 [from, to] 的抵押品
func (s *CollateralService) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*domain.Collateral, error) {
	if to.Before(from) {
		return nil, apperror.Validation("to", "end date must not be before start date")
	}
	return s.repo.ListExpiringBetween(ctx, from, to)
}

// ListExpiringInDays 未来 N 天内到期的抵押品
func (s *CollateralService) ListExpiringInDays(ctx context.Context, days int) ([]*domain.Collateral, error) {
	if days < 0 {
		return nil, apperror.Validation("days", "days must not be negative")
	}
	now := time.Now()
	return s.repo.ListExpiringBetween(ctx, now, now.AddDate(0, 0, days))
}

// SearchCollaterals 多条件分页检索，空条件等价于全量
func (s *CollateralService) SearchCollaterals(ctx context.Context, filter domain.CollateralFilter, offset, limit int) ([]*domain.Collateral, int64, error) {
	return s.repo.Search(ctx, filter, offset, limit)
}

// UpdateCollateralCommand 更新抵押品命令
type UpdateCollateralCommand struct {
	CollateralType domain.CollateralType `json:"collateral_type"`
	Description    string                `json:"description"`
	MarketValue    decimal.Decimal       `json:"market_value"`
	Haircut        decimal.Decimal       `json:"haircut"`
	Currency       string                `json:"currency"`
	Rating         domain.Rating         `json:"rating"`
	MaturityDate   time.Time             `json:"maturity_date"`
	Counterparty   string                `json:"counterparty"`
	Location       string                `json:"location"`
}

// UpdateCollateral 全量更新，折后价值随市值与折扣率重算
// 更新路径不要求到期日在未来，存量已到期记录允许编辑。
func (s *CollateralService) UpdateCollateral(ctx context.Context, id uint64, cmd UpdateCollateralCommand, performedBy string) (*domain.Collateral, error) {
	var collateral *domain.Collateral
	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		var err error
		collateral, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if collateral == nil {
			return apperror.NotFound("collateral", id)
		}

		collateral.CollateralType = cmd.CollateralType
		collateral.Description = cmd.Description
		collateral.Currency = cmd.Currency
		collateral.Rating = cmd.Rating
		collateral.MaturityDate = cmd.MaturityDate
		collateral.Counterparty = cmd.Counterparty
		collateral.Location = cmd.Location
		if err := collateral.Revalue(cmd.MarketValue, cmd.Haircut); err != nil {
			return err
		}
		if err := collateral.Validate(false); err != nil {
			return err
		}
		return s.repo.Save(ctx, collateral)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Collateral(ctx, events.CollateralEvent{
		Envelope:       events.NewEnvelope(events.EventCollateralUpdated),
		CollateralID:   collateral.ID,
		CollateralType: string(collateral.CollateralType),
		MarketValue:    collateral.MarketValue,
		EligibleValue:  collateral.EligibleValue,
		Status:         string(collateral.Status),
		PerformedBy:    performedBy,
	})
	return collateral, nil
}

// DeleteCollateral 删除抵押品（物理删除，仅管理员）
func (s *CollateralService) DeleteCollateral(ctx context.Context, id uint64, performedBy string) error {
	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		collateral, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if collateral == nil {
			return apperror.NotFound("collateral", id)
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.publisher.Collateral(ctx, events.CollateralEvent{
		Envelope:     events.NewEnvelope(events.EventCollateralDeleted),
		CollateralID: id,
		PerformedBy:  performedBy,
	})
	s.logger.InfoContext(ctx, "collateral deleted", "collateral_id", id)
	return nil
}

// UpdateMarketValue 仅更新市值，折扣率沿用原值
func (s *CollateralService) UpdateMarketValue(ctx context.Context, id uint64, marketValue decimal.Decimal, performedBy string) (*domain.Collateral, error) {
	return s.revalue(ctx, id, func(c *domain.Collateral) error {
		return c.SetMarketValue(marketValue)
	}, performedBy)
}

// Revalue 重估：同时更新市值与折扣率
func (s *CollateralService) Revalue(ctx context.Context, id uint64, marketValue, haircut decimal.Decimal, performedBy string) (*domain.Collateral, error) {
	return s.revalue(ctx, id, func(c *domain.Collateral) error {
		return c.Revalue(marketValue, haircut)
	}, performedBy)
}

func (s *CollateralService) revalue(ctx context.Context, id uint64, apply func(*domain.Collateral) error, performedBy string) (*domain.Collateral, error) {
	var collateral *domain.Collateral
	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		var err error
		collateral, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if collateral == nil {
			return apperror.NotFound("collateral", id)
		}
		if err := apply(collateral); err != nil {
			return err
		}
		return s.repo.Save(ctx, collateral)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Collateral(ctx, events.CollateralEvent{
		Envelope:      events.NewEnvelope(events.EventCollateralRevalued),
		CollateralID:  collateral.ID,
		MarketValue:   collateral.MarketValue,
		EligibleValue: collateral.EligibleValue,
		PerformedBy:   performedBy,
	})
	return collateral, nil
}

// UpdateStatus 状态无条件覆盖
func (s *CollateralService) UpdateStatus(ctx context.Context, id uint64, status domain.CollateralStatus, performedBy string) (*domain.Collateral, error) {
	var collateral *domain.Collateral
	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		var err error
		collateral, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if collateral == nil {
			return apperror.NotFound("collateral", id)
		}
		if err := collateral.SetStatus(status); err != nil {
			return err
		}
		return s.repo.Save(ctx, collateral)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Collateral(ctx, events.CollateralEvent{
		Envelope:     events.NewEnvelope(events.EventCollateralStatusChanged),
		CollateralID: collateral.ID,
		Status:       string(collateral.Status),
		PerformedBy:  performedBy,
	})
	return collateral, nil
}

// MarkEligible 标记可抵押
func (s *CollateralService) MarkEligible(ctx context.Context, id uint64, performedBy string) (*domain.Collateral, error) {
	return s.UpdateStatus(ctx, id, domain.CollateralStatusEligible, performedBy)
}

// MarkIneligible 标记不可抵押
func (s *CollateralService) MarkIneligible(ctx context.Context, id uint64, performedBy string) (*domain.Collateral, error) {
	return s.UpdateStatus(ctx, id, domain.CollateralStatusIneligible, performedBy)
}

// MarkMatured 标记已到期
func (s *CollateralService) MarkMatured(ctx context.Context, id uint64, performedBy string) (*domain.Collateral, error) {
	return s.UpdateStatus(ctx, id, domain.CollateralStatusMatured, performedBy)
}

// Pledge 质押
func (s *CollateralService) Pledge(ctx context.Context, id uint64, performedBy string) (*domain.Collateral, error) {
	return s.UpdateStatus(ctx, id, domain.CollateralStatusPledged, performedBy)
}

// Return 归还
func (s *CollateralService) Return(ctx context.Context, id uint64, performedBy string) (*domain.Collateral, error) {
	return s.UpdateStatus(ctx, id, domain.CollateralStatusReturned, performedBy)
}

// ProcessMaturedCollaterals 到期清扫
// 把到期日不晚于当前时间且状态非 MATURED 的记录全部置为 MATURED，
// 单事务提交后逐条发布到期事件与到期提醒，返回处理条数。
func (s *CollateralService) ProcessMaturedCollaterals(ctx context.Context, performedBy string) (int, error) {
	var matured []*domain.Collateral
	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		var err error
		matured, err = s.repo.ListMaturedBefore(ctx, time.Now())
		if err != nil {
			return err
		}
		for _, c := range matured {
			c.MarkMatured()
			if err := s.repo.Save(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, c := range matured {
		s.publisher.Collateral(ctx, events.CollateralEvent{
			Envelope:     events.NewEnvelope(events.EventCollateralMatured),
			CollateralID: c.ID,
			Status:       string(c.Status),
			PerformedBy:  performedBy,
		})
		s.publisher.Notification(ctx, events.NotificationEvent{
			Envelope: events.NewEnvelope(events.EventMaturityAlert),
			Subject:  "collateral matured: " + strconv.FormatUint(c.ID, 10),
			Message:  c.Description + " matured on " + c.MaturityDate.Format("2006-01-02"),
			Severity: "WARN",
		})
	}
	if len(matured) > 0 {
		s.logger.InfoContext(ctx, "matured collaterals processed", "count", len(matured))
	}
	return len(matured), nil
}

// TotalEligibleValue 全部 ELIGIBLE 抵押品的折后价值合计
func (s *CollateralService) TotalEligibleValue(ctx context.Context) (decimal.Decimal, error) {
	return s.repo.SumEligibleValue(ctx)
}

// SummaryByType 按类型汇总 ELIGIBLE 抵押品
func (s *CollateralService) SummaryByType(ctx context.Context) ([]*domain.TypeSummary, error) {
	return s.repo.SummaryByType(ctx)
}

// ConcentrationByRating 按评级统计 ELIGIBLE 集中度
func (s *CollateralService) ConcentrationByRating(ctx context.Context) ([]*domain.RatingConcentration, error) {
	return s.repo.ConcentrationByRating(ctx)
}

// HighRiskCollaterals 折扣率高于阈值的 ELIGIBLE 抵押品；阈值非正时用默认 0.15
func (s *CollateralService) HighRiskCollaterals(ctx context.Context, threshold decimal.Decimal) ([]*domain.Collateral, error) {
	if !threshold.IsPositive() {
		threshold = DefaultHighRiskHaircut
	}
	return s.repo.ListHighRisk(ctx, threshold)
}

// TotalRiskExposure ELIGIBLE 抵押品的 Σ(市值 - 折后价值)
func (s *CollateralService) TotalRiskExposure(ctx context.Context) (decimal.Decimal, error) {
	return s.repo.SumRiskExposure(ctx)
}

// AverageHaircutByType 各类型平均折扣率，无数据返回空切片而非错误
func (s *CollateralService) AverageHaircutByType(ctx context.Context) ([]*domain.HaircutAverage, error) {
	return s.repo.AverageHaircutByType(ctx)
}

// AverageHaircutForType 单一类型的平均折扣率；该类型无记录时返回 0 而非错误
func (s *CollateralService) AverageHaircutForType(ctx context.Context, collateralType domain.CollateralType) (decimal.Decimal, error) {
	if !collateralType.Valid() {
		return decimal.Zero, apperror.Validation("collateral_type", "unknown collateral type")
	}
	return s.repo.AverageHaircutForType(ctx, collateralType)
}
