// Package domain 抵押品仓储接口
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CollateralFilter 分页检索条件，nil 字段表示不过滤
type CollateralFilter struct {
	CollateralType *CollateralType
	MinRating      *Rating
	Currency       *string
	Status         *CollateralStatus
	MinMarketValue *decimal.Decimal
}

// TypeSummary 按类型汇总（仅 ELIGIBLE）
type TypeSummary struct {
	CollateralType     CollateralType  `json:"collateral_type"`
	TotalMarketValue   decimal.Decimal `json:"total_market_value"`
	TotalEligibleValue decimal.Decimal `json:"total_eligible_value"`
}

// RatingConcentration 按评级的集中度（仅 ELIGIBLE，按评级序升序）
type RatingConcentration struct {
	Rating           Rating          `json:"rating"`
	Count            int64           `json:"count"`
	TotalMarketValue decimal.Decimal `json:"total_market_value"`
}

// HaircutAverage 按类型的平均折扣率（全部状态）
type HaircutAverage struct {
	CollateralType CollateralType  `json:"collateral_type"`
	AverageHaircut decimal.Decimal `json:"average_haircut"`
}

type CollateralRepository interface {
	Save(ctx context.Context, collateral *Collateral) error
	GetByID(ctx context.Context, id uint64) (*Collateral, error)
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context, offset, limit int) ([]*Collateral, int64, error)
	ListByStatus(ctx context.Context, status CollateralStatus) ([]*Collateral, error)
	ListByType(ctx context.Context, collateralType CollateralType) ([]*Collateral, error)
	ListByRating(ctx context.Context, rating Rating) ([]*Collateral, error)
	ListByCurrency(ctx context.Context, currency string) ([]*Collateral, error)
	ListByCounterparty(ctx context.Context, counterparty string) ([]*Collateral, error)
	ListEligibleByRatings(ctx context.Context, ratings []Rating) ([]*Collateral, error)
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*Collateral, error)
	Search(ctx context.Context, filter CollateralFilter, offset, limit int) ([]*Collateral, int64, error)

	// 到期清扫：到期日 <= asOf 且状态非 MATURED
	ListMaturedBefore(ctx context.Context, asOf time.Time) ([]*Collateral, error)

	// 报表聚合
	SumEligibleValue(ctx context.Context) (decimal.Decimal, error)
	SummaryByType(ctx context.Context) ([]*TypeSummary, error)
	ConcentrationByRating(ctx context.Context) ([]*RatingConcentration, error)
	ListHighRisk(ctx context.Context, haircutThreshold decimal.Decimal) ([]*Collateral, error)
	SumRiskExposure(ctx context.Context) (decimal.Decimal, error)
	AverageHaircutByType(ctx context.Context) ([]*HaircutAverage, error)
	AverageHaircutForType(ctx context.Context, collateralType CollateralType) (decimal.Decimal, error)
}

// TransactionManager 事务管理器，fn 内通过 ctx 传递事务句柄
type TransactionManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
