// Package mysql 抵押品 MySQL 仓储实现
package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/kpstreasury/internal/collateral/domain"
	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
)

// baseRepository 基础仓储，提供事务支持
type baseRepository struct {
	db *gorm.DB
}

func (r *baseRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

// TransactionManager 事务管理器
type TransactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) *TransactionManager {
	return &TransactionManager{db: db}
}

// Transaction 开启一个新事务，事务句柄经 ctx 下传
func (tm *TransactionManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}

// GormCollateralRepository 抵押品仓储
type GormCollateralRepository struct {
	baseRepository
}

func NewGormCollateralRepository(db *gorm.DB) domain.CollateralRepository {
	return &GormCollateralRepository{baseRepository{db: db}}
}

func (r *GormCollateralRepository) Save(ctx context.Context, collateral *domain.Collateral) error {
	return r.getDB(ctx).WithContext(ctx).Save(collateral).Error
}

func (r *GormCollateralRepository) GetByID(ctx context.Context, id uint64) (*domain.Collateral, error) {
	var collateral domain.Collateral
	if err := r.getDB(ctx).WithContext(ctx).First(&collateral, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &collateral, nil
}

func (r *GormCollateralRepository) Delete(ctx context.Context, id uint64) error {
	return r.getDB(ctx).WithContext(ctx).Delete(&domain.Collateral{}, id).Error
}

func (r *GormCollateralRepository) List(ctx context.Context, offset, limit int) ([]*domain.Collateral, int64, error) {
	query := r.getDB(ctx).WithContext(ctx).Model(&domain.Collateral{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var collaterals []*domain.Collateral
	if err := query.Order("id ASC").Offset(offset).Limit(limit).Find(&collaterals).Error; err != nil {
		return nil, 0, err
	}
	return collaterals, total, nil
}

func (r *GormCollateralRepository) ListByStatus(ctx context.Context, status domain.CollateralStatus) ([]*domain.Collateral, error) {
	var collaterals []*domain.Collateral
	if err := r.getDB(ctx).WithContext(ctx).Where("status = ?", status).Find(&collaterals).Error; err != nil {
		return nil, err
	}
	return collaterals, nil
}

func (r *GormCollateralRepository) ListByType(ctx context.Context, collateralType domain.CollateralType) ([]*domain.Collateral, error) {
	var collaterals []*domain.Collateral
	if err := r.getDB(ctx).WithContext(ctx).Where("collateral_type = ?", collateralType).Find(&collaterals).Error; err != nil {
		return nil, err
	}
	return collaterals, nil
}

func (r *GormCollateralRepository) ListByRating(ctx context.Context, rating domain.Rating) ([]*domain.Collateral, error) {
	var collaterals []*domain.Collateral
	if err := r.getDB(ctx).WithContext(ctx).Where("rating = ?", rating).Find(&collaterals).Error; err != nil {
		return nil, err
	}
	return collaterals, nil
}

func (r *GormCollateralRepository) ListByCurrency(ctx context.Context, currency string) ([]*domain.Collateral, error) {
	var collaterals []*domain.Collateral
	if err := r.getDB(ctx).WithContext(ctx).Where("currency = ?", currency).Find(&collaterals).Error; err != nil {
		return nil, err
	}
	return collaterals, nil
}

func (r *GormCollateralRepository) ListByCounterparty(ctx context.Context, counterparty string) ([]*domain.Collateral, error) {
	var collaterals []*domain.Collateral
	if err := r.getDB(ctx).WithContext(ctx).Where("counterparty = ?", counterparty).Find(&collaterals).Error; err != nil {
		return nil, err
	}
	return collaterals, nil
}

func (r *GormCollateralRepository) ListEligibleByRatings(ctx context.Context, ratings []domain.Rating) ([]*domain.Collateral, error) {
	var collaterals []*domain.Collateral
	err := r.getDB(ctx).WithContext(ctx).
		Where("status = ? AND rating IN ?", domain.CollateralStatusEligible, ratings).
		Find(&collaterals).Error
	if err != nil {
		return nil, err
	}
	return collaterals, nil
}

func (r *GormCollateralRepository) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*domain.Collateral, error) {
	var collaterals []*domain.Collateral
	err := r.getDB(ctx).WithContext(ctx).
		Where("maturity_date >= ? AND maturity_date <= ?", from, to).
		Order("maturity_date ASC").
		Find(&collaterals).Error
	if err != nil {
		return nil, err
	}
	return collaterals, nil
}

func (r *GormCollateralRepository) Search(ctx context.Context, filter domain.CollateralFilter, offset, limit int) ([]*domain.Collateral, int64, error) {
	query := r.getDB(ctx).WithContext(ctx).Model(&domain.Collateral{})
	if filter.CollateralType != nil {
		query = query.Where("collateral_type = ?", *filter.CollateralType)
	}
	if filter.MinRating != nil {
		query = query.Where("rating IN ?", domain.RatingsAtLeast(*filter.MinRating))
	}
	if filter.Currency != nil {
		query = query.Where("currency = ?", *filter.Currency)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.MinMarketValue != nil {
		query = query.Where("market_value >= ?", *filter.MinMarketValue)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var collaterals []*domain.Collateral
	if err := query.Order("id ASC").Offset(offset).Limit(limit).Find(&collaterals).Error; err != nil {
		return nil, 0, err
	}
	return collaterals, total, nil
}

func (r *GormCollateralRepository) ListMaturedBefore(ctx context.Context, asOf time.Time) ([]*domain.Collateral, error) {
	var collaterals []*domain.Collateral
	err := r.getDB(ctx).WithContext(ctx).
		Where("maturity_date <= ? AND status <> ?", asOf, domain.CollateralStatusMatured).
		Find(&collaterals).Error
	if err != nil {
		return nil, err
	}
	return collaterals, nil
}

func (r *GormCollateralRepository) SumEligibleValue(ctx context.Context) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.Collateral{}).
		Select("COALESCE(SUM(eligible_value), 0) AS total").
		Where("status = ?", domain.CollateralStatusEligible).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

func (r *GormCollateralRepository) SummaryByType(ctx context.Context) ([]*domain.TypeSummary, error) {
	var summaries []*domain.TypeSummary
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.Collateral{}).
		Select("collateral_type, COALESCE(SUM(market_value), 0) AS total_market_value, COALESCE(SUM(eligible_value), 0) AS total_eligible_value").
		Where("status = ?", domain.CollateralStatusEligible).
		Group("collateral_type").
		Order("collateral_type ASC").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *GormCollateralRepository) ConcentrationByRating(ctx context.Context) ([]*domain.RatingConcentration, error) {
	var concentrations []*domain.RatingConcentration
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.Collateral{}).
		Select("rating, COUNT(*) AS count, COALESCE(SUM(market_value), 0) AS total_market_value").
		Where("status = ?", domain.CollateralStatusEligible).
		Group("rating").
		// 按信用质量降序：AAA 在前，D 在后
		Order("FIELD(rating, 'AAA','AA','A','BBB','BB','B','CCC','CC','C','D')").
		Scan(&concentrations).Error
	if err != nil {
		return nil, err
	}
	return concentrations, nil
}

func (r *GormCollateralRepository) ListHighRisk(ctx context.Context, haircutThreshold decimal.Decimal) ([]*domain.Collateral, error) {
	var collaterals []*domain.Collateral
	err := r.getDB(ctx).WithContext(ctx).
		Where("status = ? AND haircut > ?", domain.CollateralStatusEligible, haircutThreshold).
		Order("haircut DESC").
		Find(&collaterals).Error
	if err != nil {
		return nil, err
	}
	return collaterals, nil
}

func (r *GormCollateralRepository) SumRiskExposure(ctx context.Context) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.Collateral{}).
		Select("COALESCE(SUM(market_value - eligible_value), 0) AS total").
		Where("status = ?", domain.CollateralStatusEligible).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

func (r *GormCollateralRepository) AverageHaircutByType(ctx context.Context) ([]*domain.HaircutAverage, error) {
	var averages []*domain.HaircutAverage
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.Collateral{}).
		Select("collateral_type, COALESCE(AVG(haircut), 0) AS average_haircut").
		Group("collateral_type").
		Order("collateral_type ASC").
		Scan(&averages).Error
	if err != nil {
		return nil, err
	}
	return averages, nil
}

func (r *GormCollateralRepository) AverageHaircutForType(ctx context.Context, collateralType domain.CollateralType) (decimal.Decimal, error) {
	var result struct {
		Average decimal.Decimal
	}
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.Collateral{}).
		Select("COALESCE(AVG(haircut), 0) AS average").
		Where("collateral_type = ?", collateralType).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Average, nil
}
