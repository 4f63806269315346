// Package mysql 司库账户仓储实现
// 统一通过 contextx 获取事务句柄，保证应用层事务闭包内的读写共用一个事务。
package mysql

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/kpstreasury/internal/treasury/domain"
	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
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

// GormAccountRepository 司库账户仓储
type GormAccountRepository struct {
	baseRepository
}

func NewGormAccountRepository(db *gorm.DB) domain.AccountRepository {
	return &GormAccountRepository{baseRepository{db: db}}
}

func (r *GormAccountRepository) Save(ctx context.Context, account *domain.Account) error {
	return r.getDB(ctx).WithContext(ctx).Save(account).Error
}

func (r *GormAccountRepository) GetByID(ctx context.Context, id uint64) (*domain.Account, error) {
	var account domain.Account
	if err := r.getDB(ctx).WithContext(ctx).First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *GormAccountRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	var account domain.Account
	err := r.getDB(ctx).WithContext(ctx).Where("account_number = ?", accountNumber).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *GormAccountRepository) GetWithLock(ctx context.Context, id uint64) (*domain.Account, error) {
	var account domain.Account
	err := r.getDB(ctx).WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&account, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *GormAccountRepository) Delete(ctx context.Context, id uint64) error {
	return r.getDB(ctx).WithContext(ctx).Delete(&domain.Account{}, id).Error
}

func (r *GormAccountRepository) List(ctx context.Context, offset, limit int) ([]*domain.Account, int64, error) {
	query := r.getDB(ctx).WithContext(ctx).Model(&domain.Account{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var accounts []*domain.Account
	if err := query.Order("id ASC").Offset(offset).Limit(limit).Find(&accounts).Error; err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}

func (r *GormAccountRepository) ListByStatus(ctx context.Context, status domain.AccountStatus) ([]*domain.Account, error) {
	var accounts []*domain.Account
	if err := r.getDB(ctx).WithContext(ctx).Where("status = ?", status).Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *GormAccountRepository) ListByType(ctx context.Context, accountType domain.AccountType) ([]*domain.Account, error) {
	var accounts []*domain.Account
	if err := r.getDB(ctx).WithContext(ctx).Where("account_type = ?", accountType).Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *GormAccountRepository) ListByCurrency(ctx context.Context, currency string) ([]*domain.Account, error) {
	var accounts []*domain.Account
	if err := r.getDB(ctx).WithContext(ctx).Where("currency = ?", currency).Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *GormAccountRepository) ListByBankName(ctx context.Context, bankName string) ([]*domain.Account, error) {
	var accounts []*domain.Account
	if err := r.getDB(ctx).WithContext(ctx).Where("bank_name = ?", bankName).Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *GormAccountRepository) Search(ctx context.Context, filter domain.AccountFilter, offset, limit int) ([]*domain.Account, int64, error) {
	query := r.getDB(ctx).WithContext(ctx).Model(&domain.Account{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.AccountType != nil {
		query = query.Where("account_type = ?", *filter.AccountType)
	}
	if filter.Currency != nil {
		query = query.Where("currency = ?", *filter.Currency)
	}
	if filter.BankName != nil {
		query = query.Where("bank_name = ?", *filter.BankName)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var accounts []*domain.Account
	if err := query.Order("id ASC").Offset(offset).Limit(limit).Find(&accounts).Error; err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}

func (r *GormAccountRepository) ExistsByAccountNumber(ctx context.Context, accountNumber string) (bool, error) {
	var count int64
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.Account{}).
		Where("account_number = ?", accountNumber).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormAccountRepository) SumBalanceByCurrencyAndStatus(ctx context.Context, currency string, status domain.AccountStatus) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.Account{}).
		Select("COALESCE(SUM(balance), 0) AS total").
		Where("currency = ? AND status = ?", currency, status).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

func (r *GormAccountRepository) SumAvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.Account{}).
		Select("COALESCE(SUM(available_balance), 0) AS total").
		Where("status = ?", domain.AccountStatusActive).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

func (r *GormAccountRepository) SummaryByCurrency(ctx context.Context) ([]*domain.AccountSummary, error) {
	var summaries []*domain.AccountSummary
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.Account{}).
		Select("currency, COALESCE(SUM(balance), 0) AS total_balance, COUNT(*) AS account_count").
		Where("status = ?", domain.AccountStatusActive).
		Group("currency").
		Order("currency ASC").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *GormAccountRepository) ListLowBalance(ctx context.Context, threshold decimal.Decimal) ([]*domain.Account, error) {
	var accounts []*domain.Account
	err := r.getDB(ctx).WithContext(ctx).
		Where("status = ? AND balance < ?", domain.AccountStatusActive, threshold).
		Order("balance ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}
