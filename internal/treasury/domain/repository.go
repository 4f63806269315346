// Package domain 司库账户仓储接口
package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// AccountFilter 分页检索条件，nil 字段表示不过滤
type AccountFilter struct {
	Status      *AccountStatus
	AccountType *AccountType
	Currency    *string
	BankName    *string
}

// AccountSummary 按币种汇总（仅 ACTIVE 账户）
type AccountSummary struct {
	Currency     string          `json:"currency"`
	TotalBalance decimal.Decimal `json:"total_balance"`
	AccountCount int64           `json:"account_count"`
}

type AccountRepository interface {
	Save(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id uint64) (*Account, error)
	GetByAccountNumber(ctx context.Context, accountNumber string) (*Account, error)
	GetWithLock(ctx context.Context, id uint64) (*Account, error) // 悲观锁获取
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context, offset, limit int) ([]*Account, int64, error)
	ListByStatus(ctx context.Context, status AccountStatus) ([]*Account, error)
	ListByType(ctx context.Context, accountType AccountType) ([]*Account, error)
	ListByCurrency(ctx context.Context, currency string) ([]*Account, error)
	ListByBankName(ctx context.Context, bankName string) ([]*Account, error)
	Search(ctx context.Context, filter AccountFilter, offset, limit int) ([]*Account, int64, error)
	ExistsByAccountNumber(ctx context.Context, accountNumber string) (bool, error)

	// 报表聚合
	SumBalanceByCurrencyAndStatus(ctx context.Context, currency string, status AccountStatus) (decimal.Decimal, error)
	SumAvailableBalance(ctx context.Context) (decimal.Decimal, error)
	SummaryByCurrency(ctx context.Context) ([]*AccountSummary, error)
	ListLowBalance(ctx context.Context, threshold decimal.Decimal) ([]*Account, error)
}

// TransactionManager 事务管理器，fn 内通过 ctx 传递事务句柄
type TransactionManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
