// Package domain 司库账户领域层
// 定义司库（现金）账户实体、账户状态与余额变动的领域规则。
// 核心不变量：任何变更路径上 available_balance <= balance 均成立。
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/kpstreasury/internal/apperror"
)

// AccountType 账户类型
type AccountType string

const (
	AccountTypeChecking    AccountType = "CHECKING"
	AccountTypeSavings     AccountType = "SAVINGS"
	AccountTypeDeposit     AccountType = "DEPOSIT"
	AccountTypeMoneyMarket AccountType = "MONEY_MARKET"
	AccountTypeFixedTerm   AccountType = "FIXED_TERM"
)

// Valid 是否为已知账户类型
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeChecking, AccountTypeSavings, AccountTypeDeposit,
		AccountTypeMoneyMarket, AccountTypeFixedTerm:
		return true
	}
	return false
}

// AccountStatus 账户状态
// 状态只通过显式的 Activate/Deactivate/Suspend 变更，没有自动迁移。
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusInactive  AccountStatus = "INACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
)

// Valid 是否为已知账户状态
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusInactive, AccountStatusSuspended:
		return true
	}
	return false
}

// Account 司库账户聚合根
type Account struct {
	ID               uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountNumber    string          `gorm:"column:account_number;type:varchar(50);uniqueIndex;not null" json:"account_number"`
	Currency         string          `gorm:"column:currency;type:char(3);not null" json:"currency"`
	Balance          decimal.Decimal `gorm:"column:balance;type:decimal(19,2);not null" json:"balance"`
	AvailableBalance decimal.Decimal `gorm:"column:available_balance;type:decimal(19,2);not null" json:"available_balance"`
	AccountType      AccountType     `gorm:"column:account_type;type:varchar(20);not null" json:"account_type"`
	Status           AccountStatus   `gorm:"column:status;type:varchar(20);not null;default:'ACTIVE'" json:"status"`
	BankName         string          `gorm:"column:bank_name;type:varchar(100);not null" json:"bank_name"`
	BranchCode       string          `gorm:"column:branch_code;type:varchar(20);not null" json:"branch_code"`
	CreatedAt        time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

// TableName 表名
func (Account) TableName() string {
	return "treasury_accounts"
}

// Validate 字段校验，含跨字段不变量 available <= balance
func (a *Account) Validate() error {
	if strings.TrimSpace(a.AccountNumber) == "" {
		return apperror.Validation("account_number", "account number is required")
	}
	if len(a.AccountNumber) > 50 {
		return apperror.Validation("account_number", "account number must not exceed 50 characters")
	}
	if len(a.Currency) != 3 {
		return apperror.Validation("currency", "currency must be a 3-letter ISO code")
	}
	if !a.AccountType.Valid() {
		return apperror.Validation("account_type", "unknown account type")
	}
	if !a.Status.Valid() {
		return apperror.Validation("status", "unknown account status")
	}
	if a.Balance.IsNegative() {
		return apperror.Validation("balance", "balance cannot be negative")
	}
	if a.AvailableBalance.IsNegative() {
		return apperror.Validation("available_balance", "available balance cannot be negative")
	}
	if strings.TrimSpace(a.BankName) == "" {
		return apperror.Validation("bank_name", "bank name is required")
	}
	if len(a.BankName) > 100 {
		return apperror.Validation("bank_name", "bank name must not exceed 100 characters")
	}
	if strings.TrimSpace(a.BranchCode) == "" {
		return apperror.Validation("branch_code", "branch code is required")
	}
	if len(a.BranchCode) > 20 {
		return apperror.Validation("branch_code", "branch code must not exceed 20 characters")
	}
	if a.AvailableBalance.GreaterThan(a.Balance) {
		return apperror.Invariant("available balance cannot exceed total balance")
	}
	return nil
}

// SetBalance 更新总余额
// 可用余额若高于新的总余额，会被压到与总余额持平。
func (a *Account) SetBalance(newBalance decimal.Decimal) error {
	if newBalance.IsNegative() {
		return apperror.Validation("balance", "balance cannot be negative")
	}
	a.Balance = newBalance
	if a.AvailableBalance.GreaterThan(newBalance) {
		a.AvailableBalance = newBalance
	}
	return nil
}

// SetAvailableBalance 更新可用余额，不得超过总余额
func (a *Account) SetAvailableBalance(newAvailable decimal.Decimal) error {
	if newAvailable.IsNegative() {
		return apperror.Validation("available_balance", "available balance cannot be negative")
	}
	if newAvailable.GreaterThan(a.Balance) {
		return apperror.Invariant("available balance cannot exceed total balance")
	}
	a.AvailableBalance = newAvailable
	return nil
}

// Activate 激活账户
func (a *Account) Activate() { a.Status = AccountStatusActive }

// Deactivate 停用账户
func (a *Account) Deactivate() { a.Status = AccountStatusInactive }

// Suspend 冻结账户
func (a *Account) Suspend() { a.Status = AccountStatusSuspended }

// Debit 转出：同时扣减总余额与可用余额
func (a *Account) Debit(amount decimal.Decimal) error {
	if a.Status != AccountStatusActive {
		return apperror.Invariant("account " + a.AccountNumber + " is not active")
	}
	if a.AvailableBalance.LessThan(amount) {
		return apperror.Invariant("insufficient available balance on account " + a.AccountNumber)
	}
	a.Balance = a.Balance.Sub(amount)
	a.AvailableBalance = a.AvailableBalance.Sub(amount)
	return nil
}

// Credit 转入：同时增加总余额与可用余额
func (a *Account) Credit(amount decimal.Decimal) error {
	if a.Status != AccountStatusActive {
		return apperror.Invariant("account " + a.AccountNumber + " is not active")
	}
	a.Balance = a.Balance.Add(amount)
	a.AvailableBalance = a.AvailableBalance.Add(amount)
	return nil
}
