// Package application 司库账户应用层
// 每个变更操作在单一数据库事务内完成；事件只在事务提交后发布，
// 发布失败不影响已提交的业务结果。
package application

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/kpstreasury/internal/apperror"
	"github.com/wyfcoding/kpstreasury/internal/events"
	"github.com/wyfcoding/kpstreasury/internal/treasury/domain"
)

// DefaultLowBalanceThreshold 低余额告警阈值
var DefaultLowBalanceThreshold = decimal.NewFromInt(10000)

// TreasuryService 司库账户应用服务
type TreasuryService struct {
	repo      domain.AccountRepository
	txManager domain.TransactionManager
	publisher *events.Publisher
	logger    *slog.Logger

	lowBalanceThreshold decimal.Decimal
}

// NewTreasuryService 创建司库账户应用服务
func NewTreasuryService(
	repo domain.AccountRepository,
	txManager domain.TransactionManager,
	publisher *events.Publisher,
	logger *slog.Logger,
) *TreasuryService {
	return &TreasuryService{
		repo:                repo,
		txManager:           txManager,
		publisher:           publisher,
		logger:              logger.With("module", "treasury"),
		lowBalanceThreshold: DefaultLowBalanceThreshold,
	}
}

// CreateAccountCommand 创建账户命令
type CreateAccountCommand struct {
	AccountNumber    string             `json:"account_number"`
	Currency         string             `json:"currency"`
	Balance          decimal.Decimal    `json:"balance"`
	AvailableBalance decimal.Decimal    `json:"available_balance"`
	AccountType      domain.AccountType `json:"account_type"`
	BankName         string             `json:"bank_name"`
	BranchCode       string             `json:"branch_code"`
}

// CreateAccount 创建账户：校验、账号唯一、落库、发事件
func (s *TreasuryService) CreateAccount(ctx context.Context, cmd CreateAccountCommand, performedBy string) (*domain.Account, error) {
	account := &domain.Account{
		AccountNumber:    cmd.AccountNumber,
		Currency:         cmd.Currency,
		Balance:          cmd.Balance,
		AvailableBalance: cmd.AvailableBalance,
		AccountType:      cmd.AccountType,
		Status:           domain.AccountStatusActive,
		BankName:         cmd.BankName,
		BranchCode:       cmd.BranchCode,
	}
	if err := account.Validate(); err != nil {
		return nil, err
	}

	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		exists, err := s.repo.ExistsByAccountNumber(ctx, cmd.AccountNumber)
		if err != nil {
			return err
		}
		if exists {
			return apperror.Conflict("account_number", cmd.AccountNumber)
		}
		return s.repo.Save(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Treasury(ctx, events.TreasuryEvent{
		Envelope:      events.NewEnvelope(events.EventTreasuryCreated),
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		Currency:      account.Currency,
		Status:        string(account.Status),
		PerformedBy:   performedBy,
	})
	s.logger.InfoContext(ctx, "treasury account created",
		"account_id", account.ID, "account_number", account.AccountNumber)
	return account, nil
}

// GetAccount 按 ID 查询账户
func (s *TreasuryService) GetAccount(ctx context.Context, id uint64) (*domain.Account, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperror.NotFound("treasury account", id)
	}
	return account, nil
}

// GetAccountByNumber 按账号查询账户
func (s *TreasuryService) GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	account, err := s.repo.GetByAccountNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperror.NotFound("treasury account", accountNumber)
	}
	return account, nil
}

// ListAccounts 分页列表
func (s *TreasuryService) ListAccounts(ctx context.Context, offset, limit int) ([]*domain.Account, int64, error) {
	return s.repo.List(ctx, offset, limit)
}

// ListByStatus 按状态查询
func (s *TreasuryService) ListByStatus(ctx context.Context, status domain.AccountStatus) ([]*domain.Account, error) {
	if !status.Valid() {
		return nil, apperror.Validation("status", "unknown account status")
	}
	return s.repo.ListByStatus(ctx, status)
}

// ListByType 按类型查询
func (s *TreasuryService) ListByType(ctx context.Context, accountType domain.AccountType) ([]*domain.Account, error) {
	if !accountType.Valid() {
		return nil, apperror.Validation("account_type", "unknown account type")
	}
	return s.repo.ListByType(ctx, accountType)
}

// ListByCurrency 按币种查询
func (s *TreasuryService) ListByCurrency(ctx context.Context, currency string) ([]*domain.Account, error) {
	return s.repo.ListByCurrency(ctx, currency)
}

// ListByBankName 按开户行查询
func (s *TreasuryService) ListByBankName(ctx context.Context, bankName string) ([]*domain.Account, error) {
	return s.repo.ListByBankName(ctx, bankName)
}

// SearchAccounts 多条件分页检索，空条件等价于全量
func (s *TreasuryService) SearchAccounts(ctx context.Context, filter domain.AccountFilter, offset, limit int) ([]*domain.Account, int64, error) {
	return s.repo.Search(ctx, filter, offset, limit)
}

// UpdateAccountCommand 更新账户命令
type UpdateAccountCommand struct {
	AccountNumber string             `json:"account_number"`
	Currency      string             `json:"currency"`
	AccountType   domain.AccountType `json:"account_type"`
	BankName      string             `json:"bank_name"`
	BranchCode    string             `json:"branch_code"`
}

// UpdateAccount 更新账户基本信息；账号变更时重查唯一性
func (s *TreasuryService) UpdateAccount(ctx context.Context, id uint64, cmd UpdateAccountCommand, performedBy string) (*domain.Account, error) {
	var account *domain.Account
	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		var err error
		account, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if account == nil {
			return apperror.NotFound("treasury account", id)
		}

		if cmd.AccountNumber != account.AccountNumber {
			exists, err := s.repo.ExistsByAccountNumber(ctx, cmd.AccountNumber)
			if err != nil {
				return err
			}
			if exists {
				return apperror.Conflict("account_number", cmd.AccountNumber)
			}
		}

		account.AccountNumber = cmd.AccountNumber
		account.Currency = cmd.Currency
		account.AccountType = cmd.AccountType
		account.BankName = cmd.BankName
		account.BranchCode = cmd.BranchCode
		if err := account.Validate(); err != nil {
			return err
		}
		return s.repo.Save(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Treasury(ctx, events.TreasuryEvent{
		Envelope:      events.NewEnvelope(events.EventTreasuryUpdated),
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		PerformedBy:   performedBy,
	})
	return account, nil
}

// DeleteAccount 删除账户（物理删除，仅管理员）
func (s *TreasuryService) DeleteAccount(ctx context.Context, id uint64, performedBy string) error {
	var accountNumber string
	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		account, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if account == nil {
			return apperror.NotFound("treasury account", id)
		}
		accountNumber = account.AccountNumber
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.publisher.Treasury(ctx, events.TreasuryEvent{
		Envelope:      events.NewEnvelope(events.EventTreasuryDeleted),
		AccountID:     id,
		AccountNumber: accountNumber,
		PerformedBy:   performedBy,
	})
	s.logger.InfoContext(ctx, "treasury account deleted", "account_id", id, "account_number", accountNumber)
	return nil
}

// UpdateBalance 更新总余额，可用余额超出部分被压平
func (s *TreasuryService) UpdateBalance(ctx context.Context, id uint64, newBalance decimal.Decimal, performedBy string) (*domain.Account, error) {
	var account *domain.Account
	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		var err error
		account, err = s.repo.GetWithLock(ctx, id)
		if err != nil {
			return err
		}
		if account == nil {
			return apperror.NotFound("treasury account", id)
		}
		if err := account.SetBalance(newBalance); err != nil {
			return err
		}
		return s.repo.Save(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Treasury(ctx, events.TreasuryEvent{
		Envelope:      events.NewEnvelope(events.EventTreasuryBalanceUpdated),
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		Amount:        newBalance,
		Currency:      account.Currency,
		PerformedBy:   performedBy,
	})
	if account.Balance.LessThan(s.lowBalanceThreshold) {
		s.publisher.Notification(ctx, events.NotificationEvent{
			Envelope:  events.NewEnvelope(events.EventLowBalanceAlert),
			Subject:   "low balance on account " + account.AccountNumber,
			Message:   "balance " + account.Balance.String() + " " + account.Currency + " is below threshold",
			Severity:  "WARN",
			Recipient: performedBy,
		})
	}
	return account, nil
}

// UpdateAvailableBalance 更新可用余额，不得超过总余额
func (s *TreasuryService) UpdateAvailableBalance(ctx context.Context, id uint64, newAvailable decimal.Decimal, performedBy string) (*domain.Account, error) {
	var account *domain.Account
	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		var err error
		account, err = s.repo.GetWithLock(ctx, id)
		if err != nil {
			return err
		}
		if account == nil {
			return apperror.NotFound("treasury account", id)
		}
		if err := account.SetAvailableBalance(newAvailable); err != nil {
			return err
		}
		return s.repo.Save(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Treasury(ctx, events.TreasuryEvent{
		Envelope:      events.NewEnvelope(events.EventTreasuryBalanceUpdated),
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		Amount:        newAvailable,
		Currency:      account.Currency,
		PerformedBy:   performedBy,
	})
	return account, nil
}

// setStatus 状态变更共用路径
func (s *TreasuryService) setStatus(ctx context.Context, id uint64, apply func(*domain.Account), performedBy string) (*domain.Account, error) {
	var account *domain.Account
	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		var err error
		account, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if account == nil {
			return apperror.NotFound("treasury account", id)
		}
		apply(account)
		return s.repo.Save(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Treasury(ctx, events.TreasuryEvent{
		Envelope:      events.NewEnvelope(events.EventTreasuryStatusChanged),
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		Status:        string(account.Status),
		PerformedBy:   performedBy,
	})
	return account, nil
}

// ActivateAccount 激活账户
func (s *TreasuryService) ActivateAccount(ctx context.Context, id uint64, performedBy string) (*domain.Account, error) {
	return s.setStatus(ctx, id, (*domain.Account).Activate, performedBy)
}

// DeactivateAccount 停用账户
func (s *TreasuryService) DeactivateAccount(ctx context.Context, id uint64, performedBy string) (*domain.Account, error) {
	return s.setStatus(ctx, id, (*domain.Account).Deactivate, performedBy)
}

// SuspendAccount 冻结账户
func (s *TreasuryService) SuspendAccount(ctx context.Context, id uint64, performedBy string) (*domain.Account, error) {
	return s.setStatus(ctx, id, (*domain.Account).Suspend, performedBy)
}

// TransferFundsCommand 转账命令
type TransferFundsCommand struct {
	FromAccountID uint64          `json:"from_account_id"`
	ToAccountID   uint64          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// TransferFunds 账户间转账，返回扣款后的源账户
// 单事务内按 ID 升序加行锁避免死锁；两侧的总余额与可用余额同时增减。
func (s *TreasuryService) TransferFunds(ctx context.Context, cmd TransferFundsCommand, performedBy string) (*domain.Account, error) {
	if !cmd.Amount.IsPositive() {
		return nil, apperror.Validation("amount", "transfer amount must be positive")
	}
	if cmd.FromAccountID == cmd.ToAccountID {
		return nil, apperror.Validation("to_account_id", "cannot transfer to the same account")
	}

	var source *domain.Account
	var toNumber, currency string
	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		firstID, secondID := cmd.FromAccountID, cmd.ToAccountID
		if firstID > secondID {
			firstID, secondID = secondID, firstID
		}

		locked := make(map[uint64]*domain.Account, 2)
		for _, id := range []uint64{firstID, secondID} {
			account, err := s.repo.GetWithLock(ctx, id)
			if err != nil {
				return err
			}
			if account == nil {
				return apperror.NotFound("treasury account", id)
			}
			locked[id] = account
		}

		from := locked[cmd.FromAccountID]
		to := locked[cmd.ToAccountID]
		if from.Currency != to.Currency {
			return apperror.Invariant("cross-currency transfers are not supported")
		}

		if err := from.Debit(cmd.Amount); err != nil {
			return err
		}
		if err := to.Credit(cmd.Amount); err != nil {
			return err
		}

		if err := s.repo.Save(ctx, from); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, to); err != nil {
			return err
		}
		source, toNumber, currency = from, to.AccountNumber, from.Currency
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Treasury(ctx, events.TreasuryEvent{
		Envelope:      events.NewEnvelope(events.EventTreasuryFundsTransferred),
		FromAccountID: cmd.FromAccountID,
		ToAccountID:   cmd.ToAccountID,
		Amount:        cmd.Amount,
		Currency:      currency,
		PerformedBy:   performedBy,
	})
	s.publisher.Audit(ctx, events.AuditEvent{
		Envelope:    events.NewEnvelope(events.EventAuditAction),
		EntityType:  "treasury_account",
		EntityID:    strconv.FormatUint(cmd.FromAccountID, 10),
		Action:      "TRANSFER_FUNDS",
		PerformedBy: performedBy,
		Details:     "transferred " + cmd.Amount.String() + " " + currency + " from " + source.AccountNumber + " to " + toNumber,
	})
	s.logger.InfoContext(ctx, "funds transferred",
		"from_account_id", cmd.FromAccountID, "to_account_id", cmd.ToAccountID, "amount", cmd.Amount)
	return source, nil
}

// IsAccountNumberAvailable 账号可用性检查
func (s *TreasuryService) IsAccountNumberAvailable(ctx context.Context, accountNumber string) (bool, error) {
	exists, err := s.repo.ExistsByAccountNumber(ctx, accountNumber)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// TotalBalance 指定币种与状态下的余额合计
func (s *TreasuryService) TotalBalance(ctx context.Context, currency string, status domain.AccountStatus) (decimal.Decimal, error) {
	if !status.Valid() {
		return decimal.Zero, apperror.Validation("status", "unknown account status")
	}
	return s.repo.SumBalanceByCurrencyAndStatus(ctx, currency, status)
}

// TotalAvailableBalance 全部活跃账户的可用余额合计
func (s *TreasuryService) TotalAvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	return s.repo.SumAvailableBalance(ctx)
}

// Summary 按币种汇总活跃账户
func (s *TreasuryService) Summary(ctx context.Context) ([]*domain.AccountSummary, error) {
	return s.repo.SummaryByCurrency(ctx)
}

// LowBalanceAccounts 低余额账户清单
func (s *TreasuryService) LowBalanceAccounts(ctx context.Context, threshold decimal.Decimal) ([]*domain.Account, error) {
	if !threshold.IsPositive() {
		threshold = s.lowBalanceThreshold
	}
	return s.repo.ListLowBalance(ctx, threshold)
}
