package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAccount() *Account {
	return &Account{
		AccountNumber:    "ACC-100",
		Currency:         "USD",
		Balance:          decimal.NewFromInt(1000),
		AvailableBalance: decimal.NewFromInt(800),
		AccountType:      AccountTypeChecking,
		Status:           AccountStatusActive,
		BankName:         "First National Bank",
		BranchCode:       "FNB-001",
	}
}

func TestAccountValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validAccount().Validate())
	})

	t.Run("missing account number", func(t *testing.T) {
		a := validAccount()
		a.AccountNumber = ""
		assert.Error(t, a.Validate())
	})

	t.Run("bad currency", func(t *testing.T) {
		a := validAccount()
		a.Currency = "US"
		assert.Error(t, a.Validate())
	})

	t.Run("negative balance", func(t *testing.T) {
		a := validAccount()
		a.Balance = decimal.NewFromInt(-1)
		assert.Error(t, a.Validate())
	})

	t.Run("available above balance", func(t *testing.T) {
		a := validAccount()
		a.AvailableBalance = decimal.NewFromInt(1001)
		assert.Error(t, a.Validate())
	})

	t.Run("unknown type", func(t *testing.T) {
		a := validAccount()
		a.AccountType = "CRYPTO"
		assert.Error(t, a.Validate())
	})
}

func TestSetBalanceClampsAvailable(t *testing.T) {
	a := validAccount()

	// 新总余额低于可用余额时，可用余额被压平
	require.NoError(t, a.SetBalance(decimal.NewFromInt(500)))
	assert.True(t, decimal.NewFromInt(500).Equal(a.Balance))
	assert.True(t, decimal.NewFromInt(500).Equal(a.AvailableBalance))

	// 新总余额高于可用余额时，可用余额不变
	require.NoError(t, a.SetBalance(decimal.NewFromInt(2000)))
	assert.True(t, decimal.NewFromInt(500).Equal(a.AvailableBalance))

	assert.Error(t, a.SetBalance(decimal.NewFromInt(-1)))
}

func TestSetAvailableBalance(t *testing.T) {
	a := validAccount()

	require.NoError(t, a.SetAvailableBalance(decimal.NewFromInt(1000)))
	assert.True(t, decimal.NewFromInt(1000).Equal(a.AvailableBalance))

	err := a.SetAvailableBalance(decimal.NewFromInt(1001))
	assert.Error(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(a.AvailableBalance))

	assert.Error(t, a.SetAvailableBalance(decimal.NewFromInt(-1)))
}

func TestDebitCredit(t *testing.T) {
	a := validAccount()

	require.NoError(t, a.Debit(decimal.NewFromInt(300)))
	assert.True(t, decimal.NewFromInt(700).Equal(a.Balance))
	assert.True(t, decimal.NewFromInt(500).Equal(a.AvailableBalance))

	require.NoError(t, a.Credit(decimal.NewFromInt(100)))
	assert.True(t, decimal.NewFromInt(800).Equal(a.Balance))
	assert.True(t, decimal.NewFromInt(600).Equal(a.AvailableBalance))

	// 超出可用余额
	assert.Error(t, a.Debit(decimal.NewFromInt(601)))

	// 非活跃账户不可动账
	a.Suspend()
	assert.Error(t, a.Debit(decimal.NewFromInt(1)))
	assert.Error(t, a.Credit(decimal.NewFromInt(1)))
}

func TestStatusTransitions(t *testing.T) {
	a := validAccount()
	a.Deactivate()
	assert.Equal(t, AccountStatusInactive, a.Status)
	a.Suspend()
	assert.Equal(t, AccountStatusSuspended, a.Status)
	a.Activate()
	assert.Equal(t, AccountStatusActive, a.Status)
}
