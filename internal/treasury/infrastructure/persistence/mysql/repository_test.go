package mysql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/kpstreasury/internal/treasury/domain"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockRepo(t *testing.T) (domain.AccountRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return NewGormAccountRepository(gdb), mock
}

func TestGetByIDNotFoundReturnsNil(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT \\* FROM `treasury_accounts`").
		WithArgs(uint64(404), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	account, err := repo.GetByID(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, account)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByAccountNumber(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"id", "account_number", "currency", "balance", "available_balance", "account_type", "status"}).
		AddRow(1, "ACC-100", "USD", "1000.00", "800.00", "CHECKING", "ACTIVE")
	mock.ExpectQuery("SELECT \\* FROM `treasury_accounts` WHERE account_number = \\?").
		WithArgs("ACC-100", 1).
		WillReturnRows(rows)

	account, err := repo.GetByAccountNumber(context.Background(), "ACC-100")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, uint64(1), account.ID)
	assert.True(t, decimal.NewFromInt(1000).Equal(account.Balance))
	assert.Equal(t, domain.AccountStatusActive, account.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWithLockUsesForUpdate(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"id", "account_number", "currency", "status"}).
		AddRow(1, "ACC-100", "USD", "ACTIVE")
	mock.ExpectQuery("SELECT \\* FROM `treasury_accounts` WHERE .* FOR UPDATE").
		WithArgs(uint64(1), 1).
		WillReturnRows(rows)

	account, err := repo.GetWithLock(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsByAccountNumber(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `treasury_accounts` WHERE account_number = \\?").
		WithArgs("ACC-100").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(1))

	exists, err := repo.ExistsByAccountNumber(context.Background(), "ACC-100")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumBalanceByCurrencyAndStatus(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(balance\\), 0\\) AS total FROM `treasury_accounts` WHERE currency = \\? AND status = \\?").
		WithArgs("USD", "ACTIVE").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow("123456.78"))

	total, err := repo.SumBalanceByCurrencyAndStatus(context.Background(), "USD", domain.AccountStatusActive)
	require.NoError(t, err)
	want, _ := decimal.NewFromString("123456.78")
	assert.True(t, want.Equal(total))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSummaryByCurrency(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"currency", "total_balance", "account_count"}).
		AddRow("EUR", "5000.00", 2).
		AddRow("USD", "120000.00", 5)
	mock.ExpectQuery("SELECT currency, COALESCE\\(SUM\\(balance\\), 0\\) AS total_balance, COUNT\\(\\*\\) AS account_count FROM `treasury_accounts`").
		WithArgs("ACTIVE").
		WillReturnRows(rows)

	summaries, err := repo.SummaryByCurrency(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "EUR", summaries[0].Currency)
	assert.Equal(t, int64(5), summaries[1].AccountCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
