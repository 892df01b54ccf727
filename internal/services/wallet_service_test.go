package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/emeraldgrove/arcade/internal/store"
)

func TestWalletService_Balance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewWalletService(store.NewLedger(db))

	t.Run("first sight of a tag leaves a zero wallet and a log row", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance_cents FROM wallets WHERE tag_uid = \\$1").
			WithArgs("ABC123").
			WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}))
		mock.ExpectExec("INSERT INTO wallets").
			WithArgs("ABC123", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()
		mock.ExpectExec("INSERT INTO tx_log").
			WithArgs(sqlmock.AnyArg(), "slot-01", "wallet_get", "ABC123", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		balance, err := service.Balance("abc123", "slot-01")
		assert.NoError(t, err)
		assert.Equal(t, int64(0), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed log row does not fail the read", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance_cents FROM wallets WHERE tag_uid = \\$1").
			WithArgs("ABC123").
			WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}).AddRow(250))
		mock.ExpectCommit()
		mock.ExpectExec("INSERT INTO tx_log").
			WillReturnError(assert.AnError)

		balance, err := service.Balance("ABC123", "slot-01")
		assert.NoError(t, err)
		assert.Equal(t, int64(250), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWalletService_Debit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewWalletService(store.NewLedger(db))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT balance_cents FROM wallets WHERE tag_uid = \\$1").
		WithArgs("ABC123").
		WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}).AddRow(0))
	mock.ExpectCommit()

	_, err = service.Debit("ABC123", 200, "roulette-01")
	assert.ErrorIs(t, err, store.ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}
