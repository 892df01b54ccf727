package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/emeraldgrove/arcade/internal/models"
	"github.com/emeraldgrove/arcade/internal/store"
)

func TestPayoutService_Claim(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPayoutService(store.NewLedger(db))

	t.Run("claim then credit", func(t *testing.T) {
		// Step one: the claim transaction.
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT payout_id, amount_cents, status FROM payouts WHERE payout_id = \\$1").
			WithArgs("p1").
			WillReturnRows(sqlmock.NewRows([]string{"payout_id", "amount_cents", "status"}).
				AddRow("p1", 4000, models.PayoutStatusReady))
		mock.ExpectExec("UPDATE payouts SET status = \\$1, claimed_by_tag = \\$2, claimed_at = \\$3 WHERE payout_id = \\$4").
			WithArgs(models.PayoutStatusClaimed, "ABC123", sqlmock.AnyArg(), "p1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO tx_log").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		// Step two: the credit transaction for the claiming tag.
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance_cents FROM wallets WHERE tag_uid = \\$1").
			WithArgs("ABC123").
			WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}).AddRow(500))
		mock.ExpectExec("UPDATE wallets SET balance_cents = \\$1, updated_at = \\$2 WHERE tag_uid = \\$3").
			WithArgs(4500, sqlmock.AnyArg(), "ABC123").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO tx_log").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		result, err := service.Claim("p1", "ABC123", "change-01")
		assert.NoError(t, err)
		assert.Equal(t, store.ClaimOK, result.Outcome)
		assert.Equal(t, int64(4000), result.CreditedCents)
		assert.Equal(t, int64(4500), result.NewBalanceCents)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejected claim credits nothing", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT payout_id, amount_cents, status FROM payouts WHERE payout_id = \\$1").
			WithArgs("p1").
			WillReturnRows(sqlmock.NewRows([]string{"payout_id", "amount_cents", "status"}).
				AddRow("p1", 4000, models.PayoutStatusClaimed))
		mock.ExpectRollback()

		result, err := service.Claim("p1", "XYZ789", "change-01")
		assert.NoError(t, err)
		assert.Equal(t, store.ClaimAlreadyClaimed, result.Outcome)
		assert.Zero(t, result.CreditedCents)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPayoutService_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPayoutService(store.NewLedger(db))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT payout_id FROM payouts WHERE payout_id = \\$1").
		WithArgs("p2").
		WillReturnRows(sqlmock.NewRows([]string{"payout_id"}))
	mock.ExpectExec("INSERT INTO payouts").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tx_log").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = service.Create("p2", "slot", 1500, models.Metadata{"reel": "777"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
