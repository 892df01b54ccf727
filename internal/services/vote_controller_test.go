package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/emeraldgrove/arcade/internal/store"
)

func TestVoteController(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	votes := NewVoteController(store.NewLedger(db))

	t.Run("accumulates per step and logs each cast", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO tx_log").
			WithArgs(sqlmock.AnyArg(), "slot-01", "vote", nil, nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO tx_log").
			WithArgs(sqlmock.AnyArg(), "roulette-01", "vote", nil, nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		votes.Record("1", "slot-01", "red")
		votes.Record("1", "roulette-01", "black")

		assert.Equal(t, map[string]string{
			"slot-01":     "red",
			"roulette-01": "black",
		}, votes.Votes("1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("revote overwrites the earlier choice", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO tx_log").
			WillReturnResult(sqlmock.NewResult(1, 1))

		votes.Record("1", "slot-01", "black")

		assert.Equal(t, "black", votes.Votes("1")["slot-01"])
	})

	t.Run("tallies copy every step", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO tx_log").
			WillReturnResult(sqlmock.NewResult(1, 1))

		votes.Record("2", "blackjack-01", "hit")

		tallies := votes.Tallies()
		assert.Len(t, tallies, 2)
		assert.Equal(t, "hit", tallies["2"]["blackjack-01"])

		// Mutating the copy must not leak into the controller.
		tallies["2"]["blackjack-01"] = "stand"
		assert.Equal(t, "hit", votes.Votes("2")["blackjack-01"])
	})

	t.Run("reset starts a fresh session", func(t *testing.T) {
		votes.Reset()
		assert.Empty(t, votes.Tallies())
	})
}
