package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/emeraldgrove/arcade/internal/models"
)

// ErrInsufficientFunds is the recoverable outcome of a debit that
// exceeds the wallet balance. No state changes when it is returned.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ClaimOutcome is the result of a payout claim attempt.
type ClaimOutcome string

const (
	ClaimOK             ClaimOutcome = "ok"
	ClaimNotFound       ClaimOutcome = "not_found"
	ClaimAlreadyClaimed ClaimOutcome = "already_claimed"
)

// Ledger is the single durable source of truth for the arcade economy:
// wallet balances, the append-only transaction log, payout records and
// the current operating mode. Every operation runs under one
// process-wide mutex and inside one SQL transaction, so concurrent
// callers from the dispatcher worker and the admin handlers are fully
// serialized. No method invokes another public method while holding
// the lock; shared steps are unexported helpers that ride the caller's
// transaction.
type Ledger struct {
	mu sync.Mutex
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// NormalizeTag upper-cases a tag UID. The store applies it on every
// tag argument so a mixed-case reader cannot split a wallet in two.
func NormalizeTag(tagUID string) string {
	return strings.ToUpper(strings.TrimSpace(tagUID))
}

// GetBalance returns the wallet balance for a tag, creating a
// zero-balance wallet if the tag has never been seen.
func (l *Ledger) GetBalance(tagUID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	balance, err := l.getBalanceTx(tx, NormalizeTag(tagUID))
	if err != nil {
		return 0, err
	}
	return balance, tx.Commit()
}

// Credit adds amount to the wallet, logs old/new balance and returns
// the new balance. Negative amounts are a caller error and rejected.
func (l *Ledger) Credit(tagUID string, amountCents int64, deviceID, op string) (int64, error) {
	if amountCents < 0 {
		return 0, fmt.Errorf("credit amount must not be negative: %d", amountCents)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tagUID = NormalizeTag(tagUID)

	tx, err := l.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	balance, err := l.getBalanceTx(tx, tagUID)
	if err != nil {
		return 0, err
	}

	newBalance := balance + amountCents
	if err := l.setBalanceTx(tx, tagUID, newBalance); err != nil {
		return 0, err
	}

	if err := l.logTx(tx, op, deviceID, &tagUID, &amountCents, models.Metadata{
		"old": balance,
		"new": newBalance,
	}); err != nil {
		return 0, err
	}

	return newBalance, tx.Commit()
}

// Debit subtracts amount from the wallet. If the balance is too low it
// returns ErrInsufficientFunds and leaves the balance untouched (the
// lazily created wallet row, if any, is kept).
func (l *Ledger) Debit(tagUID string, amountCents int64, deviceID, op string) (int64, error) {
	if amountCents < 0 {
		return 0, fmt.Errorf("debit amount must not be negative: %d", amountCents)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tagUID = NormalizeTag(tagUID)

	tx, err := l.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	balance, err := l.getBalanceTx(tx, tagUID)
	if err != nil {
		return 0, err
	}

	if balance < amountCents {
		if err := tx.Commit(); err != nil {
			return 0, err
		}
		return balance, ErrInsufficientFunds
	}

	newBalance := balance - amountCents
	if err := l.setBalanceTx(tx, tagUID, newBalance); err != nil {
		return 0, err
	}

	if err := l.logTx(tx, op, deviceID, &tagUID, &amountCents, models.Metadata{
		"old": balance,
		"new": newBalance,
	}); err != nil {
		return 0, err
	}

	return newBalance, tx.Commit()
}

// Log appends one immutable transaction-log row for a non-financial
// event (vote casts, mode flips and the like).
func (l *Ledger) Log(op, deviceID string, tagUID *string, amountCents *int64, details models.Metadata) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	_, err = l.db.Exec(`
		INSERT INTO tx_log (ts, device_id, op, tag_uid, amount_cents, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, time.Now().UTC(), deviceID, op, tagUID, amountCents, detailsJSON)
	return err
}

// CreatePayout inserts a READY payout. payout_id is the idempotency
// key: a second call with the same id is a silent no-op.
func (l *Ledger) CreatePayout(payoutID, source string, amountCents int64, meta models.Metadata) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRow(`SELECT payout_id FROM payouts WHERE payout_id = $1`, payoutID).Scan(&existing)
	if err == nil {
		log.Printf("[LEDGER] Duplicate payout creation ignored: %s", payoutID)
		return tx.Commit()
	}
	if err != sql.ErrNoRows {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO payouts (payout_id, source, amount_cents, status, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, payoutID, source, amountCents, models.PayoutStatusReady, meta, time.Now().UTC())
	if err != nil {
		return err
	}

	if err := l.logTx(tx, "payout_new", source, nil, &amountCents, models.Metadata{
		"payout_id": payoutID,
		"meta":      meta,
	}); err != nil {
		return err
	}

	return tx.Commit()
}

// ListReadyPayouts returns all READY payouts ordered by creation time
// ascending, the dispensing order at the change station.
func (l *Ledger) ListReadyPayouts() ([]models.ReadyPayout, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(`
		SELECT payout_id, source, amount_cents
		FROM payouts
		WHERE status = $1
		ORDER BY created_at ASC
	`, models.PayoutStatusReady)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.ReadyPayout{}
	for rows.Next() {
		var p models.ReadyPayout
		if err := rows.Scan(&p.PayoutID, &p.Source, &p.AmountCents); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// ClaimPayout flips a READY payout to CLAIMED, records the claiming
// tag and returns the amount to credit. The check-and-set runs inside
// the serialized region, so at most one claim can ever return ClaimOK
// for a given payout; the loser sees ClaimAlreadyClaimed. The credit
// itself is the caller's second step, not part of this transaction.
func (l *Ledger) ClaimPayout(payoutID, tagUID, deviceID string) (int64, ClaimOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tagUID = NormalizeTag(tagUID)

	tx, err := l.db.Begin()
	if err != nil {
		return 0, "", err
	}
	defer tx.Rollback()

	var p models.Payout
	err = tx.QueryRow(`
		SELECT payout_id, amount_cents, status FROM payouts WHERE payout_id = $1
	`, payoutID).Scan(&p.PayoutID, &p.AmountCents, &p.Status)
	if err == sql.ErrNoRows {
		return 0, ClaimNotFound, nil
	}
	if err != nil {
		return 0, "", err
	}

	if p.Status != models.PayoutStatusReady {
		return 0, ClaimAlreadyClaimed, nil
	}

	_, err = tx.Exec(`
		UPDATE payouts SET status = $1, claimed_by_tag = $2, claimed_at = $3 WHERE payout_id = $4
	`, models.PayoutStatusClaimed, tagUID, time.Now().UTC(), payoutID)
	if err != nil {
		return 0, "", err
	}

	if err := l.logTx(tx, "payout_claim", deviceID, &tagUID, &p.AmountCents, models.Metadata{
		"payout_id": payoutID,
	}); err != nil {
		return 0, "", err
	}

	if err := tx.Commit(); err != nil {
		return 0, "", err
	}
	return p.AmountCents, ClaimOK, nil
}

// ListWallets returns every wallet ordered by tag, the operator
// overview of who holds what.
func (l *Ledger) ListWallets() ([]models.Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(`
		SELECT tag_uid, balance_cents, updated_at
		FROM wallets
		ORDER BY tag_uid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wallets := []models.Wallet{}
	for rows.Next() {
		var w models.Wallet
		if err := rows.Scan(&w.TagUID, &w.BalanceCents, &w.UpdatedAt); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// RecentLog returns the newest limit transaction-log rows, newest
// first.
func (l *Ledger) RecentLog(limit int) ([]models.TxLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(`
		SELECT id, ts, device_id, op, tag_uid, amount_cents, details
		FROM tx_log
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.TxLogEntry{}
	for rows.Next() {
		var e models.TxLogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.DeviceID, &e.Op, &e.TagUID, &e.AmountCents, &e.Details); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetMode reads the operating mode, defaulting to day when never set.
func (l *Ledger) GetMode() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var value []byte
	err := l.db.QueryRow(`SELECT value FROM kv WHERE key = 'mode'`).Scan(&value)
	if err == sql.ErrNoRows {
		return models.ModeDay, nil
	}
	if err != nil {
		return "", err
	}

	var stored struct {
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(value, &stored); err != nil {
		return "", fmt.Errorf("corrupt mode row: %w", err)
	}
	return stored.Mode, nil
}

// SetMode writes the operating mode. Any value may follow any other.
func (l *Ledger) SetMode(mode string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	value, err := json.Marshal(map[string]string{"mode": mode})
	if err != nil {
		return err
	}

	_, err = l.db.Exec(`
		INSERT INTO kv (key, value) VALUES ('mode', $1)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, value)
	return err
}

// getBalanceTx reads a wallet balance on the caller's transaction,
// inserting a zero-balance wallet when the tag is unknown.
func (l *Ledger) getBalanceTx(tx *sql.Tx, tagUID string) (int64, error) {
	var balance int64
	err := tx.QueryRow(`SELECT balance_cents FROM wallets WHERE tag_uid = $1`, tagUID).Scan(&balance)
	if err == sql.ErrNoRows {
		_, err = tx.Exec(`
			INSERT INTO wallets (tag_uid, balance_cents, updated_at) VALUES ($1, 0, $2)
		`, tagUID, time.Now().UTC())
		return 0, err
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (l *Ledger) setBalanceTx(tx *sql.Tx, tagUID string, balanceCents int64) error {
	result, err := tx.Exec(`
		UPDATE wallets SET balance_cents = $1, updated_at = $2 WHERE tag_uid = $3
	`, balanceCents, time.Now().UTC(), tagUID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("wallet disappeared mid-transaction: %s", tagUID)
	}
	return nil
}

func (l *Ledger) logTx(tx *sql.Tx, op, deviceID string, tagUID *string, amountCents *int64, details models.Metadata) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO tx_log (ts, device_id, op, tag_uid, amount_cents, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, time.Now().UTC(), deviceID, op, tagUID, amountCents, detailsJSON)
	return err
}
