package models

import (
	"time"
)

// Wallet holds the balance for a single RFID tag. Wallets are created
// lazily with a zero balance the first time a tag is seen.
type Wallet struct {
	TagUID       string    `json:"tag_uid" db:"tag_uid"`
	BalanceCents int64     `json:"balance_cents" db:"balance_cents"` // in cents
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// TxLogEntry is one row of the append-only transaction log. Rows are
// never updated or deleted.
type TxLogEntry struct {
	ID          int       `json:"id" db:"id"`
	Timestamp   time.Time `json:"ts" db:"ts"`
	DeviceID    string    `json:"device_id" db:"device_id"`
	Op          string    `json:"op" db:"op"`
	TagUID      *string   `json:"tag_uid" db:"tag_uid"`
	AmountCents *int64    `json:"amount_cents" db:"amount_cents"`
	Details     Metadata  `json:"details" db:"details"`
}

// Operating modes
const (
	ModeDay   = "day"
	ModeNight = "night"
)
