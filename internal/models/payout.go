package models

import (
	"time"
)

// Payout is a pending cash amount generated by a game station, to be
// claimed at the change station. payout_id is the idempotency key for
// creation; status moves ready -> claimed exactly once.
type Payout struct {
	PayoutID     string     `json:"payoutId" db:"payout_id"`
	Source       string     `json:"source" db:"source"`
	AmountCents  int64      `json:"amountCents" db:"amount_cents"`
	Status       string     `json:"status" db:"status"`
	Meta         Metadata   `json:"meta" db:"meta"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	ClaimedByTag *string    `json:"claimed_by_tag" db:"claimed_by_tag"`
	ClaimedAt    *time.Time `json:"claimed_at" db:"claimed_at"`
}

// ReadyPayout is the wire shape pushed to the change station.
type ReadyPayout struct {
	PayoutID    string `json:"payoutId"`
	Source      string `json:"source"`
	AmountCents int64  `json:"amountCents"`
}

// Payout status
const (
	PayoutStatusReady   = "ready"
	PayoutStatusClaimed = "claimed"
)
