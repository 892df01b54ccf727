package services

import (
	"log"

	"github.com/emeraldgrove/arcade/internal/models"
	"github.com/emeraldgrove/arcade/internal/store"
)

// ClaimResult is the outcome of a payout claim attempt. On any outcome
// other than store.ClaimOK the cents fields are zero and nothing
// changed.
type ClaimResult struct {
	Outcome         store.ClaimOutcome
	CreditedCents   int64
	NewBalanceCents int64
}

// PayoutService owns the payout lifecycle: idempotent creation, the
// FIFO ready list and the single READY -> CLAIMED transition followed
// by the wallet credit.
type PayoutService struct {
	ledger *store.Ledger
	audit  *AuditLogger
}

func NewPayoutService(ledger *store.Ledger) *PayoutService {
	return &PayoutService{
		ledger: ledger,
		audit:  NewAuditLogger(),
	}
}

// Create registers a READY payout. Creation is idempotent on payoutID;
// a repeat call changes nothing and is not an error for the station.
func (ps *PayoutService) Create(payoutID, source string, amountCents int64, meta models.Metadata) error {
	if err := ps.ledger.CreatePayout(payoutID, source, amountCents, meta); err != nil {
		ps.audit.LogError("PAYOUT_NEW", source, err)
		return err
	}

	ps.audit.LogMovement("PAYOUT_NEW", source, "", amountCents, "READY")
	return nil
}

// ReadyList returns all unclaimed payouts, oldest first.
func (ps *PayoutService) ReadyList() ([]models.ReadyPayout, error) {
	return ps.ledger.ListReadyPayouts()
}

// Claim flips the payout to CLAIMED and credits the claiming tag.
// The claim and the credit are two store calls, not one transaction;
// that is safe only because the dispatcher routes every claim through
// its single worker goroutine, so no other mutation of the same wallet
// can slot in between the two steps.
func (ps *PayoutService) Claim(payoutID, tagUID, deviceID string) (ClaimResult, error) {
	amountCents, outcome, err := ps.ledger.ClaimPayout(payoutID, tagUID, deviceID)
	if err != nil {
		ps.audit.LogError("PAYOUT_CLAIM", deviceID, err)
		return ClaimResult{}, err
	}
	if outcome != store.ClaimOK {
		log.Printf("[PAYOUT] Claim of %s by %s rejected: %s", payoutID, tagUID, outcome)
		return ClaimResult{Outcome: outcome}, nil
	}

	newBalance, err := ps.ledger.Credit(tagUID, amountCents, deviceID, "payout_claim_credit")
	if err != nil {
		ps.audit.LogError("PAYOUT_CLAIM", deviceID, err)
		return ClaimResult{}, err
	}

	ps.audit.LogMovement("PAYOUT_CLAIM", deviceID, store.NormalizeTag(tagUID), amountCents, "SUCCESS")
	return ClaimResult{
		Outcome:         store.ClaimOK,
		CreditedCents:   amountCents,
		NewBalanceCents: newBalance,
	}, nil
}
