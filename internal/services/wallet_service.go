package services

import (
	"log"

	"github.com/emeraldgrove/arcade/internal/models"
	"github.com/emeraldgrove/arcade/internal/store"
)

// WalletService answers balance queries and applies credits and debits
// on behalf of station commands. All mutation goes through the ledger
// store; this layer adds the audit trail and the wallet_get log entry.
type WalletService struct {
	ledger *store.Ledger
	audit  *AuditLogger
}

func NewWalletService(ledger *store.Ledger) *WalletService {
	return &WalletService{
		ledger: ledger,
		audit:  NewAuditLogger(),
	}
}

// Balance returns the wallet balance, creating the wallet on first
// reference, and records the lookup in the transaction log.
func (ws *WalletService) Balance(tagUID, deviceID string) (int64, error) {
	tag := store.NormalizeTag(tagUID)

	balance, err := ws.ledger.GetBalance(tag)
	if err != nil {
		return 0, err
	}

	if err := ws.ledger.Log("wallet_get", deviceID, &tag, nil, models.Metadata{"balance": balance}); err != nil {
		// The lookup already succeeded; a failed log row should not
		// turn a read into an error for the station.
		log.Printf("[WALLET] Failed to log wallet_get for %s: %v", tag, err)
	}
	return balance, nil
}

// Credit adds amountCents to the wallet and returns the new balance.
func (ws *WalletService) Credit(tagUID string, amountCents int64, deviceID string) (int64, error) {
	newBalance, err := ws.ledger.Credit(tagUID, amountCents, deviceID, "wallet_credit")
	if err != nil {
		ws.audit.LogError("WALLET_CREDIT", deviceID, err)
		return 0, err
	}

	ws.audit.LogMovement("WALLET_CREDIT", deviceID, store.NormalizeTag(tagUID), amountCents, "SUCCESS")
	return newBalance, nil
}

// Debit subtracts amountCents from the wallet. ErrInsufficientFunds is
// the recoverable business outcome, passed through unchanged.
func (ws *WalletService) Debit(tagUID string, amountCents int64, deviceID string) (int64, error) {
	newBalance, err := ws.ledger.Debit(tagUID, amountCents, deviceID, "wallet_debit")
	if err == store.ErrInsufficientFunds {
		ws.audit.LogMovement("WALLET_DEBIT", deviceID, store.NormalizeTag(tagUID), amountCents, "INSUFFICIENT")
		return newBalance, err
	}
	if err != nil {
		ws.audit.LogError("WALLET_DEBIT", deviceID, err)
		return 0, err
	}

	ws.audit.LogMovement("WALLET_DEBIT", deviceID, store.NormalizeTag(tagUID), amountCents, "SUCCESS")
	return newBalance, nil
}
