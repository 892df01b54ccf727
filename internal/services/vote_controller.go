package services

import (
	"log"
	"sync"

	"github.com/emeraldgrove/arcade/internal/models"
	"github.com/emeraldgrove/arcade/internal/store"
)

// VoteController accumulates night-round votes in memory: one map of
// device -> choice per round step. Votes are not money and not
// durable; only the cast itself lands in the transaction log. There is
// no quorum or winner computation here, the admin API exposes the raw
// tallies for an external observer. Reset starts a fresh night session
// instead of letting rounds pile up for the process lifetime.
type VoteController struct {
	mu     sync.Mutex
	ledger *store.Ledger
	rounds map[string]map[string]string
}

func NewVoteController(ledger *store.Ledger) *VoteController {
	return &VoteController{
		ledger: ledger,
		rounds: make(map[string]map[string]string),
	}
}

// Record stores the device's choice for the given round step. A device
// voting twice in one step overwrites its earlier choice.
func (vc *VoteController) Record(step, deviceID, choice string) {
	vc.mu.Lock()
	if vc.rounds[step] == nil {
		vc.rounds[step] = make(map[string]string)
	}
	vc.rounds[step][deviceID] = choice
	vc.mu.Unlock()

	if err := vc.ledger.Log("vote", deviceID, nil, nil, models.Metadata{
		"step":   step,
		"choice": choice,
	}); err != nil {
		log.Printf("[VOTE] Failed to log vote from %s: %v", deviceID, err)
	}
}

// Votes returns a copy of the tally for one step.
func (vc *VoteController) Votes(step string) map[string]string {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	votes := make(map[string]string, len(vc.rounds[step]))
	for deviceID, choice := range vc.rounds[step] {
		votes[deviceID] = choice
	}
	return votes
}

// Tallies returns a copy of every recorded step.
func (vc *VoteController) Tallies() map[string]map[string]string {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	tallies := make(map[string]map[string]string, len(vc.rounds))
	for step, votes := range vc.rounds {
		copied := make(map[string]string, len(votes))
		for deviceID, choice := range votes {
			copied[deviceID] = choice
		}
		tallies[step] = copied
	}
	return tallies
}

// Reset discards all recorded rounds. Called when a new night session
// begins.
func (vc *VoteController) Reset() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.rounds = make(map[string]map[string]string)
}
