package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/emeraldgrove/arcade/internal/bus"
	"github.com/emeraldgrove/arcade/internal/config"
	"github.com/emeraldgrove/arcade/internal/models"
	"github.com/emeraldgrove/arcade/internal/services"
	"github.com/emeraldgrove/arcade/internal/store"
)

// WalletOps is the wallet surface the dispatcher routes to.
type WalletOps interface {
	Balance(tagUID, deviceID string) (int64, error)
	Credit(tagUID string, amountCents int64, deviceID string) (int64, error)
	Debit(tagUID string, amountCents int64, deviceID string) (int64, error)
}

// PayoutOps is the payout surface the dispatcher routes to.
type PayoutOps interface {
	Create(payoutID, source string, amountCents int64, meta models.Metadata) error
	ReadyList() ([]models.ReadyPayout, error)
	Claim(payoutID, tagUID, deviceID string) (services.ClaimResult, error)
}

// VoteOps records night-round votes.
type VoteOps interface {
	Record(step, deviceID, choice string)
}

// ModeReader reads the persisted operating mode.
type ModeReader interface {
	GetMode() (string, error)
}

// Subscriber opens the inbound pattern subscription. The second return
// value closes the subscription and its channel.
type Subscriber interface {
	Subscribe(ctx context.Context, patterns ...string) (<-chan *redis.Message, func() error, error)
}

type inbound struct {
	topic   string
	payload []byte
}

// Dispatcher is the single entry and exit point between the station
// bus and the ledger. The bus delivery goroutine only enqueues raw
// messages; one worker goroutine drains the queue and performs every
// store mutation in arrival order, which is what makes the two-step
// claim-then-credit safe. Undecodable or invalid payloads are dropped
// without a response. A panicking command is recovered and logged so
// the worker keeps serving later messages.
type Dispatcher struct {
	cfg     *config.BusConfig
	pub     bus.Publisher
	sub     Subscriber
	wallets WalletOps
	payouts PayoutOps
	votes   VoteOps
	mode    ModeReader
	valid   *services.ValidationHelper
	queue   chan inbound
	done    chan struct{}
}

func New(cfg *config.BusConfig, pub bus.Publisher, sub Subscriber, wallets WalletOps, payouts PayoutOps, votes VoteOps, mode ModeReader) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		pub:     pub,
		sub:     sub,
		wallets: wallets,
		payouts: payouts,
		votes:   votes,
		mode:    mode,
		valid:   services.NewValidationHelper(),
		queue:   make(chan inbound, cfg.QueueCapacity),
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) topic(parts ...string) string {
	return d.cfg.Namespace + "/" + strings.Join(parts, "/")
}

// Run subscribes, announces the current mode as a retained broadcast
// so late-joining stations learn it immediately, and serves commands
// until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	messages, closeSub, err := d.sub.Subscribe(ctx, d.topic("core", "*"), d.topic("night", "vote"))
	if err != nil {
		return err
	}
	defer closeSub()

	mode, err := d.mode.GetMode()
	if err != nil {
		return err
	}
	if err := d.pub.PublishRetained(ctx, d.topic("state", "mode"), map[string]any{"mode": mode}); err != nil {
		log.Printf("[DISPATCH] Failed to announce mode: %v", err)
	}

	go d.deliver(ctx, messages)

	for {
		select {
		case <-ctx.Done():
			close(d.done)
			return ctx.Err()
		case in := <-d.queue:
			d.Handle(ctx, in.topic, in.payload)
		}
	}
}

// deliver runs on the bus delivery goroutine. It never touches the
// store: it only hands raw messages to the worker, preserving arrival
// order without stalling message reception on storage latency.
func (d *Dispatcher) deliver(ctx context.Context, messages <-chan *redis.Message) {
	for msg := range messages {
		select {
		case d.queue <- inbound{topic: msg.Channel, payload: []byte(msg.Payload)}:
		case <-ctx.Done():
			return
		case <-d.done:
			return
		}
	}
}

// Handle routes one raw command to its handler. Exactly one handler
// runs per message; unknown topics under the wildcard subscription are
// dropped.
func (d *Dispatcher) Handle(ctx context.Context, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[DISPATCH] Recovered from panic handling %s: %v", topic, r)
		}
	}()

	switch strings.TrimPrefix(topic, d.cfg.Namespace+"/") {
	case "core/wallet/get":
		d.handleWalletGet(ctx, payload)
	case "core/wallet/debit":
		d.handleWalletDebit(ctx, payload)
	case "core/wallet/credit":
		d.handleWalletCredit(ctx, payload)
	case "core/payouts/new":
		d.handlePayoutNew(ctx, payload)
	case "core/payouts/claim":
		d.handlePayoutClaim(ctx, payload)
	case "night/vote":
		d.handleVote(payload)
	default:
		log.Printf("[DISPATCH] No handler for topic %s, dropping", topic)
	}
}

// decode unmarshals and validates a command. A false return means the
// message was dropped; per protocol policy the sender is not told.
func (d *Dispatcher) decode(topic string, payload []byte, cmd any) bool {
	if err := json.Unmarshal(payload, cmd); err != nil {
		return false
	}
	if err := d.valid.ValidateStruct(cmd); err != nil {
		log.Printf("[DISPATCH] Dropping invalid %s command: %v", topic, err)
		return false
	}
	return true
}

func (d *Dispatcher) handleWalletGet(ctx context.Context, payload []byte) {
	var cmd WalletGetCommand
	if !d.decode("wallet/get", payload, &cmd) {
		return
	}

	balance, err := d.wallets.Balance(cmd.TagUID, cmd.DeviceID)
	if err != nil {
		log.Printf("[DISPATCH] wallet/get failed for %s: %v", cmd.TagUID, err)
		d.respond(ctx, cmd.DeviceID, map[string]any{
			"reqId":  cmd.ReqID,
			"type":   "wallet_get",
			"status": "error",
		})
		return
	}

	d.respond(ctx, cmd.DeviceID, map[string]any{
		"reqId":        cmd.ReqID,
		"type":         "wallet_get",
		"status":       "ok",
		"balanceCents": balance,
	})
}

func (d *Dispatcher) handleWalletDebit(ctx context.Context, payload []byte) {
	var cmd WalletDebitCommand
	if !d.decode("wallet/debit", payload, &cmd) {
		return
	}

	newBalance, err := d.wallets.Debit(cmd.TagUID, cmd.AmountCents, cmd.DeviceID)
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		d.respond(ctx, cmd.DeviceID, map[string]any{
			"reqId":  cmd.ReqID,
			"type":   "wallet_debit",
			"status": "insufficient",
		})
	case err != nil:
		log.Printf("[DISPATCH] wallet/debit failed for %s: %v", cmd.TagUID, err)
		d.respond(ctx, cmd.DeviceID, map[string]any{
			"reqId":  cmd.ReqID,
			"type":   "wallet_debit",
			"status": "error",
		})
	default:
		d.respond(ctx, cmd.DeviceID, map[string]any{
			"reqId":           cmd.ReqID,
			"type":            "wallet_debit",
			"status":          "ok",
			"newBalanceCents": newBalance,
		})
	}
}

func (d *Dispatcher) handleWalletCredit(ctx context.Context, payload []byte) {
	var cmd WalletCreditCommand
	if !d.decode("wallet/credit", payload, &cmd) {
		return
	}

	newBalance, err := d.wallets.Credit(cmd.TagUID, cmd.AmountCents, cmd.DeviceID)
	if err != nil {
		log.Printf("[DISPATCH] wallet/credit failed for %s: %v", cmd.TagUID, err)
		d.respond(ctx, cmd.DeviceID, map[string]any{
			"reqId":  cmd.ReqID,
			"type":   "wallet_credit",
			"status": "error",
		})
		return
	}

	d.respond(ctx, cmd.DeviceID, map[string]any{
		"reqId":           cmd.ReqID,
		"type":            "wallet_credit",
		"status":          "ok",
		"newBalanceCents": newBalance,
	})
}

func (d *Dispatcher) handlePayoutNew(ctx context.Context, payload []byte) {
	var cmd PayoutNewCommand
	if !d.decode("payouts/new", payload, &cmd) {
		return
	}
	if cmd.PayoutID == "" {
		cmd.PayoutID = uuid.NewString()
	}
	if cmd.Source == "" {
		cmd.Source = "unknown"
	}

	if err := d.payouts.Create(cmd.PayoutID, cmd.Source, cmd.AmountCents, cmd.Meta); err != nil {
		log.Printf("[DISPATCH] payouts/new failed for %s: %v", cmd.PayoutID, err)
		return
	}

	d.broadcastReadyList(ctx)
}

func (d *Dispatcher) handlePayoutClaim(ctx context.Context, payload []byte) {
	var cmd PayoutClaimCommand
	if !d.decode("payouts/claim", payload, &cmd) {
		return
	}

	result, err := d.payouts.Claim(cmd.PayoutID, cmd.TagUID, cmd.DeviceID)
	if err != nil {
		log.Printf("[DISPATCH] payouts/claim failed for %s: %v", cmd.PayoutID, err)
		d.respond(ctx, cmd.DeviceID, map[string]any{
			"reqId":  cmd.ReqID,
			"type":   "payout_claim",
			"status": "error",
		})
		return
	}

	if result.Outcome != store.ClaimOK {
		d.respond(ctx, cmd.DeviceID, map[string]any{
			"reqId":  cmd.ReqID,
			"type":   "payout_claim",
			"status": string(result.Outcome),
		})
		return
	}

	d.respond(ctx, cmd.DeviceID, map[string]any{
		"reqId":           cmd.ReqID,
		"type":            "payout_claim",
		"status":          "ok",
		"creditedCents":   result.CreditedCents,
		"newBalanceCents": result.NewBalanceCents,
	})
	d.broadcastReadyList(ctx)
}

func (d *Dispatcher) handleVote(payload []byte) {
	var cmd VoteCommand
	if !d.decode("night/vote", payload, &cmd) {
		return
	}
	d.votes.Record(string(cmd.Step), cmd.DeviceID, cmd.Choice)
}

// respond publishes a correlated response to the requesting device.
// Fire-and-forget: a disconnected device misses it permanently.
func (d *Dispatcher) respond(ctx context.Context, deviceID string, body map[string]any) {
	if err := d.pub.Publish(ctx, d.topic("dev", deviceID, "res"), body); err != nil {
		log.Printf("[DISPATCH] Failed to respond to %s: %v", deviceID, err)
	}
}

// broadcastReadyList pushes the full current ready list to the change
// station. Every payout change sends the whole list, not a delta.
func (d *Dispatcher) broadcastReadyList(ctx context.Context) {
	items, err := d.payouts.ReadyList()
	if err != nil {
		log.Printf("[DISPATCH] Failed to load ready list: %v", err)
		return
	}

	err = d.pub.Publish(ctx, d.topic("dev", d.cfg.ChangeDevice, "payouts"), map[string]any{
		"items": items,
	})
	if err != nil {
		log.Printf("[DISPATCH] Failed to broadcast ready list: %v", err)
	}
}
