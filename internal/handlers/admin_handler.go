package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/emeraldgrove/arcade/internal/bus"
	"github.com/emeraldgrove/arcade/internal/config"
	"github.com/emeraldgrove/arcade/internal/models"
	"github.com/emeraldgrove/arcade/internal/services"
	"github.com/emeraldgrove/arcade/internal/store"
)

// AdminHandler is the operator control plane. It never touches wallet
// or payout state; it shares the bus publisher with the dispatcher for
// mode announcements and night-round stepping.
type AdminHandler struct {
	cfg       *config.BusConfig
	ledger    *store.Ledger
	votes     *services.VoteController
	pub       bus.Publisher
	validator *services.ValidationHelper
}

func NewAdminHandler(cfg *config.BusConfig, ledger *store.Ledger, votes *services.VoteController, pub bus.Publisher) *AdminHandler {
	return &AdminHandler{
		cfg:       cfg,
		ledger:    ledger,
		votes:     votes,
		pub:       pub,
		validator: services.NewValidationHelper(),
	}
}

type setModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=day night"`
}

// SetMode persists the operating mode and announces it as a retained
// broadcast. Switching to night starts a fresh vote session.
func (h *AdminHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := h.ledger.SetMode(req.Mode); err != nil {
		log.Printf("[ADMIN] Failed to persist mode %s: %v", req.Mode, err)
		services.SendErrorResponse(w, "Failed to set mode", http.StatusInternalServerError, nil)
		return
	}

	if req.Mode == models.ModeNight {
		h.votes.Reset()
	}

	topic := h.cfg.Namespace + "/state/mode"
	if err := h.pub.PublishRetained(r.Context(), topic, map[string]any{"mode": req.Mode}); err != nil {
		// Mode is already durable in the kv row; stations will pick it
		// up on the next announce.
		log.Printf("[ADMIN] Failed to broadcast mode %s: %v", req.Mode, err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "mode": req.Mode})
}

// NightStep forwards an arbitrary JSON object as a non-durable night
// step broadcast. A station that is offline misses the step.
func (h *AdminHandler) NightStep(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	topic := h.cfg.Namespace + "/night/step"
	if err := h.pub.Publish(r.Context(), topic, body); err != nil {
		log.Printf("[ADMIN] Failed to broadcast night step: %v", err)
		services.SendErrorResponse(w, "Failed to broadcast step", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

// Votes exposes the raw night-round tallies for an external observer.
func (h *AdminHandler) Votes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"rounds": h.votes.Tallies()})
}

// Mode reports the persisted operating mode.
func (h *AdminHandler) Mode(w http.ResponseWriter, r *http.Request) {
	mode, err := h.ledger.GetMode()
	if err != nil {
		log.Printf("[ADMIN] Failed to read mode: %v", err)
		services.SendErrorResponse(w, "Failed to read mode", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"mode": mode})
}

// Wallets lists every wallet, the operator overview of tag balances.
func (h *AdminHandler) Wallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := h.ledger.ListWallets()
	if err != nil {
		log.Printf("[ADMIN] Failed to list wallets: %v", err)
		services.SendErrorResponse(w, "Failed to list wallets", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"wallets": wallets})
}

// Log returns the newest transaction-log rows, newest first.
func (h *AdminHandler) Log(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := h.ledger.RecentLog(limit)
	if err != nil {
		log.Printf("[ADMIN] Failed to read transaction log: %v", err)
		services.SendErrorResponse(w, "Failed to read log", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"entries": entries})
}

// Index links the device front-ends served from /web.
func (h *AdminHandler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(`<html><body>
<h1>Arcade Core</h1>
<ul>
  <li><a href="/web/slot/index.html?device_id=slot-01">Slot</a></li>
  <li><a href="/web/change/index.html">Change</a></li>
  <li><a href="/web/roulette/index.html?device_id=roulette-01">Roulette</a></li>
  <li><a href="/web/blackjack/index.html?device_id=blackjack-01">Blackjack</a></li>
</ul>
</body></html>`))
}
