package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/emeraldgrove/arcade/internal/config"
	"github.com/emeraldgrove/arcade/internal/services"
	"github.com/emeraldgrove/arcade/internal/store"
)

type published struct {
	topic    string
	payload  any
	retained bool
}

type capturePublisher struct {
	messages []published
}

func (p *capturePublisher) Publish(_ context.Context, topic string, payload any) error {
	p.messages = append(p.messages, published{topic: topic, payload: payload})
	return nil
}

func (p *capturePublisher) PublishRetained(_ context.Context, topic string, payload any) error {
	p.messages = append(p.messages, published{topic: topic, payload: payload, retained: true})
	return nil
}

func newTestHandler(t *testing.T) (*AdminHandler, sqlmock.Sqlmock, *capturePublisher, *services.VoteController) {
	t.Helper()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ledger := store.NewLedger(db)
	votes := services.NewVoteController(ledger)
	pub := &capturePublisher{}
	cfg := &config.BusConfig{Namespace: "arcade", ChangeDevice: "change-01"}

	return NewAdminHandler(cfg, ledger, votes, pub), mock, pub, votes
}

func TestAdminHandler_SetMode(t *testing.T) {
	t.Run("persists and broadcasts retained", func(t *testing.T) {
		h, mock, pub, _ := newTestHandler(t)

		mock.ExpectExec("INSERT INTO kv \\(key, value\\) VALUES \\('mode', \\$1\\)").
			WithArgs([]byte(`{"mode":"night"}`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		req := httptest.NewRequest(http.MethodPost, "/api/mode", strings.NewReader(`{"mode":"night"}`))
		rec := httptest.NewRecorder()
		h.SetMode(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ok":true,"mode":"night"}`, rec.Body.String())

		assert.Len(t, pub.messages, 1)
		assert.Equal(t, "arcade/state/mode", pub.messages[0].topic)
		assert.True(t, pub.messages[0].retained)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("switching to night resets the vote session", func(t *testing.T) {
		h, mock, _, votes := newTestHandler(t)

		mock.ExpectExec("INSERT INTO tx_log").WillReturnResult(sqlmock.NewResult(1, 1))
		votes.Record("1", "slot-01", "red")

		mock.ExpectExec("INSERT INTO kv").WillReturnResult(sqlmock.NewResult(0, 1))

		req := httptest.NewRequest(http.MethodPost, "/api/mode", strings.NewReader(`{"mode":"night"}`))
		h.SetMode(httptest.NewRecorder(), req)

		assert.Empty(t, votes.Tallies())
	})

	t.Run("rejects unknown mode", func(t *testing.T) {
		h, mock, pub, _ := newTestHandler(t)

		req := httptest.NewRequest(http.MethodPost, "/api/mode", strings.NewReader(`{"mode":"dusk"}`))
		rec := httptest.NewRecorder()
		h.SetMode(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, pub.messages)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdminHandler_NightStep(t *testing.T) {
	h, _, pub, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/night/step", strings.NewReader(`{"step":3,"round":"final"}`))
	rec := httptest.NewRecorder()
	h.NightStep(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, pub.messages, 1)
	assert.Equal(t, "arcade/night/step", pub.messages[0].topic)
	assert.False(t, pub.messages[0].retained)
}

func TestAdminHandler_Votes(t *testing.T) {
	h, mock, _, votes := newTestHandler(t)

	mock.ExpectExec("INSERT INTO tx_log").WillReturnResult(sqlmock.NewResult(1, 1))
	votes.Record("2", "blackjack-01", "hit")

	req := httptest.NewRequest(http.MethodGet, "/api/night/votes", nil)
	rec := httptest.NewRecorder()
	h.Votes(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Rounds map[string]map[string]string `json:"rounds"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "hit", body.Rounds["2"]["blackjack-01"])
}

func TestAdminHandler_Wallets(t *testing.T) {
	h, mock, _, _ := newTestHandler(t)

	mock.ExpectQuery("SELECT tag_uid, balance_cents, updated_at FROM wallets ORDER BY tag_uid ASC").
		WillReturnRows(sqlmock.NewRows([]string{"tag_uid", "balance_cents", "updated_at"}).
			AddRow("ABC123", 500, time.Now().UTC()))

	req := httptest.NewRequest(http.MethodGet, "/api/wallets", nil)
	rec := httptest.NewRecorder()
	h.Wallets(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Wallets []struct {
			TagUID       string `json:"tag_uid"`
			BalanceCents int64  `json:"balance_cents"`
		} `json:"wallets"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Wallets, 1)
	assert.Equal(t, "ABC123", body.Wallets[0].TagUID)
	assert.Equal(t, int64(500), body.Wallets[0].BalanceCents)
}

func TestAdminHandler_Log(t *testing.T) {
	t.Run("default limit", func(t *testing.T) {
		h, mock, _, _ := newTestHandler(t)

		mock.ExpectQuery("SELECT id, ts, device_id, op, tag_uid, amount_cents, details FROM tx_log ORDER BY id DESC LIMIT \\$1").
			WithArgs(50).
			WillReturnRows(sqlmock.NewRows([]string{"id", "ts", "device_id", "op", "tag_uid", "amount_cents", "details"}).
				AddRow(1, time.Now().UTC(), "slot-01", "wallet_get", "ABC123", nil, []byte(`{"balance":0}`)))

		req := httptest.NewRequest(http.MethodGet, "/api/log", nil)
		rec := httptest.NewRecorder()
		h.Log(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Entries []struct {
				Op       string `json:"op"`
				DeviceID string `json:"device_id"`
			} `json:"entries"`
		}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body.Entries, 1)
		assert.Equal(t, "wallet_get", body.Entries[0].Op)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("limit from query string", func(t *testing.T) {
		h, mock, _, _ := newTestHandler(t)

		mock.ExpectQuery("SELECT id, ts, device_id, op, tag_uid, amount_cents, details FROM tx_log ORDER BY id DESC LIMIT \\$1").
			WithArgs(10).
			WillReturnRows(sqlmock.NewRows([]string{"id", "ts", "device_id", "op", "tag_uid", "amount_cents", "details"}))

		req := httptest.NewRequest(http.MethodGet, "/api/log?limit=10", nil)
		rec := httptest.NewRecorder()
		h.Log(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdminHandler_Mode(t *testing.T) {
	h, mock, _, _ := newTestHandler(t)

	mock.ExpectQuery("SELECT value FROM kv WHERE key = 'mode'").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	req := httptest.NewRequest(http.MethodGet, "/api/mode", nil)
	rec := httptest.NewRecorder()
	h.Mode(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mode":"day"}`, rec.Body.String())
}
