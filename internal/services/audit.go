package services

import (
	"encoding/json"
	"log"
	"time"
)

type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	DeviceID  string    `json:"device_id"`
	TagUID    string    `json:"tag_uid,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

// AuditLogger emits one structured JSON line per money movement, next
// to the durable tx_log row the store writes. It is the operator-facing
// trail, not the source of truth.
type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

func (a *AuditLogger) LogMovement(eventType, deviceID, tagUID string, amount int64, status string) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		DeviceID:  deviceID,
		TagUID:    tagUID,
		Amount:    amount,
		Status:    status,
	})
}

func (a *AuditLogger) LogError(eventType, deviceID string, err error) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		DeviceID:  deviceID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
