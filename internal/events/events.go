// Package events publishes transaction lifecycle events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"
)

const (
	TypeTransactionCreated       = "transaction.created"
	TypeTransactionStatusChanged = "transaction.status_changed"
	TypePayinNotification        = "payin.notification"
)

// TransactionEvent is the message body written to the events topic.
type TransactionEvent struct {
	Type           string          `json:"type"`
	TransactionID  string          `json:"txn_id,omitempty"`
	Kind           string          `json:"kind,omitempty"`
	Status         string          `json:"status,omitempty"`
	PreviousStatus string          `json:"previous_status,omitempty"`
	ExternalID     string          `json:"gateway_order_id,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Key groups events of one transaction on one partition.
func (e TransactionEvent) Key() string {
	if e.TransactionID != "" {
		return e.TransactionID
	}
	return e.ExternalID
}

// Publisher delivers events. Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, event TransactionEvent) error
	Close() error
}

// NoopPublisher drops every event; used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, TransactionEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
