// Package events publishes ledger change notifications.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/model"
	"github.com/Veraticus/the-budget-must-balance/internal/service"
	"github.com/shopspring/decimal"
)

// MessageVersion identifies the message layout for consumers.
const MessageVersion = 1

// Message is the wire form of a ledger event.
type Message struct {
	OccurredAt time.Time         `json:"occurred_at"`
	Amount     decimal.Decimal   `json:"amount"`
	Type       service.EventType `json:"type"`
	Namespace  string            `json:"namespace"`
	Month      model.Month       `json:"month,omitempty"`
	EntityID   int64             `json:"entity_id,omitempty"`
	Count      int               `json:"count,omitempty"`
	Version    int               `json:"version"`
}

// NewMessage converts an event into a message.
func NewMessage(event service.Event) *Message {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return &Message{
		OccurredAt: occurred.UTC(),
		Amount:     event.Amount,
		Type:       event.Type,
		Namespace:  event.Namespace,
		Month:      event.Month,
		EntityID:   event.EntityID,
		Count:      event.Count,
		Version:    MessageVersion,
	}
}

// ToJSON converts the message to JSON bytes.
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Event converts the message back into a ledger event.
func (m *Message) Event() service.Event {
	return service.Event{
		OccurredAt: m.OccurredAt,
		Amount:     m.Amount,
		Type:       m.Type,
		Namespace:  m.Namespace,
		Month:      m.Month,
		EntityID:   m.EntityID,
		Count:      m.Count,
	}
}

// MessageFromJSON parses a message.
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("unmarshal message: missing type")
	}
	return &msg, nil
}

// RoutingKey joins the configured prefix with the event type,
// e.g. "ledger" and "transaction.added" give "ledger.transaction.added".
func RoutingKey(prefix string, eventType service.EventType) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return string(eventType)
	}
	return prefix + "." + string(eventType)
}
