// Package events publishes checkout lifecycle events to a message broker.
// Publishing is best effort: callers log and count failures but never fail
// a checkout because an event could not be delivered.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/botica/internal"
	"github.com/google/uuid"
)

// Event types.
const (
	PurchaseRegistered   = "purchase.registered"
	PrescriptionUploaded = "prescription.uploaded"
	PrescriptionSettled  = "prescription.settled"
	CheckoutAbandoned    = "checkout.abandoned"
)

// Event is the envelope written to the broker.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	SessionID  string          `json:"session_id"`
	IntentID   string          `json:"intent_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// New builds an event of type typ carrying data.
func New(typ, sessionID, intentID string, data interface{}) (Event, error) {
	e := Event{
		ID:         uuid.NewString(),
		Type:       typ,
		SessionID:  sessionID,
		IntentID:   intentID,
		OccurredAt: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		e.Data = raw
	}
	return e, nil
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NewPublisher returns the publisher selected by cfg.Provider.
func NewPublisher(cfg internal.EventsConfig, logger *slog.Logger) (Publisher, error) {
	switch cfg.Provider {
	case "", "none":
		return NoopPublisher{}, nil
	case "nats":
		return NewNATSPublisher(cfg.NATSURL, cfg.Topic, logger)
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.Topic), nil
	default:
		return nil, fmt.Errorf("unknown events provider: %s", cfg.Provider)
	}
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, e Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
