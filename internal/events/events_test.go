package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dukerupert/botica/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	e, err := New(PurchaseRegistered, "s1", "i1", map[string]string{"order_id": "42"})
	require.NoError(t, err)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, PurchaseRegistered, e.Type)
	assert.False(t, e.OccurredAt.IsZero())
	assert.JSONEq(t, `{"order_id":"42"}`, string(e.Data))

	e, err = New(CheckoutAbandoned, "s1", "", nil)
	require.NoError(t, err)
	assert.Nil(t, e.Data)
}

func TestNewPublisher(t *testing.T) {
	p, err := NewPublisher(internal.EventsConfig{Provider: "none"}, nil)
	require.NoError(t, err)
	assert.IsType(t, NoopPublisher{}, p)
	assert.NoError(t, p.Publish(context.Background(), Event{}))

	p, err = NewPublisher(internal.EventsConfig{Provider: "kafka", KafkaBrokers: []string{"localhost:9092"}, Topic: "botica.checkout"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &KafkaPublisher{}, p)
	assert.NoError(t, p.Close())

	_, err = NewPublisher(internal.EventsConfig{Provider: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}

func TestKafkaMessage(t *testing.T) {
	e, err := New(PrescriptionSettled, "s1", "i1", map[string]string{"status": "validated"})
	require.NoError(t, err)

	msg, err := kafkaMessage(e)
	require.NoError(t, err)
	assert.Equal(t, "s1", string(msg.Key))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, PrescriptionSettled, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, "i1", decoded.IntentID)
}

func TestNATSSubject(t *testing.T) {
	p := &NATSPublisher{prefix: "botica.checkout"}
	assert.Equal(t, "botica.checkout.purchase.registered", p.Subject(PurchaseRegistered))

	p = &NATSPublisher{}
	assert.Equal(t, "purchase.registered", p.Subject(PurchaseRegistered))
}

func TestMockPublisher(t *testing.T) {
	m := &MockPublisher{}
	require.NoError(t, m.Publish(context.Background(), Event{Type: PurchaseRegistered}))
	assert.Equal(t, []string{PurchaseRegistered}, m.Types())
}
