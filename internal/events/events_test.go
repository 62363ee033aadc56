package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/config"
	"github.com/Veraticus/the-budget-must-balance/internal/service"
	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	msg      amqp091.Publishing
	exchange string
	key      string
	deadline bool
}

type fakeChannel struct {
	declareErr error
	publishErr error
	closeErr   error
	declared   []string
	published  []published
	closed     int
	mu         sync.Mutex
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp091.Table) error {
	if f.declareErr != nil {
		return f.declareErr
	}
	f.declared = append(f.declared, fmt.Sprintf("%s/%s/%t", name, kind, durable))
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	_, hasDeadline := ctx.Deadline()
	f.published = append(f.published, published{msg: msg, exchange: exchange, key: key, deadline: hasDeadline})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed++
	return f.closeErr
}

func sampleEvent() service.Event {
	return service.Event{
		OccurredAt: time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC),
		Amount:     decimal.RequireFromString("42.50"),
		Type:       service.EventTransactionAdded,
		Namespace:  "alice",
		Month:      "2024-05",
		EntityID:   7,
	}
}

func TestMessageRoundTrip(t *testing.T) {
	msg := NewMessage(sampleEvent())
	assert.Equal(t, MessageVersion, msg.Version)

	data, err := msg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"transaction.added"`)
	assert.Contains(t, string(data), `"amount":"42.5"`)

	parsed, err := MessageFromJSON(data)
	require.NoError(t, err)

	event := parsed.Event()
	assert.Equal(t, service.EventTransactionAdded, event.Type)
	assert.Equal(t, "alice", event.Namespace)
	assert.Equal(t, int64(7), event.EntityID)
	assert.True(t, event.Amount.Equal(decimal.RequireFromString("42.5")))
	assert.True(t, event.OccurredAt.Equal(sampleEvent().OccurredAt))
}

func TestNewMessage_FillsTimestamp(t *testing.T) {
	msg := NewMessage(service.Event{Type: service.EventLedgerRestored})
	assert.False(t, msg.OccurredAt.IsZero())
}

func TestMessageFromJSON_Invalid(t *testing.T) {
	_, err := MessageFromJSON([]byte("{not json"))
	assert.Error(t, err)

	_, err = MessageFromJSON([]byte(`{"namespace":"bob"}`))
	assert.Error(t, err)
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "ledger.category.added", RoutingKey("ledger", service.EventCategoryAdded))
	assert.Equal(t, "ledger.category.added", RoutingKey("ledger.", service.EventCategoryAdded))
	assert.Equal(t, "category.added", RoutingKey("", service.EventCategoryAdded))
}

func TestNewPublisher_DeclaresTopicExchange(t *testing.T) {
	ch := &fakeChannel{}
	_, err := newPublisher(ch, "budget", "ledger")
	require.NoError(t, err)
	assert.Equal(t, []string{"budget/topic/true"}, ch.declared)

	_, err = newPublisher(&fakeChannel{declareErr: errors.New("access refused")}, "budget", "ledger")
	assert.ErrorContains(t, err, "declare exchange")
}

func TestPublish(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "budget", "ledger")
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, ch.published, 1)

	got := ch.published[0]
	assert.Equal(t, "budget", got.exchange)
	assert.Equal(t, "ledger.transaction.added", got.key)
	assert.True(t, got.deadline, "publish runs under a timeout")
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp091.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "transaction.added", got.msg.Type)

	parsed, err := MessageFromJSON(got.msg.Body)
	require.NoError(t, err)
	assert.Equal(t, "alice", parsed.Namespace)
}

func TestPublish_Error(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "budget", "ledger")
	require.NoError(t, err)

	ch.publishErr = errors.New("channel closed")
	err = p.Publish(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "publish message")
}

func TestClose(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "budget", "ledger")
	require.NoError(t, err)
	require.NoError(t, p.Close())
	assert.Equal(t, 1, ch.closed)

	ch.closeErr = errors.New("already closed")
	assert.Error(t, p.Close())
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "refused", err: errors.New("dial tcp 127.0.0.1:5672: connect: connection refused"), want: true},
		{name: "eof", err: errors.New("EOF"), want: true},
		{name: "broken pipe", err: errors.New("write: broken pipe"), want: true},
		{name: "recoverable amqp", err: &amqp091.Error{Code: 320, Recover: true}, want: true},
		{name: "auth failure", err: &amqp091.Error{Code: 403, Reason: "ACCESS_REFUSED", Recover: false}, want: false},
		{name: "other", err: errors.New("bad URI scheme"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConnectionError(tt.err))
		})
	}
}

func TestOpen_DisabledReturnsNoop(t *testing.T) {
	pub, err := Open(context.Background(), config.Events{})
	require.NoError(t, err)
	assert.IsType(t, NoopPublisher{}, pub)
	assert.NoError(t, pub.Publish(context.Background(), sampleEvent()))
	assert.NoError(t, pub.Close())
}

func TestOpen_InvalidURLFailsFast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Open(ctx, config.Events{AMQPURL: "http://not-amqp", Exchange: "budget", RoutingKey: "ledger"})
	assert.Error(t, err)
}
