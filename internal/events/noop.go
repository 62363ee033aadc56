package events

import (
	"context"
	"log/slog"

	"github.com/Veraticus/the-budget-must-balance/internal/config"
	"github.com/Veraticus/the-budget-must-balance/internal/service"
)

// NoopPublisher discards events. It is used when no broker is configured.
type NoopPublisher struct{}

// Publish does nothing.
func (NoopPublisher) Publish(context.Context, service.Event) error {
	return nil
}

// Close does nothing.
func (NoopPublisher) Close() error {
	return nil
}

// Open returns an AMQP publisher when a broker is configured and a no-op one otherwise.
func Open(ctx context.Context, cfg config.Events) (service.Publisher, error) {
	if !cfg.Enabled() {
		slog.Debug("Event publishing disabled")
		return NoopPublisher{}, nil
	}
	return NewAMQPPublisher(ctx, cfg.AMQPURL, cfg.Exchange, cfg.RoutingKey)
}
