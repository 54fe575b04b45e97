package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// OrderConsumer logs and acks every order delivered on a queue, removing
// it from the queue.
type OrderConsumer struct {
	log *slog.Logger
}

func NewOrderConsumer(logger *slog.Logger) *OrderConsumer {
	return &OrderConsumer{log: logger}
}

// Run handles messages until ctx is done or the channel closes. It returns
// the number of orders acknowledged.
func (c *OrderConsumer) Run(ctx context.Context, messages <-chan amqp.Delivery) int {
	handled := 0

	for {
		select {
		case <-ctx.Done():
			return handled
		case msg, ok := <-messages:
			if !ok {
				c.log.Info("delivery channel closed")
				return handled
			}
			if c.handle(msg) {
				handled++
			}
		}
	}
}

func (c *OrderConsumer) handle(msg amqp.Delivery) bool {
	if !json.Valid(msg.Body) {
		c.log.Warn("dropping undecodable order", "message_id", msg.MessageId, "size", len(msg.Body))

		// Don't requeue bad messages
		if err := msg.Nack(false, false); err != nil {
			c.log.Error("failed to nack message", "error", err)
		}
		return false
	}

	c.log.Info("received order",
		"message_id", msg.MessageId,
		"queue", msg.RoutingKey,
		"order", json.RawMessage(msg.Body),
	)

	if err := msg.Ack(false); err != nil {
		c.log.Error("failed to ack message", "error", err)
		return false
	}
	return true
}
