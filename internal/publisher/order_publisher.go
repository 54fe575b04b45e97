package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/hycst/lab3-order-service/internal/messaging"
	"github.com/hycst/lab3-order-service/internal/models"
)

type OrderPublisher struct {
	broker  messaging.Broker
	timeout time.Duration
	log     *slog.Logger
}

// NewOrderPublisher wraps broker. A zero timeout leaves the caller's
// deadline in charge.
func NewOrderPublisher(broker messaging.Broker, timeout time.Duration, logger *slog.Logger) *OrderPublisher {
	return &OrderPublisher{
		broker:  broker,
		timeout: timeout,
		log:     logger,
	}
}

// PublishOrder forwards the order text to the broker unchanged.
func (p *OrderPublisher) PublishOrder(ctx context.Context, order models.Order) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.broker.Publish(ctx, order); err != nil {
		return err
	}

	p.log.InfoContext(ctx, "sent order to queue", "queue", p.broker.Destination(), "order", order.String())
	return nil
}

func (p *OrderPublisher) Destination() string {
	return p.broker.Destination()
}
