package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hycst/lab3-order-service/internal/cache"
	"github.com/hycst/lab3-order-service/internal/config"
	"github.com/hycst/lab3-order-service/internal/models"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// OrderQueue accepts parsed orders for publishing.
type OrderQueue interface {
	PublishOrder(ctx context.Context, order models.Order) error
}

// Deduplicator tracks idempotency keys. A key is reserved while its order is
// being published, completed once the order is queued, and released if the
// publish fails.
type Deduplicator interface {
	Reserve(ctx context.Context, key string) (cache.KeyState, error)
	Complete(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

type OrderHandler struct {
	queue        OrderQueue
	dedup        Deduplicator
	maxBodyBytes int64
	log          *slog.Logger
}

// NewOrderHandler returns a handler publishing to queue. dedup may be nil.
func NewOrderHandler(queue OrderQueue, dedup Deduplicator, maxBodyBytes int64, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		queue:        queue,
		dedup:        dedup,
		maxBodyBytes: maxBodyBytes,
		log:          logger,
	}
}

// CreateOrder forwards the request body to the queue
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	// Only JSON bodies are parsed; anything else counts as no body.
	if c.ContentType() != gin.MIMEJSON {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Missing JSON body"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "Payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid JSON body"})
		return
	}

	order, err := models.ParseOrder(body)
	switch {
	case errors.Is(err, models.ErrEmptyOrder):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Missing JSON body"})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid JSON body"})
		return
	}

	ctx := c.Request.Context()

	key := c.GetHeader(IdempotencyKeyHeader)
	if key != "" && h.dedup != nil {
		state, err := h.dedup.Reserve(ctx, key)
		switch {
		case err != nil:
			h.log.WarnContext(ctx, "idempotency check failed, publishing anyway", "key", key, "error", err)
			key = ""
		case state == cache.KeyDone:
			h.log.InfoContext(ctx, "duplicate order ignored", "key", key)
			c.JSON(http.StatusOK, models.OrderAccepted{Message: "Order already received", Queued: false})
			return
		case state == cache.KeyPending:
			// The first request may still fail, so this one must not count as received.
			h.log.InfoContext(ctx, "order with same key in progress", "key", key)
			c.JSON(http.StatusConflict, models.ErrorResponse{Error: "Order is already being processed"})
			return
		}
	}

	if err := h.queue.PublishOrder(ctx, order); err != nil {
		detail := config.MaskCredentials(err.Error())
		h.log.ErrorContext(ctx, "order error", "error", detail, "request_id", c.GetString(requestIDKey))

		if key != "" && h.dedup != nil {
			if err := h.dedup.Release(context.WithoutCancel(ctx), key); err != nil {
				h.log.WarnContext(ctx, "failed to release idempotency key", "key", key, "error", err)
			}
		}

		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:  "Error connecting to RabbitMQ",
			Detail: detail,
		})
		return
	}

	if key != "" && h.dedup != nil {
		if err := h.dedup.Complete(context.WithoutCancel(ctx), key); err != nil {
			h.log.WarnContext(ctx, "failed to complete idempotency key", "key", key, "error", err)
		}
	}

	c.JSON(http.StatusOK, models.OrderAccepted{Message: "Order received", Queued: true})
}
