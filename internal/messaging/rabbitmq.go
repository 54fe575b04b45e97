package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel the bridge uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Connection is the subset of *amqp.Connection the bridge uses.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// DialFunc opens a broker connection. ctx aborts the dial.
type DialFunc func(ctx context.Context, url string) (Connection, error)

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Dialer returns a DialFunc backed by amqp091. timeout bounds the TCP dial
// and the AMQP handshake.
func Dialer(name string, timeout time.Duration) DialFunc {
	return func(ctx context.Context, url string) (Connection, error) {
		props := amqp.NewConnectionProperties()
		props.SetClientConnectionName(name)

		dialer := &net.Dialer{Timeout: timeout}

		conn, err := amqp.DialConfig(url, amqp.Config{
			Dial: func(network, addr string) (net.Conn, error) {
				conn, err := dialer.DialContext(ctx, network, addr)
				if err != nil {
					return nil, err
				}
				// amqp091 clears the deadline once the handshake completes
				if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
					conn.Close()
					return nil, err
				}
				return conn, nil
			},
			Properties: props,
		})
		if err != nil {
			return nil, err
		}
		return amqpConnection{conn}, nil
	}
}

// dialCall is one in-flight connect shared by every caller waiting for it.
type dialCall struct {
	done    chan struct{}
	cancel  context.CancelFunc
	channel Channel
	err     error
}

// RabbitMQ owns a single lazily opened connection and channel. The handle
// is dropped when the connection closes or a publish fails, and reopened on
// the next call to Channel.
type RabbitMQ struct {
	url   string
	queue string
	dial  DialFunc
	log   *slog.Logger

	mu      sync.Mutex
	conn    Connection
	channel Channel
	dialing *dialCall
}

// NewRabbitMQ does not connect; the first Channel or Publish call does.
func NewRabbitMQ(url, queue string, dial DialFunc, logger *slog.Logger) *RabbitMQ {
	return &RabbitMQ{
		url:   url,
		queue: queue,
		dial:  dial,
		log:   logger.With("broker", "rabbitmq", "queue", queue),
	}
}

// Destination returns the queue name.
func (r *RabbitMQ) Destination() string {
	return r.queue
}

// Channel returns the cached channel, connecting and declaring the queue
// first if needed. Concurrent callers share one dial; each stops waiting
// when its own ctx is done, while the dial carries on for the next caller.
func (r *RabbitMQ) Channel(ctx context.Context) (Channel, error) {
	r.mu.Lock()
	if r.channel != nil {
		channel := r.channel
		r.mu.Unlock()
		return channel, nil
	}

	if r.url == "" {
		r.mu.Unlock()
		return nil, &ConfigError{Key: "RABBITMQ_URL"}
	}

	call := r.dialing
	if call == nil {
		dialCtx, cancel := context.WithCancel(context.Background())
		call = &dialCall{done: make(chan struct{}), cancel: cancel}
		r.dialing = call
		go r.connect(dialCtx, call)
	}
	r.mu.Unlock()

	select {
	case <-call.done:
		return call.channel, call.err
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", ctx.Err())
	}
}

// connect opens the handle for call and caches it unless Close abandoned
// the dial in the meantime.
func (r *RabbitMQ) connect(ctx context.Context, call *dialCall) {
	defer close(call.done)
	defer call.cancel()

	conn, channel, closed, err := r.open(ctx)

	r.mu.Lock()
	current := r.dialing == call
	if current {
		r.dialing = nil
		if err == nil {
			r.conn = conn
			r.channel = channel
			go r.watch(conn, closed)
		}
	}
	r.mu.Unlock()

	switch {
	case err != nil:
		call.err = err
	case !current:
		conn.Close()
		call.err = fmt.Errorf("failed to connect to RabbitMQ: %w", context.Canceled)
	default:
		call.channel = channel
		r.log.Info("connected to RabbitMQ")
	}
}

func (r *RabbitMQ) open(ctx context.Context) (Connection, Channel, <-chan *amqp.Error, error) {
	conn, err := r.dial(ctx, r.url)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		r.queue, // queue name
		false,   // durable
		false,   // auto-delete
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	return conn, channel, closed, nil
}

// watch drops the cached handle once conn reports closing.
func (r *RabbitMQ) watch(conn Connection, closed <-chan *amqp.Error) {
	if err, ok := <-closed; ok && err != nil {
		r.log.Warn("connection error, will reconnect on next request", "error", err)
	} else {
		r.log.Info("connection closed, will reconnect on next request")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == conn {
		r.conn = nil
		r.channel = nil
	}
}

// Publish sends body to the queue through the default exchange.
func (r *RabbitMQ) Publish(ctx context.Context, body []byte) error {
	channel, err := r.Channel(ctx)
	if err != nil {
		return err
	}

	err = channel.PublishWithContext(ctx,
		"",      // exchange
		r.queue, // routing key (queue name)
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   uuid.NewString(),
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		r.reset(channel)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

// Consume opens a manual-ack consumer on the queue.
func (r *RabbitMQ) Consume(ctx context.Context, consumer string) (<-chan amqp.Delivery, error) {
	channel, err := r.Channel(ctx)
	if err != nil {
		return nil, err
	}

	messages, err := channel.Consume(
		r.queue,  // queue name
		consumer, // consumer tag
		false,    // auto-ack
		false,    // exclusive
		false,    // no-local
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		r.reset(channel)
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	r.log.Info("listening on queue", "consumer", consumer)
	return messages, nil
}

// reset closes the handle if it is still the one that failed.
func (r *RabbitMQ) reset(failed Channel) {
	r.mu.Lock()
	if r.channel != failed {
		r.mu.Unlock()
		return
	}
	conn := r.conn
	r.conn = nil
	r.channel = nil
	r.mu.Unlock()

	failed.Close()
	if conn != nil {
		conn.Close()
	}
}

// Close closes the channel and connection, if open, and aborts a dial in
// progress. A later Channel call connects again.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn, channel, call := r.conn, r.channel, r.dialing
	r.conn = nil
	r.channel = nil
	r.dialing = nil
	r.mu.Unlock()

	if call != nil {
		call.cancel()
	}

	if channel != nil {
		channel.Close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
