// Package publisher decouples booking transitions from the event broker.
package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/srgjo27/ticket_reservation/internal/core/ports"
)

const (
	defaultBufferSize  = 1024
	defaultSendTimeout = 5 * time.Second
)

var (
	ErrBufferFull = errors.New("event buffer full")
	ErrClosed     = errors.New("event publisher closed")
)

type message struct {
	topic   string
	key     string
	payload any
}

// Buffered queues events for a single background sender, so Publish never
// waits on the broker. One sender keeps events in submission order, which
// preserves per-booking ordering.
type Buffered struct {
	next    ports.EventPublisher
	timeout time.Duration
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan message
	done   chan struct{}
}

func NewBuffered(next ports.EventPublisher, size int, timeout time.Duration, log *zap.Logger) *Buffered {
	if size <= 0 {
		size = defaultBufferSize
	}
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	b := &Buffered{
		next:    next,
		timeout: timeout,
		log:     log,
		queue:   make(chan message, size),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Publish enqueues the event. It fails only when the buffer is full or the
// publisher is closed; broker errors are logged by the sender.
func (b *Buffered) Publish(_ context.Context, topic string, key string, payload any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.Wrapf(ErrClosed, "drop %s for %s", topic, key)
	}

	select {
	case b.queue <- message{topic: topic, key: key, payload: payload}:
		return nil
	default:
		return errors.Wrapf(ErrBufferFull, "drop %s for %s", topic, key)
	}
}

// Close stops accepting events and waits until the queued ones are sent or
// ctx ends.
func (b *Buffered) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "%d events not sent", len(b.queue))
	}
}

func (b *Buffered) run() {
	defer close(b.done)

	for msg := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		err := b.next.Publish(ctx, msg.topic, msg.key, msg.payload)
		cancel()

		if err != nil {
			b.log.Error("failed to publish booking event",
				zap.String("topic", msg.topic),
				zap.String("booking_id", msg.key),
				zap.Error(err),
			)
		}
	}
}
