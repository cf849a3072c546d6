// Package rabbitmq publishes booking state changes to a durable topic
// exchange. Each message is persistent and waits for a publisher confirm, so
// a nil error means the broker has taken responsibility for it.
package rabbitmq

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	appID              = "booking-service"
	headerKey          = "message_key"
	defaultExchange    = "booking.events"
	defaultDialTimeout = 5 * time.Second
	heartbeat          = 10 * time.Second
)

type Publisher struct {
	url         string
	exchange    string
	dialTimeout time.Duration
	log         *zap.Logger

	// sem guards conn and ch. It is a channel so waiters can give up with
	// their context.
	sem  chan struct{}
	conn *amqp.Connection
	ch   *amqp.Channel
}

type Option func(*Publisher)

// WithDialTimeout bounds the TCP connect plus AMQP handshake when the
// caller's context has no earlier deadline.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

func NewPublisher(url, exchange string, log *zap.Logger, opts ...Option) *Publisher {
	if exchange == "" {
		exchange = defaultExchange
	}
	p := &Publisher{
		url:         url,
		exchange:    exchange,
		dialTimeout: defaultDialTimeout,
		log:         log,
		sem:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect dials eagerly so startup fails fast on a bad URL. Publish
// reconnects on its own afterwards.
func (p *Publisher) Connect(ctx context.Context) error {
	if err := p.lock(ctx); err != nil {
		return err
	}
	defer p.unlock()
	_, err := p.channel(ctx)
	return err
}

// Publish hands the message to the channel under the lock, so messages leave
// in call order, then waits for the broker confirm without it.
func (p *Publisher) Publish(ctx context.Context, topic string, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "marshal %s payload", topic)
	}

	msg := newPublishing(topic, key, body, time.Now())

	confirm, err := p.send(ctx, topic, msg)
	if err != nil {
		return err
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "wait confirm for %s", topic)
	}
	if !acked {
		return errors.Newf("broker rejected %s for %s", topic, key)
	}

	return nil
}

func (p *Publisher) send(ctx context.Context, topic string, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	if err := p.lock(ctx); err != nil {
		return nil, errors.Wrapf(err, "publish %s", topic)
	}
	defer p.unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return nil, err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, topic, false, false, msg)
	if err != nil {
		p.reset()
		return nil, errors.Wrapf(err, "publish %s", topic)
	}
	return confirm, nil
}

func (p *Publisher) Close() error {
	p.sem <- struct{}{}
	defer p.unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	return err
}

func (p *Publisher) lock(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) unlock() {
	<-p.sem
}

func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      p.dialer(ctx),
	})
	if err != nil {
		return nil, errors.Wrap(err, "rabbitmq: dial")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "rabbitmq: open channel")
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "rabbitmq: enable confirms")
	}

	if err := ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // kind
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "rabbitmq: declare exchange %s", p.exchange)
	}

	p.log.Info("rabbitmq channel ready", zap.String("exchange", p.exchange))
	p.conn, p.ch = conn, ch
	return ch, nil
}

// dialer connects within ctx and leaves a deadline on the socket for the
// handshake. The client clears it once the connection is open.
func (p *Publisher) dialer(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		deadline := time.Now().Add(p.dialTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}

		d := net.Dialer{Deadline: deadline}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

func (p *Publisher) reset() {
	if p.conn != nil && !p.conn.IsClosed() {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func newPublishing(topic, key string, body []byte, now time.Time) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    now.UTC(),
		Type:         topic,
		AppId:        appID,
		Headers:      amqp.Table{headerKey: key},
		Body:         body,
	}
}
