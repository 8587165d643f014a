package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	defaultDialTimeout = 2 * time.Second
	defaultRedialDelay = 5 * time.Second
)

// ErrBrokerUnavailable is returned while the publisher waits out the
// delay after a failed dial.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// Publisher sends reservation events to RabbitMQ.  The connection is
// opened lazily and re-dialed after a failure.  A dial is bounded by a
// short timeout and, after it fails, no new dial is attempted until the
// redial delay has passed, so an unreachable broker costs requests at
// most one bounded dial.  Errors are logged and returned so callers can
// ignore them without interrupting the request that produced the event.
type Publisher struct {
	url         string
	log         *logrus.Logger
	dialTimeout time.Duration
	redialDelay time.Duration
	dial        func(url string, timeout time.Duration) (*amqp.Connection, error)
	now         func() time.Time

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	nextDial time.Time
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string, log *logrus.Logger) *Publisher {
	return &Publisher{
		url:         url,
		log:         log,
		dialTimeout: defaultDialTimeout,
		redialDelay: defaultRedialDelay,
		dial:        dialTimeout,
		now:         time.Now,
	}
}

func dialTimeout(url string, timeout time.Duration) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()
	if p.now().Before(p.nextDial) {
		return nil, ErrBrokerUnavailable
	}
	timeout := p.dialTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	conn, err := p.dial(p.url, timeout)
	if err != nil {
		p.nextDial = p.now().Add(p.redialDelay)
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.nextDial = p.now().Add(p.redialDelay)
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(ReservationQueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		p.nextDial = p.now().Add(p.redialDelay)
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// Publish sends ev as a persistent JSON message on the reservation queue.
func (p *Publisher) Publish(ctx context.Context, ev ReservationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		p.log.WithFields(logrus.Fields{"kind": ev.Kind, "reservation_id": ev.ReservationID, "error": err}).
			Warn("rabbitmq: publish skipped")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Kind,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", ReservationQueueName, false, false, pub); err != nil {
		p.log.WithFields(logrus.Fields{"kind": ev.Kind, "reservation_id": ev.ReservationID, "error": err}).
			Warn("rabbitmq: publish failed")
		p.closeLocked()
		return err
	}
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
