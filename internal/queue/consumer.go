package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Consumer listens on the reservation queue and appends one line per
// event to an audit log file.
type Consumer struct {
	url     string
	logPath string
	log     *logrus.Logger
}

// NewConsumer returns a consumer writing to logPath.
func NewConsumer(url, logPath string, log *logrus.Logger) *Consumer {
	if logPath == "" {
		logPath = filepath.Join("logs", "reservations.log")
	}
	return &Consumer{url: url, logPath: logPath, log: log}
}

// Run connects to RabbitMQ, declares the reservation queue (durable) and
// consumes until ctx is cancelled.  Lost connections are re-dialed with
// exponential backoff capped at 30s.  A message that cannot be handled
// is rejected without requeue so the loop keeps going.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WithFields(logrus.Fields{"error": err, "retry_in": backoff}).Warn("reservation-consumer: dial failed")
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WithError(err).Warn("reservation-consumer: consume loop ended, reconnecting")
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.WithError(err).Warn("reservation-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(ReservationQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(ReservationQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.HandleMessage(d.Body); err != nil {
				c.log.WithError(err).Error("reservation-consumer: handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes one event and appends it to the audit log.
func (c *Consumer) HandleMessage(body []byte) error {
	var ev ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.ReservationID == "" {
		return errors.New("event without reservation_id")
	}
	if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders an event as a single human-friendly log line.
func FormatLine(ev ReservationEvent) string {
	rooms := "[]"
	if len(ev.Rooms) > 0 {
		keys := make([]string, 0, len(ev.Rooms))
		for k := range ev.Rooms {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s:%d", k, ev.Rooms[k])
		}
		rooms = "[" + strings.Join(parts, ",") + "]"
	}
	return fmt.Sprintf("[%s] %s | reservation_id=%s | hotel_id=%s | customer_id=%d | status=%s | stay=%s/%s | total=%d cents | intent=%s | rooms=%s\n",
		ev.OccurredAt, ev.Kind, ev.ReservationID, ev.HotelID, ev.CustomerID, ev.Status,
		ev.Checkin, ev.Checkout, ev.AmountCents, ev.PaymentIntentID, rooms)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
