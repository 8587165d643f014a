package queue

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dialRecorder struct {
	calls    int
	timeouts []time.Duration
}

func (d *dialRecorder) dial(_ string, timeout time.Duration) (*amqp.Connection, error) {
	d.calls++
	d.timeouts = append(d.timeouts, timeout)
	return nil, errors.New("connection refused")
}

func newTestPublisher(d *dialRecorder, clock *time.Time) *Publisher {
	log := logrus.New()
	log.SetOutput(io.Discard)
	p := NewPublisher("amqp://unreachable", log)
	p.dial = d.dial
	p.now = func() time.Time { return *clock }
	return p
}

func TestPublish_UnreachableBrokerDialsOncePerDelay(t *testing.T) {
	clock := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	d := &dialRecorder{}
	p := newTestPublisher(d, &clock)
	ev := ReservationEvent{Kind: KindCreated, ReservationID: "res-1"}

	err := p.Publish(context.Background(), ev)
	require.Error(t, err)
	assert.Equal(t, 1, d.calls)
	assert.Equal(t, defaultDialTimeout, d.timeouts[0])

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, p.Publish(context.Background(), ev), ErrBrokerUnavailable)
	}
	assert.Equal(t, 1, d.calls, "no redial inside the delay")

	clock = clock.Add(defaultRedialDelay)
	require.Error(t, p.Publish(context.Background(), ev))
	assert.Equal(t, 2, d.calls)
}

func TestPublish_DialBoundedByContext(t *testing.T) {
	clock := time.Now()
	d := &dialRecorder{}
	p := newTestPublisher(d, &clock)
	ev := ReservationEvent{Kind: KindCreated, ReservationID: "res-1"}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.Error(t, p.Publish(ctx, ev))
	require.Len(t, d.timeouts, 1)
	assert.LessOrEqual(t, d.timeouts[0], 300*time.Millisecond)

	done, stop := context.WithCancel(context.Background())
	stop()
	clock = clock.Add(defaultRedialDelay)
	assert.ErrorIs(t, p.Publish(done, ev), context.Canceled)
	assert.Equal(t, 1, d.calls, "a cancelled caller never dials")
}
