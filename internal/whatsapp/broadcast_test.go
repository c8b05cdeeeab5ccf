package whatsapp

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type sleepRecorder struct {
	waits []time.Duration
	calls []int
	sent  *fakeSender
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	r.calls = append(r.calls, len(r.sent.sent()))
	return nil
}

func TestBroadcastCountsSuccesses(t *testing.T) {
	sender := &fakeSender{
		failFor: map[string]bool{"b": true, "d": true},
		panicOn: map[string]bool{"e": true},
	}
	rec := &sleepRecorder{sent: sender}
	b := &Broadcaster{Sender: sender, Delay: time.Second, Logger: zerolog.Nop(), Sleep: rec.sleep}

	recipients := []string{"a", "b", "c", "d", "e", "f"}
	got := b.Broadcast(context.Background(), "sale", recipients)

	assert.Equal(t, 3, got)

	sent := sender.sent()
	order := make([]string, 0, len(sent))
	for _, s := range sent {
		order = append(order, s.To)
		assert.Equal(t, "sale", s.Body)
		assert.Empty(t, s.ReplyTo)
	}
	assert.Equal(t, recipients, order)

	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second, time.Second, time.Second}, rec.waits)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, rec.calls, "one delay between each pair of sends")
}

func TestBroadcastEmpty(t *testing.T) {
	sender := &fakeSender{}
	b := &Broadcaster{Sender: sender, Delay: time.Second, Logger: zerolog.Nop()}

	assert.Equal(t, 0, b.Broadcast(context.Background(), "sale", nil))
	assert.Equal(t, 0, b.Broadcast(context.Background(), "sale", []string{}))
	assert.Empty(t, sender.sent())
}

func TestBroadcastUsesRealDelay(t *testing.T) {
	sender := &fakeSender{}
	b := &Broadcaster{Sender: sender, Delay: 20 * time.Millisecond, Logger: zerolog.Nop()}

	start := time.Now()
	assert.Equal(t, 3, b.Broadcast(context.Background(), "hi", []string{"1", "2", "3"}))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestBroadcastStopsOnCancel(t *testing.T) {
	sender := &fakeSender{}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broadcaster{
		Sender: sender,
		Delay:  time.Second,
		Logger: zerolog.Nop(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return sleepCtx(ctx, d)
		},
	}

	assert.Equal(t, 1, b.Broadcast(ctx, "hi", []string{"1", "2", "3"}))
	assert.Len(t, sender.sent(), 1)
}
