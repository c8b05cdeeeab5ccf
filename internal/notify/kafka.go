package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier publishes events to a topic for downstream consumers that
// cannot be reached over HTTP.
type KafkaNotifier struct {
	Writer  MessageWriter
	Timeout time.Duration
	Logger  zerolog.Logger
}

type kafkaEvent struct {
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	EmittedAt time.Time      `json:"emitted_at"`
}

func (n *KafkaNotifier) Notify(ctx context.Context, event string, data map[string]any) {
	if err := n.write(ctx, event, data); err != nil {
		notifyCounter.WithLabelValues("kafka", "error").Inc()
		n.Logger.Warn().Err(err).Str("event", event).Msg("failed to publish event")
		return
	}
	notifyCounter.WithLabelValues("kafka", "ok").Inc()
}

func (n *KafkaNotifier) write(ctx context.Context, event string, data map[string]any) error {
	payload, err := json.Marshal(kafkaEvent{Event: event, Data: data, EmittedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	key, _ := data["from"].(string)
	return n.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event)},
		},
	})
}
