// Package notify forwards inbound WhatsApp events to the main commerce API
// and, optionally, to a Kafka topic. Every sink is best effort: failures are
// logged and swallowed.
package notify

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const EventMessageReceived = "message_received"

var notifyCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "whatsapp_notifier_events_total",
	Help: "Events forwarded by the notifier, by sink and result",
}, []string{"sink", "result"})

// Notifier delivers one event. Implementations must not block longer than
// their own timeout and must never surface an error to the caller.
type Notifier interface {
	Notify(ctx context.Context, event string, data map[string]any)
}

// Event is the body posted to every sink.
type Event struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Multi fans an event out to every sink in turn.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event string, data map[string]any) {
	for _, n := range m {
		n.Notify(ctx, event, data)
	}
}
