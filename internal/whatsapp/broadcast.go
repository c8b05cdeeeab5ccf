package whatsapp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/whatsapp-gateway/internal/common"
)

var broadcastCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "whatsapp_broadcast_recipients_total",
	Help: "Broadcast recipients by result",
}, []string{"result"})

// Broadcaster sends one message to many recipients, one at a time, pausing
// Delay between recipients to stay under the provider's rate limit. It must
// stay sequential.
type Broadcaster struct {
	Sender Sender
	Delay  time.Duration
	Logger zerolog.Logger

	// Sleep waits between recipients; nil uses a timer honouring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Broadcast returns how many recipients accepted the message. Each recipient
// is attempted exactly once unless ctx is cancelled mid-run.
func (b *Broadcaster) Broadcast(ctx context.Context, message string, recipients []string) int {
	logger := b.Logger.With().Str("broadcast_id", uuid.NewString()).Logger()
	if len(recipients) == 0 {
		logger.Warn().Msg("no recipients specified for broadcast")
		return 0
	}

	ctx, span := otel.Tracer("whatsapp").Start(ctx, "broadcast")
	defer span.End()
	span.SetAttributes(attribute.Int("whatsapp.recipients", len(recipients)))

	sleep := b.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	sent := 0
	for i, to := range recipients {
		if i > 0 && b.Delay > 0 {
			if err := sleep(ctx, b.Delay); err != nil {
				logger.Warn().Err(err).Int("remaining", len(recipients)-i).Msg("broadcast interrupted")
				break
			}
		}
		if b.sendOne(ctx, logger, to, message) {
			sent++
			broadcastCounter.WithLabelValues("ok").Inc()
		} else {
			broadcastCounter.WithLabelValues("failed").Inc()
		}
	}

	span.SetAttributes(attribute.Int("whatsapp.sent", sent))
	logger.Info().Int("sent", sent).Int("recipients", len(recipients)).Msg("broadcast finished")
	return sent
}

func (b *Broadcaster) sendOne(ctx context.Context, logger zerolog.Logger, to, message string) (ok bool) {
	common.Guard(logger, "broadcast-send", func() {
		_, ok = b.Sender.SendText(ctx, to, message, "")
	})
	if !ok {
		logger.Warn().Str("to", to).Msg("broadcast recipient failed")
	}
	return ok
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
