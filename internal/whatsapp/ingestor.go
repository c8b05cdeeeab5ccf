package whatsapp

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/whatsapp-gateway/internal/common"
)

var webhookCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "whatsapp_webhook_items_total",
	Help: "Webhook items processed, by kind (message, status, error)",
}, []string{"kind"})

// MessageHandler handles one inbound message.
type MessageHandler interface {
	Dispatch(ctx context.Context, msg InboundMessage, contact *Contact)
}

// Ingestor processes webhook batches off the request path.
type Ingestor struct {
	Enabled bool
	Handler MessageHandler
	Logger  zerolog.Logger

	inflight sync.WaitGroup
}

// Accept starts processing batch in the background and returns at once. The
// work is detached from ctx cancellation so the request finishing does not
// abort it.
func (in *Ingestor) Accept(ctx context.Context, batch WebhookBatch) {
	ctx = context.WithoutCancel(ctx)
	in.inflight.Add(1)
	go func() {
		defer in.inflight.Done()
		common.Guard(in.Logger, "process-batch", func() {
			in.Process(ctx, batch)
		})
	}()
}

// Wait blocks until every accepted batch has been processed or ctx is done.
func (in *Ingestor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		in.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process walks every entry and change of batch. Messages are dispatched in
// order; a failure in one does not stop the next.
func (in *Ingestor) Process(ctx context.Context, batch WebhookBatch) {
	if !in.Enabled {
		in.Logger.Warn().Int("entries", len(batch.Entry)).Msg("whatsapp bot is disabled, ignoring webhook")
		return
	}

	ctx, span := otel.Tracer("whatsapp").Start(ctx, "process-webhook")
	defer span.End()
	span.SetAttributes(attribute.Int("whatsapp.entries", len(batch.Entry)))
	logger := common.WithContext(ctx, in.Logger)

	for _, entry := range batch.Entry {
		for _, change := range entry.Changes {
			value := change.Value

			for i := range value.Messages {
				webhookCounter.WithLabelValues("message").Inc()
				msg := value.Messages[i]
				contact := contactFor(value.Contacts, msg.From)
				common.Guard(logger.With().Str("message_id", msg.ID).Logger(), "dispatch", func() {
					in.Handler.Dispatch(ctx, msg, contact)
				})
			}

			for _, st := range value.Statuses {
				webhookCounter.WithLabelValues("status").Inc()
				logger.Info().
					Str("message_id", st.ID).
					Str("status", st.Status).
					Str("recipient", st.RecipientID).
					Str("timestamp", st.Timestamp).
					Msg("delivery status")
				for _, e := range st.Errors {
					logProviderError(logger, e)
				}
			}

			for _, e := range value.Errors {
				webhookCounter.WithLabelValues("error").Inc()
				logProviderError(logger, e)
			}
		}
	}
}

// contactFor prefers the contact whose wa_id matches the sender and falls
// back to the first one listed.
func contactFor(list []Contact, from string) *Contact {
	if len(list) == 0 {
		return nil
	}
	for i := range list {
		if list[i].WaID == from {
			return &list[i]
		}
	}
	return &list[0]
}

func logProviderError(logger zerolog.Logger, e ProviderError) {
	ev := logger.Error().Int("code", e.Code).Str("title", e.Title)
	if e.ErrorData != nil {
		ev = ev.Str("details", e.ErrorData.Details)
	}
	ev.Msg("whatsapp api error: " + e.Message)
}
