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
	"github.com/example/whatsapp-gateway/internal/contacts"
	"github.com/example/whatsapp-gateway/internal/notify"
)

const unknownContact = "Unknown"

var inboundCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "whatsapp_inbound_messages_total",
	Help: "Inbound messages by type and selected command",
}, []string{"type", "command"})

// Dispatcher turns one inbound message into its side effects: the reply, the
// main API notification and the contact registration. They run concurrently
// and none of them can fail another.
type Dispatcher struct {
	Sender   Sender
	Notifier notify.Notifier
	Contacts contacts.Store
	Commands Commands
	StoreURL string
	Logger   zerolog.Logger
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg InboundMessage, contact *Contact) {
	ctx, span := otel.Tracer("whatsapp").Start(ctx, "dispatch-message")
	defer span.End()
	span.SetAttributes(
		attribute.String("whatsapp.message_id", msg.ID),
		attribute.String("whatsapp.type", string(msg.Type)),
	)

	name := unknownContact
	if contact != nil && contact.Profile.Name != "" {
		name = contact.Profile.Name
	}
	logger := common.WithContext(ctx, d.Logger).With().
		Str("from", msg.From).
		Str("message_id", msg.ID).
		Str("type", string(msg.Type)).
		Logger()
	logger.Info().Str("contact", name).Msg("inbound message")

	commands := d.Commands
	if commands == nil {
		commands = DefaultCommands
	}
	cmd := commands.Select(msg)
	inboundCounter.WithLabelValues(string(msg.Type), cmd.Name).Inc()

	reply := cmd.Reply(ReplyContext{ContactName: name, StoreURL: d.StoreURL, Type: msg.Type})

	var wg sync.WaitGroup
	run := func(task string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			common.Guard(logger, task, fn)
		}()
	}

	run("reply", func() {
		if _, ok := d.Sender.SendText(ctx, msg.From, reply, msg.ID); !ok {
			logger.Warn().Str("command", cmd.Name).Msg("reply not sent")
		}
	})
	if d.Notifier != nil {
		run("notify", func() {
			d.Notifier.Notify(ctx, notify.EventMessageReceived, eventData(msg, name))
		})
	}
	if d.Contacts != nil && msg.From != "" {
		run("register-contact", func() {
			waID := msg.From
			if contact != nil && contact.WaID != "" {
				waID = contact.WaID
			}
			displayName := ""
			if name != unknownContact {
				displayName = name
			}
			if _, err := d.Contacts.Register(ctx, contacts.Contact{
				WaID:        waID,
				PhoneNumber: msg.From,
				DisplayName: displayName,
			}); err != nil {
				logger.Warn().Err(err).Msg("failed to register contact")
			}
		})
	}
	wg.Wait()
}

func eventData(msg InboundMessage, name string) map[string]any {
	content := "[" + string(msg.Type) + "]"
	if msg.Text != nil && msg.Text.Body != "" {
		content = msg.Text.Body
	}
	return map[string]any{
		"from":      msg.From,
		"name":      name,
		"type":      string(msg.Type),
		"content":   content,
		"timestamp": msg.Timestamp,
	}
}
