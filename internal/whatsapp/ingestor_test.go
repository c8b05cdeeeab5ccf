package whatsapp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/whatsapp-gateway/internal/contacts"
	"github.com/example/whatsapp-gateway/internal/notify"
)

func newDispatcher(s Sender, n notify.Notifier) *Dispatcher {
	return &Dispatcher{
		Sender:   s,
		Notifier: n,
		Contacts: contacts.NewMemoryStore(),
		StoreURL: "https://fullmag.com",
		Logger:   zerolog.Nop(),
	}
}

func TestCatalogScenario(t *testing.T) {
	sender := &fakeSender{}
	notifier := &fakeNotifier{}
	in := &Ingestor{Enabled: true, Handler: newDispatcher(sender, notifier), Logger: zerolog.Nop()}

	in.Process(context.Background(), batchOf(textMessage("380501112233", "wamid.ABC", "/catalog")))

	sent := sender.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "380501112233", sent[0].To)
	assert.Equal(t, "wamid.ABC", sent[0].ReplyTo)
	assert.Contains(t, sent[0].Body, "https://fullmag.com")

	calls := notifier.received()
	require.Len(t, calls, 1)
	assert.Equal(t, "message_received", calls[0].Event)
	assert.Equal(t, "text", calls[0].Data["type"])
	assert.Equal(t, "/catalog", calls[0].Data["content"])
	assert.Equal(t, "Unknown", calls[0].Data["name"])
}

func TestDispatchRegistersContact(t *testing.T) {
	store := contacts.NewMemoryStore()
	d := newDispatcher(&fakeSender{}, &fakeNotifier{})
	d.Contacts = store

	c := &Contact{WaID: "380501112233"}
	c.Profile.Name = "Olena"
	d.Dispatch(context.Background(), InboundMessage{From: "380501112233", ID: "wamid.1", Type: TypeImage}, c)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Olena", list[0].DisplayName)
}

func TestDispatchMediaNotifiesPlaceholder(t *testing.T) {
	sender := &fakeSender{}
	notifier := &fakeNotifier{}
	d := newDispatcher(sender, notifier)

	d.Dispatch(context.Background(), InboundMessage{From: "1", ID: "wamid.IMG", Type: TypeImage}, nil)

	require.Len(t, sender.sent(), 1)
	assert.Contains(t, sender.sent()[0].Body, "зображення")
	require.Len(t, notifier.received(), 1)
	assert.Equal(t, "[image]", notifier.received()[0].Data["content"])
}

func TestPartialBatchIsolation(t *testing.T) {
	sender := &fakeSender{panicOn: map[string]bool{"2": true}}
	in := &Ingestor{Enabled: true, Handler: newDispatcher(sender, &fakeNotifier{}), Logger: zerolog.Nop()}

	assert.NotPanics(t, func() {
		in.Process(context.Background(), batchOf(
			textMessage("1", "wamid.1", "/help"),
			textMessage("2", "wamid.2", "/help"),
			textMessage("3", "wamid.3", "/help"),
		))
	})

	sent := sender.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "1", sent[0].To)
	assert.Equal(t, "3", sent[2].To)
}

type panickyHandler struct {
	mu   sync.Mutex
	seen []string
}

func (p *panickyHandler) Dispatch(_ context.Context, msg InboundMessage, _ *Contact) {
	p.mu.Lock()
	p.seen = append(p.seen, msg.ID)
	p.mu.Unlock()
	if msg.ID == "wamid.2" {
		panic("boom")
	}
}

func TestProcessContinuesAfterHandlerPanic(t *testing.T) {
	h := &panickyHandler{}
	in := &Ingestor{Enabled: true, Handler: h, Logger: zerolog.Nop()}

	batch := batchOf(textMessage("1", "wamid.1", "a"), textMessage("2", "wamid.2", "b"))
	batch.Entry = append(batch.Entry, batchOf(textMessage("3", "wamid.3", "c")).Entry...)

	assert.NotPanics(t, func() { in.Process(context.Background(), batch) })
	assert.Equal(t, []string{"wamid.1", "wamid.2", "wamid.3"}, h.seen)
}

func TestNotifierFailureStillReplies(t *testing.T) {
	sender := &fakeSender{}
	in := &Ingestor{Enabled: true, Handler: newDispatcher(sender, &fakeNotifier{panic: true}), Logger: zerolog.Nop()}

	assert.NotPanics(t, func() {
		in.Process(context.Background(), batchOf(textMessage("1", "wamid.1", "привіт")))
	})
	require.Len(t, sender.sent(), 1)
	assert.Equal(t, "wamid.1", sender.sent()[0].ReplyTo)
}

func TestSlowNotifierDoesNotGateReply(t *testing.T) {
	sender := &fakeSender{}
	release := make(chan struct{})
	slow := notifierFunc(func() { <-release })
	d := newDispatcher(sender, slow)

	done := make(chan struct{})
	go func() {
		d.Dispatch(context.Background(), textMessage("1", "wamid.1", "/start"), nil)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(sender.sent()) == 1 }, time.Second, 5*time.Millisecond)
	close(release)
	<-done
}

type notifierFunc func()

func (f notifierFunc) Notify(context.Context, string, map[string]any) { f() }

func TestProcessIgnoresWhenDisabled(t *testing.T) {
	sender := &fakeSender{}
	in := &Ingestor{Enabled: false, Handler: newDispatcher(sender, &fakeNotifier{}), Logger: zerolog.Nop()}

	in.Process(context.Background(), batchOf(textMessage("1", "wamid.1", "/start")))
	assert.Empty(t, sender.sent())
}

func TestStatusesAndErrorsAreNotDispatched(t *testing.T) {
	sender := &fakeSender{}
	in := &Ingestor{Enabled: true, Handler: newDispatcher(sender, &fakeNotifier{}), Logger: zerolog.Nop()}

	batch := batchOf()
	batch.Entry[0].Changes[0].Value.Statuses = []DeliveryStatus{
		{ID: "wamid.1", Status: "delivered", RecipientID: "1"},
		{ID: "wamid.2", Status: "failed", RecipientID: "2", Errors: []ProviderError{{Code: 131047, Title: "Re-engagement message"}}},
	}
	batch.Entry[0].Changes[0].Value.Errors = []ProviderError{{Code: 131000, Title: "Something went wrong", Message: "try later"}}

	in.Process(context.Background(), batch)
	assert.Empty(t, sender.sent())
}

func TestContactFor(t *testing.T) {
	assert.Nil(t, contactFor(nil, "1"))

	list := []Contact{{WaID: "1"}, {WaID: "2"}}
	assert.Equal(t, "2", contactFor(list, "2").WaID)
	assert.Equal(t, "1", contactFor(list, "9").WaID)
}
