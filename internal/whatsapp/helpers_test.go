package whatsapp

import (
	"context"
	"fmt"
	"sync"
)

type sentText struct {
	To, Body, ReplyTo string
}

type fakeSender struct {
	mu      sync.Mutex
	calls   []sentText
	failFor map[string]bool
	panicOn map[string]bool
}

func (f *fakeSender) SendText(_ context.Context, to, body, replyTo string) (string, bool) {
	f.mu.Lock()
	f.calls = append(f.calls, sentText{To: to, Body: body, ReplyTo: replyTo})
	n := len(f.calls)
	f.mu.Unlock()

	if f.panicOn[to] {
		panic("send exploded for " + to)
	}
	if f.failFor[to] {
		return "", false
	}
	return fmt.Sprintf("wamid.out.%d", n), true
}

func (f *fakeSender) sent() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.calls...)
}

type notifyCall struct {
	Event string
	Data  map[string]any
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	panic bool
}

func (f *fakeNotifier) Notify(_ context.Context, event string, data map[string]any) {
	f.mu.Lock()
	f.calls = append(f.calls, notifyCall{Event: event, Data: data})
	f.mu.Unlock()
	if f.panic {
		panic("main api unreachable")
	}
}

func (f *fakeNotifier) received() []notifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notifyCall(nil), f.calls...)
}

func textMessage(from, id, body string) InboundMessage {
	return InboundMessage{From: from, ID: id, Timestamp: "1700000000", Type: TypeText, Text: &TextBody{Body: body}}
}

func batchOf(msgs ...InboundMessage) WebhookBatch {
	return WebhookBatch{
		Object: "whatsapp_business_account",
		Entry: []Entry{{
			ID: "entry-1",
			Changes: []Change{{
				Field: "messages",
				Value: ChangeValue{MessagingProduct: "whatsapp", Messages: msgs},
			}},
		}},
	}
}
