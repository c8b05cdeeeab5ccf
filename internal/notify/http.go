package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const eventPath = "/webhooks/whatsapp-event"

// HTTPNotifier posts events to the main API's WhatsApp event webhook.
type HTTPNotifier struct {
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration
	Client     *http.Client
	Logger     zerolog.Logger
}

func (n *HTTPNotifier) Notify(ctx context.Context, event string, data map[string]any) {
	if err := n.post(ctx, event, data); err != nil {
		notifyCounter.WithLabelValues("http", "error").Inc()
		n.Logger.Warn().Err(err).Str("event", event).Msg("failed to notify main api")
		return
	}
	notifyCounter.WithLabelValues("http", "ok").Inc()
}

func (n *HTTPNotifier) post(ctx context.Context, event string, data map[string]any) error {
	body, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.BaseURL+eventPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Key", n.ServiceKey)

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("main api responded %s", resp.Status)
	}
	return nil
}
