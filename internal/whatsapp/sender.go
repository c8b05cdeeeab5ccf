package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/whatsapp-gateway/internal/common"
)

var sendCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "whatsapp_outbound_sends_total",
	Help: "Outbound Cloud API sends by result",
}, []string{"result"})

// Sender delivers one text message. It returns the provider message id and
// true on success; any failure is logged by the implementation and reported
// as ("", false).
type Sender interface {
	SendText(ctx context.Context, to, body, replyTo string) (string, bool)
}

// CloudSender talks to the Graph API messages endpoint.
type CloudSender struct {
	Enabled       bool
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	APIVersion    string
	Client        *http.Client
	Logger        zerolog.Logger
}

func NewCloudSender(cfg *common.Config, logger zerolog.Logger) *CloudSender {
	return &CloudSender{
		Enabled:       cfg.BotEnabled,
		AccessToken:   cfg.AccessToken,
		PhoneNumberID: cfg.PhoneNumberID,
		BaseURL:       cfg.GraphURL,
		APIVersion:    cfg.APIVersion,
		Logger:        logger,
	}
}

func (s *CloudSender) ready() bool {
	return s.Enabled && s.AccessToken != "" && s.PhoneNumberID != ""
}

func (s *CloudSender) SendText(ctx context.Context, to, body, replyTo string) (string, bool) {
	if !s.ready() {
		sendCounter.WithLabelValues("skipped").Inc()
		s.Logger.Warn().Str("to", to).Bool("enabled", s.Enabled).Msg("whatsapp cloud api not configured, message not sent")
		return "", false
	}

	ctx, span := otel.Tracer("whatsapp").Start(ctx, "send-text")
	defer span.End()
	span.SetAttributes(attribute.Bool("whatsapp.reply", replyTo != ""))

	id, err := s.send(ctx, NewTextEnvelope(to, body, replyTo))
	if err != nil {
		span.RecordError(err)
		sendCounter.WithLabelValues("error").Inc()
		logger := common.WithContext(ctx, s.Logger)
		logger.Error().Err(err).Str("to", to).Msg("failed to send message")
		return "", false
	}

	sendCounter.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.String("whatsapp.message_id", id))
	s.Logger.Info().Str("to", to).Str("message_id", id).Msg("message sent")
	return id, true
}

// NewTextEnvelope builds a text envelope; the reply context is attached only
// when replyTo is set.
func NewTextEnvelope(to, body, replyTo string) OutboundEnvelope {
	env := OutboundEnvelope{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             TypeText,
		Text:             &OutText{PreviewURL: false, Body: body},
	}
	if replyTo != "" {
		env.Context = &ReplyTarget{MessageID: replyTo}
	}
	return env
}

func (s *CloudSender) endpoint() string {
	return fmt.Sprintf("%s/%s/%s/messages", s.BaseURL, s.APIVersion, s.PhoneNumberID)
}

func (s *CloudSender) send(ctx context.Context, env OutboundEnvelope) (string, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("cloud api %s: code=%d subcode=%d type=%s trace=%s: %s",
				resp.Status, apiErr.Error.Code, apiErr.Error.ErrorSubcode,
				apiErr.Error.Type, apiErr.Error.FBTraceID, apiErr.Error.Message)
		}
		return "", fmt.Errorf("cloud api %s", resp.Status)
	}

	var out SendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", errors.New("cloud api response carries no message id")
	}
	return out.Messages[0].ID, nil
}
