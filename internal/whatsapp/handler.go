package whatsapp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/whatsapp-gateway/internal/common"
	"github.com/example/whatsapp-gateway/internal/contacts"
)

const maxWebhookBody = 4 << 20

var (
	errKeyNotConfigured = errors.New("service api key not configured")
	errInvalidKey       = errors.New("invalid api key")
)

// Server exposes the gateway's HTTP surface.
type Server struct {
	Config      *common.Config
	Verifier    Verifier
	Ingestor    *Ingestor
	Sender      Sender
	Broadcaster *Broadcaster
	Contacts    contacts.Store
	Logger      zerolog.Logger
	// Lifetime is cancelled when the process shuts down. Broadcasts outlive
	// the request that started them but not the process.
	Lifetime context.Context

	started time.Time
}

func (s *Server) Router() http.Handler {
	s.started = time.Now()

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(common.RequestLogger(s.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(s.Config.CORSOrigin, ","),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Api-Key", common.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.root)
	r.Get("/health", s.health)

	r.Route("/whatsapp", func(r chi.Router) {
		r.Get("/webhook", s.verify)
		r.Post("/webhook", s.webhook)
		r.Get("/status", s.status)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAPIKey)
			r.Post("/send", s.send)
			r.Post("/broadcast", s.broadcast)
			r.Get("/users", s.users)
		})
	})
	return r
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "whatsapp",
		"status":    "running",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(s.started).Seconds(),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := s.Verifier.Verify(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !ok {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("Verification failed"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// webhook acknowledges first and processes in the background; the platform
// disables endpoints that answer slowly.
func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("whatsapp").Start(r.Context(), "ingest-webhook")
	defer span.End()

	var batch WebhookBatch
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&batch)
	var typeErr *json.UnmarshalTypeError
	switch {
	case err == nil:
	case errors.As(err, &typeErr):
		logger := common.WithContext(ctx, s.Logger)
		logger.Warn().Err(err).Msg("webhook payload has unexpected field types, processing what decoded")
	default:
		s.respondErr(ctx, w, http.StatusBadRequest, fmt.Errorf("decode webhook: %w", err))
		return
	}
	span.SetAttributes(attribute.Int("whatsapp.entries", len(batch.Entry)))

	s.Ingestor.Accept(ctx, batch)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusFor(s.Config))
}

// BotStatus is the body of GET /whatsapp/status.
type BotStatus struct {
	Enabled               bool    `json:"enabled"`
	Configured            bool    `json:"configured"`
	PhoneNumberID         *string `json:"phoneNumberId"`
	WebhookVerifyTokenSet bool    `json:"webhookVerifyTokenSet"`
	Message               string  `json:"message"`
}

func StatusFor(cfg *common.Config) BotStatus {
	st := BotStatus{
		Enabled:               cfg.BotEnabled,
		Configured:            cfg.Configured(),
		WebhookVerifyTokenSet: cfg.VerifyToken != "",
	}
	if cfg.PhoneNumberID != "" {
		masked := maskID(cfg.PhoneNumberID)
		st.PhoneNumberID = &masked
	}
	switch {
	case !cfg.BotEnabled:
		st.Message = "WhatsApp bot is disabled"
	case !st.Configured:
		st.Message = "WhatsApp Cloud API credentials not configured"
	default:
		st.Message = "WhatsApp Cloud API is configured and ready"
	}
	return st
}

func maskID(id string) string {
	if len(id) > 4 {
		id = id[len(id)-4:]
	}
	return "***" + id
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Config.ServiceAPIKey == "" {
			s.respondErr(r.Context(), w, http.StatusUnauthorized, errKeyNotConfigured)
			return
		}
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("x-api-key")), []byte(s.Config.ServiceAPIKey)) != 1 {
			s.respondErr(r.Context(), w, http.StatusUnauthorized, errInvalidKey)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondErr(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if req.To == "" || req.Message == "" {
		s.respondErr(r.Context(), w, http.StatusBadRequest, errors.New("to and message are required"))
		return
	}

	id, ok := s.Sender.SendText(r.Context(), req.To, req.Message, "")
	resp := map[string]any{"success": ok}
	if ok {
		resp["messageId"] = id
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) broadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondErr(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if req.Message == "" {
		s.respondErr(r.Context(), w, http.StatusBadRequest, errors.New("message is required"))
		return
	}

	recipients := req.PhoneNumbers
	if req.SendToAll {
		all, err := s.Contacts.ListActive(r.Context())
		if err != nil {
			s.respondErr(r.Context(), w, http.StatusInternalServerError, fmt.Errorf("list contacts: %w", err))
			return
		}
		recipients = make([]string, 0, len(all))
		for _, c := range all {
			recipients = append(recipients, c.PhoneNumber)
		}
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	if s.Lifetime != nil {
		stop := context.AfterFunc(s.Lifetime, cancel)
		defer stop()
	}
	sent := s.Broadcaster.Broadcast(ctx, req.Message, recipients)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sentCount": sent,
		"message":   fmt.Sprintf("Message sent to %d users", sent),
	})
}

func (s *Server) users(w http.ResponseWriter, r *http.Request) {
	list, err := s.Contacts.List(r.Context())
	if err != nil {
		s.respondErr(r.Context(), w, http.StatusInternalServerError, fmt.Errorf("list contacts: %w", err))
		return
	}
	if list == nil {
		list = []contacts.Contact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(list),
		"users": list,
	})
}

func (s *Server) respondErr(ctx context.Context, w http.ResponseWriter, status int, err error) {
	logger := common.WithContext(ctx, s.Logger)
	logger.Warn().Err(err).Int("status", status).Msg("whatsapp handler error")
	writeJSON(w, status, map[string]any{
		"statusCode": status,
		"message":    err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
