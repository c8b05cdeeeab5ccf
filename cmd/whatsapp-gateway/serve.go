package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"github.com/example/whatsapp-gateway/internal/common"
	"github.com/example/whatsapp-gateway/internal/contacts"
	"github.com/example/whatsapp-gateway/internal/notify"
	"github.com/example/whatsapp-gateway/internal/whatsapp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook and operator HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := common.LoadConfig(serviceName)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := common.NewLogger(cfg.ServiceName, cfg.LogLevel)
	shutdown, err := common.SetupOTel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer common.ShutdownTelemetry(context.Background(), shutdown)

	metricsSrv := common.StartMetricsServer(cfg.MetricsPort, logger)
	defer metricsSrv.Shutdown(context.Background())

	logStartup(cfg, logger)

	store, closeStore, err := openContacts(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, closeNotifier := buildNotifier(cfg, logger)
	defer closeNotifier()

	sender := whatsapp.NewCloudSender(cfg, logger)
	ingestor := &whatsapp.Ingestor{
		Enabled: cfg.BotEnabled,
		Handler: &whatsapp.Dispatcher{
			Sender:   sender,
			Notifier: notifier,
			Contacts: store,
			Commands: whatsapp.DefaultCommands,
			StoreURL: cfg.StoreURL,
			Logger:   logger,
		},
		Logger: logger,
	}
	server := &whatsapp.Server{
		Config:      cfg,
		Verifier:    whatsapp.Verifier{Token: cfg.VerifyToken, Logger: logger},
		Ingestor:    ingestor,
		Sender:      sender,
		Broadcaster: &whatsapp.Broadcaster{Sender: sender, Delay: cfg.BroadcastDelay, Logger: logger},
		Contacts:    store,
		Logger:      logger,
		Lifetime:    ctx,
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.HTTPPort).Msg("whatsapp gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server failed")
			cancel()
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := ingestor.Wait(ctxShutdown); err != nil {
		logger.Warn().Err(err).Msg("webhook batches still in flight at shutdown")
	}
	return nil
}

func logStartup(cfg *common.Config, logger zerolog.Logger) {
	switch {
	case !cfg.BotEnabled:
		logger.Warn().Msg("WhatsApp bot is disabled. Set WHATSAPP_BOT_ENABLED=true to enable.")
	case !cfg.Configured():
		logger.Warn().Msg("WhatsApp Cloud API credentials not configured. Set WHATSAPP_ACCESS_TOKEN and WHATSAPP_PHONE_NUMBER_ID.")
	default:
		logger.Info().Str("api_version", cfg.APIVersion).Msg("WhatsApp Cloud API service initialized")
	}
}

// openContacts prefers Postgres and falls back to an in-memory registry when
// no database is configured.
func openContacts(ctx context.Context, cfg *common.Config, logger zerolog.Logger) (contacts.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info().Msg("DATABASE_URL not set, keeping contacts in memory")
		return contacts.NewMemoryStore(), func() {}, nil
	}
	pool, err := contacts.Connect(ctx, cfg.DatabaseURL, 30*time.Second, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := contacts.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}

func buildNotifier(cfg *common.Config, logger zerolog.Logger) (notify.Notifier, func()) {
	sinks := notify.Multi{
		&notify.HTTPNotifier{
			BaseURL:    cfg.MainAPIURL,
			ServiceKey: cfg.ServiceAPIKey,
			Timeout:    cfg.NotifyTimeout,
			Logger:     logger,
		},
	}
	if len(cfg.KafkaBrokers) == 0 {
		return sinks, func() {}
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.EventsTopic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	sinks = append(sinks, &notify.KafkaNotifier{Writer: writer, Timeout: cfg.NotifyTimeout, Logger: logger})
	logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.EventsTopic).Msg("publishing events to kafka")
	return sinks, func() { _ = writer.Close() }
}
