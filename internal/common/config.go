package common

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is read once at startup and passed to every component. Nothing
// mutates it afterwards.
type Config struct {
	ServiceName string `koanf:"-"`
	LogLevel    string `koanf:"log_level"`

	HTTPPort     int      `koanf:"http_port"`
	MetricsPort  int      `koanf:"metrics_port"`
	OTLPEndpoint string   `koanf:"otlp_endpoint"`
	DatabaseURL  string   `koanf:"database_url"`
	KafkaBrokers []string `koanf:"kafka_brokers"`
	EventsTopic  string   `koanf:"events_topic"`
	CORSOrigin   string   `koanf:"cors_origin"`

	AccessToken   string `koanf:"whatsapp_access_token"`
	PhoneNumberID string `koanf:"whatsapp_phone_number_id"`
	VerifyToken   string `koanf:"whatsapp_webhook_verify_token"`
	BotEnabled    bool   `koanf:"whatsapp_bot_enabled"`
	APIVersion    string `koanf:"whatsapp_api_version"`
	GraphURL      string `koanf:"whatsapp_graph_url"`

	MainAPIURL     string        `koanf:"main_api_url"`
	ServiceAPIKey  string        `koanf:"service_api_key"`
	StoreURL       string        `koanf:"store_url"`
	BroadcastDelay time.Duration `koanf:"broadcast_delay"`
	NotifyTimeout  time.Duration `koanf:"notify_timeout"`
}

// Configured reports whether the Cloud API credentials are present.
func (c *Config) Configured() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

func defaultConfig(service string) *Config {
	return &Config{
		ServiceName:    service,
		LogLevel:       "info",
		HTTPPort:       3002,
		EventsTopic:    "whatsapp.events",
		CORSOrigin:     "*",
		APIVersion:     "v18.0",
		GraphURL:       "https://graph.facebook.com",
		MainAPIURL:     "http://localhost:10001",
		StoreURL:       "https://fullmag.com",
		BroadcastDelay: time.Second,
		NotifyTimeout:  5 * time.Second,
	}
}

// LoadConfig layers defaults, the optional YAML file named by CONFIG_FILE and
// the process environment, in that order.
func LoadConfig(service string) (*Config, error) {
	k := koanf.New(".")
	cfg := defaultConfig(service)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = cfg.HTTPPort + 1000
	}
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	cfg.MainAPIURL = strings.TrimRight(cfg.MainAPIURL, "/")
	cfg.GraphURL = strings.TrimRight(cfg.GraphURL, "/")
	cfg.StoreURL = strings.TrimRight(cfg.StoreURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort <= 0 {
		return fmt.Errorf("invalid http_port %d", c.HTTPPort)
	}
	if c.MetricsPort <= 0 || c.MetricsPort == c.HTTPPort {
		return fmt.Errorf("invalid metrics_port %d", c.MetricsPort)
	}
	if c.BroadcastDelay < 0 {
		return errors.New("broadcast_delay must be non-negative")
	}
	if c.NotifyTimeout <= 0 {
		return errors.New("notify_timeout must be positive")
	}
	return nil
}

// listKeys are the settings given as comma separated lists.
var listKeys = map[string]bool{"kafka_brokers": true}

func envValue(key, value string) (string, any) {
	key = strings.ToLower(key)
	if listKeys[key] {
		return key, strings.Split(value, ",")
	}
	return key, value
}

// compact trims list entries and drops empty ones. Entries that still hold
// commas, as a YAML scalar would, are split too.
func compact(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
