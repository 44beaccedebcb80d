package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pscheid92/chainpulse/internal/domain"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	InstanceID  string `env:"INSTANCE_ID"`
	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`
	NATSURL     string `env:"NATS_URL"`
	NATSSubject string `env:"NATS_SUBJECT" default:"events.>"`
	NATSQueue   string `env:"NATS_QUEUE" default:"gateway"`
	JWTSecret   string `env:"JWT_SECRET"`
	AdminToken  string `env:"ADMIN_TOKEN"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	AllowAnonymous bool     `env:"ALLOW_ANONYMOUS" default:"true"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`

	MaxConnections                int     `env:"MAX_CONNECTIONS" default:"50000"`
	MaxConnectionsPerIP           int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	ConnectionRate                float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst               int     `env:"CONNECTION_BURST" default:"20"`
	MaxSubscriptionsPerConnection int     `env:"MAX_SUBSCRIPTIONS_PER_CONNECTION" default:"100"`
	OutboundQueueSize             int     `env:"OUTBOUND_QUEUE_SIZE" default:"64"`
	ArchiveQueueSize              int     `env:"ARCHIVE_QUEUE_SIZE" default:"1024"`

	HeartbeatTimeout  time.Duration `env:"HEARTBEAT_TIMEOUT" default:"5m"`
	ReaperInterval    time.Duration `env:"REAPER_INTERVAL" default:"5m"`
	InstanceHeartbeat time.Duration `env:"INSTANCE_HEARTBEAT" default:"15s"`

	RelayEnabled   bool   `env:"RELAY_ENABLED" default:"true"`
	RateLimitRules string `env:"RATE_LIMIT_RULES" default:"global=100/1m,publish=10/1m"`

	// RateLimits is parsed from RateLimitRules by Load.
	RateLimits map[string]domain.RateLimitRule
}

// IsDevelopment reports whether the gateway runs with development leniency.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	rules, err := ParseRateLimitRules(cfg.RateLimitRules)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_RULES: %w", err)
	}
	cfg.RateLimits = rules

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}

	positive := []struct {
		name  string
		value int
	}{
		{"MAX_CONNECTIONS", cfg.MaxConnections},
		{"MAX_CONNECTIONS_PER_IP", cfg.MaxConnectionsPerIP},
		{"CONNECTION_BURST", cfg.ConnectionBurst},
		{"MAX_SUBSCRIPTIONS_PER_CONNECTION", cfg.MaxSubscriptionsPerConnection},
		{"OUTBOUND_QUEUE_SIZE", cfg.OutboundQueueSize},
		{"ARCHIVE_QUEUE_SIZE", cfg.ArchiveQueueSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}

	if cfg.ConnectionRate <= 0 {
		return errors.New("CONNECTION_RATE must be positive")
	}
	if cfg.HeartbeatTimeout <= 0 || cfg.ReaperInterval <= 0 || cfg.InstanceHeartbeat <= 0 {
		return errors.New("HEARTBEAT_TIMEOUT, REAPER_INTERVAL and INSTANCE_HEARTBEAT must be positive")
	}
	if _, ok := cfg.RateLimits[domain.GlobalRateLimit]; !ok {
		return errors.New("RATE_LIMIT_RULES must define a global rule")
	}

	return nil
}

// ParseRateLimitRules parses "name=max/window" pairs separated by commas,
// e.g. "global=100/1m,publish=10/1m".
func ParseRateLimitRules(s string) (map[string]domain.RateLimitRule, error) {
	rules := make(map[string]domain.RateLimitRule)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, limit, ok := strings.Cut(part, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid rule %q: expected name=max/window", part)
		}
		maxStr, windowStr, ok := strings.Cut(limit, "/")
		if !ok {
			return nil, fmt.Errorf("invalid rule %q: expected name=max/window", part)
		}

		maxRequests, err := strconv.Atoi(maxStr)
		if err != nil || maxRequests <= 0 {
			return nil, fmt.Errorf("invalid max requests in rule %q", part)
		}
		window, err := time.ParseDuration(windowStr)
		if err != nil || window <= 0 {
			return nil, fmt.Errorf("invalid window in rule %q", part)
		}

		rules[strings.TrimSpace(name)] = domain.RateLimitRule{MaxRequests: maxRequests, Window: window}
	}
	return rules, nil
}
