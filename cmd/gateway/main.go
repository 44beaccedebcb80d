package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	gonats "github.com/nats-io/nats.go"
	"github.com/pscheid92/chainpulse/internal/adapter/httpserver"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	natsadapter "github.com/pscheid92/chainpulse/internal/adapter/nats"
	"github.com/pscheid92/chainpulse/internal/adapter/postgres"
	redisadapter "github.com/pscheid92/chainpulse/internal/adapter/redis"
	"github.com/pscheid92/chainpulse/internal/adapter/websocket"
	"github.com/pscheid92/chainpulse/internal/auth"
	"github.com/pscheid92/chainpulse/internal/domain"
	"github.com/pscheid92/chainpulse/internal/gateway"
	"github.com/pscheid92/chainpulse/internal/platform/config"
	"github.com/pscheid92/chainpulse/internal/platform/logging"
	"github.com/pscheid92/chainpulse/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
	relayQueueSize  = 1024
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func resolveInstanceID(configured string) string {
	if configured != "" {
		return configured
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return uuid.NewString()
}

func setupRedis(cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	client, err := redisadapter.NewClient(ctx, cfg.RedisURL,
		redisadapter.NewMetricsHook(m),
		redisadapter.NewCircuitBreakerHook(0, m),
	)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupDB(cfg *config.Config, m *metrics.DatabaseMetrics) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, m)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupNATS(cfg *config.Config, instanceID string) *gonats.Conn {
	nc, err := natsadapter.Connect(cfg.NATSURL, "chainpulse-"+instanceID)
	if err != nil {
		slog.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	return nc
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	instanceID := resolveInstanceID(cfg.InstanceID)
	buildInfo := version.Get()
	slog.Info("Gateway starting", "env", cfg.AppEnv, "port", cfg.Port, "instance_id", instanceID, "version", buildInfo.String())

	registry := metrics.NewRegistry()
	m := metrics.NewSet(registry)

	redisClient := setupRedis(cfg, m.Redis)
	defer func() { _ = redisClient.Close() }()

	rateLimiter, err := redisadapter.NewRateLimiter(redisClient, clock, cfg.RateLimits, m.RateLimit)
	if err != nil {
		slog.Error("Failed to create rate limiter", "error", err)
		os.Exit(1)
	}

	healthChecks := []httpserver.HealthCheck{
		{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	}

	// Interfaces stay nil unless their backend is configured.
	var (
		keyStore domain.APIKeyStore
		archive  domain.EventArchiver
		forward  domain.Relay
		archiver *postgres.Archiver
		relay    *redisadapter.Relay
		tokens   *auth.TokenVerifier
		natsConn *gonats.Conn
		ingress  *natsadapter.Ingress
	)

	if cfg.DatabaseURL != "" {
		pool := setupDB(cfg, m.Database)
		defer pool.Close()

		keyStore = postgres.NewAPIKeyStore(pool, m.Database)
		archiver = postgres.NewArchiver(postgres.NewEventRepo(pool), clock, m.Pipeline, postgres.ArchiverConfig{QueueSize: cfg.ArchiveQueueSize})
		archive = archiver
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "postgres", Check: pool.Ping})
	} else {
		slog.Warn("DATABASE_URL not set, API key authentication and archiving disabled")
	}

	if cfg.JWTSecret != "" {
		tokens = auth.NewTokenVerifier(cfg.JWTSecret, clock)
	}

	if cfg.RelayEnabled {
		relay = redisadapter.NewRelay(redisClient, instanceID, relayQueueSize, m.Redis)
		forward = relay
	}

	hub := gateway.NewHub(gateway.HubConfig{
		MaxConnections:   cfg.MaxConnections,
		MaxSubscriptions: cfg.MaxSubscriptionsPerConnection,
	}, m.Gateway, clock)
	dispatcher := gateway.NewDispatcher(hub, archive, forward)

	sessions := gateway.NewSessionHandler(gateway.SessionDeps{
		Hub:            hub,
		Authenticator:  auth.NewAuthenticator(keyStore, tokens, m.Pipeline),
		RateLimiter:    rateLimiter,
		Publisher:      dispatcher,
		Clock:          clock,
		Metrics:        m.Gateway,
		AllowAnonymous: cfg.AllowAnonymous,
	})
	reaper := gateway.NewReaper(hub, clock, m.Gateway, cfg.ReaperInterval, cfg.HeartbeatTimeout)

	wsHandler := websocket.NewHandler(hub, sessions,
		websocket.NewConnectionLimits(clock, cfg.MaxConnectionsPerIP, cfg.ConnectionRate, cfg.ConnectionBurst),
		clock, m.Gateway,
		websocket.HandlerConfig{
			CheckOrigin: websocket.NewCheckOrigin(cfg.AllowedOrigins, cfg.IsDevelopment()),
			QueueSize:   cfg.OutboundQueueSize,
		},
	)

	instances := redisadapter.NewInstanceRegistry(redisClient, clock, instanceID, buildInfo.Version, cfg.InstanceHeartbeat, hub.Registry().Len)

	if cfg.NATSURL != "" {
		natsConn = setupNATS(cfg, instanceID)
		defer natsConn.Close()
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "nats", Check: func(context.Context) error {
			if !natsConn.IsConnected() {
				return errors.New("nats not connected")
			}
			return nil
		}})
	}

	srv := httpserver.NewServer(httpserver.Config{
		Port:       cfg.Port,
		AdminToken: cfg.AdminToken,
	}, httpserver.Dependencies{
		Hub:            hub,
		WebSocket:      wsHandler,
		MetricsHandler: metrics.Handler(registry),
		HTTPMetrics:    m.HTTP,
		RateLimits:     rateLimiter,
		Instances:      instances,
		HealthChecks:   healthChecks,
		Clock:          clock,
	})

	signalCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	g, gctx := errgroup.WithContext(backgroundCtx)

	g.Go(func() error { reaper.Run(gctx); return nil })
	g.Go(func() error { instances.Run(gctx); return nil })
	if relay != nil {
		g.Go(func() error { relay.RunPublisher(gctx); return nil })
		g.Go(func() error { relay.RunSubscriber(gctx, dispatcher.DeliverRemote); return nil })
	}
	if archiver != nil {
		g.Go(func() error { return archiver.Run(gctx) })
	}

	if natsConn != nil {
		ingress = natsadapter.NewIngress(natsConn, natsadapter.IngressConfig{
			Subject: cfg.NATSSubject,
			Queue:   cfg.NATSQueue,
		}, dispatcher, clock, m.Pipeline)
		if err := ingress.Start(backgroundCtx); err != nil {
			slog.Error("Failed to start ingress", "error", err)
			os.Exit(1)
		}
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Start() }()

	select {
	case <-signalCtx.Done():
		slog.Info("Shutdown signal received, cleaning up...")
	case err := <-serverErr:
		if err != nil {
			slog.Error("Server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}

	closed := hub.CloseAll(gateway.ReasonShutdown)
	slog.Info("Closed client connections", "count", closed)

	if ingress != nil {
		if err := ingress.Drain(); err != nil {
			slog.Error("Failed to drain ingress", "error", err)
		}
	}

	stopBackground()
	if err := g.Wait(); err != nil {
		slog.Error("Background task error", "error", err)
	}

	slog.Info("Gateway stopped")
}
