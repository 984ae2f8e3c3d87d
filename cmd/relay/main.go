package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/kanban-relay/internal/config"
	"github.com/p-blackswan/kanban-relay/internal/health"
	"github.com/p-blackswan/kanban-relay/internal/metrics"
	"github.com/p-blackswan/kanban-relay/internal/mgmt"
	"github.com/p-blackswan/kanban-relay/internal/relay"
	"github.com/p-blackswan/kanban-relay/internal/store"
	"github.com/p-blackswan/kanban-relay/internal/task"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("relay_addr", cfg.RelayListenAddr).
		Str("mgmt_addr", cfg.MgmtListenAddr).
		Msg("starting kanban relay")

	seed, err := loadSeed(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.RelaySeedFile).Msg("failed to load seed tasks")
	}
	logger.Info().Int("tasks", len(seed)).Msg("task store seeded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	m := metrics.New()
	hub := relay.NewHub(cfg.RelayConfig(), store.New(seed...), m, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	checker := health.NewChecker(logger)
	checker.Register("relay", health.PingCheck(hub, logger))

	// WebSocket endpoint plus plain probes for the load balancer
	mux := http.NewServeMux()
	mux.Handle(cfg.RelayPath, relay.NewHandler(hub))
	mux.HandleFunc("/health", health.LivenessHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())

	server := &http.Server{
		Addr:              cfg.RelayListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.MgmtAuthMode == "api-key" && cfg.MgmtAPIKey == "" {
		logger.Warn().Msg("MGMT_API_KEY is empty: /api/v1 requests will be rejected")
	}

	mgmtServer := mgmt.NewServer(mgmt.ServerConfig{
		ListenAddr: cfg.MgmtListenAddr,
		AuthConfig: mgmt.AuthConfig{
			Mode:   cfg.MgmtAuthMode,
			APIKey: cfg.MgmtAPIKey,
		},
		RateLimit: mgmt.RateLimitConfig{
			RPS:   cfg.MgmtRateLimitRPS,
			Burst: cfg.MgmtRateLimitBurst,
		},
		CORSOrigins: cfg.MgmtCORSOrigins,
		TLSCert:     cfg.MgmtTLSCert,
		TLSKey:      cfg.MgmtTLSKey,
	}, hub, checker, m, &mgmt.RuntimeConfig{
		Environment:     cfg.Environment,
		LogLevel:        cfg.LogLevel,
		RelayListenAddr: cfg.RelayListenAddr,
		MgmtListenAddr:  cfg.MgmtListenAddr,
		RateLimitRPS:    cfg.MgmtRateLimitRPS,
		RateLimitBurst:  cfg.MgmtRateLimitBurst,
		AuthMode:        cfg.MgmtAuthMode,
	}, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("addr", cfg.RelayListenAddr).Str("path", cfg.RelayPath).Msg("relay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("relay server error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mgmtServer.Start(); err != nil {
			logger.Error().Err(err).Msg("management API server error")
		}
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	// Stopping the hub closes every WebSocket; Shutdown does not track
	// hijacked connections.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("relay server shutdown error")
	}

	if err := mgmtServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("management API server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-shutdownCtx.Done():
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("kanban relay stopped")
}

// loadSeed picks the initial task list: a YAML file when configured, the
// sample task by default, or nothing when seeding is off.
func loadSeed(cfg *config.Config) ([]task.Task, error) {
	if cfg.RelaySeedFile != "" {
		return store.LoadSeed(cfg.RelaySeedFile)
	}
	if !cfg.RelaySeed {
		return nil, nil
	}
	return store.DefaultSeed(), nil
}
