package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/flowpbx/callrouter/internal/api"
	"github.com/flowpbx/callrouter/internal/config"
	"github.com/flowpbx/callrouter/internal/hubspot"
	"github.com/flowpbx/callrouter/internal/metrics"
	"github.com/flowpbx/callrouter/internal/owners"
	"github.com/flowpbx/callrouter/internal/owners/store"
	"github.com/flowpbx/callrouter/internal/routing"
	"github.com/flowpbx/callrouter/internal/signature"
)

func main() {
	startTime := time.Now()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting callrouter",
		"http_port", cfg.HTTPPort,
		"webhook_path", cfg.WebhookPath,
		"signature_verification", cfg.SignatureVerification(),
	)

	ownerMap, err := loadOwners(cfg)
	if err != nil {
		slog.Error("failed to load owner map", "error", err)
		os.Exit(1)
	}
	slog.Info("owner map loaded", "owners", ownerMap.Len(), "mapped", ownerMap.Mapped())

	fallback, err := routing.NewFallbackChain(cfg.FallbackPrimary, cfg.FallbackSecondary)
	if err != nil {
		slog.Error("invalid fallback chain", "error", err)
		os.Exit(1)
	}

	crm := hubspot.NewClient(hubspot.ClientConfig{
		BaseURL: cfg.HubSpotBaseURL,
		APIKey:  cfg.HubSpotAPIKey,
		Timeout: cfg.CRMTimeout,
		Rate:    rate.Limit(cfg.CRMRate),
		Burst:   cfg.CRMBurst,
	}, logger)
	if !crm.Configured() {
		slog.Warn("no hubspot-api-key configured, every owner lookup will fail and calls will ring the fallback chain")
	}

	// Metrics registry with process, runtime and routing metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCollector(ownerMap, startTime),
	)
	recorder := metrics.NewRecorder(reg)

	engine := routing.NewEngine(routing.Config{
		Resolver:   crm,
		Agents:     ownerMap,
		Fallback:   fallback,
		CRMTimeout: cfg.CRMTimeout,
		Logger:     logger,
		Recorder:   recorder,
	})

	verifier := signature.New(cfg.WebhookSecret, logger)

	handler := api.NewServer(cfg, engine, verifier, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.CRMTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down http server")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("callrouter stopped")
}

// loadOwners reads the owner table from the configured source: a YAML
// file, a database, or the built-in table when neither is set.
func loadOwners(cfg *config.Config) (owners.Map, error) {
	switch {
	case cfg.OwnerMap != "":
		slog.Info("loading owner map from file", "path", cfg.OwnerMap)
		return owners.LoadFile(cfg.OwnerMap)

	case cfg.OwnerMapDSN != "":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		st, err := store.Open(ctx, cfg.OwnerMapDSN)
		if err != nil {
			return owners.Map{}, err
		}
		defer st.Close()
		return st.Load(ctx)

	default:
		slog.Warn("no owner-map or owner-map-dsn configured, using built-in owner table")
		return owners.NewMap(owners.DefaultEntries()), nil
	}
}
