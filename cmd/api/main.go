// Package main is the entry point for the realtime gateway server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/realtime-gateway/internal/config"
	"github.com/capitalize-ai/realtime-gateway/internal/handler"
	"github.com/capitalize-ai/realtime-gateway/internal/ingest"
	"github.com/capitalize-ai/realtime-gateway/internal/middleware"
	"github.com/capitalize-ai/realtime-gateway/internal/notify"
	"github.com/capitalize-ai/realtime-gateway/internal/realtime"
	"github.com/capitalize-ai/realtime-gateway/pkg/logger"
	"github.com/capitalize-ai/realtime-gateway/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting realtime gateway")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "realtime-gateway", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", "error", err)
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS for the notification collaborator
	natsClient, err := notify.Connect(ctx, notify.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	// Ensure the notifications stream exists
	notifier := notify.NewPublisher(natsClient)
	if err := notifier.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure notifications stream", "error", err)
		os.Exit(1)
	}

	// Initialize the realtime core
	registry := realtime.NewRegistry(cfg.SinkBuffer, log)
	eventLog := realtime.NewEventLog(cfg.EventLogCapacity)
	router := realtime.NewRouter(registry, eventLog, cfg.PushTimeout, log)
	normalizer := ingest.NewNormalizer(notifier, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient)
	webhookHandler := handler.NewWebhookHandler(normalizer, router, log)
	subscribeHandler := handler.NewSubscribeHandler(registry, cfg.HeartbeatInterval, log)
	pollHandler := handler.NewPollHandler(eventLog, log)
	diagnosticsHandler := handler.NewDiagnosticsHandler(registry)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Webhook ingestion (platform-facing, rate limited)
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Post("/platform", webhookHandler.Receive)
		r.Get("/platform", webhookHandler.Verify)
	})

	// Subscriber-facing API
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.AuthEnabled && cfg.JWTSecret != "" {
			r.Use(middleware.Auth(cfg.JWTSecret))
		}

		r.Get("/stream", subscribeHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
			r.Get("/events", pollHandler.Events)
			r.Get("/diagnostics/connections", diagnosticsHandler.Connections)
		})
	})

	// Create HTTP server. WriteTimeout stays zero: subscriber streams are
	// long-lived; liveness is enforced by heartbeat write failures.
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     r,
		ReadTimeout: cfg.ServerReadTimeout,
		IdleTimeout: cfg.ServerIdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
