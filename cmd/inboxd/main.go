// Package main is the entry point for the inbox engine daemon.
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
	"go.uber.org/zap"

	"github.com/funnelworks/inbox-engine/internal/backend"
	"github.com/funnelworks/inbox-engine/internal/cache"
	"github.com/funnelworks/inbox-engine/internal/config"
	"github.com/funnelworks/inbox-engine/internal/engine"
	"github.com/funnelworks/inbox-engine/internal/events"
	"github.com/funnelworks/inbox-engine/internal/handler"
	"github.com/funnelworks/inbox-engine/internal/middleware"
	"github.com/funnelworks/inbox-engine/internal/model"
	"github.com/funnelworks/inbox-engine/pkg/logger"
	"github.com/funnelworks/inbox-engine/pkg/tracing"
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

	log.Info("starting inbox engine")

	// Initialize tracing if enabled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "inbox-engine", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS for event publishing, if enabled
	var natsClient *events.Client
	var sink engine.EventSink
	if cfg.NATSEnabled {
		natsClient, err = events.Connect(events.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		publisher := events.NewPublisher(natsClient, log)
		if err := publisher.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure event stream", zap.Error(err))
			os.Exit(1)
		}
		sink = publisher
	}

	// Open the repaint cache
	store, err := cache.Open(cfg.CachePath, cfg.TenantID, cfg.CacheDebounce, log)
	if err != nil {
		log.Error("failed to open cache", zap.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	// Initialize backend client and engine
	backendClient := backend.New(backend.Config{
		BaseURL:   cfg.BackendURL,
		TenantID:  cfg.TenantID,
		AuthToken: cfg.BackendToken,
		Timeout:   cfg.BackendTimeout,
	})

	eng := engine.New(backendClient, store, sink, log, engine.Config{
		TenantID:           cfg.TenantID,
		ListPollInterval:   cfg.ListPollInterval,
		DetailPollInterval: cfg.DetailPollInterval,
		TypingPollInterval: cfg.TypingPollInterval,
		StatusFilter:       model.Status(cfg.StatusFilter),
		FetchTimeout:       cfg.BackendTimeout,
	})
	go eng.Run(ctx)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient)
	inboxHandler := handler.NewInboxHandler(eng, log)
	streamHandler := handler.NewStreamHandler(eng, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/inbox", func(r chi.Router) {
			r.Get("/", inboxHandler.Snapshot)
			r.Get("/stream", streamHandler.Stream)

			// Mutations need write scope; reads only need a valid token.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScope("inbox:write"))

				r.Post("/select", inboxHandler.Select)
				r.Post("/sort", inboxHandler.Sort)
				r.Post("/filter", inboxHandler.Filter)
				r.Post("/messages", inboxHandler.Send)
				r.Post("/read", inboxHandler.MarkRead)
				r.Post("/resolve", inboxHandler.Resolve)
				r.Post("/typing", inboxHandler.Typing)
			})
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
