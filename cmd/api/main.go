// Package main is the entry point for the API server.
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

	"github.com/localjobs/hiring-platform/internal/broker"
	"github.com/localjobs/hiring-platform/internal/config"
	"github.com/localjobs/hiring-platform/internal/handler"
	"github.com/localjobs/hiring-platform/internal/middleware"
	"github.com/localjobs/hiring-platform/internal/service"
	"github.com/localjobs/hiring-platform/internal/store"
	"github.com/localjobs/hiring-platform/pkg/logger"
	"github.com/localjobs/hiring-platform/pkg/tracing"
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

	log.Info("starting API server")

	ctx := context.Background()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "hiring-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Initialize storage
	readyChecks := map[string]handler.ReadyChecker{}
	var st store.Store
	switch cfg.Store {
	case "postgres":
		pg, err := store.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("failed to connect to postgres", zap.Error(err))
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			log.Error("failed to run migrations", zap.Error(err))
			os.Exit(1)
		}
		st = pg
	default:
		st = store.NewMemory()
	}

	// Initialize the fan-out broker
	var bk broker.Broker
	switch cfg.Broker {
	case "nats":
		nb, err := broker.ConnectNATS(broker.NATSConfig{
			URL:   cfg.NATSURL,
			Token: cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		readyChecks["nats"] = nb
		bk = nb
	case "redis":
		rb, err := broker.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, log)
		if err != nil {
			log.Error("failed to connect to redis", zap.Error(err))
			os.Exit(1)
		}
		bk = rb
	default:
		bk = broker.NewMemoryHub()
	}
	defer bk.Close()

	// Initialize services
	hiringSvc := service.NewHiringService(st, log)
	conversationSvc := service.NewConversationService(st, log)
	messageSvc := service.NewMessageChannel(st, bk, conversationSvc, log)
	notifier := service.NewNotifier(conversationSvc, messageSvc, log)
	hiringSvc.SetAcceptedHandler(notifier.HandleAccepted)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(readyChecks)
	jobHandler := handler.NewJobHandler(hiringSvc, log)
	applicationHandler := handler.NewApplicationHandler(hiringSvc, log)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	messageHandler := handler.NewMessageHandler(messageSvc, log)
	streamHandler := handler.NewStreamHandler(messageSvc, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
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

		// Jobs and their applications
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", jobHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", jobHandler.Get)
				r.Delete("/", jobHandler.Delete)
				r.Patch("/status", jobHandler.UpdateStatus)

				r.Post("/applications", applicationHandler.Submit)
				r.Get("/applications", applicationHandler.ListByJob)
			})
		})

		// Hiring decisions
		r.Route("/applications", func(r chi.Router) {
			r.Get("/mine", applicationHandler.ListMine)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/accept", applicationHandler.Accept)
				r.Post("/reject", applicationHandler.Reject)
				r.Post("/conversation", conversationHandler.Open)
			})
		})

		// Messaging
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
				r.Get("/stream", streamHandler.Stream)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
