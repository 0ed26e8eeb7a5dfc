// Package main is the entry point for the chat engine API server.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ggufchat/chat-engine/internal/attach"
	"github.com/ggufchat/chat-engine/internal/bus"
	"github.com/ggufchat/chat-engine/internal/chat"
	"github.com/ggufchat/chat-engine/internal/config"
	"github.com/ggufchat/chat-engine/internal/handler"
	"github.com/ggufchat/chat-engine/internal/llm"
	"github.com/ggufchat/chat-engine/internal/middleware"
	"github.com/ggufchat/chat-engine/internal/remote"
	"github.com/ggufchat/chat-engine/pkg/logger"
	"github.com/ggufchat/chat-engine/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting chat engine")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-engine", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// NATS fan-out is optional; without it session events stay
	// in-process.
	var notifier bus.Notifier = bus.NewMemory()
	var natsConn *bus.NATS
	if cfg.NATSURL != "" {
		natsConn, err = bus.ConnectNATS(bus.NATSConfig{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Warn("failed to connect to NATS, events stay in-process", zap.Error(err))
		} else {
			defer natsConn.Close()
			notifier = natsConn
		}
	}

	// Remote services are optional too. Without a base URL the engine
	// runs as a pure in-memory offline ledger.
	var historyClient *remote.HistoryClient
	var authClient *remote.AuthClient
	var extractor attach.Extractor
	if cfg.RemoteBaseURL != "" {
		historyClient = remote.NewHistoryClient(cfg.RemoteBaseURL, cfg.RemoteTimeout)
		authClient = remote.NewAuthClient(cfg.RemoteBaseURL, cfg.RemoteTimeout)
		extractor = remote.NewExtractClient(cfg.RemoteBaseURL, cfg.RemoteTimeout)
	} else {
		log.Info("no remote store configured, running offline")
	}

	manager := chat.NewManager(chat.ManagerConfig{
		Factory: llm.Factory{
			LocalURL:        cfg.LocalModelURL,
			LocalTimeout:    cfg.LocalTimeout,
			OpenAIAPIKey:    cfg.OpenAIAPIKey,
			AnthropicAPIKey: cfg.AnthropicAPIKey,
		},
		History:            historyClient,
		Auth:               authClient,
		Extractor:          extractor,
		AttachmentMaxBytes: cfg.AttachmentMaxBytes,
		Debounce:           cfg.SyncDebounce,
		Notifier:           notifier,
		Logger:             log,
	})
	defer manager.Close()

	var remotePinger handler.Pinger
	if historyClient != nil {
		remotePinger = historyClient
	}
	healthHandler := handler.NewHealthHandler(natsConn, remotePinger)
	authHandler := handler.NewAuthHandler(manager, cfg.JWTSecret, log)
	sessionHandler := handler.NewSessionHandler(manager, log)
	historyHandler := handler.NewHistoryHandler(manager, log)
	modelHandler := handler.NewLocalModelHandler(manager, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Auth(cfg.JWTSecret))
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/signup", authHandler.Signup)
			r.Post("/logout", authHandler.Logout)
			r.Post("/profile", authHandler.UpdateProfile)
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Post("/new", sessionHandler.New)
			r.Post("/messages", sessionHandler.Send)
			r.Post("/provider", sessionHandler.SetProvider)
			r.Put("/settings", sessionHandler.SetSettings)
			r.Post("/attachments", sessionHandler.Attach)
			r.Get("/models", sessionHandler.Models)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", historyHandler.List)
			r.Delete("/", historyHandler.Clear)
			r.Get("/export", historyHandler.Export)
			r.Post("/import", historyHandler.Import)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/load", historyHandler.Load)
				r.Put("/title", historyHandler.Rename)
				r.Delete("/", historyHandler.Delete)
			})
		})

		r.Route("/model", func(r chi.Router) {
			r.Get("/status", modelHandler.Status)
			r.Post("/load", modelHandler.Load)
			r.Post("/unload", modelHandler.Unload)
			r.Post("/upload", modelHandler.Upload)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

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
