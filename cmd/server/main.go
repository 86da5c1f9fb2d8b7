// Command server runs the pledges backend: an HTTP API for managing wedding
// pledge records, spreadsheet reconciliation, and SMS/WhatsApp invitation
// dispatch with background send queues.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jkimaro/pledges-backend/internal/config"
	httpapi "github.com/jkimaro/pledges-backend/internal/http"
	"github.com/jkimaro/pledges-backend/internal/invite"
	"github.com/jkimaro/pledges-backend/internal/notify"
	"github.com/jkimaro/pledges-backend/internal/observability"
	"github.com/jkimaro/pledges-backend/internal/repo"
	"github.com/jkimaro/pledges-backend/internal/sysutil"
	"github.com/jkimaro/pledges-backend/internal/worker"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	// Logging
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	// Tracing
	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	// Storage
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("cannot open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	// Provider clients and invitation renderer
	smsClient := notify.NewSMSClient(cfg.SMS.ProviderURL, cfg.SMS.APIToken, cfg.SMS.SenderID)
	waClient := notify.NewWhatsAppClient(cfg.WhatsApp.BaseURL, cfg.WhatsApp.APIToken, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.TemplateName)
	invites := &invite.Generator{
		TemplatePath: cfg.Invite.TemplatePath,
		OutputDir:    cfg.Invite.OutputDir,
		BaseURL:      cfg.Invite.BaseURL,
		FontPath:     cfg.Invite.FontPath,
	}

	// Background send queues; the per-job delay paces provider calls.
	smsQueue, err := worker.New(cfg.QueueSize, cfg.SMS.SendDelay, log.With().Str("queue", "sms").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("sms queue init failed")
	}
	waQueue, err := worker.New(cfg.QueueSize, cfg.WhatsApp.SendDelay, log.With().Str("queue", "whatsapp").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("whatsapp queue init failed")
	}
	smsQueue.Start()
	waQueue.Start()

	// HTTP transport
	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Deps{
		SMSSender:      smsClient,
		WhatsAppSender: waClient,
		Invites:        invites,
		SMSQueue:       smsQueue,
		WhatsAppQueue:  waQueue,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown: stop accepting requests, drain the send queues,
	// then flush traces.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	smsQueue.Stop()
	waQueue.Stop()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("bye")
}
