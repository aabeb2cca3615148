package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ticketflow/backend/internal/config"
	"github.com/ticketflow/backend/internal/gateway"
	httpapi "github.com/ticketflow/backend/internal/http"
	"github.com/ticketflow/backend/internal/service"
	"github.com/ticketflow/backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "ticket-backend").Logger()

	settings := store.NewSettingsStore(cfg.DataDir)
	tickets := store.NewTicketStore(cfg.DataDir)
	if err := settings.SeedDefaults(context.Background(), cfg.WorkspaceID); err != nil {
		logger.Fatal().Err(err).Msg("settings bootstrap failed")
	}

	var gw gateway.Provisioner
	if cfg.GatewayURL == "" {
		gw = gateway.NewMock()
		logger.Info().Msg("using in-memory mock gateway")
	} else {
		gw = &gateway.HTTPProvisioner{
			BaseURL: cfg.GatewayURL,
			Token:   cfg.GatewayToken,
			Client:  &http.Client{Timeout: cfg.RequestTimeout},
		}
	}

	lifecycle := service.NewLifecycle(settings, tickets, gw, logger, cfg.ConfirmTTL)
	relay := service.NewRelay(settings, tickets, gw, logger)
	sweeper := service.NewSweeper(settings, tickets, gw, logger, lifecycle.Locks())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reconcile before accepting traffic so no lifecycle operation sees a
	// record for a channel that was deleted or archived while we were down.
	startupCtx, startupCancel := context.WithTimeout(ctx, time.Minute)
	removed, err := sweeper.Sweep(startupCtx)
	startupCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("startup reconciliation failed")
	}
	if removed > 0 {
		logger.Info().Int("removed", removed).Msg("startup reconciliation pruned stale ticket records")
	}
	go sweeper.Run(ctx, cfg.ReconcileInterval)

	router := httpapi.Router(cfg, settings, tickets, gw, lifecycle, relay, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cancel()

	ctxShutdown, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
