package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"cflp/internal/api"
	"cflp/internal/buildinfo"
	"cflp/internal/config"
	"cflp/internal/engine"
	"cflp/internal/logging"
	"cflp/internal/webhooks"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := logging.Setup(cfg.LogLevel, cfg.Development()); err != nil {
		log.Fatal().Err(err).Msg("setup logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvDeps, err := api.NewServer(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init server")
	}
	defer func() { _ = srvDeps.Close() }()

	// Start webhook worker
	if cfg.WebhookURL != "" {
		pub := webhooks.NewPublisher(cfg.WebhookURL, cfg.WebhookSecret, 256)
		worker := webhooks.NewWorker(pub, cfg.WebhookMaxAttempts)
		worker.Start()
		defer worker.Stop()
		srvDeps.Engine.Notifier = engine.Notifiers{
			srvDeps.Engine.Notifier,
			engine.NotifierFunc(func(_ context.Context, e engine.Event) { pub.Emit(e.Type, e) }),
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srvDeps.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("addr", srv.Addr).Str("build", buildinfo.String()).Str("store", cfg.Store).Msg("API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}
