// docroomd runs the collaboration engine plus its HTTP surface: /ws for the
// real-time protocol, /api for accounts and document metadata, /metrics and
// /healthz for operations.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gocloud.dev/docstore"
	_ "gocloud.dev/docstore/memdocstore"

	"github.com/bgadrian/docroom"
	"github.com/bgadrian/docroom/auth"
	"github.com/bgadrian/docroom/config"
	"github.com/bgadrian/docroom/httpapi"
	"github.com/bgadrian/docroom/metastore"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	flag.Parse()

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		bl := basicLogger()
		bl.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Auth.Secret == "" {
		cfg.Auth.Secret = os.Getenv("DOCROOM_AUTH_SECRET")
	}
	if err := cfg.Validate(); err != nil {
		bl := basicLogger()
		bl.Fatal().Err(err).Msg("invalid config")
	}

	logger := buildLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	meta, err := metastore.Open(cfg.MetaDBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open metadata store")
	}
	defer meta.Close()

	collection, err := docstore.OpenCollection(ctx, cfg.SnapshotStoreURL)
	if err != nil {
		logger.Fatal().Err(err).Str("url", cfg.SnapshotStoreURL).Msg("failed to open snapshot collection")
	}
	defer collection.Close()

	snapshots := docroom.NewSnapshotStore(collection, meta, logger)
	registry := docroom.NewRegistry(snapshots, logger)
	arbiter := docroom.NewArbiter(registry)
	hub := docroom.NewHub(logger)
	coordinator := docroom.NewCoordinator(registry, arbiter, hub, snapshots, logger)
	registry.StartJanitor(ctx, cfg.JanitorInterval(), cfg.IdleTTL())

	ws := docroom.NewServer(docroom.ServerConfig{
		Coordinator:       coordinator,
		Logger:            logger,
		MessagesPerSecond: cfg.Limits.MessagesPerSecond,
		Burst:             cfg.Limits.Burst,
	})

	tokens := auth.NewTokenIssuer(cfg.Auth.Secret, cfg.TokenTTL())
	api := httpapi.New(meta, snapshots, tokens, logger)

	mux := api.Routes()
	mux.Handle("/ws", ws)
	mux.Handle("/metrics", docroom.MetricsHandler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("docroomd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
}

func basicLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func buildLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Pretty {
		writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(writer).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}
