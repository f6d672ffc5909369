package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pushd-go-srv/internal/catalog"
	"pushd-go-srv/internal/config"
	"pushd-go-srv/internal/database"
	"pushd-go-srv/internal/generation"
	"pushd-go-srv/internal/listener"
	"pushd-go-srv/internal/logging"
	"pushd-go-srv/internal/playlist"
	"pushd-go-srv/internal/server"
)

/* =========================
   Main
   ========================= */

func main() {
	// 1. Configuration (fail fast)
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("CRITICAL: could not load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// 2. Database Setup
	store, err := database.Open(cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to open database")
	}
	defer store.Close()

	// 3. Catalog and model clients
	catalogs := catalog.NewFactory(cfg.Spotify)
	if !cfg.Spotify.HasAppCredentials() {
		logging.Warn().Msg("SPOTIFY_ID/SPOTIFY_SECRET not set, catalog searches will use listener tokens")
	}
	model := generation.NewClient(cfg.Generation)

	// 4. Services
	playlists := playlist.NewService(store, model, playlist.Options{
		LikedLimit:    cfg.History.LikedLimit,
		FeedbackLimit: cfg.History.FeedbackLimit,
		Materializer: playlist.Materializer{
			BatchSize:   cfg.Playlist.BatchSize,
			NamePrefix:  cfg.Playlist.NamePrefix,
			Description: cfg.Playlist.Description,
		},
	})
	listeners := listener.NewService(store)

	// 5. Routing
	router := server.NewRouter(server.Deps{
		Store:             store,
		Playlists:         playlists,
		Listeners:         listeners,
		Catalogs:          server.FactoryCatalogs(catalogs),
		Gate:              catalogs.Gate(),
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Generation waits on the model, so the write timeout must outlast it.
		WriteTimeout: cfg.Generation.Timeout + time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logging.Info().Str("port", cfg.Server.Port).Str("model", cfg.Generation.Model).Msg("Push'd playlist engine listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown failed")
	}
}
