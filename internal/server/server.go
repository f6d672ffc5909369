// Package server exposes the playlist pipeline and listener data over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pushd-go-srv/internal/catalog"
	"pushd-go-srv/internal/listener"
	"pushd-go-srv/internal/matcher"
	"pushd-go-srv/internal/models"
	"pushd-go-srv/internal/playlist"
)

type Store interface {
	UpsertListener(ctx context.Context, spotifyID string) (models.Listener, error)
	Ping(ctx context.Context) error
}

// ListenerCatalog is a catalog client acting as one listener.
type ListenerCatalog interface {
	CurrentUserID(ctx context.Context) (string, error)
	listener.Catalog
	playlist.PlaylistWriter
}

type Catalogs interface {
	ForToken(token string) ListenerCatalog
	Searcher(ctx context.Context, token string) matcher.Searcher
}

// Gate reports whether catalog calls are currently held back.
type Gate interface {
	ShouldBlock(now time.Time) (bool, time.Duration)
}

type Deps struct {
	Store     Store
	Playlists *playlist.Service
	Listeners *listener.Service
	Catalogs  Catalogs
	Gate      Gate
	// RequestsPerMinute throttles each client IP on the API routes; zero disables it.
	RequestsPerMinute int
}

type Server struct {
	Deps
}

// NewRouter wires every route onto a chi router.
func NewRouter(d Deps) http.Handler {
	s := &Server{Deps: d}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogging)
	r.Use(Recovery)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if d.RequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(d.RequestsPerMinute, time.Minute))
		}
		r.Use(s.Authenticate)

		r.Route("/playlists", func(r chi.Router) {
			r.Post("/generate", s.handleGenerate)
			r.Get("/recent", s.handleRecentPlaylist)
			r.Get("/{id}", s.handleGetPlaylist)
		})

		r.Post("/liked-tracks/sync", s.handleSyncLiked)

		r.Post("/feedback", s.handleSubmitFeedback)
		r.Get("/feedback/playlist/{playlistID}", s.handlePlaylistFeedback)

		r.Route("/preferences", func(r chi.Router) {
			r.Delete("/", s.handleWipeRules)
			r.Get("/{type}", s.handleListRules)
			r.Post("/{type}", s.handleAddRule)
			r.Delete("/{type}/{id}", s.handleDeleteRule)
			r.Post("/{type}/{id}/exclude", s.handleExcludeRule)
		})
	})
	return r
}

// FactoryCatalogs adapts a catalog.Factory to the router's Catalogs.
func FactoryCatalogs(f *catalog.Factory) Catalogs {
	return factoryCatalogs{f}
}

type factoryCatalogs struct {
	f *catalog.Factory
}

func (c factoryCatalogs) ForToken(token string) ListenerCatalog {
	return c.f.ForToken(token)
}

func (c factoryCatalogs) Searcher(ctx context.Context, token string) matcher.Searcher {
	return c.f.Searcher(ctx, token)
}
