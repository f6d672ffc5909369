// Package playlist runs the generation pipeline: history, prompt, model,
// parsing, exclusion checks, catalog resolution and playlist creation.
package playlist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"pushd-go-srv/internal/apperr"
	"pushd-go-srv/internal/constraints"
	"pushd-go-srv/internal/logging"
	"pushd-go-srv/internal/matcher"
	"pushd-go-srv/internal/metrics"
	"pushd-go-srv/internal/models"
	"pushd-go-srv/internal/parser"
	"pushd-go-srv/internal/preference"
	"pushd-go-srv/internal/prompt"
)

type Store interface {
	RecentLikedTracks(ctx context.Context, listenerID int64, limit int) ([]models.LikedTrack, error)
	RecentFeedback(ctx context.Context, listenerID int64, limit int) ([]models.FeedbackRecord, error)
	ListRules(ctx context.Context, listenerID int64) ([]models.PreferenceRule, error)
	InsertPlaylist(ctx context.Context, p models.PlaylistRecord) (int64, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Catalog bundles the per-request catalog clients. Search may run under an app
// token while Writer always acts as the listener.
type Catalog struct {
	Search matcher.Searcher
	Writer PlaylistWriter
}

type Options struct {
	LikedLimit    int
	FeedbackLimit int
	Materializer  Materializer
}

type Service struct {
	store Store
	gen   Generator
	opts  Options
	now   func() time.Time
}

func NewService(store Store, gen Generator, opts Options) *Service {
	return &Service{store: store, gen: gen, opts: opts, now: time.Now}
}

type Request struct {
	ListenerID int64
	Theme      string
	SongCount  int
}

type Result struct {
	RecordID    int64                  `json:"id"`
	Description string                 `json:"message"`
	PlaylistID  string                 `json:"playlist_id"`
	PlaylistURL string                 `json:"playlist_url"`
	Songs       []string               `json:"songs"`
	NotFound    []string               `json:"not_found"`
	Summary     string                 `json:"summary"`
	Tracks      []models.ResolvedTrack `json:"tracks"`
}

// Generate runs one request end to end. Only the history reads run
// concurrently; every later stage needs the previous one's full output.
func (s *Service) Generate(ctx context.Context, req Request, cat Catalog) (res *Result, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(apperr.KindOf(err))
		}
		metrics.GenerationRequests.WithLabelValues(outcome).Inc()
	}()

	log := logging.Ctx(ctx)
	theme := strings.TrimSpace(req.Theme)
	if theme == "" {
		return nil, apperr.New(apperr.InvalidInput, "prompt is required")
	}
	count := prompt.ClampSongCount(req.SongCount)

	var (
		liked    []models.LikedTrack
		feedback []models.FeedbackRecord
		rules    []models.PreferenceRule
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		liked, err = s.store.RecentLikedTracks(gctx, req.ListenerID, s.opts.LikedLimit)
		return err
	})
	g.Go(func() error {
		var err error
		feedback, err = s.store.RecentFeedback(gctx, req.ListenerID, s.opts.FeedbackLimit)
		return err
	})
	g.Go(func() error {
		var err error
		rules, err = s.store.ListRules(gctx, req.ListenerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load listener history: %w", err)
	}

	resolved := constraints.Resolve(rules, liked)
	excludedArtists := resolved.Rules.Excluded(models.PreferenceArtist)
	log.Info().
		Int("liked", len(liked)).
		Int("liked_cited", len(resolved.Liked)).
		Int("feedback", len(feedback)).
		Int("rules", len(rules)).
		Msg("listener history loaded")

	profile := preference.Aggregate(resolved.Liked, feedback, s.now())
	text, err := prompt.Compose(prompt.Request{
		Theme:     theme,
		SongCount: count,
		Rules:     resolved.Rules,
		Liked:     resolved.Liked,
		Summary:   profile.Summarize(),
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("prompt", text).Msg("prompt composed")

	raw, err := s.gen.Generate(ctx, text)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("response", raw).Msg("model response")

	parsed := parser.ParseResponse(raw)
	candidates, skipped := parser.ExtractCandidates(parsed.Lines)
	log.Info().Int("candidates", len(candidates)).Int("skipped", parsed.Skipped+skipped).Msg("model response parsed")
	if len(candidates) == 0 {
		return nil, apperr.New(apperr.NoResolvableCandidates, "the model response contained no songs")
	}

	if err := constraints.Validate(candidates, excludedArtists); err != nil {
		log.Warn().Err(err).Msg("model ignored artist exclusions")
		return nil, err
	}

	matched, err := matcher.NewResolver(cat.Search).Resolve(ctx, theme, candidates)
	if err != nil {
		return nil, err
	}
	notFound := make([]string, len(matched.NotFound))
	for i, c := range matched.NotFound {
		notFound[i] = c.String()
	}
	if len(matched.Resolved) == 0 {
		return nil, apperr.New(apperr.NoResolvableCandidates, "none of the suggested songs were found on Spotify", notFound...)
	}
	// Thematic fallbacks bring in artists the model never named.
	if err := constraints.ValidateResolved(matched.Resolved, excludedArtists); err != nil {
		return nil, err
	}

	mat, err := s.opts.Materializer.Materialize(ctx, cat.Writer, theme, matched.Resolved)
	if err != nil {
		if mat.PlaylistID != "" {
			s.recordPartial(ctx, req.ListenerID, parsed.Description, mat, matched)
		}
		return nil, err
	}

	found := matched.Found()
	res = &Result{
		Description: parsed.Description,
		PlaylistID:  mat.PlaylistID,
		PlaylistURL: mat.URL,
		Songs:       found,
		NotFound:    notFound,
		Summary:     fmt.Sprintf("Added %d songs, could not find results for %d songs on Spotify", len(found), len(notFound)),
		Tracks:      matched.Resolved,
	}

	id, err := s.store.InsertPlaylist(ctx, models.PlaylistRecord{
		ListenerID:  req.ListenerID,
		PlaylistID:  mat.PlaylistID,
		PlaylistURL: mat.URL,
		Description: parsed.Description,
		SongList:    strings.Join(found, "\n"),
		Summary:     res.Summary,
		FoundCount:  len(found),
		MissCount:   len(notFound),
	})
	if err != nil {
		// The playlist exists in the catalog either way.
		log.Error().Err(err).Str("playlist_id", mat.PlaylistID).Msg("failed to record playlist")
	}
	res.RecordID = id

	log.Info().Str("playlist_id", mat.PlaylistID).Int("found", len(found)).Int("not_found", len(notFound)).Msg("playlist generated")
	return res, nil
}

// recordPartial keeps a record of a playlist that exists in the catalog but
// only received some of its tracks.
func (s *Service) recordPartial(ctx context.Context, listenerID int64, description string, mat Materialized, matched matcher.Result) {
	found := matched.Found()[:mat.Added]
	_, err := s.store.InsertPlaylist(ctx, models.PlaylistRecord{
		ListenerID:  listenerID,
		PlaylistID:  mat.PlaylistID,
		PlaylistURL: mat.URL,
		Description: description,
		SongList:    strings.Join(found, "\n"),
		Summary:     fmt.Sprintf("Added %d of %d songs before the catalog stopped accepting tracks", mat.Added, len(matched.Resolved)),
		FoundCount:  mat.Added,
		MissCount:   len(matched.NotFound),
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("playlist_id", mat.PlaylistID).Msg("failed to record partial playlist")
	}
}
