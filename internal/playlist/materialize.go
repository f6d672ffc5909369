package playlist

import (
	"context"

	"pushd-go-srv/internal/apperr"
	"pushd-go-srv/internal/logging"
	"pushd-go-srv/internal/metrics"
	"pushd-go-srv/internal/models"
)

const MaxBatchSize = 100

// PlaylistWriter is the slice of the catalog the materializer needs.
type PlaylistWriter interface {
	CreatePlaylist(ctx context.Context, name, description string, public bool) (string, string, error)
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) error
}

type Materializer struct {
	BatchSize   int
	NamePrefix  string
	Description string
}

type Materialized struct {
	PlaylistID string
	URL        string
	// Batches is the number of insert calls that succeeded.
	Batches int
	// Added is the number of tracks those batches carried.
	Added int
}

// Materialize creates a private playlist named after the theme and inserts the
// tracks in order, one batch at a time. A failed batch ends the run; the
// playlist and the batches already added are reported, not rolled back.
// Catalog throttling keeps its own kind so callers see when to retry.
func (m Materializer) Materialize(ctx context.Context, w PlaylistWriter, theme string, tracks []models.ResolvedTrack) (Materialized, error) {
	var out Materialized
	if len(tracks) == 0 {
		return out, apperr.New(apperr.NoResolvableCandidates, "no tracks were resolved, playlist not created")
	}

	size := m.BatchSize
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}

	id, url, err := w.CreatePlaylist(ctx, m.NamePrefix+theme, m.Description, false)
	if err != nil {
		return out, materializeErr(err, "could not create playlist")
	}
	out.PlaylistID, out.URL = id, url

	total := (len(tracks) + size - 1) / size
	for start := 0; start < len(tracks); start += size {
		end := min(start+size, len(tracks))
		ids := make([]string, 0, end-start)
		for _, t := range tracks[start:end] {
			ids = append(ids, t.TrackID)
		}

		if err := w.AddTracks(ctx, id, ids); err != nil {
			return out, materializeErr(err, "added %d of %d track batches to playlist %s", out.Batches, total, url)
		}
		out.Batches++
		out.Added += len(ids)
		metrics.PlaylistBatches.Inc()
	}

	logging.Ctx(ctx).Info().Str("playlist_id", id).Int("tracks", len(tracks)).Int("batches", out.Batches).Msg("playlist materialized")
	return out, nil
}

func materializeErr(err error, format string, args ...any) *apperr.Error {
	kind := apperr.MaterializationFailure
	if apperr.Is(err, apperr.CatalogRateLimited) {
		kind = apperr.CatalogRateLimited
	}
	e := apperr.Wrap(kind, err, format, args...)
	e.RetryAfter = apperr.RetryAfter(err)
	return e
}
