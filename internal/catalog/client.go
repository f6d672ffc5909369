// Package catalog talks to the Spotify Web API: track search, playlist
// creation, and the listener's saved tracks.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zmb3/spotify/v2"

	"pushd-go-srv/internal/logging"
	"pushd-go-srv/internal/models"
)

const (
	savedTracksPageSize = 50
	artistBatchSize     = 50
	featureBatchSize    = 100
)

// Track is one search hit.
type Track struct {
	ID         string
	URI        string
	Name       string
	Artists    []string
	Popularity int
}

type Client struct {
	api *spotify.Client
}

func NewClient(api *spotify.Client) *Client {
	return &Client{api: api}
}

func (c *Client) CurrentUserID(ctx context.Context) (string, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("current user: %w", err)
	}
	return user.ID, nil
}

func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	res, err := c.api.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if res.Tracks == nil {
		return nil, nil
	}
	out := make([]Track, 0, len(res.Tracks.Tracks))
	for _, t := range res.Tracks.Tracks {
		out = append(out, Track{
			ID:         string(t.ID),
			URI:        string(t.URI),
			Name:       t.Name,
			Artists:    artistNames(t.Artists),
			Popularity: int(t.Popularity),
		})
	}
	return out, nil
}

// CreatePlaylist creates a playlist owned by the current user and returns its
// id and shareable URL.
func (c *Client) CreatePlaylist(ctx context.Context, name, description string, public bool) (string, string, error) {
	userID, err := c.CurrentUserID(ctx)
	if err != nil {
		return "", "", err
	}
	pl, err := c.api.CreatePlaylistForUser(ctx, userID, name, description, public, false)
	if err != nil {
		return "", "", fmt.Errorf("create playlist: %w", err)
	}
	return string(pl.ID), pl.ExternalURLs["spotify"], nil
}

// AddTracks appends one batch of track ids; callers keep batches at or below 100.
func (c *Client) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	ids := make([]spotify.ID, len(trackIDs))
	for i, id := range trackIDs {
		ids[i] = spotify.ID(id)
	}
	if _, err := c.api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids...); err != nil {
		return fmt.Errorf("add %d tracks to playlist: %w", len(ids), err)
	}
	return nil
}

func (c *Client) SaveToLibrary(ctx context.Context, trackID string) error {
	if err := c.api.AddTracksToLibrary(ctx, spotify.ID(trackID)); err != nil {
		return fmt.Errorf("save track to library: %w", err)
	}
	return nil
}

// TrackSnapshot captures a track with its artists' genres and its energy.
func (c *Client) TrackSnapshot(ctx context.Context, trackID string) (models.TrackSnapshot, error) {
	t, err := c.api.GetTrack(ctx, spotify.ID(trackID))
	if err != nil {
		return models.TrackSnapshot{}, fmt.Errorf("get track: %w", err)
	}
	snaps := []models.TrackSnapshot{transform(*t)}
	c.enrich(ctx, []spotify.FullTrack{*t}, snaps)
	return snaps[0], nil
}

// SavedTracks pages through every track the listener has saved, most recent first.
func (c *Client) SavedTracks(ctx context.Context) ([]models.LikedTrack, error) {
	page, err := c.api.CurrentUsersTracks(ctx, spotify.Limit(savedTracksPageSize))
	if err != nil {
		return nil, fmt.Errorf("saved tracks: %w", err)
	}

	var (
		full  []spotify.FullTrack
		added []time.Time
	)
	for {
		for _, item := range page.Tracks {
			if item.ID == "" {
				continue
			}
			full = append(full, item.FullTrack)
			at, _ := time.Parse(spotify.TimestampLayout, item.AddedAt)
			added = append(added, at)
		}

		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("saved tracks pagination: %w", err)
		}
	}

	snaps := make([]models.TrackSnapshot, len(full))
	for i, t := range full {
		snaps[i] = transform(t)
	}
	c.enrich(ctx, full, snaps)

	out := make([]models.LikedTrack, len(snaps))
	for i, s := range snaps {
		out[i] = models.LikedTrack{TrackSnapshot: s, LikedAt: added[i]}
	}
	return out, nil
}

// enrich fills genres and energy. Both lookups are best effort: the snapshot
// is still useful without them.
func (c *Client) enrich(ctx context.Context, tracks []spotify.FullTrack, snaps []models.TrackSnapshot) {
	var artistIDs []spotify.ID
	seen := map[spotify.ID]bool{}
	for _, t := range tracks {
		for _, a := range t.Artists {
			if a.ID != "" && !seen[a.ID] {
				seen[a.ID] = true
				artistIDs = append(artistIDs, a.ID)
			}
		}
	}

	genres := map[spotify.ID][]string{}
	for _, batch := range chunk(artistIDs, artistBatchSize) {
		artists, err := c.api.GetArtists(ctx, batch...)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int("artists", len(batch)).Msg("artist genre lookup failed")
			break
		}
		for _, a := range artists {
			if a != nil {
				genres[a.ID] = a.Genres
			}
		}
	}

	trackIDs := make([]spotify.ID, len(tracks))
	for i, t := range tracks {
		trackIDs[i] = t.ID
	}
	energy := map[spotify.ID]float64{}
	for _, batch := range chunk(trackIDs, featureBatchSize) {
		features, err := c.api.GetAudioFeatures(ctx, batch...)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int("tracks", len(batch)).Msg("audio feature lookup failed")
			break
		}
		for _, f := range features {
			if f != nil {
				energy[f.ID] = float64(f.Energy)
			}
		}
	}

	for i, t := range tracks {
		var gs []string
		for _, a := range t.Artists {
			for _, g := range genres[a.ID] {
				if !containsString(gs, g) {
					gs = append(gs, g)
				}
			}
		}
		snaps[i].Genres = gs
		if e, ok := energy[t.ID]; ok {
			snaps[i].Energy = &e
		}
	}
}

func transform(t spotify.FullTrack) models.TrackSnapshot {
	return models.TrackSnapshot{
		ID:          string(t.ID),
		Name:        t.Name,
		Artists:     artistNames(t.Artists),
		Album:       t.Album.Name,
		ReleaseDate: t.Album.ReleaseDate,
		Popularity:  int(t.Popularity),
	}
}

func artistNames(artists []spotify.SimpleArtist) []string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return names
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
