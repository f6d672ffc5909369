package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushd-go-srv/internal/apperr"
	"pushd-go-srv/internal/config"
)

func newFakeCatalog(t *testing.T, mux *http.ServeMux) (*httptest.Server, *Factory) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	f := NewFactory(config.SpotifyConfig{
		BaseURL:           srv.URL + "/v1",
		RequestsPerSecond: 1000,
		RetryAfterBuffer:  time.Second,
		MaxAttempts:       2,
		Cooldown:          time.Minute,
	})
	return srv, f
}

func trackJSON(id, name, artistID, artist string, popularity int) string {
	return fmt.Sprintf(`{"id":%q,"uri":"spotify:track:%s","name":%q,"popularity":%d,
		"artists":[{"id":%q,"name":%q}],
		"album":{"name":"Album %s","release_date":"1997-05-21"}}`, id, id, name, popularity, artistID, artist, id)
}

func TestSearchTracks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer listener-token", r.Header.Get("Authorization"))
		assert.Equal(t, "track:Karma Police artist:Radiohead", r.URL.Query().Get("q"))
		assert.Equal(t, "track", r.URL.Query().Get("type"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		fmt.Fprintf(w, `{"tracks":{"items":[%s],"total":1}}`, trackJSON("t1", "Karma Police", "a1", "Radiohead", 81))
	})
	_, f := newFakeCatalog(t, mux)

	got, err := f.ForToken("listener-token").SearchTracks(context.Background(), "track:Karma Police artist:Radiohead", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Track{ID: "t1", URI: "spotify:track:t1", Name: "Karma Police", Artists: []string{"Radiohead"}, Popularity: 81}, got[0])
}

func TestCreatePlaylistAndAddTracks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"user-1","display_name":"Listener"}`)
	})
	mux.HandleFunc("/v1/users/user-1/playlists", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"name":"AI Generated: rain"`)
		assert.Contains(t, string(body), `"public":false`)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"pl-1","name":"AI Generated: rain","external_urls":{"spotify":"https://open.spotify.com/playlist/pl-1"}}`)
	})
	var added atomic.Int32
	mux.HandleFunc("/v1/playlists/pl-1/tracks", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		added.Add(int32(strings.Count(string(body), "spotify:track:")))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"snapshot_id":"snap"}`)
	})
	_, f := newFakeCatalog(t, mux)
	c := f.ForToken("tok")

	id, url, err := c.CreatePlaylist(context.Background(), "AI Generated: rain", "Generated", false)
	require.NoError(t, err)
	assert.Equal(t, "pl-1", id)
	assert.Equal(t, "https://open.spotify.com/playlist/pl-1", url)

	require.NoError(t, c.AddTracks(context.Background(), id, []string{"t1", "t2", "t3"}))
	assert.Equal(t, int32(3), added.Load())
}

func TestSavedTracksPagesAndEnriches(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/me/tracks", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "" {
			assert.Equal(t, "50", r.URL.Query().Get("limit"))
			fmt.Fprintf(w, `{"items":[{"added_at":"2024-04-02T10:00:00Z","track":%s}],"next":"%s/v1/me/tracks?offset=1&limit=50","total":2}`,
				trackJSON("t1", "First", "a1", "Artist One", 50), srvURL)
			return
		}
		fmt.Fprintf(w, `{"items":[{"added_at":"2024-03-01T08:00:00Z","track":%s}],"next":null,"total":2}`,
			trackJSON("t2", "Second", "a2", "Artist Two", 40))
	})
	mux.HandleFunc("/v1/artists", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a1,a2", r.URL.Query().Get("ids"))
		_, _ = io.WriteString(w, `{"artists":[{"id":"a1","name":"Artist One","genres":["shoegaze","dream pop"]},{"id":"a2","name":"Artist Two","genres":[]}]}`)
	})
	mux.HandleFunc("/v1/audio-features", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"audio_features":[{"id":"t1","energy":0.25},{"id":"t2","energy":0.75}]}`)
	})
	srv, f := newFakeCatalog(t, mux)
	srvURL = srv.URL

	liked, err := f.ForToken("tok").SavedTracks(context.Background())
	require.NoError(t, err)
	require.Len(t, liked, 2)

	assert.Equal(t, "First", liked[0].Name)
	assert.Equal(t, []string{"shoegaze", "dream pop"}, liked[0].Genres)
	require.NotNil(t, liked[0].Energy)
	assert.InDelta(t, 0.25, *liked[0].Energy, 1e-6)
	assert.Equal(t, "1997-05-21", liked[0].ReleaseDate)
	assert.Equal(t, time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC), liked[0].LikedAt)

	assert.Equal(t, "Second", liked[1].Name)
	assert.Empty(t, liked[1].Genres)
	assert.InDelta(t, 0.75, *liked[1].Energy, 1e-6)
}

func TestEnrichmentFailureIsNotFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tracks/t1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, trackJSON("t1", "First", "a1", "Artist One", 50))
	})
	mux.HandleFunc("/v1/artists", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"artists":[{"id":"a1","name":"Artist One","genres":["indie"]}]}`)
	})
	mux.HandleFunc("/v1/audio-features", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"status":403,"message":"Forbidden"}}`)
	})
	_, f := newFakeCatalog(t, mux)

	snap, err := f.ForToken("tok").TrackSnapshot(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"indie"}, snap.Genres)
	assert.Nil(t, snap.Energy)
}

func TestRateLimitedResponseBlocksFollowingCalls(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, f := newFakeCatalog(t, mux)
	c := f.ForToken("tok")

	_, err := c.SearchTracks(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Equal(t, apperr.CatalogRateLimited, apperr.KindOf(err))
	assert.Equal(t, 8*time.Second, apperr.RetryAfter(err))

	_, err = c.SearchTracks(context.Background(), "q", 5)
	assert.True(t, apperr.Is(err, apperr.CatalogRateLimited))
	assert.Equal(t, int32(1), hits.Load(), "a closed gate fails fast without calling the catalog")
	assert.True(t, f.Gate().State().Limited)
}
