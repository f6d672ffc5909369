package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushd-go-srv/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "pushd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedClock makes the store hand out strictly increasing timestamps.
func fixedClock(s *Store, start time.Time) {
	cur := start
	s.now = func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

func newListener(t *testing.T, s *Store, spotifyID string) models.Listener {
	t.Helper()
	l, err := s.UpsertListener(context.Background(), spotifyID)
	require.NoError(t, err)
	return l
}

func TestUpsertListenerIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	first := newListener(t, s, "spotify-user")
	second := newListener(t, s, "spotify-user")
	other := newListener(t, s, "someone-else")

	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Equal(t, "spotify-user", first.SpotifyID)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestLikedTracksReplaceAndRecency(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := newListener(t, s, "u1")
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	energy := 0.72

	require.NoError(t, s.ReplaceLikedTracks(ctx, l.ID, []models.LikedTrack{
		{TrackSnapshot: models.TrackSnapshot{ID: "a", Name: "Old", Artists: []string{"X"}}, LikedAt: base},
		{TrackSnapshot: models.TrackSnapshot{ID: "b", Name: "New", Artists: []string{"Y", "Z"}, Energy: &energy, Genres: []string{"indie"}}, LikedAt: base.Add(time.Hour)},
	}))

	got, err := s.RecentLikedTracks(ctx, l.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, []string{"Y", "Z"}, got[0].Artists)
	require.NotNil(t, got[0].Energy)
	assert.InDelta(t, 0.72, *got[0].Energy, 1e-9)
	assert.Equal(t, base.Add(time.Hour), got[0].LikedAt)
	assert.Equal(t, "a", got[1].ID)

	limited, err := s.RecentLikedTracks(ctx, l.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	// A second sync replaces the snapshot entirely.
	require.NoError(t, s.ReplaceLikedTracks(ctx, l.ID, []models.LikedTrack{
		{TrackSnapshot: models.TrackSnapshot{ID: "c", Name: "Only", Artists: []string{"W"}}, LikedAt: base},
	}))
	got, err = s.RecentLikedTracks(ctx, l.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	require.NoError(t, s.UpsertLikedTrack(ctx, l.ID, models.LikedTrack{
		TrackSnapshot: models.TrackSnapshot{ID: "c", Name: "Renamed", Artists: []string{"W"}}, LikedAt: base.Add(2 * time.Hour),
	}))
	got, err = s.RecentLikedTracks(ctx, l.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Renamed", got[0].Name)
}

func TestFeedbackOrderingAndPlaylistFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fixedClock(s, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	l := newListener(t, s, "u1")
	rating := 5

	_, err := s.InsertFeedback(ctx, models.FeedbackRecord{
		ListenerID: l.ID, PlaylistID: "p1", Kind: models.FeedbackLike,
		Track: models.TrackSnapshot{ID: "t1", Name: "First", Artists: []string{"A"}},
	})
	require.NoError(t, err)
	_, err = s.InsertFeedback(ctx, models.FeedbackRecord{
		ListenerID: l.ID, PlaylistID: "p2", Kind: models.FeedbackDetailed, Rating: &rating, Comment: "great drums",
		Track: models.TrackSnapshot{ID: "t2", Name: "Second", Artists: []string{"B"}},
	})
	require.NoError(t, err)

	recent, err := s.RecentFeedback(ctx, l.ID, 20)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Second", recent[0].Track.Name)
	require.NotNil(t, recent[0].Rating)
	assert.Equal(t, 5, *recent[0].Rating)
	assert.Equal(t, "great drums", recent[0].Comment)
	assert.Nil(t, recent[1].Rating)
	assert.Empty(t, recent[1].Comment)

	byPlaylist, err := s.FeedbackForPlaylist(ctx, l.ID, "p1")
	require.NoError(t, err)
	require.Len(t, byPlaylist, 1)
	assert.Equal(t, models.FeedbackLike, byPlaylist[0].Kind)
}

func TestPreferenceRulesLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := newListener(t, s, "u1")

	rule, err := s.InsertRule(ctx, models.PreferenceRule{ListenerID: l.ID, Type: models.PreferenceArtist, Value: "Nickelback"})
	require.NoError(t, err)
	assert.NotZero(t, rule.ID)
	assert.False(t, rule.Excluded)

	_, err = s.InsertRule(ctx, models.PreferenceRule{ListenerID: l.ID, Type: models.PreferenceArtist, Value: "Nickelback"})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = s.InsertRule(ctx, models.PreferenceRule{ListenerID: l.ID, Type: models.PreferenceGenre, Value: "jazz", Excluded: true})
	require.NoError(t, err)

	excluded, err := s.ExcludeRule(ctx, l.ID, models.PreferenceArtist, rule.ID)
	require.NoError(t, err)
	assert.True(t, excluded.Excluded)

	artists, err := s.ListRulesByType(ctx, l.ID, models.PreferenceArtist)
	require.NoError(t, err)
	require.Len(t, artists, 1)
	assert.True(t, artists[0].Excluded)

	all, err := s.ListRules(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.ErrorIs(t, s.DeleteRule(ctx, l.ID, models.PreferenceSong, rule.ID), ErrNotFound)
	require.NoError(t, s.DeleteRule(ctx, l.ID, models.PreferenceArtist, rule.ID))
	assert.ErrorIs(t, s.DeleteRule(ctx, l.ID, models.PreferenceArtist, rule.ID), ErrNotFound)

	_, err = s.ExcludeRule(ctx, l.ID, models.PreferenceArtist, rule.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.WipeRules(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPlaylistRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fixedClock(s, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	l := newListener(t, s, "u1")

	_, err := s.RecentPlaylist(ctx, l.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	firstID, err := s.InsertPlaylist(ctx, models.PlaylistRecord{ListenerID: l.ID, PlaylistID: "sp1", PlaylistURL: "https://x/1", Description: "first", SongList: "A - B", Summary: "Added 1 songs", FoundCount: 1})
	require.NoError(t, err)
	_, err = s.InsertPlaylist(ctx, models.PlaylistRecord{ListenerID: l.ID, PlaylistID: "sp2", PlaylistURL: "https://x/2", Description: "second", SongList: "C - D", Summary: "Added 1 songs", FoundCount: 1, MissCount: 2})
	require.NoError(t, err)

	recent, err := s.RecentPlaylist(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "sp2", recent.PlaylistID)
	assert.Equal(t, 2, recent.MissCount)

	first, err := s.GetPlaylist(ctx, l.ID, firstID)
	require.NoError(t, err)
	assert.Equal(t, "first", first.Description)

	other := newListener(t, s, "u2")
	_, err = s.GetPlaylist(ctx, other.ID, firstID)
	assert.ErrorIs(t, err, ErrNotFound)
}
