package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushd-go-srv/internal/apperr"
	"pushd-go-srv/internal/constraints"
	"pushd-go-srv/internal/models"
	"pushd-go-srv/internal/preference"
)

func TestClampSongCount(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 10}, {-4, 1}, {1, 1}, {12, 12}, {30, 30}, {31, 30}, {500, 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampSongCount(tt.in), "in=%d", tt.in)
	}
}

func TestComposeIncludesEvidenceAndRules(t *testing.T) {
	rules := constraints.Split([]models.PreferenceRule{
		{Type: models.PreferenceArtist, Value: "Nickelback", Excluded: true},
		{Type: models.PreferenceGenre, Value: "shoegaze"},
	})
	out, err := Compose(Request{
		Theme:     "rainy sunday",
		SongCount: 12,
		Rules:     rules,
		Liked: []models.LikedTrack{
			{TrackSnapshot: models.TrackSnapshot{Name: "Alison", Artists: []string{"Slowdive"}}},
		},
		Summary: preference.Summary{
			Artists:  []string{"Slowdive (liked 2.0 times, songs: Alison)"},
			Disliked: []string{"Photograph"},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, out, `Create a 12-song playlist for this theme: "rainy sunday"`)
	assert.Contains(t, out, "- Slowdive - Alison\n")
	assert.Contains(t, out, "Excluded artists: Nickelback\n")
	assert.Contains(t, out, "Included genres: shoegaze\n")
	assert.Contains(t, out, "Top liked artists from feedback: Slowdive (liked 2.0 times, songs: Alison)\n")
	assert.Contains(t, out, "Disliked songs: Photograph\n")
	assert.Contains(t, out, "Never include songs by these artists: Nickelback")
	assert.Contains(t, out, "Prioritize these genres: shoegaze")
	assert.Contains(t, out, "30% songs the listener knows and 70% discoveries")
	assert.Contains(t, out, "Exactly 12 lines")

	assert.NotContains(t, out, "Included eras")
	assert.NotContains(t, out, "Excluded eras")
	assert.NotContains(t, out, "Never include songs from these eras")
	assert.NotContains(t, out, "Common feedback themes")
}

func TestComposeWithoutHistory(t *testing.T) {
	out, err := Compose(Request{Theme: "gym", Rules: constraints.Split(nil)})
	require.NoError(t, err)
	assert.Contains(t, out, "No specific preferences available.")
	assert.Contains(t, out, "Create a 10-song playlist")
	assert.NotContains(t, out, "Feedback context:")
}

func TestComposeRejectsExcludedEvidence(t *testing.T) {
	rules := constraints.Split([]models.PreferenceRule{
		{Type: models.PreferenceArtist, Value: "queen", Excluded: true},
	})
	_, err := Compose(Request{
		Theme: "stadium",
		Rules: rules,
		Liked: []models.LikedTrack{
			{TrackSnapshot: models.TrackSnapshot{Name: "We Will Rock You", Artists: []string{"Queen"}}},
		},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.ConstraintViolation, apperr.KindOf(err))
}
