package constraints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushd-go-srv/internal/apperr"
	"pushd-go-srv/internal/models"
)

func liked(artists ...string) models.LikedTrack {
	return models.LikedTrack{TrackSnapshot: models.TrackSnapshot{Name: "Song", Artists: artists}}
}

func TestSplit(t *testing.T) {
	rules := Split([]models.PreferenceRule{
		{Type: models.PreferenceArtist, Value: "Radiohead"},
		{Type: models.PreferenceArtist, Value: "Nickelback", Excluded: true},
		{Type: models.PreferenceEra, Value: "1980s", Excluded: true},
		{Type: models.PreferenceGenre, Value: "   "},
	})

	assert.Equal(t, []string{"Radiohead"}, rules.Included(models.PreferenceArtist))
	assert.Equal(t, []string{"Nickelback"}, rules.Excluded(models.PreferenceArtist))
	assert.Equal(t, []string{"1980s"}, rules.Excluded(models.PreferenceEra))
	assert.Empty(t, rules.Included(models.PreferenceGenre))
	assert.Len(t, rules, 4)
}

func TestResolveFiltersExcludedArtists(t *testing.T) {
	res := Resolve(
		[]models.PreferenceRule{{Type: models.PreferenceArtist, Value: "beatles", Excluded: true}},
		[]models.LikedTrack{liked("The Beatles"), liked("Queen"), liked("Paul", "THE BEATLES")},
	)
	require.Len(t, res.Liked, 1)
	assert.Equal(t, []string{"Queen"}, res.Liked[0].Artists)
	assert.NoError(t, CheckEvidence(res.Liked, res.Rules.Excluded(models.PreferenceArtist)))
}

func TestCheckEvidence(t *testing.T) {
	err := CheckEvidence([]models.LikedTrack{liked("Queen"), liked("Nickelback")}, []string{"nickel"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ConstraintViolation))
	assert.Contains(t, err.Error(), "Nickelback - Song")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		excluded []string
		cand     models.Candidate
		leaked   bool
	}{
		{"partial word", []string{"The Beatles"}, models.Candidate{Artist: "John Beatles Tribute", Title: "X"}, true},
		{"exact substring", []string{"The Beatles"}, models.Candidate{Artist: "the beatles", Title: "Help"}, true},
		{"short words ignored", []string{"The Who"}, models.Candidate{Artist: "The Killers", Title: "Mr. Brightside"}, false},
		{"unrelated", []string{"Nickelback"}, models.Candidate{Artist: "Foo Fighters", Title: "Everlong"}, false},
		{"no exclusions", nil, models.Candidate{Artist: "Anyone", Title: "Anything"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]models.Candidate{tt.cand}, tt.excluded)
			if !tt.leaked {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperr.ExcludedContentLeaked, apperr.KindOf(err))
			var e *apperr.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, []string{tt.cand.String()}, e.Items)
		})
	}
}

func TestValidateResolvedChecksCatalogArtist(t *testing.T) {
	err := ValidateResolved([]models.ResolvedTrack{{
		Candidate:   models.Candidate{Artist: "Fine Artist", Title: "Fine"},
		Artist:      "Nickelback",
		Title:       "Photograph",
		MatchStatus: models.MatchFallback,
	}}, []string{"Nickelback"})
	assert.True(t, apperr.Is(err, apperr.ExcludedContentLeaked))
}

func TestValidateResolvedChecksFeaturedArtists(t *testing.T) {
	tests := []struct {
		name   string
		status models.MatchStatus
	}{
		{"direct match", models.MatchFound},
		{"thematic fallback", models.MatchFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResolved([]models.ResolvedTrack{{
				Candidate:   models.Candidate{Artist: "Some DJ", Title: "Remix"},
				Artist:      "Some DJ",
				Artists:     []string{"Some DJ", "The Beatles"},
				Title:       "Remix",
				MatchStatus: tt.status,
			}}, []string{"The Beatles"})

			var e *apperr.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, apperr.ExcludedContentLeaked, e.Kind)
			assert.Equal(t, []string{"Some DJ, The Beatles - Remix"}, e.Items)
		})
	}

	t.Run("partial word of a featured artist", func(t *testing.T) {
		err := ValidateResolved([]models.ResolvedTrack{{
			Artist:  "Some DJ",
			Artists: []string{"Some DJ", "Beatles Revival Band"},
			Title:   "Remix",
		}}, []string{"The Beatles"})
		assert.True(t, apperr.Is(err, apperr.ExcludedContentLeaked))
	})

	t.Run("clean credits pass", func(t *testing.T) {
		assert.NoError(t, ValidateResolved([]models.ResolvedTrack{{
			Artist:  "Some DJ",
			Artists: []string{"Some DJ", "Another DJ"},
			Title:   "Remix",
		}}, []string{"The Beatles"}))
	})
}
