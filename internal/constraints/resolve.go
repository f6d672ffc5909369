// Package constraints splits a listener's include/exclude rules and enforces
// artist exclusions on both sides of the generative model.
package constraints

import (
	"strings"

	"pushd-go-srv/internal/apperr"
	"pushd-go-srv/internal/models"
)

type Set struct {
	Included []string
	Excluded []string
}

// Rules holds one Set per preference type.
type Rules map[models.PreferenceType]Set

func (r Rules) Included(t models.PreferenceType) []string { return r[t].Included }
func (r Rules) Excluded(t models.PreferenceType) []string { return r[t].Excluded }

// Split groups rules by type, keeping the order they were created in.
func Split(rules []models.PreferenceRule) Rules {
	out := make(Rules, len(models.PreferenceTypes))
	for _, t := range models.PreferenceTypes {
		out[t] = Set{}
	}
	for _, r := range rules {
		value := strings.TrimSpace(r.Value)
		if value == "" {
			continue
		}
		set := out[r.Type]
		if r.Excluded {
			set.Excluded = append(set.Excluded, value)
		} else {
			set.Included = append(set.Included, value)
		}
		out[r.Type] = set
	}
	return out
}

// Resolved is the rule split plus the liked tracks that may be cited as taste evidence.
type Resolved struct {
	Rules Rules
	Liked []models.LikedTrack
}

func Resolve(rules []models.PreferenceRule, liked []models.LikedTrack) Resolved {
	split := Split(rules)
	return Resolved{
		Rules: split,
		Liked: FilterLiked(liked, split.Excluded(models.PreferenceArtist)),
	}
}

// FilterLiked drops every liked track whose artist line contains an excluded
// artist, compared case-insensitively.
func FilterLiked(liked []models.LikedTrack, excludedArtists []string) []models.LikedTrack {
	if len(excludedArtists) == 0 {
		return liked
	}
	out := make([]models.LikedTrack, 0, len(liked))
	for _, t := range liked {
		if matchExact(t.ArtistLine(), excludedArtists) == "" {
			out = append(out, t)
		}
	}
	return out
}

// CheckEvidence fails with ConstraintViolation when a liked track about to be
// cited still names an excluded artist.
func CheckEvidence(liked []models.LikedTrack, excludedArtists []string) error {
	var offending []string
	for _, t := range liked {
		if matchExact(t.ArtistLine(), excludedArtists) != "" {
			offending = append(offending, t.Key())
		}
	}
	if len(offending) > 0 {
		return apperr.New(apperr.ConstraintViolation, "excluded artists found in taste evidence", offending...)
	}
	return nil
}

func matchExact(artist string, excluded []string) string {
	lower := strings.ToLower(artist)
	for _, ex := range excluded {
		ex = strings.ToLower(strings.TrimSpace(ex))
		if ex != "" && strings.Contains(lower, ex) {
			return ex
		}
	}
	return ""
}
