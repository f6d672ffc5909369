package constraints

import (
	"strings"
	"unicode/utf8"

	"pushd-go-srv/internal/apperr"
	"pushd-go-srv/internal/models"
)

// Validate rejects the whole result if any candidate's artist contains an
// excluded artist, or any word of one that is longer than three characters.
// The model is told about exclusions but is not trusted to honour them.
func Validate(candidates []models.Candidate, excludedArtists []string) error {
	if len(excludedArtists) == 0 {
		return nil
	}
	words := significantWords(excludedArtists)

	var leaked []string
	for _, c := range candidates {
		if excluded(c.Artist, excludedArtists, words) {
			leaked = append(leaked, c.String())
		}
	}
	return leakError(leaked)
}

// ValidateResolved applies the same check to catalog matches, which can differ
// from the candidate after a thematic fallback. Every credited artist is
// checked, featured ones included.
func ValidateResolved(tracks []models.ResolvedTrack, excludedArtists []string) error {
	if len(excludedArtists) == 0 {
		return nil
	}
	words := significantWords(excludedArtists)

	var leaked []string
	for _, t := range tracks {
		names := t.Artists
		if len(names) == 0 {
			names = []string{t.Artist}
		}
		for _, name := range names {
			if excluded(name, excludedArtists, words) {
				leaked = append(leaked, strings.Join(names, ", ")+" - "+t.Title)
				break
			}
		}
	}
	return leakError(leaked)
}

func excluded(artist string, excludedArtists, words []string) bool {
	return matchExact(artist, excludedArtists) != "" || matchWord(artist, words) != ""
}

func leakError(leaked []string) error {
	if len(leaked) > 0 {
		return apperr.New(apperr.ExcludedContentLeaked, "generated playlist contains excluded artists", leaked...)
	}
	return nil
}

func significantWords(excluded []string) []string {
	var words []string
	for _, ex := range excluded {
		for _, w := range strings.Fields(strings.ToLower(ex)) {
			if utf8.RuneCountInString(w) > 3 {
				words = append(words, w)
			}
		}
	}
	return words
}

func matchWord(artist string, words []string) string {
	lower := strings.ToLower(artist)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return w
		}
	}
	return ""
}
