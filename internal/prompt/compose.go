// Package prompt turns a theme, taste evidence and listener rules into the single
// text request sent to the generative model.
package prompt

import (
	"fmt"
	"strings"

	"pushd-go-srv/internal/constraints"
	"pushd-go-srv/internal/models"
	"pushd-go-srv/internal/preference"
)

const (
	MinSongs     = 1
	MaxSongs     = 30
	DefaultSongs = 10
)

// ClampSongCount maps a requested count into [MinSongs, MaxSongs]; zero means the default.
func ClampSongCount(n int) int {
	switch {
	case n == 0:
		return DefaultSongs
	case n < MinSongs:
		return MinSongs
	case n > MaxSongs:
		return MaxSongs
	}
	return n
}

type Request struct {
	Theme     string
	SongCount int
	Rules     constraints.Rules
	// Liked must already be filtered against artist exclusions.
	Liked   []models.LikedTrack
	Summary preference.Summary
}

// Compose builds the generation prompt. It fails with ConstraintViolation,
// before anything is sent, if the cited liked tracks name an excluded artist.
func Compose(req Request) (string, error) {
	excludedArtists := req.Rules.Excluded(models.PreferenceArtist)
	if err := constraints.CheckEvidence(req.Liked, excludedArtists); err != nil {
		return "", err
	}

	count := ClampSongCount(req.SongCount)
	var b strings.Builder

	fmt.Fprintf(&b, "Create a %d-song playlist for this theme: %q\n\n", count, req.Theme)

	b.WriteString("Listener's liked songs:\n")
	if len(req.Liked) == 0 {
		b.WriteString("No specific preferences available.\n")
	}
	for _, t := range req.Liked {
		fmt.Fprintf(&b, "- %s\n", t.Key())
	}

	if ctx := contextLines(req.Rules, req.Summary); len(ctx) > 0 {
		b.WriteString("\nFeedback context:\n")
		for _, line := range ctx {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	b.WriteString("\nRULES:\n")
	b.WriteString("1. Only suggest real, released songs that are available on Spotify. Never invent songs or variations of songs.\n")
	fmt.Fprintf(&b, "2. Let the theme %q decide mood, era, genre and energy. Do not assume a genre the theme does not imply.\n", req.Theme)

	n := 3
	rule := func(format string, values []string) {
		if len(values) == 0 {
			return
		}
		fmt.Fprintf(&b, "%d. "+format+"\n", n, strings.Join(values, ", "))
		n++
	}
	rule("Never include songs by these artists: %s", excludedArtists)
	rule("Never include these songs: %s", req.Rules.Excluded(models.PreferenceSong))
	rule("Never include songs from these genres: %s", req.Rules.Excluded(models.PreferenceGenre))
	rule("Never include songs from these eras: %s", req.Rules.Excluded(models.PreferenceEra))
	rule("Strongly prioritize these artists and include at least one song by each when it fits the theme: %s", req.Rules.Included(models.PreferenceArtist))
	rule("Prioritize these songs: %s", req.Rules.Included(models.PreferenceSong))
	rule("Prioritize these genres: %s", req.Rules.Included(models.PreferenceGenre))
	rule("Prioritize these eras: %s", req.Rules.Included(models.PreferenceEra))
	rule("Avoid these songs the listener disliked: %s", req.Summary.Disliked)

	fmt.Fprintf(&b, "%d. Mix familiar and new music: aim for about 30%% songs the listener knows and 70%% discoveries.\n", n)
	n++
	fmt.Fprintf(&b, "%d. Give the playlist an arc. Open with a strong song that sets the theme, build momentum through the middle and close with a memorable song.\n", n)

	b.WriteString("\nFormat your response in exactly two parts:\n")
	b.WriteString("1. One line describing the playlist's theme and vibe.\n")
	fmt.Fprintf(&b, "2. Exactly %d lines, one song per line, formatted as:\nArtist - Title\n", count)
	b.WriteString("Do not add numbering, headers, markdown or any other text.\n")

	return b.String(), nil
}

func contextLines(rules constraints.Rules, sum preference.Summary) []string {
	var lines []string
	add := func(label string, values []string, sep string) {
		if len(values) > 0 {
			lines = append(lines, label+": "+strings.Join(values, sep))
		}
	}
	for _, t := range models.PreferenceTypes {
		plural := string(t) + "s"
		add("Included "+plural, rules.Included(t), ", ")
		add("Excluded "+plural, rules.Excluded(t), ", ")
	}
	add("Top liked artists from feedback", sum.Artists, "; ")
	add("Top liked genres from feedback", sum.Genres, "; ")
	add("Era preferences from feedback", sum.Eras, ", ")
	add("Preferred energy levels", sum.Energy, ", ")
	add("Common feedback themes", sum.Themes, ", ")
	add("Disliked songs", sum.Disliked, ", ")
	return lines
}
