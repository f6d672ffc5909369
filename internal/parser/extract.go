package parser

import (
	"regexp"
	"strings"

	"pushd-go-srv/internal/metrics"
	"pushd-go-srv/internal/models"
)

var (
	boldRegex      = regexp.MustCompile(`\*{1,2}\s*([^*]+?)\s+[-–—]\s+([^*]+?)\s*\*{1,2}`)
	quotedByRegex  = regexp.MustCompile(`(?i)^["“”]+(.+?)["“”]+\s+by\s+(.+)$`)
	numberedRegex  = regexp.MustCompile(`^(?:\d+[.)]\s*)?(.+?)\s+[-–—]\s+(.+)$`)
	plainByRegex   = regexp.MustCompile(`(?i)^(.+?)\s+by\s+(.+)$`)
	spaceRegex     = regexp.MustCompile(`\s{2,}`)
	headingKeyword = []string{"vibe", "genres", "artists", "highlights", "tips", "suggestions", "playlist", "additional"}
)

// ExtractCandidates splits song lines into (artist, title) pairs. Each line is
// tried against **Artist - Track**, "Track" by Artist, N. Artist - Track and
// Track by Artist, in that order; the first shape that matches wins.
func ExtractCandidates(lines []string) ([]models.Candidate, int) {
	var (
		out     []models.Candidate
		skipped int
	)
	for _, line := range lines {
		c, ok := extractLine(line)
		if !ok {
			skipped++
			continue
		}
		out = append(out, c)
	}
	if skipped > 0 {
		metrics.ParserSkippedLines.WithLabelValues("extract").Add(float64(skipped))
	}
	return out, skipped
}

func extractLine(line string) (models.Candidate, bool) {
	line = spaceRegex.ReplaceAllString(strings.TrimSpace(line), " ")
	if line == "" || isHeading(line) {
		return models.Candidate{}, false
	}

	if m := boldRegex.FindStringSubmatch(line); m != nil {
		return candidate(m[1], m[2])
	}
	if m := quotedByRegex.FindStringSubmatch(line); m != nil {
		return candidate(m[2], m[1])
	}
	if m := numberedRegex.FindStringSubmatch(line); m != nil {
		return candidate(m[1], m[2])
	}
	if m := plainByRegex.FindStringSubmatch(line); m != nil {
		return candidate(m[2], m[1])
	}
	return models.Candidate{}, false
}

func isHeading(line string) bool {
	lower := strings.ToLower(line)
	for _, k := range headingKeyword {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func candidate(artist, title string) (models.Candidate, bool) {
	c := models.Candidate{Artist: trimDecoration(artist), Title: trimDecoration(title)}
	return c, c.Artist != "" && c.Title != ""
}

func trimDecoration(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `*"“”`))
}
