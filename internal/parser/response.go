// Package parser decodes the model's free-text answer into a description and
// ordered (artist, title) candidates. Anything it does not recognize is skipped
// and counted, never treated as an error.
package parser

import (
	"regexp"
	"strings"

	"pushd-go-srv/internal/metrics"
)

const (
	songSeparator      = " - "
	DefaultDescription = "Here is your generated playlist!"
	boilerplatePrefix  = "Artist - "
)

var (
	numberingRegex   = regexp.MustCompile(`^\s*(?:\d+[.)]\s*)+`)
	placeholderRegex = regexp.MustCompile(`(?i)^(artist\s*name\s*-\s*track\s*name|artist\s*-\s*title)$`)
	preambleRegex    = regexp.MustCompile(`(?i)^here\s+is\s+the\s+playlist:?$`)
	boldLineRegex    = regexp.MustCompile(`^\*\*[^*]+\*\*:?$`)
)

type Response struct {
	Description string
	// Lines are the raw song lines in response order, not yet split into artist and title.
	Lines   []string
	Skipped int
}

// String re-serializes the response in the shape the model was asked for.
func (r Response) String() string {
	return strings.Join(append([]string{r.Description}, r.Lines...), "\n")
}

// ParseResponse cleans the raw text and separates the description from the song lines.
func ParseResponse(raw string) Response {
	var (
		lines   []string
		skipped int
	)
	for _, line := range strings.Split(raw, "\n") {
		cleaned, ok := cleanLine(line)
		if !ok {
			if strings.TrimSpace(line) != "" {
				skipped++
			}
			continue
		}
		lines = append(lines, cleaned)
	}

	descIdx, firstSong := -1, -1
	for i, l := range lines {
		if strings.Contains(l, songSeparator) {
			if firstSong < 0 {
				firstSong = i
			}
		} else if descIdx < 0 {
			descIdx = i
		}
	}

	res := Response{Description: DefaultDescription}
	if descIdx >= 0 {
		res.Description = lines[descIdx]
	}

	start := firstSong
	if start < 0 {
		start = descIdx + 1
	}
	for i, l := range lines {
		switch {
		case i == descIdx:
		case i >= start:
			res.Lines = append(res.Lines, l)
		default:
			skipped++
		}
	}

	res.Skipped = skipped
	if skipped > 0 {
		metrics.ParserSkippedLines.WithLabelValues("clean").Add(float64(skipped))
	}
	return res
}

// cleanLine normalizes one line and reports whether anything usable is left.
func cleanLine(line string) (string, bool) {
	l := strings.TrimSpace(line)
	for {
		prev := l
		l = strings.TrimSpace(numberingRegex.ReplaceAllString(l, ""))
		if strings.HasPrefix(l, boilerplatePrefix) && strings.Contains(l[len(boilerplatePrefix):], songSeparator) {
			l = strings.TrimSpace(l[len(boilerplatePrefix):])
		}
		if l == prev {
			break
		}
	}
	if l == "" {
		return "", false
	}
	if placeholderRegex.MatchString(strings.Trim(l, `*"`)) || preambleRegex.MatchString(l) {
		return "", false
	}
	if strings.HasPrefix(l, "#") {
		return "", false
	}
	// A bold line without a separator is a section header, a bold song line is kept.
	if boldLineRegex.MatchString(l) && !strings.Contains(l, songSeparator) {
		return "", false
	}
	return l, true
}
