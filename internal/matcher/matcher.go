package matcher

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"pushd-go-srv/internal/apperr"
	"pushd-go-srv/internal/catalog"
	"pushd-go-srv/internal/logging"
	appmetrics "pushd-go-srv/internal/metrics"
	"pushd-go-srv/internal/models"
)

const (
	directLimit   = 5
	fallbackLimit = 10
)

type Searcher interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]catalog.Track, error)
}

// Qualifier tags are removed first, then any parenthetical that is left.
var titleNoise = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\([^)]*remaster[^)]*\)`),
	regexp.MustCompile(`(?i)\([^)]*live[^)]*\)`),
	regexp.MustCompile(`(?i)\([^)]*re[- ]?recorded[^)]*\)`),
	regexp.MustCompile(`(?i)\([^)]*mono[^)]*\)`),
	regexp.MustCompile(`(?i)\([^)]*numbered[^)]*\)`),
	regexp.MustCompile(`(?i)\([^)]*original[^)]*\)`),
	regexp.MustCompile(`(?i)\([^)]*in lyrics[^)]*\)`),
	regexp.MustCompile(`\([^)]*\)`),
}

var (
	spaceRegex = regexp.MustCompile(`\s{2,}`)
	stopWords  = map[string]bool{"the": true, "and": true, "with": true, "that": true, "this": true, "for": true}
)

// CleanTitle strips parenthetical qualifiers such as "(2011 Remaster)" or "(Live)".
func CleanTitle(title string) string {
	t := title
	for _, re := range titleNoise {
		t = re.ReplaceAllString(t, "")
	}
	return strings.TrimSpace(spaceRegex.ReplaceAllString(t, " "))
}

// ThemeWords keeps the significant words of a theme prompt.
func ThemeWords(theme string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(theme)) {
		if utf8.RuneCountInString(w) > 3 && !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

type Result struct {
	// Resolved keeps candidate order.
	Resolved []models.ResolvedTrack
	NotFound []models.Candidate
}

func (r Result) Found() []string {
	out := make([]string, len(r.Resolved))
	for i, t := range r.Resolved {
		out[i] = t.Label()
	}
	return out
}

type Resolver struct {
	search Searcher
}

func NewResolver(s Searcher) *Resolver {
	return &Resolver{search: s}
}

// Resolve looks every candidate up in the catalog, one at a time and in order.
// Repeated (artist, title) pairs are resolved once. A rate-limited catalog
// aborts the whole run; any other search failure leaves that candidate unresolved.
func (r *Resolver) Resolve(ctx context.Context, theme string, candidates []models.Candidate) (Result, error) {
	var res Result
	themeQuery := strings.Join(ThemeWords(theme), " ")
	seen := make(map[string]bool, len(candidates))

	for _, c := range candidates {
		if c.Artist == "" || c.Title == "" {
			continue
		}
		key := strings.ToLower(c.Artist) + "-" + strings.ToLower(c.Title)
		if seen[key] {
			continue
		}
		seen[key] = true

		track, err := r.MatchTrack(ctx, themeQuery, c)
		if err != nil {
			if apperr.Is(err, apperr.CatalogRateLimited) {
				return res, err
			}
			logging.Ctx(ctx).Warn().Err(err).Str("candidate", c.String()).Msg("catalog search failed")
			track = &models.ResolvedTrack{Candidate: c, MatchStatus: models.MatchNotFound}
		}

		appmetrics.ResolverOutcomes.WithLabelValues(string(track.MatchStatus)).Inc()
		if track.MatchStatus == models.MatchNotFound {
			res.NotFound = append(res.NotFound, c)
			continue
		}
		res.Resolved = append(res.Resolved, *track)
	}
	return res, nil
}

// MatchTrack resolves a single candidate: a direct search first, then a
// thematic search when the direct one returns nothing.
func (r *Resolver) MatchTrack(ctx context.Context, themeQuery string, c models.Candidate) (*models.ResolvedTrack, error) {
	cleanTitle := CleanTitle(c.Title)
	query := fmt.Sprintf("track:%s artist:%s", cleanTitle, c.Artist)

	results, err := r.search.SearchTracks(ctx, query, directLimit)
	if err != nil {
		return nil, err
	}

	if len(results) > 0 {
		best := results[0]
		artist := strings.ToLower(c.Artist)
		for _, cand := range results {
			if artistMatches(cand.Artists, artist) {
				best = cand
				break
			}
		}
		return resolved(c, best, models.MatchFound), nil
	}

	fallbackQuery := strings.TrimSpace(themeQuery + " " + cleanTitle)
	if fallbackQuery == "" {
		return &models.ResolvedTrack{Candidate: c, MatchStatus: models.MatchNotFound}, nil
	}
	alternatives, err := r.search.SearchTracks(ctx, fallbackQuery, fallbackLimit)
	if err != nil {
		return nil, err
	}
	if len(alternatives) == 0 {
		logging.Ctx(ctx).Warn().Str("candidate", c.String()).Msg("no catalog match")
		return &models.ResolvedTrack{Candidate: c, MatchStatus: models.MatchNotFound}, nil
	}

	best := alternatives[0]
	for _, alt := range alternatives[1:] {
		if alt.Popularity > best.Popularity {
			best = alt
		}
	}
	track := resolved(c, best, models.MatchFallback)
	logging.Ctx(ctx).Warn().Str("candidate", c.String()).Str("substitute", track.Label()).Msg("using thematic fallback")
	return track, nil
}

func artistMatches(artists []string, want string) bool {
	for _, a := range artists {
		if strings.Contains(strings.ToLower(a), want) {
			return true
		}
	}
	return false
}

func resolved(c models.Candidate, t catalog.Track, status models.MatchStatus) *models.ResolvedTrack {
	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0]
	}
	return &models.ResolvedTrack{
		Candidate:   c,
		TrackID:     t.ID,
		URI:         t.URI,
		Artist:      artist,
		Artists:     append([]string(nil), t.Artists...),
		Title:       t.Name,
		MatchStatus: status,
		Confidence:  strutil.Similarity(strings.ToLower(c.String()), strings.ToLower(artist+" - "+t.Name), metrics.NewJaroWinkler()),
	}
}
