// Package preference folds a listener's liked tracks and feedback history into
// weighted taste signals that bias playlist generation.
package preference

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"pushd-go-srv/internal/models"
)

// RecencyWindow marks evidence as recent.
const RecencyWindow = 30 * 24 * time.Hour

// Signal is the accumulated weight for one entity (artist, genre, decade or energy level).
type Signal struct {
	Positive float64
	Negative float64
	Total    float64
	Count    int
	// Support holds the songs (for artists) or artists (for genres) behind the signal.
	Support  []string
	Recent   []string
	IsRecent bool
	IsLiked  bool
	Comments []string
}

func (s *Signal) addSupport(v string) {
	if v == "" || contains(s.Support, v) {
		return
	}
	s.Support = append(s.Support, v)
}

func (s *Signal) addRecent(v string) {
	s.IsRecent = true
	if v == "" || contains(s.Recent, v) {
		return
	}
	s.Recent = append(s.Recent, v)
}

type Keyword struct {
	Count  int
	Weight float64
}

type Profile struct {
	Artists  map[string]*Signal
	Genres   map[string]*Signal
	Eras     map[string]*Signal
	Energy   map[string]*Signal
	Keywords map[string]*Keyword
	// Disliked lists disliked song names, most recent first.
	Disliked []string
}

func newProfile() *Profile {
	return &Profile{
		Artists:  map[string]*Signal{},
		Genres:   map[string]*Signal{},
		Eras:     map[string]*Signal{},
		Energy:   map[string]*Signal{},
		Keywords: map[string]*Keyword{},
	}
}

// RatingWeight converts one feedback record into the weight it contributes.
func RatingWeight(f models.FeedbackRecord) float64 {
	if f.Rating != nil {
		return float64(*f.Rating) / 5 * 2
	}
	switch f.Kind {
	case models.FeedbackLike:
		return 1.5
	case models.FeedbackDislike:
		return 0.5
	}
	return 1
}

func isPositive(f models.FeedbackRecord) bool {
	if f.Kind == models.FeedbackLike {
		return true
	}
	return f.Kind != models.FeedbackDislike && f.Rating != nil && *f.Rating >= 4
}

func isNegative(f models.FeedbackRecord) bool {
	if f.Kind == models.FeedbackDislike {
		return true
	}
	return f.Kind != models.FeedbackLike && f.Rating != nil && *f.Rating <= 2
}

// Aggregate builds a profile from recency-ordered liked tracks and feedback.
// Feedback is applied first; liked tracks without feedback of their own are then
// folded in at weight 1 and only ever add to what feedback produced.
func Aggregate(liked []models.LikedTrack, feedback []models.FeedbackRecord, now time.Time) *Profile {
	p := newProfile()

	likedKeys := make(map[string]bool, len(liked))
	for _, t := range liked {
		likedKeys[strings.ToLower(t.Key())] = true
	}

	rated := make(map[string]bool, len(feedback))
	for _, f := range feedback {
		p.addFeedback(f, likedKeys, now)
		rated[strings.ToLower(f.Track.Key())] = true
	}
	for _, t := range liked {
		if rated[strings.ToLower(t.Key())] {
			continue
		}
		p.addLiked(t, now)
	}
	return p
}

func (p *Profile) addFeedback(f models.FeedbackRecord, likedKeys map[string]bool, now time.Time) {
	w := RatingWeight(f)
	pos, neg := isPositive(f), isNegative(f)
	recent := !f.CreatedAt.IsZero() && now.Sub(f.CreatedAt) <= RecencyWindow
	track := f.Track

	if f.Kind == models.FeedbackDislike && track.Name != "" && !contains(p.Disliked, track.Name) {
		p.Disliked = append(p.Disliked, track.Name)
	}

	apply := func(s *Signal) {
		s.Count++
		s.Total += w
		if pos {
			s.Positive += w
		}
		if neg {
			s.Negative += w
		}
	}

	for _, artist := range track.Artists {
		if artist == "" {
			continue
		}
		s := signal(p.Artists, artist)
		apply(s)
		s.addSupport(track.Name)
		if recent {
			s.addRecent(track.Name)
		}
		if likedKeys[strings.ToLower(track.Key())] {
			s.IsLiked = true
		}
		if f.Comment != "" {
			s.Comments = append(s.Comments, f.Comment)
		}
	}

	for _, genre := range track.Genres {
		if genre == "" {
			continue
		}
		s := signal(p.Genres, genre)
		apply(s)
		for _, artist := range track.Artists {
			s.addSupport(artist)
		}
		if recent {
			s.IsRecent = true
		}
	}

	if era, ok := Decade(track.ReleaseDate); ok {
		s := signal(p.Eras, era)
		apply(s)
		s.addSupport(track.Name)
	}
	if level, ok := EnergyLevel(track.Energy); ok {
		s := signal(p.Energy, level)
		apply(s)
		s.addSupport(track.Name)
	}

	for _, word := range Keywords(f.Comment) {
		k := p.Keywords[word]
		if k == nil {
			k = &Keyword{}
			p.Keywords[word] = k
		}
		k.Count++
		k.Weight += w
	}
}

func (p *Profile) addLiked(t models.LikedTrack, now time.Time) {
	recent := !t.LikedAt.IsZero() && now.Sub(t.LikedAt) <= RecencyWindow

	like := func(s *Signal) {
		s.Count++
		s.Total++
		s.Positive++
		s.addSupport(t.Name)
	}

	if era, ok := Decade(t.ReleaseDate); ok {
		like(signal(p.Eras, era))
	}
	if level, ok := EnergyLevel(t.Energy); ok {
		like(signal(p.Energy, level))
	}
	for _, artist := range t.Artists {
		if artist == "" {
			continue
		}
		s := signal(p.Artists, artist)
		like(s)
		s.IsLiked = true
		if recent {
			s.addRecent(t.Name)
		}
	}
}

func signal(m map[string]*Signal, key string) *Signal {
	s := m[key]
	if s == nil {
		s = &Signal{}
		m[key] = s
	}
	return s
}

// Decade buckets a release date ("1994", "1994-05", "1994-05-17") into "1990".
func Decade(releaseDate string) (string, bool) {
	if len(releaseDate) < 4 {
		return "", false
	}
	year, err := strconv.Atoi(releaseDate[:4])
	if err != nil || year <= 0 {
		return "", false
	}
	return strconv.Itoa(year / 10 * 10), true
}

// EnergyLevel rounds an energy value down to one decimal. Missing or zero energy has no level.
func EnergyLevel(energy *float64) (string, bool) {
	if energy == nil || *energy <= 0 {
		return "", false
	}
	return fmt.Sprintf("%.1f", math.Floor(*energy*10)/10), true
}

// Keywords splits a comment on whitespace and punctuation and keeps lowercased
// tokens longer than three characters.
func Keywords(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 3 {
			out = append(out, strings.ToLower(f))
		}
	}
	return out
}

type Ranked struct {
	Key string
	*Signal
}

// Rank orders signals by total weight, heaviest first, ties by key.
func Rank(m map[string]*Signal) []Ranked {
	out := make([]Ranked, 0, len(m))
	for k, s := range m {
		out = append(out, Ranked{Key: k, Signal: s})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func top(r []Ranked, n int) []Ranked {
	if len(r) > n {
		return r[:n]
	}
	return r
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
