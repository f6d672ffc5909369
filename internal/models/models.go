package models

import (
	"fmt"
	"strings"
	"time"
)

// TrackSnapshot is the catalog view of a track at the time it was captured.
type TrackSnapshot struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artists     []string `json:"artists"`
	Album       string   `json:"album,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Energy      *float64 `json:"energy,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Popularity  int      `json:"popularity"`
}

// ArtistLine joins the artist list the way the catalog displays it.
func (t TrackSnapshot) ArtistLine() string {
	return strings.Join(t.Artists, ", ")
}

// Key is the "Artists - Name" label used for cross-referencing liked tracks.
func (t TrackSnapshot) Key() string {
	return t.ArtistLine() + " - " + t.Name
}

type Listener struct {
	ID        int64     `json:"id"`
	SpotifyID string    `json:"spotify_id"`
	CreatedAt time.Time `json:"created_at"`
}

// LikedTrack is one entry of a listener's liked-track snapshot. The snapshot is
// replaced wholesale on every sync.
type LikedTrack struct {
	ListenerID int64 `json:"listener_id"`
	TrackSnapshot
	LikedAt time.Time `json:"liked_at"`
}

type FeedbackKind string

const (
	FeedbackLike     FeedbackKind = "like"
	FeedbackDislike  FeedbackKind = "dislike"
	FeedbackDetailed FeedbackKind = "detailed"
)

func (k FeedbackKind) Valid() bool {
	switch k {
	case FeedbackLike, FeedbackDislike, FeedbackDetailed:
		return true
	}
	return false
}

type FeedbackRecord struct {
	ID         int64         `json:"id"`
	ListenerID int64         `json:"listener_id"`
	PlaylistID string        `json:"playlist_id"`
	Track      TrackSnapshot `json:"song_data"`
	Kind       FeedbackKind  `json:"feedback_type"`
	Rating     *int          `json:"rating,omitempty"`
	Comment    string        `json:"feedback_text,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// PreferenceType enumerates the kinds of include/exclude rules a listener can set.
type PreferenceType string

const (
	PreferenceArtist PreferenceType = "artist"
	PreferenceSong   PreferenceType = "song"
	PreferenceGenre  PreferenceType = "genre"
	PreferenceEra    PreferenceType = "era"
)

var PreferenceTypes = []PreferenceType{PreferenceArtist, PreferenceSong, PreferenceGenre, PreferenceEra}

func ParsePreferenceType(s string) (PreferenceType, error) {
	t := PreferenceType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range PreferenceTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid preference type %q, must be one of: artist, song, genre, era", s)
}

type PreferenceRule struct {
	ID         int64          `json:"id"`
	ListenerID int64          `json:"user_id"`
	Type       PreferenceType `json:"preference_type"`
	Value      string         `json:"preference_value"`
	Excluded   bool           `json:"is_excluded"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Candidate is an (artist, title) pair suggested by the generator, not yet
// verified against the catalog.
type Candidate struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

func (c Candidate) String() string {
	return c.Artist + " - " + c.Title
}

type MatchStatus string

const (
	MatchFound    MatchStatus = "FOUND"
	MatchFallback MatchStatus = "FALLBACK"
	MatchNotFound MatchStatus = "NOT_FOUND"
)

// ResolvedTrack is a candidate bound to a catalog track. Artist, Artists and
// Title are the catalog's values, which differ from the candidate when a
// fallback was used. Artist is the primary credit; Artists holds every credit.
type ResolvedTrack struct {
	Candidate   Candidate   `json:"candidate"`
	TrackID     string      `json:"track_id"`
	URI         string      `json:"uri"`
	Artist      string      `json:"artist"`
	Artists     []string    `json:"artists,omitempty"`
	Title       string      `json:"title"`
	MatchStatus MatchStatus `json:"match_status"`
	Confidence  float64     `json:"confidence"`
}

// Label is the line shown in the playlist's song list.
func (r ResolvedTrack) Label() string {
	if r.MatchStatus == MatchFallback {
		return r.Artist + " - " + r.Title
	}
	return r.Candidate.String()
}

type PlaylistRecord struct {
	ID          int64     `json:"id"`
	ListenerID  int64     `json:"user_id"`
	PlaylistID  string    `json:"playlist_id"`
	PlaylistURL string    `json:"playlist_url"`
	Description string    `json:"message"`
	SongList    string    `json:"song_list"`
	Summary     string    `json:"summary"`
	FoundCount  int       `json:"found_count"`
	MissCount   int       `json:"not_found_count"`
	CreatedAt   time.Time `json:"created_at"`
}
