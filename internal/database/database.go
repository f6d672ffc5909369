package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"

	"pushd-go-srv/internal/models"
)

//go:embed schema.sql
var schema string

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Fixed-width UTC timestamps so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000Z"

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the parent directory if needed, opens the sqlite file and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := InitDatabase(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// InitDatabase runs the embedded schema and sets performance PRAGMAs.
func InitDatabase(db *sql.DB) error {
	// WAL keeps feedback writes from blocking the generation reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA cache_size=-2000;"); err != nil {
		return err
	}
	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

/* =========================
   Listeners
   ========================= */

// UpsertListener returns the listener row for a catalog user id, creating it on first sight.
func (s *Store) UpsertListener(ctx context.Context, spotifyID string) (models.Listener, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO listeners (spotify_id, created_at) VALUES (?, ?)
		 ON CONFLICT(spotify_id) DO NOTHING`,
		spotifyID, formatTime(s.now()))
	if err != nil {
		return models.Listener{}, fmt.Errorf("upsert listener: %w", err)
	}

	var (
		l       models.Listener
		created string
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT id, spotify_id, created_at FROM listeners WHERE spotify_id = ?`, spotifyID,
	).Scan(&l.ID, &l.SpotifyID, &created)
	if err != nil {
		return models.Listener{}, fmt.Errorf("select listener: %w", err)
	}
	l.CreatedAt = parseTime(created)
	return l, nil
}

/* =========================
   Liked tracks
   ========================= */

// ReplaceLikedTracks swaps the listener's whole liked-track snapshot in one transaction.
func (s *Store) ReplaceLikedTracks(ctx context.Context, listenerID int64, tracks []models.LikedTrack) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM liked_tracks WHERE listener_id = ?`, listenerID); err != nil {
		return fmt.Errorf("clear liked tracks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO liked_tracks (listener_id, track_id, song_data, name, artists, liked_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(listener_id, track_id) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range tracks {
		data, err := json.Marshal(t.TrackSnapshot)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, listenerID, t.ID, string(data), t.Name, t.ArtistLine(), formatTime(t.LikedAt)); err != nil {
			return fmt.Errorf("insert liked track %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// UpsertLikedTrack adds or refreshes a single liked track without touching the rest.
func (s *Store) UpsertLikedTrack(ctx context.Context, listenerID int64, t models.LikedTrack) error {
	data, err := json.Marshal(t.TrackSnapshot)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO liked_tracks (listener_id, track_id, song_data, name, artists, liked_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(listener_id, track_id) DO UPDATE SET
			song_data = excluded.song_data,
			name = excluded.name,
			artists = excluded.artists,
			liked_at = excluded.liked_at`,
		listenerID, t.ID, string(data), t.Name, t.ArtistLine(), formatTime(t.LikedAt))
	if err != nil {
		return fmt.Errorf("upsert liked track: %w", err)
	}
	return nil
}

// RecentLikedTracks returns up to limit tracks, most recently liked first.
func (s *Store) RecentLikedTracks(ctx context.Context, listenerID int64, limit int) ([]models.LikedTrack, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT song_data, liked_at FROM liked_tracks
		 WHERE listener_id = ?
		 ORDER BY liked_at DESC, track_id
		 LIMIT ?`, listenerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query liked tracks: %w", err)
	}
	defer rows.Close()

	var out []models.LikedTrack
	for rows.Next() {
		var data, likedAt string
		if err := rows.Scan(&data, &likedAt); err != nil {
			return nil, err
		}
		t := models.LikedTrack{ListenerID: listenerID, LikedAt: parseTime(likedAt)}
		if err := json.Unmarshal([]byte(data), &t.TrackSnapshot); err != nil {
			return nil, fmt.Errorf("decode liked track: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

/* =========================
   Feedback
   ========================= */

func (s *Store) InsertFeedback(ctx context.Context, f models.FeedbackRecord) (int64, error) {
	data, err := json.Marshal(f.Track)
	if err != nil {
		return 0, err
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}
	var rating, comment any
	if f.Rating != nil {
		rating = *f.Rating
	}
	if f.Comment != "" {
		comment = f.Comment
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (listener_id, playlist_id, track_id, song_data, feedback_type, rating, feedback_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ListenerID, f.PlaylistID, f.Track.ID, string(data), string(f.Kind), rating, comment, formatTime(f.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert feedback: %w", err)
	}
	return res.LastInsertId()
}

// RecentFeedback returns up to limit records, newest first.
func (s *Store) RecentFeedback(ctx context.Context, listenerID int64, limit int) ([]models.FeedbackRecord, error) {
	return s.queryFeedback(ctx,
		`SELECT id, listener_id, playlist_id, song_data, feedback_type, rating, feedback_text, created_at
		 FROM feedback WHERE listener_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, listenerID, limit)
}

func (s *Store) FeedbackForPlaylist(ctx context.Context, listenerID int64, playlistID string) ([]models.FeedbackRecord, error) {
	return s.queryFeedback(ctx,
		`SELECT id, listener_id, playlist_id, song_data, feedback_type, rating, feedback_text, created_at
		 FROM feedback WHERE listener_id = ? AND playlist_id = ?
		 ORDER BY created_at DESC, id DESC`, listenerID, playlistID)
}

func (s *Store) queryFeedback(ctx context.Context, query string, args ...any) ([]models.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	var out []models.FeedbackRecord
	for rows.Next() {
		var (
			f         models.FeedbackRecord
			data      string
			kind      string
			rating    sql.NullInt64
			comment   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&f.ID, &f.ListenerID, &f.PlaylistID, &data, &kind, &rating, &comment, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &f.Track); err != nil {
			return nil, fmt.Errorf("decode feedback track: %w", err)
		}
		f.Kind = models.FeedbackKind(kind)
		if rating.Valid {
			r := int(rating.Int64)
			f.Rating = &r
		}
		f.Comment = comment.String
		f.CreatedAt = parseTime(createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

/* =========================
   Preference rules
   ========================= */

// InsertRule stores a new rule. A second rule with the same (type, value) for
// the listener fails with ErrDuplicate.
func (s *Store) InsertRule(ctx context.Context, r models.PreferenceRule) (models.PreferenceRule, error) {
	r.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO preference_rules (listener_id, rule_type, value, is_excluded, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ListenerID, string(r.Type), r.Value, r.Excluded, formatTime(r.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return models.PreferenceRule{}, fmt.Errorf("preference %s %q: %w", r.Type, r.Value, ErrDuplicate)
		}
		return models.PreferenceRule{}, fmt.Errorf("insert preference: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return r, err
}

func (s *Store) ListRules(ctx context.Context, listenerID int64) ([]models.PreferenceRule, error) {
	return s.queryRules(ctx,
		`SELECT id, listener_id, rule_type, value, is_excluded, created_at
		 FROM preference_rules WHERE listener_id = ? ORDER BY id`, listenerID)
}

func (s *Store) ListRulesByType(ctx context.Context, listenerID int64, t models.PreferenceType) ([]models.PreferenceRule, error) {
	return s.queryRules(ctx,
		`SELECT id, listener_id, rule_type, value, is_excluded, created_at
		 FROM preference_rules WHERE listener_id = ? AND rule_type = ? ORDER BY id`, listenerID, string(t))
}

func (s *Store) queryRules(ctx context.Context, query string, args ...any) ([]models.PreferenceRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var out []models.PreferenceRule
	for rows.Next() {
		var (
			r         models.PreferenceRule
			ruleType  string
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.ListenerID, &ruleType, &r.Value, &r.Excluded, &createdAt); err != nil {
			return nil, err
		}
		r.Type = models.PreferenceType(ruleType)
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteRule(ctx context.Context, listenerID int64, t models.PreferenceType, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM preference_rules WHERE id = ? AND listener_id = ? AND rule_type = ?`,
		id, listenerID, string(t))
	if err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ExcludeRule flips an existing rule to exclusionary and returns it.
func (s *Store) ExcludeRule(ctx context.Context, listenerID int64, t models.PreferenceType, id int64) (models.PreferenceRule, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE preference_rules SET is_excluded = 1 WHERE id = ? AND listener_id = ? AND rule_type = ?`,
		id, listenerID, string(t))
	if err != nil {
		return models.PreferenceRule{}, fmt.Errorf("exclude preference: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.PreferenceRule{}, ErrNotFound
	}
	rules, err := s.queryRules(ctx,
		`SELECT id, listener_id, rule_type, value, is_excluded, created_at
		 FROM preference_rules WHERE id = ?`, id)
	if err != nil {
		return models.PreferenceRule{}, err
	}
	if len(rules) == 0 {
		return models.PreferenceRule{}, ErrNotFound
	}
	return rules[0], nil
}

func (s *Store) WipeRules(ctx context.Context, listenerID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM preference_rules WHERE listener_id = ?`, listenerID)
	if err != nil {
		return 0, fmt.Errorf("wipe preferences: %w", err)
	}
	return res.RowsAffected()
}

/* =========================
   Playlists
   ========================= */

func (s *Store) InsertPlaylist(ctx context.Context, p models.PlaylistRecord) (int64, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO playlists (listener_id, playlist_id, playlist_url, description, song_list, summary, found_count, not_found_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ListenerID, p.PlaylistID, p.PlaylistURL, p.Description, p.SongList, p.Summary, p.FoundCount, p.MissCount, formatTime(p.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert playlist: %w", err)
	}
	return res.LastInsertId()
}

const playlistColumns = `id, listener_id, playlist_id, playlist_url, description, song_list, summary, found_count, not_found_count, created_at`

func (s *Store) RecentPlaylist(ctx context.Context, listenerID int64) (models.PlaylistRecord, error) {
	return s.queryPlaylist(ctx,
		`SELECT `+playlistColumns+` FROM playlists WHERE listener_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, listenerID)
}

func (s *Store) GetPlaylist(ctx context.Context, listenerID, id int64) (models.PlaylistRecord, error) {
	return s.queryPlaylist(ctx,
		`SELECT `+playlistColumns+` FROM playlists WHERE id = ? AND listener_id = ?`, id, listenerID)
}

func (s *Store) queryPlaylist(ctx context.Context, query string, args ...any) (models.PlaylistRecord, error) {
	var (
		p         models.PlaylistRecord
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&p.ID, &p.ListenerID, &p.PlaylistID, &p.PlaylistURL, &p.Description,
		&p.SongList, &p.Summary, &p.FoundCount, &p.MissCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PlaylistRecord{}, ErrNotFound
	}
	if err != nil {
		return models.PlaylistRecord{}, fmt.Errorf("query playlist: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}
