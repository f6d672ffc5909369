package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"pushd-go-srv/internal/apperr"
	"pushd-go-srv/internal/listener"
	"pushd-go-srv/internal/logging"
	"pushd-go-srv/internal/models"
	"pushd-go-srv/internal/playlist"
	"pushd-go-srv/internal/prompt"
)

const maxBodyBytes = 1 << 20

/* =========================
   Response Helpers
   ========================= */

type errorBody struct {
	Error   apperr.Kind `json:"error"`
	Message string      `json:"message"`
	Items   []string    `json:"items,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := kind.Status()
	body := errorBody{Error: kind, Message: err.Error()}

	var e *apperr.Error
	if errors.As(err, &e) {
		body.Items = e.Items
	}
	if kind == apperr.Internal {
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		body.Message = "internal server error"
	}
	if wait := apperr.RetryAfter(err); wait > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	}
	writeJSON(w, status, body)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(apperr.InvalidInput, err, "invalid JSON body")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.InvalidInput, "invalid "+name)
	}
	return id, nil
}

func pathType(r *http.Request) (models.PreferenceType, error) {
	t, err := models.ParsePreferenceType(chi.URLParam(r, "type"))
	if err != nil {
		return "", apperr.Wrap(apperr.InvalidInput, err, "invalid preference type")
	}
	return t, nil
}

/* =========================
   Health
   ========================= */

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok", "database": "ok"}

	if err := s.Store.Ping(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	}
	if s.Gate != nil {
		limited, wait := s.Gate.ShouldBlock(time.Now())
		body["catalog"] = map[string]any{
			"rate_limited":        limited,
			"retry_after_seconds": int(math.Ceil(wait.Seconds())),
		}
	}
	writeJSON(w, status, body)
}

/* =========================
   Playlists
   ========================= */

type generateRequest struct {
	Prompt    string `json:"prompt"`
	SongCount int    `json:"song_count"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	p := principalFrom(ctx)
	cat := playlist.Catalog{
		Search: s.Catalogs.Searcher(ctx, p.Token),
		Writer: s.Catalogs.ForToken(p.Token),
	}
	res, err := s.Playlists.Generate(ctx, playlist.Request{
		ListenerID: p.ListenerID,
		Theme:      req.Prompt,
		SongCount:  prompt.ClampSongCount(req.SongCount),
	}, cat)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecentPlaylist(w http.ResponseWriter, r *http.Request) {
	p, err := s.Listeners.RecentPlaylist(r.Context(), principalFrom(r.Context()).ListenerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.Listeners.Playlist(r.Context(), principalFrom(r.Context()).ListenerID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

/* =========================
   Liked Tracks & Feedback
   ========================= */

func (s *Server) handleSyncLiked(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	n, err := s.Listeners.SyncLikedTracks(r.Context(), p.ListenerID, s.Catalogs.ForToken(p.Token))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"synced": n})
}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var in listener.FeedbackInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p := principalFrom(r.Context())
	rec, err := s.Listeners.SubmitFeedback(r.Context(), p.ListenerID, in, s.Catalogs.ForToken(p.Token))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handlePlaylistFeedback(w http.ResponseWriter, r *http.Request) {
	fb, err := s.Listeners.PlaylistFeedback(r.Context(), principalFrom(r.Context()).ListenerID, chi.URLParam(r, "playlistID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if fb == nil {
		fb = []models.FeedbackRecord{}
	}
	writeJSON(w, http.StatusOK, fb)
}

/* =========================
   Preferences
   ========================= */

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	t, err := pathType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rules, err := s.Listeners.Rules(r.Context(), principalFrom(r.Context()).ListenerID, t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rules == nil {
		rules = []models.PreferenceRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	t, err := pathType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in listener.RuleInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := s.Listeners.AddRule(r.Context(), principalFrom(r.Context()).ListenerID, t, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	t, err := pathType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Listeners.DeleteRule(r.Context(), principalFrom(r.Context()).ListenerID, t, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExcludeRule(w http.ResponseWriter, r *http.Request) {
	t, err := pathType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := s.Listeners.ExcludeRule(r.Context(), principalFrom(r.Context()).ListenerID, t, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleWipeRules(w http.ResponseWriter, r *http.Request) {
	n, err := s.Listeners.WipeRules(r.Context(), principalFrom(r.Context()).ListenerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
