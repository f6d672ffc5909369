// Package listener manages what the service knows about a listener: liked
// tracks, feedback, preference rules and past playlists.
package listener

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"pushd-go-srv/internal/apperr"
	"pushd-go-srv/internal/database"
	"pushd-go-srv/internal/logging"
	"pushd-go-srv/internal/models"
)

type Store interface {
	ReplaceLikedTracks(ctx context.Context, listenerID int64, tracks []models.LikedTrack) error
	UpsertLikedTrack(ctx context.Context, listenerID int64, t models.LikedTrack) error
	InsertFeedback(ctx context.Context, f models.FeedbackRecord) (int64, error)
	FeedbackForPlaylist(ctx context.Context, listenerID int64, playlistID string) ([]models.FeedbackRecord, error)
	InsertRule(ctx context.Context, r models.PreferenceRule) (models.PreferenceRule, error)
	ListRulesByType(ctx context.Context, listenerID int64, t models.PreferenceType) ([]models.PreferenceRule, error)
	DeleteRule(ctx context.Context, listenerID int64, t models.PreferenceType, id int64) error
	ExcludeRule(ctx context.Context, listenerID int64, t models.PreferenceType, id int64) (models.PreferenceRule, error)
	WipeRules(ctx context.Context, listenerID int64) (int64, error)
	RecentPlaylist(ctx context.Context, listenerID int64) (models.PlaylistRecord, error)
	GetPlaylist(ctx context.Context, listenerID, id int64) (models.PlaylistRecord, error)
}

// Catalog is the listener-scoped part of the catalog client.
type Catalog interface {
	SavedTracks(ctx context.Context) ([]models.LikedTrack, error)
	TrackSnapshot(ctx context.Context, trackID string) (models.TrackSnapshot, error)
	SaveToLibrary(ctx context.Context, trackID string) error
}

type Service struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, validate: validator.New(), now: time.Now}
}

// SyncLikedTracks replaces the stored snapshot with the listener's current saved tracks.
func (s *Service) SyncLikedTracks(ctx context.Context, listenerID int64, cat Catalog) (int, error) {
	tracks, err := cat.SavedTracks(ctx)
	if err != nil {
		return 0, err
	}
	for i := range tracks {
		tracks[i].ListenerID = listenerID
	}
	if err := s.store.ReplaceLikedTracks(ctx, listenerID, tracks); err != nil {
		return 0, err
	}
	logging.Ctx(ctx).Info().Int64("listener_id", listenerID).Int("tracks", len(tracks)).Msg("liked tracks synced")
	return len(tracks), nil
}

type FeedbackInput struct {
	PlaylistID string              `json:"playlist_id" validate:"required"`
	TrackID    string              `json:"song_id" validate:"required"`
	Kind       models.FeedbackKind `json:"feedback_type" validate:"required,oneof=like dislike detailed"`
	Rating     *int                `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment    string              `json:"feedback_text" validate:"max=2000"`
	AddToLiked bool                `json:"add_to_liked"`
}

// SubmitFeedback stores feedback with a fresh catalog snapshot of the track. A
// like, or an explicit request, also saves the track to the listener's library
// and liked-track snapshot; a failure there is logged and does not fail the call.
func (s *Service) SubmitFeedback(ctx context.Context, listenerID int64, in FeedbackInput, cat Catalog) (models.FeedbackRecord, error) {
	if err := s.validate.Struct(in); err != nil {
		return models.FeedbackRecord{}, apperr.Wrap(apperr.InvalidInput, err, "invalid feedback")
	}

	snap, err := cat.TrackSnapshot(ctx, in.TrackID)
	if err != nil {
		return models.FeedbackRecord{}, err
	}

	rec := models.FeedbackRecord{
		ListenerID: listenerID,
		PlaylistID: in.PlaylistID,
		Track:      snap,
		Kind:       in.Kind,
		Rating:     in.Rating,
		Comment:    strings.TrimSpace(in.Comment),
		CreatedAt:  s.now(),
	}
	rec.ID, err = s.store.InsertFeedback(ctx, rec)
	if err != nil {
		return models.FeedbackRecord{}, err
	}

	if in.Kind == models.FeedbackLike || in.AddToLiked {
		log := logging.Ctx(ctx)
		if err := cat.SaveToLibrary(ctx, in.TrackID); err != nil {
			log.Warn().Err(err).Str("track_id", in.TrackID).Msg("could not save track to library")
		}
		liked := models.LikedTrack{ListenerID: listenerID, TrackSnapshot: snap, LikedAt: rec.CreatedAt}
		if err := s.store.UpsertLikedTrack(ctx, listenerID, liked); err != nil {
			log.Warn().Err(err).Str("track_id", in.TrackID).Msg("could not record liked track")
		}
	}
	return rec, nil
}

func (s *Service) PlaylistFeedback(ctx context.Context, listenerID int64, playlistID string) ([]models.FeedbackRecord, error) {
	return s.store.FeedbackForPlaylist(ctx, listenerID, playlistID)
}

type RuleInput struct {
	Value    string `json:"value" validate:"required,max=200"`
	Excluded bool   `json:"is_excluded"`
}

func (s *Service) AddRule(ctx context.Context, listenerID int64, t models.PreferenceType, in RuleInput) (models.PreferenceRule, error) {
	in.Value = strings.TrimSpace(in.Value)
	if err := s.validate.Struct(in); err != nil {
		return models.PreferenceRule{}, apperr.Wrap(apperr.InvalidInput, err, "invalid %s preference", t)
	}
	rule, err := s.store.InsertRule(ctx, models.PreferenceRule{ListenerID: listenerID, Type: t, Value: in.Value, Excluded: in.Excluded})
	return rule, storeErr(err, "%s preference %q already exists", t, in.Value)
}

func (s *Service) Rules(ctx context.Context, listenerID int64, t models.PreferenceType) ([]models.PreferenceRule, error) {
	return s.store.ListRulesByType(ctx, listenerID, t)
}

func (s *Service) DeleteRule(ctx context.Context, listenerID int64, t models.PreferenceType, id int64) error {
	return storeErr(s.store.DeleteRule(ctx, listenerID, t, id), "%s preference %d not found", t, id)
}

func (s *Service) ExcludeRule(ctx context.Context, listenerID int64, t models.PreferenceType, id int64) (models.PreferenceRule, error) {
	rule, err := s.store.ExcludeRule(ctx, listenerID, t, id)
	return rule, storeErr(err, "%s preference %d not found", t, id)
}

func (s *Service) WipeRules(ctx context.Context, listenerID int64) (int64, error) {
	return s.store.WipeRules(ctx, listenerID)
}

func (s *Service) RecentPlaylist(ctx context.Context, listenerID int64) (models.PlaylistRecord, error) {
	p, err := s.store.RecentPlaylist(ctx, listenerID)
	return p, storeErr(err, "no playlists generated yet")
}

func (s *Service) Playlist(ctx context.Context, listenerID, id int64) (models.PlaylistRecord, error) {
	p, err := s.store.GetPlaylist(ctx, listenerID, id)
	return p, storeErr(err, "playlist %d not found", id)
}

// storeErr turns the store's sentinels into request-level kinds.
func storeErr(err error, format string, args ...any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound):
		return apperr.Wrap(apperr.NotFound, err, format, args...)
	case errors.Is(err, database.ErrDuplicate):
		return apperr.Wrap(apperr.Duplicate, err, format, args...)
	}
	return err
}
