package server

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"pushd-go-srv/internal/apperr"
	"pushd-go-srv/internal/logging"
)

const RequestIDHeader = "X-Request-ID"

/* =========================
   Recovery Middleware
   ========================= */

func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logging.Ctx(r.Context()).Error().
					Interface("panic", err).
					Bytes("stack", debug.Stack()).
					Msg("PANIC")
				writeError(w, r, apperr.New(apperr.Internal, "internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

/* =========================
   Request Logging
   ========================= */

// RequestLogging tags the request context with a correlation id, echoes it in
// the response and logs one line per request.
func RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = logging.NewCorrelationID()
		}
		ctx := logging.WithCorrelationID(r.Context(), id)
		w.Header().Set(RequestIDHeader, id)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logging.Ctx(ctx).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

/* =========================
   Auth
   ========================= */

type principal struct {
	ListenerID int64
	Token      string
}

type principalKey struct{}

func principalFrom(ctx context.Context) principal {
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

// Authenticate resolves the bearer token to a catalog user and makes sure a
// listener row exists for them.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, apperr.New(apperr.Unauthorized, "missing bearer token"))
			return
		}

		ctx := r.Context()
		userID, err := s.Catalogs.ForToken(token).CurrentUserID(ctx)
		if err != nil {
			if apperr.Is(err, apperr.CatalogRateLimited) {
				writeError(w, r, err)
				return
			}
			logging.Ctx(ctx).Warn().Err(err).Msg("token rejected by catalog")
			writeError(w, r, apperr.Wrap(apperr.Unauthorized, err, "invalid or expired token"))
			return
		}

		l, err := s.Store.UpsertListener(ctx, userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx = context.WithValue(ctx, principalKey{}, principal{ListenerID: l.ID, Token: token})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
