package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"vidluxe/internal/credits"
	"vidluxe/internal/domain"
	"vidluxe/internal/enhance"
	"vidluxe/internal/middleware"
	"vidluxe/internal/worker"
)

// Uploader stores caller media and returns its public URL.
type Uploader interface {
	Store(ctx context.Context, data []byte, contentType string) (string, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type App struct {
	Service        *enhance.Service
	Media          Uploader
	Fetcher        Fetcher
	Logger         zerolog.Logger
	Checks         map[string]HealthCheck
	MaxUploadBytes int64
}

// NewApp also uses media for result export when it can fetch.
func NewApp(svc *enhance.Service, media Uploader, logger zerolog.Logger) *App {
	app := &App{
		Service:        svc,
		Media:          media,
		Logger:         logger,
		Checks:         map[string]HealthCheck{},
		MaxUploadBytes: 50 << 20,
	}
	if f, ok := media.(Fetcher); ok {
		app.Fetcher = f
	}
	return app
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

// fail maps service errors onto the error envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var rej *enhance.Rejection
	switch {
	case errors.As(err, &rej):
		status, code := policyStatus(rej.Err)
		a.error(w, status, code, rej.Reason)
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrPoolClosed):
		a.error(w, http.StatusServiceUnavailable, "busy", "too many jobs in flight, try again shortly")
	default:
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("http: internal error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func policyStatus(err error) (int, string) {
	switch {
	case errors.Is(err, credits.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "insufficient_credits"
	case errors.Is(err, credits.ErrSelfInvite):
		return http.StatusBadRequest, "self_invite"
	case errors.Is(err, credits.ErrAlreadyInvited):
		return http.StatusConflict, "already_invited"
	case errors.Is(err, credits.ErrInviteLimit):
		return http.StatusTooManyRequests, "invite_limit"
	case errors.Is(err, credits.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	default:
		return http.StatusUnprocessableEntity, "rejected"
	}
}
