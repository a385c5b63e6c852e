package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"vidluxe/internal/domain"
	"vidluxe/internal/enhance"
	"vidluxe/internal/middleware"
)

type enhanceRequest struct {
	ContentType string `json:"content_type"`
	ContentURL  string `json:"content_url"`
	Style       string `json:"style"`
	Effect      string `json:"effect"`
}

type jobResponse struct {
	domain.Job
	PollURL string `json:"poll_url"`
}

// Enhance charges the caller and schedules an enhancement job.
func (a *App) Enhance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req enhanceRequest
	if !a.decode(w, r, &req) {
		return
	}
	job, err := a.Service.Enhance(r.Context(), userID, enhance.Request{
		ContentType: domain.ContentType(strings.ToLower(strings.TrimSpace(req.ContentType))),
		ContentURL:  req.ContentURL,
		Style:       req.Style,
		Effect:      req.Effect,
		Locale:      middleware.LocaleFromContext(r.Context()),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, jobResponse{Job: job, PollURL: "/v1/jobs/" + job.ID})
}

func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := a.Service.Job(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, job)
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	items := a.Service.Jobs(r.Context(), userID)
	if items == nil {
		items = []domain.Job{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) DeleteJob(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if err := a.Service.DeleteJob(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
