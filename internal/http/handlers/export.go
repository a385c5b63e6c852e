package handlers

import (
	"context"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"vidluxe/internal/domain"
	"vidluxe/pkg/zip"
)

// Fetcher reads stored media back by URL.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, string, error)
}

// ExportJobs streams the caller's completed results as a zip archive.
// Results that can no longer be fetched are skipped and counted in
// X-Export-Skipped.
func (a *App) ExportJobs(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if a.Fetcher == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "export is not configured")
		return
	}

	var (
		entries []zip.Entry
		skipped int
	)
	for _, job := range a.Service.Jobs(r.Context(), userID) {
		if job.Status != domain.JobStatusCompleted || job.Result == nil || job.Result.URL == "" {
			continue
		}
		data, contentType, err := a.Fetcher.Fetch(r.Context(), job.Result.URL)
		if err != nil {
			skipped++
			a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("export: fetch result failed")
			continue
		}
		entries = append(entries, zip.Entry{
			Name:     job.ID + resultExtension(job.Result.URL, contentType),
			Data:     data,
			Modified: job.UpdatedAt,
		})
	}
	if len(entries) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no completed results to export")
		return
	}

	archive, err := zip.Archive(entries)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="vidluxe-results.zip"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.Header().Set("X-Export-Skipped", strconv.Itoa(skipped))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func resultExtension(ref, contentType string) string {
	if u, err := url.Parse(ref); err == nil {
		if ext := path.Ext(u.Path); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
