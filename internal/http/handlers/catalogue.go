package handlers

import (
	"io"
	"net/http"
	"strings"

	"vidluxe/internal/workflow"
)

func (a *App) Styles(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"styles":  workflow.Styles(),
		"effects": workflow.Effects(),
	})
}

// Upload stores a source image or video and returns the URL to pass as
// content_url. Only image/* and video/* bodies are accepted.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	if a.currentUserID(r) == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if a.Media == nil {
		a.error(w, http.StatusNotImplemented, "unavailable", "uploads are disabled")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, a.MaxUploadBytes+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read upload")
		return
	}
	if int64(len(data)) > a.MaxUploadBytes {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "video/") {
		a.error(w, http.StatusUnsupportedMediaType, "unsupported_media", "only images and videos are accepted")
		return
	}
	url, err := a.Media.Store(r.Context(), data, contentType)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]string{"url": url, "content_type": contentType})
}
