package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSanitizeKey(t *testing.T) {
	cases := map[string]string{
		"uploads/a.png":       "uploads/a.png",
		"/uploads//a.png":     "uploads/a.png",
		"./uploads/../b.png":  "b.png",
		"uploads\\nested.jpg": "uploads/nested.jpg",
	}
	for in, want := range cases {
		got, err := sanitizeKey(in)
		if err != nil {
			t.Fatalf("sanitizeKey(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("sanitizeKey(%q) = %q, want %q", in, got, want)
		}
	}
	for _, bad := range []string{"", "  ", "../etc/passwd", ".."} {
		if _, err := sanitizeKey(bad); err == nil {
			t.Fatalf("sanitizeKey(%q) should fail", bad)
		}
	}
}

func TestStoreAndFetchRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	url, err := store.Store(ctx, []byte{0x89, 'P', 'N', 'G'}, "image/png")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(url, "http://localhost:8080/static/uploads/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected public url %q", url)
	}

	data, contentType, err := store.Fetch(ctx, url)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(data) != 4 || contentType != "image/png" {
		t.Fatalf("unexpected fetch: %d bytes %q", len(data), contentType)
	}
}

func TestFetchDownloadsRemoteURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4"))
	}))
	defer srv.Close()

	store, _ := NewFileStore(t.TempDir(), "http://media.local/static")
	data, contentType, err := store.Fetch(context.Background(), srv.URL+"/v.mp4")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "mp4" || contentType != "video/mp4" {
		t.Fatalf("unexpected download: %q %q", data, contentType)
	}
}

func TestFetchRejectsTraversal(t *testing.T) {
	store, _ := NewFileStore(t.TempDir(), "")
	if _, _, err := store.Fetch(context.Background(), "../../etc/passwd"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}
