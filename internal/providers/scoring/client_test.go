package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestScoreDecodesResponse(t *testing.T) {
	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotURL = req.URL
		_ = json.NewEncoder(w).Encode(map[string]any{
			"overall":    0.82,
			"sub_scores": map[string]float64{"sharpness": 0.9, "lighting": 0.7},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Options{URL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	score, err := client.Score(context.Background(), "https://out/1.png")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if gotURL != "https://out/1.png" {
		t.Fatalf("request url = %q", gotURL)
	}
	if score.Overall != 0.82 || score.SubScores["sharpness"] != 0.9 {
		t.Fatalf("unexpected score: %+v", score)
	}
}

func TestScoreRejectsMissingOverall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sub_scores":{}}`))
	}))
	defer srv.Close()

	client, _ := NewClient(Options{URL: srv.URL})
	if _, err := client.Score(context.Background(), "u"); err == nil {
		t.Fatalf("expected error for missing overall")
	}
}

func TestScoreSurfacesHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, _ := NewClient(Options{URL: srv.URL})
	if _, err := client.Score(context.Background(), "u"); err == nil {
		t.Fatalf("expected error for 503")
	}
}

func TestNeutralScore(t *testing.T) {
	score, err := Neutral{}.Score(context.Background(), "u")
	if err != nil || score.Overall != 0.5 {
		t.Fatalf("unexpected neutral score: %+v %v", score, err)
	}
}
