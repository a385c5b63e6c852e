// Package scoring talks to the quality-scoring collaborator. The heuristic
// itself lives behind the remote endpoint.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vidluxe/internal/domain"
)

// Scorer rates a media URL.
type Scorer interface {
	Score(ctx context.Context, mediaURL string) (domain.Score, error)
}

type Options struct {
	URL            string
	APIKey         string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

type scoreRequest struct {
	URL string `json:"url"`
}

type scoreResponse struct {
	Overall   *float64           `json:"overall"`
	SubScores map[string]float64 `json:"sub_scores"`
	Error     string             `json:"error"`
}

func NewClient(opts Options) (*Client, error) {
	endpoint := strings.TrimSpace(opts.URL)
	if endpoint == "" {
		return nil, errors.New("scoring: url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{url: endpoint, apiKey: strings.TrimSpace(opts.APIKey), httpClient: httpClient}, nil
}

func (c *Client) Score(ctx context.Context, mediaURL string) (domain.Score, error) {
	body, err := json.Marshal(scoreRequest{URL: mediaURL})
	if err != nil {
		return domain.Score{}, fmt.Errorf("scoring: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.Score{}, fmt.Errorf("scoring: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Score{}, fmt.Errorf("scoring: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Score{}, fmt.Errorf("scoring: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return domain.Score{}, fmt.Errorf("scoring: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded scoreResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.Score{}, fmt.Errorf("scoring: decode response: %w", err)
	}
	if decoded.Error != "" {
		return domain.Score{}, fmt.Errorf("scoring: %s", decoded.Error)
	}
	if decoded.Overall == nil {
		return domain.Score{}, errors.New("scoring: missing overall score")
	}
	return domain.Score{Overall: *decoded.Overall, SubScores: decoded.SubScores}, nil
}

// Neutral returns a fixed score for deployments without a scoring endpoint.
type Neutral struct {
	Overall float64
}

func (n Neutral) Score(context.Context, string) (domain.Score, error) {
	overall := n.Overall
	if overall == 0 {
		overall = 0.5
	}
	return domain.Score{Overall: overall}, nil
}
