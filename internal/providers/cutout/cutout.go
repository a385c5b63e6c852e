// Package cutout isolates the subject of a video: one representative frame is
// extracted and its background removed.
package cutout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// FrameExtractor pulls one still frame out of a video.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, videoURL string) ([]byte, error)
}

// BackgroundRemover returns a PNG of the subject with a transparent background.
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, image []byte) ([]byte, error)
}

// FFmpeg extracts frames by shelling out to an ffmpeg binary.
type FFmpeg struct {
	Path   string
	Offset time.Duration
}

func (f FFmpeg) ExtractFrame(ctx context.Context, videoURL string) ([]byte, error) {
	videoURL = strings.TrimSpace(videoURL)
	if videoURL == "" {
		return nil, errors.New("cutout: video url is required")
	}
	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	offset := f.Offset
	if offset <= 0 {
		offset = time.Second
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", offset.Seconds()),
		"-i", videoURL,
		"-frames:v", "1",
		"-f", "image2", "-vcodec", "mjpeg",
		"pipe:1",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("cutout: ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, errors.New("cutout: ffmpeg produced no frame")
	}
	return stdout.Bytes(), nil
}

type RemoverOptions struct {
	URL            string
	APIKey         string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

// Remover calls a remove.bg compatible HTTP endpoint.
type Remover struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewRemover(opts RemoverOptions) (*Remover, error) {
	endpoint := strings.TrimSpace(opts.URL)
	if endpoint == "" {
		return nil, errors.New("cutout: url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Remover{url: endpoint, apiKey: strings.TrimSpace(opts.APIKey), httpClient: httpClient}, nil
}

func (r *Remover) RemoveBackground(ctx context.Context, image []byte) ([]byte, error) {
	if len(image) == 0 {
		return nil, errors.New("cutout: image is empty")
	}
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("image_file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("cutout: build form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("cutout: build form: %w", err)
	}
	_ = form.WriteField("size", "auto")
	_ = form.WriteField("format", "png")
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("cutout: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, &body)
	if err != nil {
		return nil, fmt.Errorf("cutout: build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if r.apiKey != "" {
		req.Header.Set("X-Api-Key", r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cutout: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cutout: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cutout: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if len(raw) == 0 {
		return nil, errors.New("cutout: empty response")
	}
	return raw, nil
}
