package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vidluxe/internal/infra"
	"vidluxe/internal/providers/generation"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("dashscope: api key is required")

// Options configures the DashScope asynchronous task client.
type Options struct {
	APIKey         string
	BaseURL        string
	ImageModel     string
	EditModel      string
	VideoModel     string
	DefaultSize    string
	Watermark      bool
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client submits image and video synthesis tasks and polls them through the
// DashScope task API.
type Client struct {
	apiKey      string
	baseURL     string
	imageModel  string
	editModel   string
	videoModel  string
	defaultSize string
	watermark   bool
	httpClient  *http.Client
	logger      *infra.Logger
}

var _ generation.Provider = (*Client)(nil)

type synthesisRequest struct {
	Model      string          `json:"model"`
	Input      synthesisInput  `json:"input"`
	Parameters synthesisParams `json:"parameters"`
}

type synthesisInput struct {
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Function       string   `json:"function,omitempty"`
	BaseImageURL   string   `json:"base_image_url,omitempty"`
	ImgURL         string   `json:"img_url,omitempty"`
	RefImagesURL   []string `json:"ref_images_url,omitempty"`
}

type synthesisParams struct {
	Size         string `json:"size,omitempty"`
	N            int    `json:"n,omitempty"`
	Seed         *int   `json:"seed,omitempty"`
	Watermark    *bool  `json:"watermark,omitempty"`
	PromptExtend *bool  `json:"prompt_extend,omitempty"`
}

type taskResponse struct {
	Output struct {
		TaskID      string `json:"task_id"`
		TaskStatus  string `json:"task_status"`
		Code        string `json:"code"`
		Message     string `json:"message"`
		VideoURL    string `json:"video_url"`
		TaskMetrics struct {
			Total     int `json:"TOTAL"`
			Succeeded int `json:"SUCCEEDED"`
			Failed    int `json:"FAILED"`
		} `json:"task_metrics"`
		Results []struct {
			URL     string `json:"url"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"results"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = "wanx2.1-t2i-turbo"
	}
	editModel := strings.TrimSpace(opts.EditModel)
	if editModel == "" {
		editModel = "wanx2.1-imageedit"
	}
	videoModel := strings.TrimSpace(opts.VideoModel)
	if videoModel == "" {
		videoModel = "wanx2.1-i2v-turbo"
	}
	defaultSize := strings.TrimSpace(opts.DefaultSize)
	if defaultSize == "" {
		defaultSize = "1024*1024"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		imageModel:  imageModel,
		editModel:   editModel,
		videoModel:  videoModel,
		defaultSize: defaultSize,
		watermark:   opts.Watermark,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Submit creates an asynchronous synthesis task and returns its id.
func (c *Client) Submit(ctx context.Context, req generation.SubmitRequest) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("dashscope: prompt is required")
	}

	path, payload := c.buildSynthesis(req, prompt)
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("dashscope: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("dashscope: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-DashScope-Async", "enable")
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-Id", req.RequestID)
	}

	decoded, err := c.do(httpReq)
	if err != nil {
		return "", err
	}
	taskID := strings.TrimSpace(decoded.Output.TaskID)
	if taskID == "" {
		return "", errors.New("dashscope: empty task id")
	}
	c.logger.Debug().
		Str("model", payload.Model).
		Str("kind", string(req.Kind)).
		Str("task_id", taskID).
		Str("request_id", decoded.RequestID).
		Msg("dashscope: task submitted")
	return taskID, nil
}

// Poll fetches the current state of a task.
func (c *Client) Poll(ctx context.Context, taskID string) (generation.PollResult, error) {
	if !c.HasCredentials() {
		return generation.PollResult{}, ErrMissingAPIKey
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return generation.PollResult{}, errors.New("dashscope: task id is required")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+url.PathEscape(taskID), nil)
	if err != nil {
		return generation.PollResult{}, fmt.Errorf("dashscope: build request: %w", err)
	}
	decoded, err := c.do(httpReq)
	if err != nil {
		return generation.PollResult{}, err
	}
	return toPollResult(decoded), nil
}

func (c *Client) buildSynthesis(req generation.SubmitRequest, prompt string) (string, synthesisRequest) {
	watermark := c.watermark
	size := strings.TrimSpace(req.Size)
	if size == "" {
		size = c.defaultSize
	}
	payload := synthesisRequest{
		Input: synthesisInput{
			Prompt:         prompt,
			NegativePrompt: strings.TrimSpace(req.NegativePrompt),
		},
		Parameters: synthesisParams{Watermark: &watermark},
	}
	if req.Seed > 0 {
		seed := req.Seed
		payload.Parameters.Seed = &seed
	}
	payload.Parameters.PromptExtend = promptExtend(req.Quality)
	refs := nonEmpty(req.ReferenceURLs)

	switch req.Kind {
	case generation.KindVideo:
		payload.Model = c.videoModel
		if len(refs) > 0 {
			payload.Input.ImgURL = refs[0]
			payload.Input.RefImagesURL = refs[1:]
		}
		payload.Parameters.Size = size
		return "/services/aigc/video-generation/video-synthesis", payload
	default:
		payload.Parameters.Size = size
		payload.Parameters.N = 1
		if len(refs) > 0 {
			payload.Model = c.editModel
			payload.Input.Function = "description_edit"
			payload.Input.BaseImageURL = refs[0]
			payload.Parameters.Size = ""
			return "/services/aigc/image2image/image-synthesis", payload
		}
		payload.Model = c.imageModel
		return "/services/aigc/text2image/image-synthesis", payload
	}
}

func (c *Client) do(req *http.Request) (taskResponse, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return taskResponse{}, generation.Transient(fmt.Errorf("dashscope: http request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return taskResponse{}, generation.Transient(fmt.Errorf("dashscope: read response: %w", err))
	}
	if resp.StatusCode >= 300 {
		var detail errorResponse
		statusErr := fmt.Errorf("dashscope: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		if json.Unmarshal(raw, &detail) == nil && detail.Message != "" {
			statusErr = fmt.Errorf("dashscope: %s (%s)", detail.Message, detail.Code)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return taskResponse{}, generation.Transient(statusErr)
		}
		return taskResponse{}, statusErr
	}

	var decoded taskResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return taskResponse{}, fmt.Errorf("dashscope: decode response: %w", err)
	}
	if decoded.Code != "" {
		return taskResponse{}, fmt.Errorf("dashscope: %s (%s)", decoded.Message, decoded.Code)
	}
	return decoded, nil
}

// promptExtend maps a quality preset onto DashScope's prompt rewriting switch.
// Unknown presets leave the model default in place.
func promptExtend(quality string) *bool {
	var on bool
	switch strings.ToLower(strings.TrimSpace(quality)) {
	case generation.QualityHigh:
		on = true
	case generation.QualityStandard:
		on = false
	default:
		return nil
	}
	return &on
}

func toPollResult(resp taskResponse) generation.PollResult {
	out := generation.PollResult{Message: strings.TrimSpace(resp.Output.Message)}
	switch strings.ToUpper(resp.Output.TaskStatus) {
	case "PENDING":
		out.Status = generation.TaskPending
	case "RUNNING":
		out.Status = generation.TaskProcessing
		out.Progress = 50
	case "SUCCEEDED":
		out.Status = generation.TaskCompleted
		out.Progress = 100
	default:
		out.Status = generation.TaskFailed
		if out.Message == "" {
			out.Message = "task " + strings.ToLower(resp.Output.TaskStatus)
		}
	}
	if m := resp.Output.TaskMetrics; m.Total > 0 && out.Status == generation.TaskProcessing {
		out.Progress = (m.Succeeded + m.Failed) * 100 / m.Total
	}

	for _, r := range resp.Output.Results {
		if u := strings.TrimSpace(r.URL); u != "" {
			out.Results = append(out.Results, u)
		}
	}
	if u := strings.TrimSpace(resp.Output.VideoURL); u != "" {
		out.Results = append(out.Results, u)
	}
	return out
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
