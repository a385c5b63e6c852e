package generation

import (
	"context"
	"strings"
)

// Kind selects which generation endpoint a request targets.
type Kind string

const (
	KindImage      Kind = "image"
	KindBackground Kind = "background"
	KindVideo      Kind = "video"
)

// TaskStatus is the provider-neutral state of a submitted task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether polling can stop.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Quality presets understood by every provider.
const (
	QualityStandard = "standard"
	QualityHigh     = "high"
)

// SubmitRequest describes a normalized request passed to any generation provider.
type SubmitRequest struct {
	Kind           Kind
	Prompt         string
	NegativePrompt string
	ReferenceURLs  []string
	Size           string
	Quality        string
	Seed           int
	RequestID      string
}

// PollResult is one observation of a submitted task.
type PollResult struct {
	Status   TaskStatus
	Progress int
	Results  []string
	Message  string
}

// Provider is the contract implemented by asynchronous generation backends.
type Provider interface {
	Submit(ctx context.Context, req SubmitRequest) (taskID string, err error)
	Poll(ctx context.Context, taskID string) (PollResult, error)
}

// NormalizeKind sanitizes free-form input into a supported kind.
func NormalizeKind(kind string) Kind {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case string(KindBackground):
		return KindBackground
	case string(KindVideo):
		return KindVideo
	default:
		return KindImage
	}
}
