package domain

import "time"

// ContentType enumerates the media kinds that can be enhanced.
type ContentType string

const (
	ContentTypeImage ContentType = "image"
	ContentTypeVideo ContentType = "video"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobInput is the immutable snapshot of an enhancement request.
type JobInput struct {
	ContentType ContentType `json:"content_type"`
	ContentURL  string      `json:"content_url"`
	Style       string      `json:"style"`
	Effect      string      `json:"effect,omitempty"`
	Locale      string      `json:"locale,omitempty"`
	UserID      string      `json:"user_id"`
	Cost        int         `json:"cost"`
}

// Score is the opaque quality verdict returned by the scoring collaborator.
type Score struct {
	Overall   float64            `json:"overall"`
	SubScores map[string]float64 `json:"sub_scores,omitempty"`
}

// JobResult is attached only to completed jobs.
type JobResult struct {
	URL           string   `json:"url"`
	URLs          []string `json:"urls,omitempty"`
	OriginalURL   string   `json:"original_url"`
	BackgroundURL string   `json:"background_url,omitempty"`
	CutoutURL     string   `json:"cutout_url,omitempty"`
	Score         *Score   `json:"score,omitempty"`
}

// Job encapsulates the lifecycle of one enhancement request.
type Job struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	Progress   int        `json:"progress"`
	StageLabel string     `json:"stage_label,omitempty"`
	Input      JobInput   `json:"input"`
	Result     *JobResult `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
}

// Clone returns a deep copy of the job.
func (j Job) Clone() Job {
	out := j
	if j.Result != nil {
		r := *j.Result
		r.URLs = append([]string(nil), j.Result.URLs...)
		if j.Result.Score != nil {
			s := *j.Result.Score
			if j.Result.Score.SubScores != nil {
				s.SubScores = make(map[string]float64, len(j.Result.Score.SubScores))
				for k, v := range j.Result.Score.SubScores {
					s.SubScores[k] = v
				}
			}
			r.Score = &s
		}
		out.Result = &r
	}
	out.StartedAt = cloneTime(j.StartedAt)
	return out
}
