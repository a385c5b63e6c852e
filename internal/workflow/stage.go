package workflow

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Stage names double as the prefix of a failed job's error.
const (
	StageStyle      = "style"
	StagePrepare    = "prepare"
	StageGenerate   = "generate"
	StageBackground = "background"
	StageCutout     = "cutout"
	StageSynthesize = "synthesize"
	StageScore      = "score"
)

// progressRange is the slice of overall progress owned by one stage.
type progressRange struct {
	lo, hi int
}

var (
	imageRanges = map[string]progressRange{
		StageStyle:    {0, 5},
		StagePrepare:  {5, 10},
		StageGenerate: {10, 85},
		StageScore:    {85, 100},
	}
	videoRanges = map[string]progressRange{
		StageStyle:      {0, 10},
		StageBackground: {10, 35},
		StageCutout:     {35, 55},
		StageSynthesize: {55, 90},
		StageScore:      {90, 100},
	}
)

// at maps a 0-100 sub-progress into the range.
func (r progressRange) at(p int) int {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return r.lo + (r.hi-r.lo)*p/100
}

// StageError tags a failure with the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage string, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// OutcomeKind distinguishes the three ways an optional stage can end.
type OutcomeKind int

const (
	OutcomeAsset OutcomeKind = iota
	OutcomeNoAsset
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAsset:
		return "asset"
	case OutcomeNoAsset:
		return "no-asset"
	default:
		return "failed"
	}
}

// StageOutcome is the result of a stage that may legitimately produce nothing.
// Err carries the cause for both OutcomeNoAsset and OutcomeFailed.
type StageOutcome struct {
	Kind     OutcomeKind
	AssetURL string
	Err      error
}

func withAsset(url string) StageOutcome { return StageOutcome{Kind: OutcomeAsset, AssetURL: url} }
func withoutAsset(err error) StageOutcome {
	return StageOutcome{Kind: OutcomeNoAsset, Err: err}
}
func failedOutcome(err error) StageOutcome { return StageOutcome{Kind: OutcomeFailed, Err: err} }

// reporter writes progress for one job, never moving backwards.
type reporter struct {
	jobs   JobTracker
	jobID  string
	logger zerolog.Logger
	last   int
}

func (r *reporter) report(ctx context.Context, rng progressRange, sub int, label string) {
	p := rng.at(sub)
	if p < r.last {
		p = r.last
	}
	r.last = p
	if err := r.jobs.UpdateProgress(ctx, r.jobID, p, label); err != nil {
		r.logger.Warn().Err(err).Str("job_id", r.jobID).Int("progress", p).Msg("workflow: progress update failed")
	}
}
