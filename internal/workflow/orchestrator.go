// Package workflow drives one job through its content-specific stage
// pipeline, writing progress and the terminal state through the job queue.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"vidluxe/internal/domain"
	"vidluxe/internal/providers/cutout"
	"vidluxe/internal/providers/generation"
	"vidluxe/internal/providers/scoring"
)

// JobTracker is the slice of the job queue the orchestrator needs.
type JobTracker interface {
	Start(ctx context.Context, id string) (domain.Job, error)
	UpdateProgress(ctx context.Context, id string, progress int, label string) error
	Complete(ctx context.Context, id string, result domain.JobResult) (domain.Job, error)
	Fail(ctx context.Context, id, msg string) (domain.Job, error)
}

// MediaStore stores bytes behind a provider-reachable URL and fetches them back.
type MediaStore interface {
	Store(ctx context.Context, data []byte, contentType string) (string, error)
	Fetch(ctx context.Context, ref string) ([]byte, string, error)
}

type Dependencies struct {
	Jobs      JobTracker
	Generator generation.Provider
	Scorer    scoring.Scorer
	Media     MediaStore
	Frames    cutout.FrameExtractor
	Remover   cutout.BackgroundRemover
	Policy    PollPolicy
	Logger    zerolog.Logger
}

// Orchestrator never touches credits; refunds are the caller's decision.
type Orchestrator struct {
	jobs      JobTracker
	generator generation.Provider
	scorer    scoring.Scorer
	media     MediaStore
	frames    cutout.FrameExtractor
	remover   cutout.BackgroundRemover
	policy    PollPolicy
	logger    zerolog.Logger
}

func NewOrchestrator(deps Dependencies) (*Orchestrator, error) {
	if deps.Jobs == nil {
		return nil, errors.New("workflow: job tracker is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("workflow: generation provider is required")
	}
	if deps.Media == nil {
		return nil, errors.New("workflow: media store is required")
	}
	scorer := deps.Scorer
	if scorer == nil {
		scorer = scoring.Neutral{}
	}
	return &Orchestrator{
		jobs:      deps.Jobs,
		generator: deps.Generator,
		scorer:    scorer,
		media:     deps.Media,
		frames:    deps.Frames,
		remover:   deps.Remover,
		policy:    deps.Policy.withDefaults(),
		logger:    deps.Logger,
	}, nil
}

// Run executes the job's pipeline and records the outcome. The returned error
// is the stage failure, if any, or a failure to record the terminal state.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.jobs.Start(ctx, jobID)
	if err != nil {
		return fmt.Errorf("workflow: start %s: %w", jobID, err)
	}
	logger := o.logger.With().Str("job_id", jobID).Str("content_type", string(job.Input.ContentType)).Logger()
	rep := &reporter{jobs: o.jobs, jobID: jobID, logger: logger}

	var result domain.JobResult
	switch job.Input.ContentType {
	case domain.ContentTypeImage:
		result, err = o.runImage(ctx, job, rep, logger)
	case domain.ContentTypeVideo:
		result, err = o.runVideo(ctx, job, rep, logger)
	default:
		err = stageErr(StageStyle, fmt.Errorf("%w: unsupported content type %q", domain.ErrInvalidInput, job.Input.ContentType))
	}

	// Terminal writes must land even when the worker is shutting down.
	finalCtx := context.WithoutCancel(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("workflow: job failed")
		if _, ferr := o.jobs.Fail(finalCtx, jobID, err.Error()); ferr != nil {
			return errors.Join(err, fmt.Errorf("workflow: record failure: %w", ferr))
		}
		return err
	}
	if _, err := o.jobs.Complete(finalCtx, jobID, result); err != nil {
		logger.Error().Err(err).Msg("workflow: record completion failed")
		return fmt.Errorf("workflow: record completion: %w", err)
	}
	logger.Info().Str("url", result.URL).Msg("workflow: job completed")
	return nil
}

func (o *Orchestrator) runImage(ctx context.Context, job domain.Job, rep *reporter, logger zerolog.Logger) (domain.JobResult, error) {
	in := job.Input

	rep.report(ctx, imageRanges[StageStyle], 0, "Resolving style")
	style, effect, err := ResolveStyle(in.Style, in.Effect)
	if err != nil {
		return domain.JobResult{}, stageErr(StageStyle, err)
	}
	rep.report(ctx, imageRanges[StageStyle], 100, "Applying "+style.Name+" style")

	prompt := BuildImagePrompt(style, effect, in.Locale)
	source, err := o.ensureRemote(ctx, in.ContentURL)
	if err != nil {
		return domain.JobResult{}, stageErr(StagePrepare, err)
	}
	rep.report(ctx, imageRanges[StagePrepare], 100, "Uploading source")

	urls, err := o.generate(ctx, rep, imageRanges[StageGenerate], "Enhancing image", logger, generation.SubmitRequest{
		Kind:           generation.KindImage,
		Prompt:         prompt,
		NegativePrompt: DefaultNegativePrompt,
		ReferenceURLs:  []string{source},
		Size:           style.ImageSize,
		Quality:        style.Quality,
		RequestID:      job.ID,
	})
	if err != nil {
		return domain.JobResult{}, stageErr(StageGenerate, err)
	}

	rep.report(ctx, imageRanges[StageScore], 0, "Scoring result")
	score, err := o.scorer.Score(ctx, urls[0])
	if err != nil {
		return domain.JobResult{}, stageErr(StageScore, err)
	}

	return domain.JobResult{
		URL:         urls[0],
		URLs:        urls,
		OriginalURL: in.ContentURL,
		Score:       &score,
	}, nil
}

func (o *Orchestrator) runVideo(ctx context.Context, job domain.Job, rep *reporter, logger zerolog.Logger) (domain.JobResult, error) {
	in := job.Input

	rep.report(ctx, videoRanges[StageStyle], 0, "Learning style")
	style, effect, err := ResolveStyle(in.Style, in.Effect)
	if err != nil {
		return domain.JobResult{}, stageErr(StageStyle, err)
	}
	source, err := o.ensureRemote(ctx, in.ContentURL)
	if err != nil {
		return domain.JobResult{}, stageErr(StagePrepare, err)
	}
	rep.report(ctx, videoRanges[StageStyle], 100, "Applying "+style.Name+" style")

	backgrounds, err := o.generate(ctx, rep, videoRanges[StageBackground], "Generating background", logger, generation.SubmitRequest{
		Kind:           generation.KindBackground,
		Prompt:         BuildBackgroundPrompt(style, effect),
		NegativePrompt: DefaultNegativePrompt,
		Size:           style.VideoSize,
		Quality:        style.Quality,
		RequestID:      job.ID + "-bg",
	})
	if err != nil {
		return domain.JobResult{}, stageErr(StageBackground, err)
	}
	background := backgrounds[0]

	rep.report(ctx, videoRanges[StageCutout], 0, "Isolating subject")
	outcome := o.cutout(ctx, source)
	var cutoutURL string
	switch outcome.Kind {
	case OutcomeAsset:
		cutoutURL = outcome.AssetURL
	case OutcomeNoAsset:
		logger.Warn().Err(outcome.Err).Msg("workflow: cutout skipped, continuing with background only")
	case OutcomeFailed:
		return domain.JobResult{}, stageErr(StageCutout, outcome.Err)
	}
	rep.report(ctx, videoRanges[StageCutout], 100, "Subject ready")

	refs := []string{background}
	if cutoutURL != "" {
		refs = append(refs, cutoutURL)
	}
	videos, err := o.generate(ctx, rep, videoRanges[StageSynthesize], "Synthesizing video", logger, generation.SubmitRequest{
		Kind:          generation.KindVideo,
		Prompt:        BuildVideoPrompt(style, effect, cutoutURL != ""),
		ReferenceURLs: refs,
		Size:          style.VideoSize,
		Quality:       style.Quality,
		RequestID:     job.ID + "-video",
	})
	if err != nil {
		return domain.JobResult{}, stageErr(StageSynthesize, err)
	}

	rep.report(ctx, videoRanges[StageScore], 0, "Scoring result")
	score, err := o.scorer.Score(ctx, background)
	if err != nil {
		return domain.JobResult{}, stageErr(StageScore, err)
	}

	return domain.JobResult{
		URL:           videos[0],
		URLs:          videos,
		OriginalURL:   in.ContentURL,
		BackgroundURL: background,
		CutoutURL:     cutoutURL,
		Score:         &score,
	}, nil
}

// generate runs one submit/poll exchange and maps provider progress into rng.
func (o *Orchestrator) generate(ctx context.Context, rep *reporter, rng progressRange, label string, logger zerolog.Logger, req generation.SubmitRequest) ([]string, error) {
	rep.report(ctx, rng, 0, label)
	taskID, err := o.policy.Submit(ctx, o.generator, req)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("task_id", taskID).Str("kind", string(req.Kind)).Msg("workflow: task submitted")

	res, err := o.policy.Await(ctx, o.generator, taskID, logger, func(p int) {
		rep.report(ctx, rng, p, label)
	})
	if err != nil {
		return nil, err
	}
	if len(res.Results) == 0 {
		return nil, fmt.Errorf("%w: task %s returned no results", domain.ErrProviderFailure, taskID)
	}
	rep.report(ctx, rng, 100, label)
	return res.Results, nil
}

// cutout is optional: any collaborator failure yields OutcomeNoAsset. Only a
// cancelled context is a hard failure.
func (o *Orchestrator) cutout(ctx context.Context, videoURL string) StageOutcome {
	if o.frames == nil || o.remover == nil {
		return withoutAsset(errors.New("cutout collaborators not configured"))
	}
	frame, err := o.frames.ExtractFrame(ctx, videoURL)
	if err != nil {
		return o.softFail(ctx, fmt.Errorf("extract frame: %w", err))
	}
	subject, err := o.remover.RemoveBackground(ctx, frame)
	if err != nil {
		return o.softFail(ctx, fmt.Errorf("remove background: %w", err))
	}
	stored, err := o.media.Store(ctx, subject, "image/png")
	if err != nil {
		return o.softFail(ctx, fmt.Errorf("store cutout: %w", err))
	}
	return withAsset(stored)
}

func (o *Orchestrator) softFail(ctx context.Context, err error) StageOutcome {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return failedOutcome(ctxErr)
	}
	return withoutAsset(err)
}

// ensureRemote returns a URL the provider can reach, uploading through the
// media store when ref is only locally addressable.
func (o *Orchestrator) ensureRemote(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: content url is required", domain.ErrInvalidInput)
	}
	if isPublicURL(ref) {
		return ref, nil
	}
	data, contentType, err := o.media.Fetch(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("fetch source: %w", err)
	}
	stored, err := o.media.Store(ctx, data, contentType)
	if err != nil {
		return "", fmt.Errorf("store source: %w", err)
	}
	return stored, nil
}

func isPublicURL(ref string) bool {
	parsed, err := url.Parse(ref)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return false
	}
	host := parsed.Hostname()
	if host == "" || strings.EqualFold(host, "localhost") {
		return false
	}
	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified()) {
		return false
	}
	return true
}
