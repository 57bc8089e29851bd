// Package workflow drives one upload job through the publish stages on a
// single, already bootstrapped page.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/browser"
	"github.com/xkilldash9x/reelpost/internal/config"
	"github.com/xkilldash9x/reelpost/internal/humanoid"
	"github.com/xkilldash9x/reelpost/internal/locator"
	"github.com/xkilldash9x/reelpost/internal/modal"
	"github.com/xkilldash9x/reelpost/internal/observability"
)

// ArtifactSink stores screenshots and returns a reference to them.
type ArtifactSink interface {
	Save(ctx context.Context, jobID, name string, data []byte) (string, error)
}

// Controller runs jobs on one page. It refuses to run two jobs at once.
type Controller struct {
	page      browser.Page
	locator   *locator.Engine
	modals    *modal.Resolver
	policy    humanoid.Policy
	artifacts ArtifactSink
	cfg       config.WorkflowConfig
	logger    *zap.Logger
	now       func() time.Time

	running atomic.Bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithArtifacts sets where screenshots go. Without one, no screenshots are taken.
func WithArtifacts(sink ArtifactSink) Option {
	return func(c *Controller) { c.artifacts = sink }
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController wires a controller to its collaborators.
func NewController(page browser.Page, engine *locator.Engine, modals *modal.Resolver, policy humanoid.Policy, cfg config.WorkflowConfig, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		page:    page,
		locator: engine,
		modals:  modals,
		policy:  policy,
		cfg:     cfg,
		logger:  logger.Named("workflow"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// stageReport is what a stage hands back on success.
type stageReport struct {
	status   schemas.StageStatus
	attempts int
	detail   string
	strategy int
}

type stageFunc func(ctx context.Context, run *jobRun) (stageReport, error)

// jobRun is the mutable state of one Run call.
type jobRun struct {
	job       schemas.UploadJob
	mediaPath string
	logger    *zap.Logger
	outcome   *schemas.UploadOutcome
}

type step struct {
	stage schemas.Stage
	run   stageFunc
}

// steps lists the stages in schemas.StageOrder.
func (c *Controller) steps() []step {
	return []step{
		{schemas.StageSessionReady, c.sessionReady},
		{schemas.StageFileSubmitted, c.submitFile},
		{schemas.StageProcessingWait, c.waitForProcessing},
		{schemas.StageOptionsExpanded, c.expandOptions},
		{schemas.StageDisclosureToggled, c.toggleDisclosure},
		{schemas.StageCaptionEntered, c.enterCaption},
		{schemas.StagePrePublishDelay, c.prePublishDelay},
		{schemas.StagePublished, c.publish},
	}
}

// Run executes the job and always returns exactly one outcome. Parent
// cancellation is honoured between stages only; a running stage finishes
// within its own bounded waits or the job deadline.
func (c *Controller) Run(ctx context.Context, job schemas.UploadJob) schemas.UploadOutcome {
	started := c.now()
	out := schemas.UploadOutcome{
		JobID:      job.ID,
		Session:    job.Session,
		StageTrace: []schemas.StageResult{},
		StartedAt:  started,
	}
	logger := observability.ForJob(c.logger, job)

	if !c.running.CompareAndSwap(false, true) {
		return c.fail(out, "", ErrControllerBusy)
	}
	defer c.running.Store(false)

	run := &jobRun{job: job, logger: logger, outcome: &out}
	if err := c.prepare(run); err != nil {
		return c.fail(out, "", err)
	}

	// Stages see the job deadline but not the parent's cancellation.
	jobCtx, cancel := context.WithDeadline(context.WithoutCancel(ctx), started.Add(job.MaxTotalDuration))
	defer cancel()

	logger.Info("Starting upload job", zap.String("media", run.mediaPath), zap.Bool("disclosure", job.DisclosureRequired))
	for _, st := range c.steps() {
		if ctx.Err() != nil {
			logger.Warn("Job cancelled", zap.String("next_stage", string(st.stage)))
			out.FinalStatus = schemas.FinalCancelled
			out.FinishedAt = c.now()
			return out
		}
		if jobCtx.Err() != nil {
			err := fmt.Errorf("%w: job exceeded max duration %s before %s", ErrStageTimeout, job.MaxTotalDuration, st.stage)
			c.record(jobCtx, run, st.stage, stageReport{status: schemas.StatusFailed}, time.Duration(0), err)
			return c.fail(out, st.stage, err)
		}

		stageStart := c.now()
		report, err := st.run(jobCtx, run)
		elapsed := c.now().Sub(stageStart)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrStageTimeout) && jobCtx.Err() != nil {
				err = fmt.Errorf("%w: %s: %v", ErrStageTimeout, st.stage, err)
			}
			report.status = schemas.StatusFailed
			c.record(jobCtx, run, st.stage, report, elapsed, err)
			logger.Error("Stage failed", zap.String("stage", string(st.stage)), zap.Error(err))
			return c.fail(out, st.stage, err)
		}
		c.record(jobCtx, run, st.stage, report, elapsed, nil)
		logger.Info("Stage complete", zap.String("stage", string(st.stage)),
			zap.String("status", string(report.status)), zap.Int("attempts", report.attempts))
	}

	out.FinalStatus = schemas.FinalPublished
	out.FinishedAt = c.now()
	logger.Info("Job published", zap.String("url", out.PublishedURL), zap.Bool("degraded", out.DegradedSuccess))
	return out
}

// prepare rejects jobs that cannot run.
func (c *Controller) prepare(run *jobRun) error {
	if err := run.job.Validate(); err != nil {
		return err
	}
	abs, err := filepath.Abs(run.job.MediaPath)
	if err != nil {
		return fmt.Errorf("%w: %v", errMediaNotFound, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("%w: %v", errMediaNotFound, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", errMediaNotFound, abs)
	}
	run.mediaPath = abs
	return nil
}

// record appends the stage result, taking a screenshot on failure or when
// every stage is configured to be captured.
func (c *Controller) record(ctx context.Context, run *jobRun, stage schemas.Stage, report stageReport, elapsed time.Duration, err error) {
	res := schemas.StageResult{
		Stage:     stage,
		Status:    report.status,
		Attempts:  report.attempts,
		ElapsedMs: elapsed.Milliseconds(),
		Detail:    report.detail,
		Strategy:  report.strategy,
	}
	if err != nil && res.Detail == "" {
		res.Detail = err.Error()
	}
	if err != nil || c.cfg.ScreenshotEachStage {
		// A fresh context: the job deadline may be what failed the stage.
		shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		res.ScreenshotRef = c.screenshot(shotCtx, run, stage)
		cancel()
	}
	run.outcome.StageTrace = append(run.outcome.StageTrace, res)
}

func (c *Controller) screenshot(ctx context.Context, run *jobRun, stage schemas.Stage) string {
	if c.artifacts == nil {
		return ""
	}
	data, err := c.page.Screenshot(ctx)
	if err != nil {
		run.logger.Warn("Failed to capture screenshot", zap.String("stage", string(stage)), zap.Error(err))
		return ""
	}
	ref, err := c.artifacts.Save(ctx, run.job.ID, string(stage)+".png", data)
	if err != nil {
		run.logger.Warn("Failed to store screenshot", zap.String("stage", string(stage)), zap.Error(err))
		return ""
	}
	run.outcome.Artifacts = append(run.outcome.Artifacts, ref)
	return ref
}

func (c *Controller) fail(out schemas.UploadOutcome, stage schemas.Stage, err error) schemas.UploadOutcome {
	out.FinalStatus = schemas.FinalFailed
	out.FailedStage = stage
	out.ErrorKind = KindOf(err)
	out.ErrorMessage = err.Error()
	out.FinishedAt = c.now()
	return out
}

// retry runs fn up to max times, pausing between attempts, for as long as
// the error is retryable. It returns the attempts used.
func (c *Controller) retry(ctx context.Context, run *jobRun, max int, fn func(attempt int) error) (int, error) {
	if max < 1 {
		max = 1
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		if err = fn(attempt); err == nil || !retryable(err) {
			return attempt, err
		}
		if attempt < max {
			run.logger.Debug("Retrying stage action", zap.Int("attempt", attempt), zap.Error(err))
			if perr := c.policy.Think(ctx); perr != nil {
				return attempt, perr
			}
		}
	}
	return max, err
}

// settle runs the modal resolver after a state-changing action. Only
// PlatformError and ModalUnclassified are fatal; other failures are logged.
func (c *Controller) settle(ctx context.Context, run *jobRun) (modal.Result, error) {
	res, err := c.modals.Resolve(ctx)
	if err == nil {
		return res, nil
	}
	var platform *modal.PlatformError
	if errors.As(err, &platform) || errors.Is(err, modal.ErrModalUnclassified) || ctx.Err() != nil {
		return res, err
	}
	run.logger.Warn("Dialog could not be resolved", zap.Error(err))
	return res, nil
}

func pollOptions(p config.PollConfig) humanoid.PollOptions {
	return humanoid.PollOptions{IntervalMin: p.IntervalMin, IntervalMax: p.IntervalMax, MaxAttempts: p.MaxAttempts}
}
