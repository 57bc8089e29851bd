// internal/engine/dispatcher.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/config"
	"github.com/xkilldash9x/reelpost/internal/workflow"
)

// -- Interfaces for Dependency Inversion --

// Runner executes jobs one at a time on a bootstrapped page.
// workflow.Controller implements it.
type Runner interface {
	Run(ctx context.Context, job schemas.UploadJob) schemas.UploadOutcome
}

// SessionFactory opens a session: a page bound to one account, already past
// the login check. The returned release func frees the page and browser.
type SessionFactory interface {
	Open(ctx context.Context, session string) (Runner, func() error, error)
}

// Reporter persists outcomes.
type Reporter interface {
	Report(ctx context.Context, outcome schemas.UploadOutcome) error
}

// ErrQueueFull is returned when a run carries more jobs than the queue allows.
var ErrQueueFull = errors.New("engine: too many jobs for one run")

// Dispatcher runs a batch of jobs. Jobs of one session run in submission
// order on that session's single page; different sessions run concurrently.
type Dispatcher struct {
	factory  SessionFactory
	reporter Reporter
	cfg      config.EngineConfig
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Dispatcher.
func New(factory SessionFactory, reporter Reporter, cfg config.EngineConfig, logger *zap.Logger) (*Dispatcher, error) {
	if factory == nil {
		return nil, errors.New("session factory cannot be nil")
	}
	if reporter == nil {
		return nil, errors.New("reporter cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Dispatcher{
		factory:  factory,
		reporter: reporter,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "dispatcher")),
		now:      time.Now,
	}, nil
}

// sessionQueue is one session's jobs, each with its index in the batch.
type sessionQueue struct {
	name  string
	jobs  []schemas.UploadJob
	index []int
}

// group splits jobs into per-session FIFO queues, in order of first
// appearance.
func group(jobs []schemas.UploadJob) []*sessionQueue {
	var queues []*sessionQueue
	byName := make(map[string]*sessionQueue)
	for i, job := range jobs {
		q, ok := byName[job.Session]
		if !ok {
			q = &sessionQueue{name: job.Session}
			byName[job.Session] = q
			queues = append(queues, q)
		}
		q.jobs = append(q.jobs, job)
		q.index = append(q.index, i)
	}
	return queues
}

// Run executes every job and returns exactly one outcome per job, in input
// order. Cancelling ctx stops each session at its next stage boundary; jobs
// that never started come back Cancelled. The error joins reporter
// failures; outcomes are complete regardless.
func (d *Dispatcher) Run(ctx context.Context, jobs []schemas.UploadJob) ([]schemas.UploadOutcome, error) {
	if d.cfg.QueueSize > 0 && len(jobs) > d.cfg.QueueSize {
		return nil, fmt.Errorf("%w: %d jobs, queue size %d", ErrQueueFull, len(jobs), d.cfg.QueueSize)
	}

	outcomes := make([]schemas.UploadOutcome, len(jobs))
	var (
		mu         sync.Mutex
		reportErrs []error
	)
	emit := func(i int, o schemas.UploadOutcome) {
		// Outcomes are persisted even when the run is being cancelled.
		err := d.reporter.Report(context.WithoutCancel(ctx), o)
		mu.Lock()
		defer mu.Unlock()
		outcomes[i] = o
		if err != nil {
			reportErrs = append(reportErrs, fmt.Errorf("report %s: %w", o.JobID, err))
		}
	}

	queues := group(jobs)
	d.logger.Info("Dispatching jobs", zap.Int("jobs", len(jobs)), zap.Int("sessions", len(queues)))

	var g errgroup.Group
	if d.cfg.MaxSessions > 0 {
		g.SetLimit(d.cfg.MaxSessions)
	}
	for _, q := range queues {
		g.Go(func() error {
			d.runSession(ctx, q, emit)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, errors.Join(reportErrs...)
}

// runSession owns one session's page for the lifetime of its queue.
func (d *Dispatcher) runSession(ctx context.Context, q *sessionQueue, emit func(int, schemas.UploadOutcome)) {
	logger := d.logger.With(zap.String("session", q.name))
	cancelRest := func(from int) {
		for i := from; i < len(q.jobs); i++ {
			emit(q.index[i], workflow.CancelledOutcome(q.jobs[i], d.now()))
		}
	}

	if ctx.Err() != nil {
		logger.Warn("Run cancelled before session started", zap.Int("jobs", len(q.jobs)))
		cancelRest(0)
		return
	}

	runner, release, err := d.factory.Open(ctx, q.name)
	if err != nil {
		logger.Error("Session could not be opened, failing its jobs", zap.Error(err))
		at := d.now()
		for i, job := range q.jobs {
			emit(q.index[i], workflow.FailedOutcome(job, err, at))
		}
		return
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warn("Failed to release session", zap.Error(err))
		}
	}()

	limit := rate.Inf
	if d.cfg.Cooldown > 0 {
		limit = rate.Every(d.cfg.Cooldown)
	}
	limiter := rate.NewLimiter(limit, 1)

	for i, job := range q.jobs {
		if ctx.Err() != nil {
			logger.Warn("Run cancelled, skipping remaining jobs", zap.Int("skipped", len(q.jobs)-i))
			cancelRest(i)
			return
		}
		if err := limiter.Wait(ctx); err != nil {
			logger.Warn("Cooldown interrupted, skipping remaining jobs", zap.Error(err))
			cancelRest(i)
			return
		}
		out := runner.Run(ctx, job)
		logger.Info("Job finished", zap.String("job_id", job.ID),
			zap.String("status", string(out.FinalStatus)), zap.String("error_kind", string(out.ErrorKind)),
			zap.Duration("took", out.Duration()))
		emit(q.index[i], out)
	}
}
