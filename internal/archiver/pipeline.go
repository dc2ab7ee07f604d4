package archiver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/course-archiver/internal/progress"
)

// Pipeline wires discovery, the worker pool and the capture state machine
// into one archival run.
type Pipeline struct {
	browser   Browser
	store     Storage
	cfg       RunConfig
	events    progress.Emitter
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
	filter    func([]PageDescriptor) []PageDescriptor
	publisher Publisher
	hasher    Hasher
}

const finishTimeout = 30 * time.Second

// NewPipeline validates cfg and returns a ready Pipeline. events and logger
// may be nil.
func NewPipeline(
	browser Browser,
	store Storage,
	cfg RunConfig,
	events progress.Emitter,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
) (*Pipeline, error) {
	if browser == nil {
		return nil, errors.New("browser is required")
	}
	if store == nil {
		return nil, errors.New("storage is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if ids == nil {
		return nil, errors.New("id generator is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}
	if events == nil {
		events = progress.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		browser: browser,
		store:   store,
		cfg:     cfg,
		events:  events,
		clock:   clock,
		ids:     ids,
		logger:  logger,
	}, nil
}

// WithFilter narrows the discovered pages before they are scheduled. Indexes
// keep their discovery values so output names stay stable.
func (p *Pipeline) WithFilter(fn func([]PageDescriptor) []PageDescriptor) *Pipeline {
	p.filter = fn
	return p
}

// WithPublisher announces the run summary once the pool has drained.
func (p *Pipeline) WithPublisher(pub Publisher) *Pipeline {
	p.publisher = pub
	return p
}

// WithHasher records a digest of every artifact in the result and manifest.
func (p *Pipeline) WithHasher(h Hasher) *Pipeline {
	p.hasher = h
	return p
}

// Run discovers the course's pages and archives each of them. Per-page
// failures are reported in the result; only a failed discovery (or a run
// interrupted through ctx) returns an error.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	rawID, err := p.ids.NewRawID()
	if err != nil {
		return RunResult{}, fmt.Errorf("generate run id: %w", err)
	}
	runID := progress.UUIDToBytes(rawID)
	started := p.clock.Now()
	logger := p.logger.With(zap.String("run_id", rawID.String()))

	p.emit(runID, progress.Event{Stage: progress.StageRunStart, Index: -1, Locator: p.cfg.CourseURL})
	logger.Info("archival run started",
		zap.String("course", p.cfg.CourseURL),
		zap.String("format", string(p.cfg.Format)),
		zap.Int("concurrency", p.cfg.Concurrency),
	)

	discoverPolicy := p.cfg.Retry.WithObserver(func(a RetryAttempt) {
		logger.Warn("discovery attempt failed",
			zap.Int("attempt", a.Attempt),
			zap.Int("max_attempts", a.MaxAttempts),
			zap.Error(a.Err),
		)
	})
	pages, err := Discover(ctx, p.browser, p.cfg.CourseURL, p.cfg.Selectors, discoverPolicy, logger.Named("discovery"))
	if err != nil {
		p.emit(runID, progress.Event{
			Stage:   progress.StageRunError,
			Index:   -1,
			Locator: p.cfg.CourseURL,
			Dur:     p.clock.Now().Sub(started),
			Note:    err.Error(),
		})
		return RunResult{}, fmt.Errorf("discover pages: %w", err)
	}
	if p.filter != nil {
		pages = p.filter(pages)
	}
	logger.Info("pages scheduled", zap.Int("pages", len(pages)))

	capturer := NewCapturer(p.browser, p.store, p.cfg, logger.Named("capture"))
	capturer.events = p.events
	capturer.clock = p.clock
	capturer.hasher = p.hasher
	capturer.runID = runID

	pool := NewPool(p.cfg.Concurrency, logger.Named("pool"))
	result := pool.Run(ctx, pages, p.worker(runID, capturer, logger))
	result.RunID = rawID.String()
	result.Started = started
	result.Finished = p.clock.Now()

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	p.finish(finishCtx, logger, result)
	cancel()

	if err := ctx.Err(); err != nil {
		p.emit(runID, progress.Event{
			Stage: progress.StageRunError,
			Index: -1,
			Dur:   result.Finished.Sub(started),
			Note:  err.Error(),
		})
		return result, fmt.Errorf("run interrupted: %w", err)
	}
	p.emit(runID, progress.Event{
		Stage:   progress.StageRunDone,
		Index:   -1,
		Locator: p.cfg.CourseURL,
		Dur:     result.Finished.Sub(started),
		Note:    fmt.Sprintf("%d succeeded, %d failed", len(result.Successes), len(result.Failures)),
	})
	logger.Info("archival run finished",
		zap.Int("succeeded", len(result.Successes)),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("elapsed", result.Finished.Sub(started)),
	)
	return result, nil
}

// worker wraps a single capture in the run's retry policy and reports the
// page lifecycle as progress events.
func (p *Pipeline) worker(runID [16]byte, capturer *Capturer, logger *zap.Logger) Worker {
	return func(ctx context.Context, page PageDescriptor) (Success, error) {
		begin := p.clock.Now()
		p.emit(runID, progress.Event{Stage: progress.StagePageStart, Index: page.Index, Locator: page.Locator})

		policy := p.cfg.Retry.WithObserver(func(a RetryAttempt) {
			logger.Warn("page capture attempt failed",
				zap.Int("index", page.Index),
				zap.String("locator", page.Locator),
				zap.Int("attempt", a.Attempt),
				zap.Error(a.Err),
			)
			p.emit(runID, progress.Event{
				Stage:   progress.StagePageRetry,
				Index:   page.Index,
				Locator: page.Locator,
				Attempt: a.Attempt,
				Note:    a.Err.Error(),
			})
		})
		success, err := Retry(ctx, policy, func(ctx context.Context) (Success, error) {
			return capturer.Capture(ctx, page)
		})
		elapsed := p.clock.Now().Sub(begin)
		if elapsed < 0 {
			elapsed = 0
		}
		if err != nil {
			logger.Error("page capture failed",
				zap.Int("index", page.Index),
				zap.String("locator", page.Locator),
				zap.Error(err),
			)
			p.emit(runID, progress.Event{
				Stage:   progress.StagePageFailed,
				Index:   page.Index,
				Locator: page.Locator,
				Dur:     elapsed,
				Note:    err.Error(),
			})
			return Success{}, err
		}
		logger.Info("page archived",
			zap.Int("index", page.Index),
			zap.String("path", success.ArtifactPath),
		)
		p.emit(runID, progress.Event{
			Stage:   progress.StagePageDone,
			Index:   page.Index,
			Locator: page.Locator,
			Path:    success.ArtifactPath,
			Format:  string(p.cfg.Format),
			Bytes:   success.Bytes,
			Dur:     elapsed,
		})
		return success, nil
	}
}

// finish writes the manifest and publishes the summary. Neither affects the
// run outcome.
func (p *Pipeline) finish(ctx context.Context, logger *zap.Logger, result RunResult) {
	if !p.cfg.WriteManifest && p.publisher == nil {
		return
	}
	manifest := NewManifest(p.cfg, result)
	if p.cfg.WriteManifest {
		path, err := WriteManifest(ctx, p.store, p.cfg.OutputDir, manifest)
		if err != nil {
			logger.Warn("manifest not written", zap.Error(err))
		} else {
			logger.Debug("manifest written", zap.String("path", path))
		}
	}
	if p.publisher != nil {
		msgID, err := p.publisher.Publish(ctx, manifest)
		if err != nil {
			logger.Warn("run summary not published", zap.Error(err))
		} else {
			logger.Debug("run summary published", zap.String("message_id", msgID))
		}
	}
}

func (p *Pipeline) emit(runID [16]byte, evt progress.Event) {
	evt.RunID = runID
	evt.TS = p.clock.Now()
	p.events.Emit(evt)
}
