package archiver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/course-archiver/internal/progress"
)

// Capturer drives one page through open, title extraction, prettify, settle
// and persist. Every call owns a fresh browser scope, so a failed attempt
// restarts from navigation.
type Capturer struct {
	browser Browser
	store   Storage
	cfg     RunConfig
	logger  *zap.Logger

	events progress.Emitter
	clock  Clock
	hasher Hasher
	runID  [16]byte
}

// NewCapturer builds a Capturer that shares browser and store across calls.
func NewCapturer(browser Browser, store Storage, cfg RunConfig, logger *zap.Logger) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{
		browser: browser,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		events:  progress.Discard,
	}
}

// Capture archives a single page and returns where the artifact was written.
func (c *Capturer) Capture(ctx context.Context, page PageDescriptor) (Success, error) {
	scope, err := c.browser.NewScope(ctx)
	if err != nil {
		return Success{}, stageError(ErrNavigation, page.Locator, fmt.Errorf("open scope: %w", err))
	}
	defer func() {
		if cerr := scope.Close(); cerr != nil {
			c.logger.Warn("close page scope failed", zap.Int("index", page.Index), zap.Error(cerr))
		}
	}()

	if err := scope.Navigate(ctx, page.Locator); err != nil {
		return Success{}, stageError(ErrNavigation, page.Locator, err)
	}

	title, err := c.extractTitle(ctx, scope)
	if err != nil {
		return Success{}, stageError(ErrExtraction, page.Locator, err)
	}
	page.Title = title

	c.prettify(ctx, scope, page)

	if err := c.settle(ctx, scope); err != nil {
		return Success{}, stageError(ErrSettleTimeout, page.Locator, err)
	}

	success, err := c.persist(ctx, scope, page)
	if err != nil {
		return Success{}, stageError(ErrPersistence, page.Locator, err)
	}
	return success, nil
}

func (c *Capturer) extractTitle(ctx context.Context, scope Scope) (string, error) {
	html, err := scope.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	raw, err := ExtractTitle(html, c.cfg.Selectors.Title)
	if err != nil {
		return "", err
	}
	return NormalizeTitle(raw, c.cfg.Selectors.TitlePrefix), nil
}

// prettify applies cosmetic adjustments. Failures only affect how the
// artifact looks, so they are logged and never abort the page.
func (c *Capturer) prettify(ctx context.Context, scope Scope, page PageDescriptor) {
	for i, script := range c.cfg.PrettifyScripts {
		if err := scope.Evaluate(ctx, script, nil); err != nil {
			c.logger.Warn("prettify script failed",
				zap.Int("index", page.Index),
				zap.Int("script", i),
				zap.Error(err),
			)
			c.emit(progress.Event{
				Stage:   progress.StagePageNote,
				Index:   page.Index,
				Locator: page.Locator,
				Note:    fmt.Sprintf("prettify script %d: %v", i, err),
			})
		}
	}
}

func (c *Capturer) settle(ctx context.Context, scope Scope) error {
	if c.cfg.SettleSignal != "" {
		if err := scope.WaitFor(ctx, c.cfg.SettleSignal, c.cfg.SettleTimeout); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
				return fmt.Errorf("wait for render signal: %w", ctxErr)
			}
			return fmt.Errorf("render signal not seen within %s: %w", c.cfg.SettleTimeout, err)
		}
	}
	if err := sleep(ctx, c.cfg.SettleDelay); err != nil {
		return fmt.Errorf("settle delay: %w", err)
	}
	return nil
}

func (c *Capturer) persist(ctx context.Context, scope Scope, page PageDescriptor) (Success, error) {
	path := ResolvePath(c.cfg.OutputDir, page, c.cfg.Format)
	if err := c.store.EnsureDir(ctx, c.cfg.OutputDir); err != nil {
		return Success{}, fmt.Errorf("ensure output dir: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch c.cfg.Format {
	case FormatImage:
		data, err = scope.CaptureImage(ctx)
	default:
		data, err = scope.CaptureDocument(ctx)
	}
	if err != nil {
		return Success{}, fmt.Errorf("capture %s: %w", c.cfg.Format, err)
	}

	if err := c.store.WriteFile(ctx, path, data); err != nil {
		return Success{}, fmt.Errorf("write %s: %w", path, err)
	}
	success := Success{Page: page, ArtifactPath: path, Bytes: int64(len(data))}
	if c.hasher != nil {
		sum, err := c.hasher.Hash(data)
		if err != nil {
			c.logger.Warn("artifact checksum failed", zap.Int("index", page.Index), zap.Error(err))
		} else {
			success.Checksum = sum
		}
	}
	return success, nil
}

func (c *Capturer) emit(evt progress.Event) {
	if c.runID == [16]byte{} {
		return
	}
	evt.RunID = c.runID
	if c.clock != nil {
		evt.TS = c.clock.Now()
	}
	c.events.Emit(evt)
}
