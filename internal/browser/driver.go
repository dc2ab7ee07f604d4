// Package browser drives headless Chrome through chromedp. A Driver owns one
// browser process and one cookie jar; every Scope it hands out is a separate
// tab in that browser, so a single login authenticates all of them.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/course-archiver/internal/archiver"
)

// ErrClosed is returned when a scope is requested from a closed Driver.
var ErrClosed = errors.New("browser closed")

const (
	defaultNavigationTimeout = 60 * time.Second
	defaultWindowWidth       = 1280
	defaultWindowHeight      = 1024
)

// Pacer throttles navigations. ratelimit.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context, locator string) error
}

// Config controls the browser process and per-tab behavior.
type Config struct {
	Headless  bool
	NoSandbox bool
	UserAgent string
	// NavigationTimeout bounds every individual browser operation.
	NavigationTimeout time.Duration
	WindowWidth       int
	WindowHeight      int
	// MaxTabs caps concurrently open scopes; zero means unlimited.
	MaxTabs int
	Pacer   Pacer
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = defaultNavigationTimeout
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = defaultWindowWidth
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = defaultWindowHeight
	}
	return c
}

// Driver owns the Chrome allocator and the shared browser context.
type Driver struct {
	cfg             Config
	logger          *zap.Logger
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	sem             chan struct{}
}

// New launches Chrome and waits until the browser is ready.
func New(cfg Config, logger *zap.Logger) (*Driver, error) {
	if cfg.MaxTabs < 0 {
		return nil, fmt.Errorf("max tabs must be >= 0")
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	var sem chan struct{}
	if cfg.MaxTabs > 0 {
		sem = make(chan struct{}, cfg.MaxTabs)
	}
	logger.Debug("browser started", zap.Bool("headless", cfg.Headless))
	return &Driver{
		cfg:             cfg,
		logger:          logger,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		sem:             sem,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// NewScope opens a new tab. The caller must Close it.
func (d *Driver) NewScope(ctx context.Context) (archiver.Scope, error) {
	tab, err := d.newTab(ctx)
	if err != nil {
		return nil, err
	}
	return tab, nil
}

func (d *Driver) newTab(ctx context.Context) (*Scope, error) {
	if d == nil || d.browserCtx == nil {
		return nil, ErrClosed
	}
	if err := d.browserCtx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClosed, err)
	}
	release, err := d.acquireSlot(ctx)
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(d.browserCtx)
	meta := newResponseMeta()
	meta.listen(tabCtx)
	scope := &Scope{
		driver:  d,
		tabCtx:  tabCtx,
		cancel:  cancelTab,
		meta:    meta,
		release: release,
	}
	if err := scope.attach(ctx, d.cfg.NavigationTimeout); err != nil {
		_ = scope.Close()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return scope, nil
}

// attach creates the tab's target. chromedp binds a tab's event loop to the
// context of its first Run, so that Run must use tabCtx itself; ctx and
// timeout cancel the whole tab instead of a derived context.
func (s *Scope) attach(ctx context.Context, timeout time.Duration) error {
	timer := time.AfterFunc(timeout, s.cancel)
	stopForward := forwardCancel(ctx, s.cancel)
	err := chromedp.Run(s.tabCtx)
	stopForward()
	timedOut := !timer.Stop()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	if timedOut {
		return fmt.Errorf("attach exceeded %s: %w", timeout, context.DeadlineExceeded)
	}
	if err != nil {
		return err
	}
	return s.tabCtx.Err()
}

func (d *Driver) acquireSlot(ctx context.Context) (func(), error) {
	if d.sem == nil {
		return func() {}, nil
	}
	select {
	case d.sem <- struct{}{}:
		return func() { <-d.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire tab slot: %w", ctx.Err())
	}
}

// Close tears down the browser and allocator contexts.
func (d *Driver) Close() error {
	if d == nil {
		return nil
	}
	if d.browserCancel != nil {
		d.browserCancel()
	}
	if d.allocatorCancel != nil {
		d.allocatorCancel()
	}
	return nil
}

// forwardCancel cancels a derived context when parent is done. The returned
// func stops the forwarding goroutine.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
