package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	pollInterval      = 100 * time.Millisecond
	screenshotQuality = 100
)

// Scope is one browser tab. Once attached, operations run against the tab
// context with a per-operation timeout and are also cancelled when the
// caller's ctx ends.
type Scope struct {
	driver  *Driver
	tabCtx  context.Context
	cancel  context.CancelFunc
	meta    *responseMeta
	release func()
	once    sync.Once
}

// Navigate loads locator and waits for the body to be ready. A document
// response with an HTTP error status fails the navigation.
func (s *Scope) Navigate(ctx context.Context, locator string) error {
	if pacer := s.driver.cfg.Pacer; pacer != nil {
		if err := pacer.Wait(ctx, locator); err != nil {
			return fmt.Errorf("pace navigation: %w", err)
		}
	}
	s.meta.reset()
	if err := s.run(ctx, s.driver.cfg.NavigationTimeout,
		network.Enable(),
		chromedp.Navigate(locator),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", locator, err)
	}
	if status := s.meta.status(); status >= 400 {
		return fmt.Errorf("navigate %s: http status %d", locator, status)
	}
	return nil
}

// Evaluate runs script as a statement block. When out is non-nil the script
// must evaluate to a value that can be decoded into it.
func (s *Scope) Evaluate(ctx context.Context, script string, out any) error {
	if out == nil {
		var ok bool
		if err := s.run(ctx, s.driver.cfg.NavigationTimeout, chromedp.Evaluate(wrapStatements(script), &ok)); err != nil {
			return fmt.Errorf("evaluate script: %w", err)
		}
		return nil
	}
	if err := s.run(ctx, s.driver.cfg.NavigationTimeout, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	return nil
}

// HTML returns the rendered document.
func (s *Scope) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.driver.cfg.NavigationTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return html, nil
}

// WaitFor polls expression until it is truthy or timeout elapses.
func (s *Scope) WaitFor(ctx context.Context, expression string, timeout time.Duration) error {
	var ok bool
	err := s.run(ctx, timeout+time.Second, chromedp.Poll(expression, &ok,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(pollInterval),
	))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chromedp.ErrPollingTimeout):
		return fmt.Errorf("wait for %q: %w", expression, context.DeadlineExceeded)
	default:
		return fmt.Errorf("wait for %q: %w", expression, err)
	}
}

// CaptureImage takes a full-page PNG screenshot.
func (s *Scope) CaptureImage(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, s.driver.cfg.NavigationTimeout, chromedp.FullScreenshot(&buf, screenshotQuality)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

// CaptureDocument prints the page to PDF with backgrounds.
func (s *Scope) CaptureDocument(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, s.driver.cfg.NavigationTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	return buf, nil
}

// Close closes the tab and frees its slot. It is safe to call more than once.
func (s *Scope) Close() error {
	s.once.Do(func() {
		s.cancel()
		if s.release != nil {
			s.release()
		}
	})
	return nil
}

func (s *Scope) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancelTask := context.WithTimeout(s.tabCtx, timeout)
	defer cancelTask()
	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ctxErr, err)
		}
		return err
	}
	return nil
}

func wrapStatements(script string) string {
	return "(function(){\n" + script + "\n;return true;})()"
}

// responseMeta records the status of the first document response seen since
// the last reset. Later documents belong to frames.
type responseMeta struct {
	mu         sync.Mutex
	statusCode int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) listen(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if resp, ok := ev.(*network.EventResponseReceived); ok {
			m.capture(resp)
		}
	})
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusCode == 0 {
		m.statusCode = int(event.Response.Status)
	}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCode = 0
}

func (m *responseMeta) status() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCode
}
