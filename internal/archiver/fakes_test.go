package archiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/course-archiver/internal/progress"
)

const testCourseURL = "https://courses.example.com/course/outline"

var errFlaky = errors.New("flaky network")

// fakeBrowser serves canned documents and records scope usage.
type fakeBrowser struct {
	mu sync.Mutex

	docs        map[string]string
	navFailures map[string]int
	navCalls    map[string]int
	navDelay    time.Duration

	scopeErr   error
	evalErr    error
	waitErr    error
	waitBlocks bool
	captureErr error

	opened    int
	closed    int
	active    int
	maxActive int
	evals     int
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		docs:        map[string]string{},
		navFailures: map[string]int{},
		navCalls:    map[string]int{},
	}
}

func (b *fakeBrowser) withOutline(links ...string) *fakeBrowser {
	html := `<html><body><ol class="outline">`
	for _, link := range links {
		html += fmt.Sprintf(`<li><a class="outline-link" href="%s">%s</a></li>`, link, link)
	}
	html += `</ol></body></html>`
	b.docs[testCourseURL] = html
	return b
}

func (b *fakeBrowser) withPage(locator, title string) *fakeBrowser {
	b.docs[locator] = fmt.Sprintf(`<html><body><nav class="breadcrumbs">%s</nav><p>body</p></body></html>`, title)
	return b
}

func (b *fakeBrowser) failNavigation(locator string, times int) *fakeBrowser {
	b.navFailures[locator] = times
	return b
}

func (b *fakeBrowser) NewScope(context.Context) (Scope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scopeErr != nil {
		return nil, b.scopeErr
	}
	b.opened++
	b.active++
	if b.active > b.maxActive {
		b.maxActive = b.active
	}
	return &fakeScope{browser: b}, nil
}

func (b *fakeBrowser) stats() (opened, closed, maxActive int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened, b.closed, b.maxActive
}

func (b *fakeBrowser) navigations(locator string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.navCalls[locator]
}

type fakeScope struct {
	browser *fakeBrowser
	current string
	closed  bool
}

func (s *fakeScope) Navigate(ctx context.Context, locator string) error {
	if s.browser.navDelay > 0 {
		if err := sleep(ctx, s.browser.navDelay); err != nil {
			return err
		}
	}
	b := s.browser
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navCalls[locator]++
	if b.navFailures[locator] > 0 {
		b.navFailures[locator]--
		return fmt.Errorf("navigate %s: %w", locator, errFlaky)
	}
	s.current = locator
	return nil
}

func (s *fakeScope) Evaluate(context.Context, string, any) error {
	s.browser.mu.Lock()
	defer s.browser.mu.Unlock()
	s.browser.evals++
	return s.browser.evalErr
}

func (s *fakeScope) HTML(context.Context) (string, error) {
	s.browser.mu.Lock()
	defer s.browser.mu.Unlock()
	if html, ok := s.browser.docs[s.current]; ok {
		return html, nil
	}
	return "<html><body></body></html>", nil
}

func (s *fakeScope) WaitFor(ctx context.Context, _ string, timeout time.Duration) error {
	if s.browser.waitBlocks {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			return context.DeadlineExceeded
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.browser.waitErr
}

func (s *fakeScope) CaptureImage(context.Context) ([]byte, error) {
	if s.browser.captureErr != nil {
		return nil, s.browser.captureErr
	}
	return []byte("png:" + s.current), nil
}

func (s *fakeScope) CaptureDocument(context.Context) ([]byte, error) {
	if s.browser.captureErr != nil {
		return nil, s.browser.captureErr
	}
	return []byte("pdf:" + s.current), nil
}

func (s *fakeScope) Close() error {
	b := s.browser
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return errors.New("scope closed twice")
	}
	s.closed = true
	b.closed++
	b.active--
	return nil
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) EnsureDir(context.Context, string) error { return nil }

func (failingStore) WriteFile(context.Context, string, []byte) error {
	return errors.New("disk full")
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages(stage progress.Stage) []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Event
	for _, evt := range r.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

type seqIDs struct{}

func (seqIDs) NewRawID() (uuid.UUID, error) { return uuid.NewV7() }

func testRunConfig(dir string) RunConfig {
	return RunConfig{
		CourseURL:   testCourseURL,
		OutputDir:   dir,
		Format:      FormatDocument,
		Concurrency: 2,
		Retry:       RetryPolicy{MaxAttempts: 3},
		Selectors: Selectors{
			Link:        "a.outline-link",
			Title:       "nav.breadcrumbs",
			TitlePrefix: "Intro Course",
		},
		PrettifyScripts: []string{`document.body.dataset.ready = "1"`},
		SettleSignal:    "window.MathJax === undefined",
		SettleTimeout:   time.Second,
	}
}
