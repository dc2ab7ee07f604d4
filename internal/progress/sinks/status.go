package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/course-archiver/internal/progress"
)

// Run and page states reported by StatusSink.
const (
	StateIdle     = "idle"
	StateRunning  = "running"
	StateRetrying = "retrying"
	StateDone     = "done"
	StateFailed   = "failed"
	StateError    = "error"
)

// PageStatus is the latest known state of one page.
type PageStatus struct {
	Index    int       `json:"index"`
	Locator  string    `json:"locator"`
	State    string    `json:"state"`
	Attempts int       `json:"attempts"`
	Path     string    `json:"path,omitempty"`
	Bytes    int64     `json:"bytes,omitempty"`
	Error    string    `json:"error,omitempty"`
	Notes    []string  `json:"notes,omitempty"`
	Updated  time.Time `json:"updated"`
}

// StatusCounts tallies pages by state.
type StatusCounts struct {
	Running int `json:"running"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Retries int `json:"retries"`
}

// RunStatus is a point-in-time copy of the run.
type RunStatus struct {
	RunID    string       `json:"run_id,omitempty"`
	State    string       `json:"state"`
	Started  time.Time    `json:"started,omitempty"`
	Finished time.Time    `json:"finished,omitempty"`
	Note     string       `json:"note,omitempty"`
	Counts   StatusCounts `json:"counts"`
	Pages    []PageStatus `json:"pages"`
}

// StatusSink folds progress events into a queryable snapshot.
type StatusSink struct {
	mu    sync.RWMutex
	run   RunStatus
	pages map[int]*PageStatus
}

// NewStatusSink returns an idle StatusSink.
func NewStatusSink() *StatusSink {
	return &StatusSink{
		run:   RunStatus{State: StateIdle},
		pages: map[int]*PageStatus{},
	}
}

// Consume applies every event in the batch in order.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.apply(evt)
	}
	return nil
}

func (s *StatusSink) apply(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.run = RunStatus{RunID: evt.RunUUID().String(), State: StateRunning, Started: evt.TS}
		s.pages = map[int]*PageStatus{}
		return
	case progress.StageRunDone:
		s.run.State = StateDone
		s.run.Finished = evt.TS
		s.run.Note = evt.Note
		return
	case progress.StageRunError:
		s.run.State = StateError
		s.run.Finished = evt.TS
		s.run.Note = evt.Note
		return
	}

	page, ok := s.pages[evt.Index]
	if !ok {
		page = &PageStatus{Index: evt.Index}
		s.pages[evt.Index] = page
	}
	if evt.Locator != "" {
		page.Locator = evt.Locator
	}
	page.Updated = evt.TS
	switch evt.Stage {
	case progress.StagePageStart:
		page.State = StateRunning
		page.Attempts = 1
	case progress.StagePageRetry:
		page.State = StateRetrying
		page.Attempts = evt.Attempt + 1
		page.Error = evt.Note
	case progress.StagePageDone:
		page.State = StateDone
		page.Path = evt.Path
		page.Bytes = evt.Bytes
		page.Error = ""
	case progress.StagePageFailed:
		page.State = StateFailed
		page.Error = evt.Note
	case progress.StagePageNote:
		page.Notes = append(page.Notes, evt.Note)
	}
}

// Snapshot returns a copy of the run with pages ordered by index.
func (s *StatusSink) Snapshot() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.run
	out.Counts = StatusCounts{}
	out.Pages = make([]PageStatus, 0, len(s.pages))
	for _, page := range s.pages {
		switch page.State {
		case StateRunning, StateRetrying:
			out.Counts.Running++
		case StateDone:
			out.Counts.Done++
		case StateFailed:
			out.Counts.Failed++
		}
		if page.Attempts > 1 {
			out.Counts.Retries += page.Attempts - 1
		}
		out.Pages = append(out.Pages, copyPage(page))
	}
	sort.Slice(out.Pages, func(i, j int) bool { return out.Pages[i].Index < out.Pages[j].Index })
	return out
}

// Page returns the status of the page with the given discovery index.
func (s *StatusSink) Page(index int) (PageStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[index]
	if !ok {
		return PageStatus{}, false
	}
	return copyPage(page), true
}

func copyPage(p *PageStatus) PageStatus {
	out := *p
	out.Notes = append([]string(nil), p.Notes...)
	return out
}

// Close implements the Sink interface. The snapshot stays readable.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
