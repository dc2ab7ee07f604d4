package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/course-archiver/internal/progress"
)

// PrometheusSink turns progress events into archiver_* collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   prometheus.Histogram

	pagesActive   prometheus.Gauge
	pagesTotal    *prometheus.CounterVec
	pageRetries   prometheus.Counter
	pageNotes     prometheus.Counter
	pageDuration  *prometheus.HistogramVec
	artifactBytes *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against reg (the default
// registerer when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_runs_started_total",
			Help: "Archival runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_runs_completed_total",
			Help: "Archival runs that finished, partitioned by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "archiver_run_duration_seconds",
			Help:    "Wall time per archival run.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		pagesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archiver_pages_active",
			Help: "Pages currently being captured.",
		}),
		pagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_pages_total",
			Help: "Pages that reached a terminal outcome, partitioned by result.",
		}, []string{"result"}),
		pageRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_page_retries_total",
			Help: "Page capture attempts that failed and were retried.",
		}),
		pageNotes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_page_notes_total",
			Help: "Non-fatal issues recorded while capturing pages.",
		}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "archiver_page_duration_seconds",
			Help:    "Time from page start to terminal outcome, including retries.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"result"}),
		artifactBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_artifact_bytes_total",
			Help: "Bytes written to artifacts, partitioned by format.",
		}, []string{"format"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runDuration,
		s.pagesActive,
		s.pagesTotal,
		s.pageRetries,
		s.pageNotes,
		s.pageDuration,
		s.artifactBytes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		s.observe(s.runDuration, evt)
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observe(s.runDuration, evt)
	case progress.StagePageStart:
		s.pagesActive.Inc()
	case progress.StagePageRetry:
		s.pageRetries.Inc()
	case progress.StagePageNote:
		s.pageNotes.Inc()
	case progress.StagePageDone:
		s.finishPage(evt, "success")
		if evt.Bytes > 0 {
			format := evt.Format
			if format == "" {
				format = "unknown"
			}
			s.artifactBytes.WithLabelValues(format).Add(float64(evt.Bytes))
		}
	case progress.StagePageFailed:
		s.finishPage(evt, "failure")
	}
}

func (s *PrometheusSink) finishPage(evt progress.Event, result string) {
	s.pagesActive.Dec()
	s.pagesTotal.WithLabelValues(result).Inc()
	s.observe(s.pageDuration.WithLabelValues(result), evt)
}

func (s *PrometheusSink) observe(obs prometheus.Observer, evt progress.Event) {
	if evt.Dur > 0 {
		obs.Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
