package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/course-archiver/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms follow the event stream.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Index: -1},
		{RunID: runID, TS: now, Stage: progress.StagePageStart, Index: 0},
		{RunID: runID, TS: now, Stage: progress.StagePageStart, Index: 1},
		{RunID: runID, TS: now, Stage: progress.StagePageRetry, Index: 1, Attempt: 1},
		{RunID: runID, TS: now, Stage: progress.StagePageNote, Index: 1, Note: "prettify failed"},
		{
			RunID:  runID,
			TS:     now,
			Stage:  progress.StagePageDone,
			Index:  0,
			Format: "document",
			Bytes:  2048,
			Dur:    3 * time.Second,
		},
		{RunID: runID, TS: now, Stage: progress.StagePageFailed, Index: 1, Dur: time.Second},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Index: -1, Dur: time.Minute},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.pagesActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesTotal.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesTotal.WithLabelValues("failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pageRetries))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pageNotes))
	require.InDelta(t, 2048.0, testutil.ToFloat64(sink.artifactBytes.WithLabelValues("document")), 1e-9)
	require.Equal(t, 2, testutil.CollectAndCount(sink.pageDuration, "archiver_page_duration_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	runID := progress.UUIDToBytes(uuid.New())

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StagePageDone, Index: 2, Path: "Archive/3 - Intro.pdf", Bytes: 10},
		{RunID: runID, TS: time.Now(), Stage: progress.StagePageFailed, Index: 3, Note: "boom"},
	}))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zap.DebugLevel, entries[0].Level)
	require.Equal(t, "Archive/3 - Intro.pdf", entries[0].ContextMap()["path"])
	require.Equal(t, zap.WarnLevel, entries[1].Level)
	require.Equal(t, "boom", entries[1].ContextMap()["note"])
	require.NoError(t, sink.Close(context.Background()))
}
