package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdavenport/webknowledge/internal/ingest"
	"github.com/sdavenport/webknowledge/internal/progress"
)

func TestPrometheusSinkTracksState(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now().UTC()
	batch := []progress.Event{
		{TS: now, Kind: progress.KindCrawlState, State: progress.StateCrawling},
		{TS: now, Kind: progress.KindEmbedState, State: progress.StateEmbedding},
		{TS: now, Kind: progress.KindRecordStatus, Record: &ingest.Record{
			ID: "r1", Status: ingest.StatusQueued,
		}},
		{TS: now, Kind: progress.KindRecordStatus, Record: &ingest.Record{
			ID: "r1", Status: ingest.StatusCompleted,
		}},
		{TS: now, Kind: progress.KindCrawlState, State: progress.StateIdle},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	assert.Equal(t, 0.0, testutil.ToFloat64(sink.crawlActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.embedActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.crawlRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.ingestSweeps))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.recordTransitions.WithLabelValues("queued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.recordTransitions.WithLabelValues("completed")))
}

func TestPrometheusSinkDoubleRegisterFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
