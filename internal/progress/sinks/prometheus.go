package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sdavenport/webknowledge/internal/progress"
)

// PrometheusSink exports ingestion progress metrics. It owns the collectors
// for crawl/embed service state and per-status record transitions.
type PrometheusSink struct {
	crawlActive       prometheus.Gauge
	embedActive       prometheus.Gauge
	crawlRuns         prometheus.Counter
	ingestSweeps      prometheus.Counter
	recordTransitions *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		crawlActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webknowledge_crawl_active",
			Help: "1 while a crawl is in flight, 0 when idle.",
		}),
		embedActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webknowledge_embedding_active",
			Help: "1 while an ingest sweep is in flight, 0 when idle.",
		}),
		crawlRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webknowledge_crawl_runs_total",
			Help: "Total crawl runs started.",
		}),
		ingestSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webknowledge_ingest_sweeps_total",
			Help: "Total ingest sweeps started.",
		}),
		recordTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webknowledge_record_transitions_total",
			Help: "Record lifecycle transitions partitioned by resulting status.",
		}, []string{"status"}),
	}
	for _, collector := range []prometheus.Collector{
		s.crawlActive,
		s.embedActive,
		s.crawlRuns,
		s.ingestSweeps,
		s.recordTransitions,
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
		switch evt.Kind {
		case progress.KindCrawlState:
			if evt.State == progress.StateCrawling {
				s.crawlActive.Set(1)
				s.crawlRuns.Inc()
			} else {
				s.crawlActive.Set(0)
			}
		case progress.KindEmbedState:
			if evt.State == progress.StateEmbedding {
				s.embedActive.Set(1)
				s.ingestSweeps.Inc()
			} else {
				s.embedActive.Set(0)
			}
		case progress.KindRecordStatus:
			if evt.Record != nil {
				s.recordTransitions.WithLabelValues(string(evt.Record.Status)).Inc()
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
