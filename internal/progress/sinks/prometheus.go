package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nohvenell/steam-game-crawler/internal/progress"
)

// PrometheusSink exports crawl progress via Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	gamesSynced  prometheus.Counter
	gamesFailed  *prometheus.CounterVec
	gamesSkipped *prometheus.CounterVec

	batchesFlushed prometheus.Counter
	batchSize      prometheus.Histogram
	flushDuration  prometheus.Histogram
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_runs_started_total",
			Help: "Total crawl runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_runs_completed_total",
			Help: "Total crawl runs completed partitioned by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
		}, []string{"result"}),
		gamesSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_games_synced_total",
			Help: "Games successfully synchronized to the store.",
		}),
		gamesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_games_failed_total",
			Help: "Games that failed partitioned by failure category.",
		}, []string{"category"}),
		gamesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_games_skipped_total",
			Help: "Games intentionally skipped partitioned by reason.",
		}, []string{"category"}),
		batchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_batches_flushed_total",
			Help: "Synchronization batches flushed.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_batch_size",
			Help:    "Records per flushed batch.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_batch_flush_duration_seconds",
			Help:    "Latency of batch flushes including the transaction.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runDuration,
		s.gamesSynced,
		s.gamesFailed,
		s.gamesSkipped,
		s.batchesFlushed,
		s.batchSize,
		s.flushDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent use.
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
		s.observeRun(evt, "success")
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observeRun(evt, "error")
	case progress.StageGameSynced:
		s.gamesSynced.Inc()
	case progress.StageGameFailed:
		s.gamesFailed.WithLabelValues(string(evt.Category)).Inc()
	case progress.StageGameSkipped:
		s.gamesSkipped.WithLabelValues(string(evt.Category)).Inc()
	case progress.StageBatchFlushed:
		s.batchesFlushed.Inc()
		s.batchSize.Observe(float64(evt.BatchSize))
		if evt.Dur > 0 {
			s.flushDuration.Observe(evt.Dur.Seconds())
		}
	}
}

func (s *PrometheusSink) observeRun(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
