package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики оркестратора. Регистрируются в DefaultRegisterer при импорте;
// /metrics отдаётся promhttp в main каждого бинаря.
var (
	// RunsStarted — количество зарегистрированных runs.
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatekeeper_runs_started_total",
		Help: "Total number of runs registered.",
	})

	// RunsSuperseded — количество runs, вытесненных более новым событием
	// того же изменения.
	RunsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatekeeper_runs_superseded_total",
		Help: "Total number of runs cancelled because a newer event arrived for the same change.",
	})

	// RunsFinished — завершённые runs по терминальному статусу.
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_runs_finished_total",
		Help: "Total number of finished runs by terminal status.",
	}, []string{"status"})

	// JobsLaunched — запущенные внешние jobs.
	JobsLaunched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatekeeper_jobs_launched_total",
		Help: "Total number of jobs launched on the execution substrate.",
	})

	// JobsSkipped — пропущенные jobs по причине пропуска.
	JobsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_jobs_skipped_total",
		Help: "Total number of jobs skipped by reason.",
	}, []string{"reason"})

	// JobsFailed — jobs, которые не удалось запустить или которые упали.
	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatekeeper_jobs_failed_total",
		Help: "Total number of jobs that failed to launch or finished unsuccessfully.",
	})

	// RunDuration — длительность run от создания до терминального статуса.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gatekeeper_run_duration_seconds",
		Help:    "Run duration from registration to terminal status.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)
