package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	StreamsStarted   prometheus.Counter
	StreamsFinalized prometheus.Counter
	StreamsFailed    prometheus.Counter
	ChunksReceived   prometheus.Counter
	ActiveStreams    prometheus.Gauge

	PollsTotal       prometheus.Counter
	MediaAppended    prometheus.Counter
	ImportsCompleted prometheus.Counter
	ImportsFailed    prometheus.Counter
	ActiveImportJobs prometheus.Gauge
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			StreamsStarted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "adconsole",
				Name:      "streams_started_total",
				Help:      "Total prompt execution streams opened",
			}),
			StreamsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "adconsole",
				Name:      "streams_finalized_total",
				Help:      "Total prompt execution streams that finished with a result",
			}),
			StreamsFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "adconsole",
				Name:      "streams_failed_total",
				Help:      "Total prompt execution streams that ended in error",
			}),
			ChunksReceived: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "adconsole",
				Name:      "stream_chunks_total",
				Help:      "Total streamed output chunks received",
			}),
			ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "adconsole",
				Name:      "streams_active",
				Help:      "Prompt execution streams currently in flight",
			}),
			PollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "adconsole",
				Name:      "import_polls_total",
				Help:      "Total import job status polls issued",
			}),
			MediaAppended: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "adconsole",
				Name:      "media_appended_total",
				Help:      "Total media items appended to the library grid",
			}),
			ImportsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "adconsole",
				Name:      "imports_completed_total",
				Help:      "Total imports that reached a terminal complete state",
			}),
			ImportsFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "adconsole",
				Name:      "imports_failed_total",
				Help:      "Total imports that reached a terminal failed state",
			}),
			ActiveImportJobs: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "adconsole",
				Name:      "import_jobs_active",
				Help:      "Server-side import jobs currently being polled",
			}),
		}
		prometheus.MustRegister(
			global.StreamsStarted,
			global.StreamsFinalized,
			global.StreamsFailed,
			global.ChunksReceived,
			global.ActiveStreams,
			global.PollsTotal,
			global.MediaAppended,
			global.ImportsCompleted,
			global.ImportsFailed,
			global.ActiveImportJobs,
		)
	})
	return global
}
