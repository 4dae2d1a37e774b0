package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "middlesplit",
			Name:      "jobs_total",
			Help:      "Total split jobs by result (done, failed, cancelled)",
		},
		[]string{"result"},
	)

	sourcesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "middlesplit",
			Name:      "sources_processed_total",
			Help:      "Source documents processed by result",
		},
		[]string{"result"},
	)

	pagesSplit = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "middlesplit",
			Name:      "pages_split_total",
			Help:      "Double-layout pages split, labeled by orientation",
		},
		[]string{"orientation"},
	)

	repaginations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "middlesplit",
			Name:      "repaginations_total",
			Help:      "Destinations repaginated with last-first correction",
		},
	)

	sourceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "middlesplit",
			Name:      "source_duration_seconds",
			Help:      "Time to split one source document",
			Buckets:   prometheus.DefBuckets,
		},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "middlesplit",
			Name:      "queue_depth",
			Help:      "Queue depth gauges for stream, delayed and dlq",
		},
		[]string{"type"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(jobsTotal, sourcesProcessed, pagesSplit, repaginations, sourceDuration, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncJob(result string)    { jobsTotal.WithLabelValues(result).Inc() }
func IncSource(result string) { sourcesProcessed.WithLabelValues(result).Inc() }

func IncPageSplit(orientation string) { pagesSplit.WithLabelValues(orientation).Inc() }
func IncRepagination()                { repaginations.Inc() }

func ObserveSource(dur time.Duration) { sourceDuration.Observe(dur.Seconds()) }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }
