package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics
type Metrics struct {
	DocumentsProcessed prometheus.Counter
	DocumentsFailed    *prometheus.CounterVec
	DocumentsNoPricing prometheus.Counter
	BytesDownloaded    prometheus.Counter
	ProcessingTime     prometheus.Histogram
	RunsFinished       *prometheus.CounterVec
}

// NewMetrics creates new prometheus metrics
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		DocumentsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_processed_total",
			Help:      "The total number of sailing documents synchronized successfully",
		}),
		DocumentsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_failed_total",
			Help:      "The total number of documents that failed, by failure reason",
		}, []string{"reason"}),
		DocumentsNoPricing: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_no_pricing_total",
			Help:      "The total number of documents upserted with no usable pricing",
		}),
		BytesDownloaded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_bytes_downloaded_total",
			Help:      "Bytes downloaded from the remote archive",
		}),
		ProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_processing_time_seconds",
			Help:      "Time taken to download, normalize and upsert one document",
			Buckets:   prometheus.DefBuckets,
		}),
		RunsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_finished_total",
			Help:      "Finished sync runs, by mode and outcome",
		}, []string{"mode", "outcome"}),
	}
}
