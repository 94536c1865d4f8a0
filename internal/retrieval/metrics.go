package retrieval

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetrievalsTotal counts retrieval calls.
	// Labels: result (success, invalid_argument, not_found, forbidden,
	// not_ready, provider_error, error)
	RetrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievald",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total number of retrieval requests",
		},
		[]string{"result"},
	)

	// RetrievalDuration tracks end-to-end retrieval latency.
	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "retrievald",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Duration of retrieval requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// RetrievalRecords tracks how many records a retrieval returned.
	RetrievalRecords = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "retrievald",
			Subsystem: "retrieval",
			Name:      "records",
			Help:      "Number of records returned per retrieval",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		},
	)
)

// resultLabel buckets an error into the requests_total result label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrDatasetNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrDatasetNotInitialized):
		return "not_ready"
	case errors.Is(err, ErrProviderNotConfigured),
		errors.Is(err, ErrProviderQuotaExceeded),
		errors.Is(err, ErrModelNotSupported),
		errors.Is(err, ErrInvalidProviderRequest):
		return "provider_error"
	default:
		return "error"
	}
}
