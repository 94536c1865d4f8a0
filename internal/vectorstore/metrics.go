package vectorstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchesTotal counts hybrid searches.
	// Labels: provider (sqlite, qdrant, chromem), result (success, error)
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievald",
			Subsystem: "vectorstore",
			Name:      "searches_total",
			Help:      "Total number of hybrid searches",
		},
		[]string{"provider", "result"},
	)

	// SearchDuration tracks how long hybrid searches take.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrievald",
			Subsystem: "vectorstore",
			Name:      "search_duration_seconds",
			Help:      "Duration of hybrid search operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// SearchHits tracks how many hits a search returned.
	SearchHits = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrievald",
			Subsystem: "vectorstore",
			Name:      "search_hits",
			Help:      "Number of hits returned per hybrid search",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"provider"},
	)

	// DocumentsAdded counts index nodes written per provider.
	DocumentsAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievald",
			Subsystem: "vectorstore",
			Name:      "documents_added_total",
			Help:      "Total number of index nodes written",
		},
		[]string{"provider"},
	)
)

// instrumentedStore decorates a VectorStore with Prometheus metrics. The
// Factory wraps every backend it hands out.
type instrumentedStore struct {
	inner VectorStore
}

func newInstrumentedStore(inner VectorStore) VectorStore {
	return &instrumentedStore{inner: inner}
}

func (s *instrumentedStore) Type() string {
	return s.inner.Type()
}

func (s *instrumentedStore) AddTexts(ctx context.Context, docs []Document, vectors [][]float32) error {
	err := s.inner.AddTexts(ctx, docs, vectors)
	if err == nil {
		DocumentsAdded.WithLabelValues(s.inner.Type()).Add(float64(len(docs)))
	}
	return err
}

func (s *instrumentedStore) SearchByHybrid(ctx context.Context, query string, vector []float32, opts SearchOptions) ([]HitDocument, error) {
	start := time.Now()
	hits, err := s.inner.SearchByHybrid(ctx, query, vector, opts)

	provider := s.inner.Type()
	SearchDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		SearchesTotal.WithLabelValues(provider, "error").Inc()
		return nil, err
	}
	SearchesTotal.WithLabelValues(provider, "success").Inc()
	SearchHits.WithLabelValues(provider).Observe(float64(len(hits)))
	return hits, nil
}

func (s *instrumentedStore) Delete(ctx context.Context) error {
	return s.inner.Delete(ctx)
}

func (s *instrumentedStore) Close() error {
	return s.inner.Close()
}
