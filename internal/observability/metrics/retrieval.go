package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
)

// RetrievalMetrics observes the retrieval pipeline. It satisfies the retrieval, embedding
// cache and lexical degraded-mode observer interfaces.
type RetrievalMetrics struct {
	service string

	requestsTotal     *prometheus.CounterVec
	candidates        *prometheus.HistogramVec
	confidence        *prometheus.HistogramVec
	gatedTotal        *prometheus.CounterVec
	noResultTotal     *prometheus.CounterVec
	cacheLookupsTotal *prometheus.CounterVec
	degradedTotal     *prometheus.CounterVec
}

func NewRetrievalMetrics(registry prometheus.Registerer, service string) *RetrievalMetrics {
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrievals by lexical mode.",
		},
		[]string{"service", "lexical"},
	)
	candidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "candidates",
			Help:      "Candidates per retrieval by stage.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"service", "stage"},
	)
	confidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "confidence",
			Help:      "Distribution of retrieval confidence.",
			Buckets:   []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
		[]string{"service"},
	)
	gatedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "low_confidence_total",
			Help:      "Retrievals whose confidence skipped generation.",
		},
		[]string{"service"},
	)
	noResultTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "no_result_total",
			Help:      "Retrievals that returned no relevant case.",
		},
		[]string{"service"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding_cache",
			Name:      "lookups_total",
			Help:      "Embedding cache lookups by result.",
		},
		[]string{"service", "result"},
	)
	degradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lexical",
			Name:      "degraded_total",
			Help:      "Times the lexical retriever fell back to dense-only mode, by reason.",
		},
		[]string{"service", "reason"},
	)

	registry.MustRegister(requestsTotal, candidates, confidence, gatedTotal, noResultTotal, cacheLookupsTotal, degradedTotal)

	return &RetrievalMetrics{
		service:           service,
		requestsTotal:     requestsTotal,
		candidates:        candidates,
		confidence:        confidence,
		gatedTotal:        gatedTotal,
		noResultTotal:     noResultTotal,
		cacheLookupsTotal: cacheLookupsTotal,
		degradedTotal:     degradedTotal,
	}
}

func (m *RetrievalMetrics) ObserveRetrieval(stats domain.RetrievalStats) {
	lexical := "degraded"
	if stats.LexicalEnabled {
		lexical = "enabled"
	}
	m.requestsTotal.WithLabelValues(m.service, lexical).Inc()
	m.candidates.WithLabelValues(m.service, "dense").Observe(float64(stats.DenseCount))
	m.candidates.WithLabelValues(m.service, "sparse").Observe(float64(stats.SparseCount))
	m.candidates.WithLabelValues(m.service, "fused").Observe(float64(stats.FusedCount))

	if stats.FusedCount == 0 {
		m.noResultTotal.WithLabelValues(m.service).Inc()
		return
	}
	m.confidence.WithLabelValues(m.service).Observe(stats.Confidence)
	if stats.Gated {
		m.gatedTotal.WithLabelValues(m.service).Inc()
	}
}

func (m *RetrievalMetrics) ObserveEmbeddingCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(m.service, result).Inc()
}

func (m *RetrievalMetrics) ObserveLexicalDegraded(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.degradedTotal.WithLabelValues(m.service, reason).Inc()
}
