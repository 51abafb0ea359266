package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BytesIngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fmp4hlsd",
		Name:      "bytes_ingested_total",
		Help:      "Total bytes pushed into the segmenter by stream.",
	}, []string{"stream"})

	SegmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fmp4hlsd",
		Name:      "segments_total",
		Help:      "Total completed media segments by stream.",
	}, []string{"stream"})

	SegmentDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fmp4hlsd",
		Name:      "segment_duration_seconds",
		Help:      "Duration of completed media segments in seconds.",
		Buckets:   []float64{0.5, 1, 2, 4, 6, 10},
	})

	ParseErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fmp4hlsd",
		Name:      "parse_errors_total",
		Help:      "Total fatal parse errors by stream.",
	}, []string{"stream"})

	ActiveIngests = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fmp4hlsd",
		Name:      "active_ingests",
		Help:      "Number of ingest connections currently feeding a stream.",
	})

	RetainedBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fmp4hlsd",
		Name:      "retained_bytes",
		Help:      "Bytes currently held by the retention ring, init segment included.",
	}, []string{"stream"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fmp4hlsd",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method and status code.",
	}, []string{"method", "status"})
)

// Register adds all collectors to the given registry, or the default one
// when nil.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		BytesIngestedTotal,
		SegmentsTotal,
		SegmentDuration,
		ParseErrorsTotal,
		ActiveIngests,
		RetainedBytes,
		HTTPRequestsTotal,
	)
}
