package visibility

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	polygonCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visibility_polygon_count_total",
		Help: "The total number of visibility polygons computed.",
	})

	viewCastCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visibility_view_cast_count_total",
		Help: "The total number of sampled view casts.",
	})

	edgeCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visibility_edge_count_total",
		Help: "The total number of refined silhouette edges.",
	})

	polygonVertices = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "visibility_polygon_vertices",
		Help:    "The number of vertices of computed visibility polygons.",
		Buckets: prometheus.ExponentialBuckets(8, 2, 10),
	})

	polygonLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "visibility_polygon_latency_seconds",
		Help:    "The time taken to compute a visibility polygon.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
	})

	targetScanCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visibility_target_scan_count_total",
		Help: "The total number of target scans.",
	})

	scannedTargets = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "visibility_scanned_targets",
		Help:    "The number of candidate targets per scan.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	visibleTargets = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "visibility_visible_targets",
		Help:    "The number of visible targets per scan.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	targetScanLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "visibility_target_scan_latency_seconds",
		Help:    "The time taken to scan targets.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
	})
)

func instrumentPolygon(viewCasts, edges, vertices int, latency time.Duration) {
	polygonCount.Inc()
	viewCastCount.Add(float64(viewCasts))
	edgeCount.Add(float64(edges))
	polygonVertices.Observe(float64(vertices))
	polygonLatency.Observe(latency.Seconds())
}

func instrumentTargetScan(candidates, visible int, latency time.Duration) {
	targetScanCount.Inc()
	scannedTargets.Observe(float64(candidates))
	visibleTargets.Observe(float64(visible))
	targetScanLatency.Observe(latency.Seconds())
}
