// Package metrics provides Prometheus metrics for the staging pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	filesStaged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webstage_files_staged_total",
			Help: "Files written into the virtual filesystem",
		},
	)

	bytesStaged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webstage_bytes_staged_total",
			Help: "Bytes written into the virtual filesystem",
		},
	)

	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webstage_batches_total",
			Help: "Upload batches by outcome",
		},
		[]string{"result"},
	)

	selectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webstage_selections_rejected_total",
			Help: "Selections rejected by validation",
		},
		[]string{"reason"},
	)

	syncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webstage_sync_duration_seconds",
			Help:    "Durable filesystem sync duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"direction", "status"},
	)

	purgeRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webstage_purge_removed_total",
			Help: "Nodes removed by recursive purge",
		},
	)

	backendOps = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webstage_backend_operation_duration_seconds",
			Help:    "Durable backend operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation", "status"},
	)

	lifecycleState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "webstage_lifecycle_state",
			Help: "1 for the current lifecycle state, 0 otherwise",
		},
		[]string{"state"},
	)
)

// RecordFileStaged counts one written file of the given size.
func RecordFileStaged(size int) {
	filesStaged.Inc()
	bytesStaged.Add(float64(size))
}

// RecordBatch counts a finished batch; result is "ok", "failed" or "cancelled".
func RecordBatch(result string) {
	batchesTotal.WithLabelValues(result).Inc()
}

// RecordRejection counts a selection rejected for reason.
func RecordRejection(reason string) {
	selectionsRejected.WithLabelValues(reason).Inc()
}

// RecordSync observes a sync; direction is "populate" or "persist".
func RecordSync(direction string, d time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	syncDuration.WithLabelValues(direction, status).Observe(d.Seconds())
}

// RecordBackendOp observes one durable backend call.
func RecordBackendOp(backend, operation string, d time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	backendOps.WithLabelValues(backend, operation, status).Observe(d.Seconds())
}

// RecordPurge counts removed nodes.
func RecordPurge(removed int) {
	purgeRemoved.Add(float64(removed))
}

// SetState marks state as the current lifecycle state among all.
func SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		lifecycleState.WithLabelValues(s).Set(v)
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
