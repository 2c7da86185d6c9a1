// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to various parts of the pipeline.
//
// When defining new operations or metrics, these are helpful values to track:
//  - things coming into or go out of the system: frames, cycles, bytes.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FrameDecodeHistogram tracks the latency of decoding one inbound
	// frame's POD payload, by opcode.
	FrameDecodeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "podgraph_frame_decode_seconds",
			Help: "inbound frame POD decode latency distribution (seconds)",
			Buckets: []float64{
				0.00001, 0.0000125, 0.000016, 0.00002, 0.000025, 0.000032, 0.00004,
				0.00005, 0.000063, 0.000079, 0.0001, 0.000125, 0.00016, 0.0002,
				0.00025, 0.00032, 0.0004, 0.0005, 0.00063, 0.00079, 0.001,
			},
		},
		[]string{"opcode"})

	// CycleDurationHistogram tracks the wall time of one real-time cycle
	// (spec.md §4.5).
	CycleDurationHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "podgraph_cycle_duration_seconds",
			Help:    "real-time cycle wall time distribution (seconds)",
			Buckets: prometheus.LinearBuckets(0, .0001, 20),
		},
	)

	// PendingProcessSizeHistogram tracks the number of client nodes
	// installed in the session, observed once per poller wakeup.
	PendingProcessSizeHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "podgraph_pending_process_size",
			Help: "installed client-node count per poller wakeup",
			Buckets: []float64{
				1, 2, 3, 4, 5, 6, 8,
				10, 12.5, 16, 20, 25, 32, 40, 50, 63, 79,
				100, 125, 160, 200, 250, 320, 400,
			},
		})

	// ErrorCount measures the number of errors by kind.
	//
	// Example usage:
	//    metrics.ErrorCount.With(prometheus.Labels{"kind": "framing"}).Inc()
	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podgraph_errors_total",
			Help: "The total number of errors encountered, by kind.",
		}, []string{"kind"})

	// XrunCount counts cycles whose TRIGGERED→AWAKE swap observed a
	// status other than TRIGGERED (spec.md §4.5 step 1).
	XrunCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "podgraph_xrun_total",
			Help: "Number of real-time cycles that missed their trigger.",
		},
	)

	// BytesTransferred counts bytes copied during drain-inputs/
	// produce-outputs, by direction.
	BytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podgraph_bytes_transferred_total",
			Help: "Bytes copied through the real-time buffer exchange, by direction.",
		}, []string{"direction"})
)

// init() prints a log message to let the user know that the package has been
// loaded and the metrics registered. The metrics are auto-registered, which
// means they are registered as soon as this package is loaded, and the exact
// time this occurs (and whether this occurs at all in a given context) can be
// opaque.
func init() {
	log.Println("Prometheus metrics in podgraph.metrics are registered.")
}
