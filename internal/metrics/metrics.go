// Package metrics exposes Prometheus counters and gauges for the
// discovery pass and the lifecycle coordinator, served on a dedicated
// listen address alongside the JSON-RPC server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/barterchain/chainengine/internal/lifecycle"
	"github.com/barterchain/chainengine/pkg/logging"
)

var (
	discoveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "chainengine_discovery_duration_seconds",
		Help: "Wall-clock duration of a single discovery pass.",
		Buckets: prometheus.DefBuckets,
	})

	cyclesFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainengine_cycles_found_total",
		Help: "Candidate cycles enumerated across all discovery passes, before cooldown filtering.",
	})

	proposalsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainengine_proposals_created_total",
		Help: "Chain proposals persisted across all discovery passes.",
	})

	activeChains = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chainengine_active_chains",
		Help: "Chain proposals currently in a non-terminal status.",
	})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainengine_lifecycle_transitions_total",
		Help: "Lifecycle transitions observed, labeled by event kind.",
	}, []string{"kind"})
)

// RecordDiscovery records the outcome of one discovery pass.
func RecordDiscovery(elapsed time.Duration, found, created int) {
	discoveryDuration.Observe(elapsed.Seconds())
	cyclesFound.Add(float64(found))
	proposalsCreated.Add(float64(created))
}

// SetActiveChains sets the current count of non-terminal proposals.
func SetActiveChains(n int) {
	activeChains.Set(float64(n))
}

// ObserveCoordinator subscribes to a lifecycle coordinator's event
// stream and increments the transition counter for every event kind it
// emits. Call once at startup, after constructing the coordinator.
func ObserveCoordinator(coord *lifecycle.Coordinator) {
	coord.OnEvent(func(e lifecycle.Event) {
		transitions.WithLabelValues(e.Kind).Inc()
	})
}

// Serve starts a dedicated HTTP server exposing /metrics on addr. It
// runs until the process exits; errors are logged, not returned, since
// metrics are an observability concern and must never block startup of
// the primary RPC server.
func Serve(addr string) {
	log := logging.GetDefault().Component("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()
	log.Info("metrics server started", "addr", addr)
}
