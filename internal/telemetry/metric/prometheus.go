// Package metric provides Prometheus metrics for meshkv.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meshkv"

// Announce outcome label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Registry holds all node metrics.
//
// All methods are safe on a nil *Registry so components can be built
// without metrics in tests.
type Registry struct {
	reg *prometheus.Registry

	NodeState       prometheus.Gauge
	Peers           prometheus.Gauge
	AnnounceTotal   *prometheus.CounterVec
	GateWaitSeconds prometheus.Histogram
	ReplicatedTotal prometheus.Counter
	SyncServedTotal prometheus.Counter
	StoreKeys       prometheus.Gauge
}

// NewRegistry creates the node metrics and registers them, together
// with the Go runtime and process collectors, on a fresh registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		NodeState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "state",
			Help:      "Current lifecycle state (0=idle, 1=connecting .. 5=steady, 6=stopped, 7=failed)",
		}),
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "peers",
			Help:      "Connected peers observed at the last report tick",
		}),
		AnnounceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "announce",
			Name:      "total",
			Help:      "Provider record publications by result",
		}, []string{"result"}),
		GateWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for the minimum peer count",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300},
		}),
		ReplicatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "replicated_total",
			Help:      "Remote merges that changed local state",
		}),
		SyncServedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "sync_served_total",
			Help:      "State transfers answered for joining peers",
		}),
		StoreKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "keys",
			Help:      "Visible keys in the attached store",
		}),
	}

	r.reg.MustRegister(
		r.NodeState,
		r.Peers,
		r.AnnounceTotal,
		r.GateWaitSeconds,
		r.ReplicatedTotal,
		r.SyncServedTotal,
		r.StoreKeys,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Registerer exposes the underlying registry for components that own
// extra collectors (badger size gauges).
func (r *Registry) Registerer() prometheus.Registerer {
	if r == nil {
		return nil
	}
	return r.reg
}

// Gatherer exposes the underlying registry for tests and the HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// SetState records the lifecycle state ordinal.
func (r *Registry) SetState(ordinal int) {
	if r == nil {
		return
	}
	r.NodeState.Set(float64(ordinal))
}

// SetPeers records the connected peer count.
func (r *Registry) SetPeers(n int) {
	if r == nil {
		return
	}
	r.Peers.Set(float64(n))
}

// ObserveAnnounce counts one announce attempt.
func (r *Registry) ObserveAnnounce(err error) {
	if r == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	r.AnnounceTotal.WithLabelValues(result).Inc()
}

// ObserveGateWait records how long the peer gate blocked.
func (r *Registry) ObserveGateWait(seconds float64) {
	if r == nil {
		return
	}
	r.GateWaitSeconds.Observe(seconds)
}

// IncReplicated counts one replication event.
func (r *Registry) IncReplicated() {
	if r == nil {
		return
	}
	r.ReplicatedTotal.Inc()
}

// IncSyncServed counts one state transfer sent to a peer.
func (r *Registry) IncSyncServed() {
	if r == nil {
		return
	}
	r.SyncServedTotal.Inc()
}

// SetStoreKeys records the number of visible keys.
func (r *Registry) SetStoreKeys(n int) {
	if r == nil {
		return
	}
	r.StoreKeys.Set(float64(n))
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}
