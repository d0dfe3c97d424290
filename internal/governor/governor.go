// Package governor enforces connection and task admission limits. It is the
// single owner of the shared live counters; both channels consult it before
// doing any work so the process never queues unboundedly.
package governor

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embedd_connections_active",
		Help: "Live TCP connections currently admitted.",
	})
	tasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embedd_tasks_in_flight",
		Help: "Requests currently being processed across both channels.",
	})
	admissionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedd_admission_rejections_total",
		Help: "Admissions refused because a configured limit was reached.",
	}, []string{"kind"})
)

// Governor tracks live connections and in-flight tasks against configured
// caps. A cap of zero disables that limit.
type Governor struct {
	maxConnections int64
	maxTasks       int64
	connections    atomic.Int64
	tasks          atomic.Int64
}

// New creates a governor with the given caps.
func New(maxConnections, maxTasks int) *Governor {
	return &Governor{
		maxConnections: int64(maxConnections),
		maxTasks:       int64(maxTasks),
	}
}

// AcquireConnection admits one connection, or reports false when the cap is
// reached. Callers must pair a successful acquire with ReleaseConnection.
func (g *Governor) AcquireConnection() bool {
	if !acquire(&g.connections, g.maxConnections) {
		admissionRejections.WithLabelValues("connection").Inc()
		return false
	}
	connectionsActive.Inc()
	return true
}

// ReleaseConnection returns a connection slot.
func (g *Governor) ReleaseConnection() {
	g.connections.Add(-1)
	connectionsActive.Dec()
}

// AcquireTask admits one in-flight request, or reports false at capacity.
func (g *Governor) AcquireTask() bool {
	if !acquire(&g.tasks, g.maxTasks) {
		admissionRejections.WithLabelValues("task").Inc()
		return false
	}
	tasksInFlight.Inc()
	return true
}

// ReleaseTask returns a task slot.
func (g *Governor) ReleaseTask() {
	g.tasks.Add(-1)
	tasksInFlight.Dec()
}

// Connections returns the current live connection count.
func (g *Governor) Connections() int {
	return int(g.connections.Load())
}

// Tasks returns the current in-flight task count.
func (g *Governor) Tasks() int {
	return int(g.tasks.Load())
}

// acquire increments n unless doing so would exceed max. The CAS loop keeps
// the counter exact under concurrent admission attempts.
func acquire(n *atomic.Int64, max int64) bool {
	for {
		cur := n.Load()
		if max > 0 && cur >= max {
			return false
		}
		if n.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}
