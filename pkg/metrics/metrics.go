// Package metrics holds the daemon's Prometheus collectors and the HTTP
// endpoint that serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "vfd"

// RequestsTotal counts administrative requests by action and outcome.
var RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "requests_total",
	Help:      "Administrative requests processed, by action and response state.",
}, []string{"action", "state"})

// MailboxEventsTotal counts hardware events by kind and decision.
var MailboxEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "mailbox_events_total",
	Help:      "VF mailbox events arbitrated, by event kind and decision.",
}, []string{"event", "decision"})

// ReconcilePending is the number of VFs waiting for a policy push.
var ReconcilePending = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "reconcile_pending",
	Help:      "VF policy pushes queued and not yet dispatched.",
})

// ReconcileRunsTotal counts dispatched policy pushes.
var ReconcileRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "reconcile_runs_total",
	Help:      "VF policy pushes dispatched.",
})

// ReconcileErrorsTotal counts policy pushes that reported a driver error.
var ReconcileErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "reconcile_errors_total",
	Help:      "VF policy pushes that reported at least one driver error.",
})

// ReconcileReadyTimeoutsTotal counts pushes dispatched before the VF's
// queues reported ready.
var ReconcileReadyTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "reconcile_ready_timeouts_total",
	Help:      "VF policy pushes dispatched after the readiness deadline expired.",
})

// ActiveVFs is the number of active VFs per port.
var ActiveVFs = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "active_vfs",
	Help:      "Configured VFs not pending delete, per port.",
}, []string{"port"})

// CPUUtilization is the daemon's own CPU use over the last sample, as a
// fraction of one CPU.
var CPUUtilization = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "cpu_utilization_ratio",
	Help:      "Daemon CPU time over wall time for the last sample period.",
})

// Registry is the registry every vfd collector is registered with.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		RequestsTotal,
		MailboxEventsTotal,
		ReconcilePending,
		ReconcileRunsTotal,
		ReconcileErrorsTotal,
		ReconcileReadyTimeoutsTotal,
		ActiveVFs,
		CPUUtilization,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
