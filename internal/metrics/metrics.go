// Package metrics holds the Prometheus collectors shared by cmd/agent and
// cmd/coordinator, exposed at GET /metrics via promhttp.HandlerFor on each
// binary's private registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Agent holds the local agent's collectors.
type Agent struct {
	ReportsTotal     prometheus.Counter
	ReportErrors     prometheus.Counter
	ConfigUpdates    prometheus.Counter
	EstimatorFitFail prometheus.Counter
	MemMb            *prometheus.GaugeVec
	BwMbps           *prometheus.GaugeVec
}

// NewAgent registers and returns the agent's collectors against reg.
func NewAgent(reg prometheus.Registerer) *Agent {
	a := &Agent{
		ReportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cachectl",
			Subsystem: "agent",
			Name:      "reports_total",
			Help:      "Usage reports successfully posted to the coordinator.",
		}),
		ReportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cachectl",
			Subsystem: "agent",
			Name:      "report_errors_total",
			Help:      "Usage report POSTs that failed (TransportError).",
		}),
		ConfigUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cachectl",
			Subsystem: "agent",
			Name:      "config_updates_total",
			Help:      "AllocationMap updates applied via POST /config.",
		}),
		EstimatorFitFail: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cachectl",
			Subsystem: "agent",
			Name:      "estimator_fit_failures_total",
			Help:      "MRC fit attempts that diverged or were skipped (FitDiverged/insufficient data).",
		}),
		MemMb: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cachectl",
			Subsystem: "agent",
			Name:      "app_mem_mb",
			Help:      "Last-reported resident memory per tenant, in MB.",
		}, []string{"app_id"}),
		BwMbps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cachectl",
			Subsystem: "agent",
			Name:      "app_bw_mbps",
			Help:      "Last-reported block-I/O bandwidth per tenant, in Mbps.",
		}, []string{"app_id"}),
	}
	reg.MustRegister(a.ReportsTotal, a.ReportErrors, a.ConfigUpdates, a.EstimatorFitFail, a.MemMb, a.BwMbps)
	return a
}

// Coordinator holds the coordinator's collectors.
type Coordinator struct {
	UsageReportsTotal prometheus.Counter
	ConfigPushesTotal *prometheus.CounterVec
	ConfigPushErrors  *prometheus.CounterVec
	KnownApps         prometheus.Gauge
}

// NewCoordinator registers and returns the coordinator's collectors against reg.
func NewCoordinator(reg prometheus.Registerer) *Coordinator {
	c := &Coordinator{
		UsageReportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cachectl",
			Subsystem: "coordinator",
			Name:      "usage_reports_total",
			Help:      "POST /usage bodies merged into the coordinator's UsageMap.",
		}),
		ConfigPushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cachectl",
			Subsystem: "coordinator",
			Name:      "config_pushes_total",
			Help:      "Per-VM AllocationMap pushes attempted, by VM.",
		}, []string{"vm_id"}),
		ConfigPushErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cachectl",
			Subsystem: "coordinator",
			Name:      "config_push_errors_total",
			Help:      "Per-VM AllocationMap pushes that failed (TransportError).",
		}, []string{"vm_id"}),
		KnownApps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cachectl",
			Subsystem: "coordinator",
			Name:      "known_apps",
			Help:      "Distinct AppIds currently in the placement map.",
		}),
	}
	reg.MustRegister(c.UsageReportsTotal, c.ConfigPushesTotal, c.ConfigPushErrors, c.KnownApps)
	return c
}
