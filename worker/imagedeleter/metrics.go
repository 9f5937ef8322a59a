// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package imagedeleter

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "rbd_mirror_image_deleter"

// managerMetrics are the coordinator's own prometheus collectors. The
// teacher's lease Manager only registers a *store's* collector, if one
// happens to implement prometheus.Collector; this coordinator instead
// always has its own metrics to offer, since queue depth and outcome
// counts are exactly what an operator watching this worker wants.
type managerMetrics struct {
	pendingDepth prometheus.Gauge
	failedDepth  prometheus.Gauge
	active       prometheus.Gauge
	retries      prometheus.Counter
	outcomes     *prometheus.CounterVec
}

func newManagerMetrics() *managerMetrics {
	return &managerMetrics{
		pendingDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pending_queue_depth",
			Help:      "Number of deletions waiting to be processed.",
		}),
		failedDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "failed_queue_depth",
			Help:      "Number of deletions waiting for a timed retry.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active",
			Help:      "Whether a deletion is currently being processed (0 or 1).",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retries_total",
			Help:      "Total number of deletions promoted from the failed queue back to pending.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outcomes_total",
			Help:      "Total number of removal driver outcomes, by classification.",
		}, []string{"outcome"}),
	}
}

func (m *managerMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.pendingDepth, m.failedDepth, m.active, m.retries, m.outcomes}
}

func (m *managerMetrics) register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for _, c := range m.collectors() {
		_ = reg.Register(c)
	}
}

func (m *managerMetrics) unregister(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}
