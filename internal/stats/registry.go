// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the Prometheus metrics the reporting layer exposes.
type Registry struct {
	reg *prometheus.Registry

	SessionsCreated  *prometheus.GaugeVec
	SessionsReleased *prometheus.GaugeVec
	SessionTimeouts  *prometheus.GaugeVec
	SessionPrunes    *prometheus.GaugeVec
	SessionDiscards  *prometheus.GaugeVec
}

var (
	registryOnce sync.Once
	registry     *Registry
)

// Get returns the process-wide metrics registry.
func Get() *Registry {
	registryOnce.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	gauge := func(name, help string) *prometheus.GaugeVec {
		v := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "streamgate",
			Name:      name,
			Help:      help,
		}, []string{"proto"})
		r.reg.MustRegister(v)
		return v
	}

	r.SessionsCreated = gauge("sessions_created_total", "Sessions created since start")
	r.SessionsReleased = gauge("sessions_released_total", "Sessions released since start")
	r.SessionTimeouts = gauge("session_timeouts_total", "Sessions evicted by idle timeout")
	r.SessionPrunes = gauge("session_prunes_total", "Sessions evicted under resource pressure")
	r.SessionDiscards = gauge("session_discards_total", "Packets discarded by session logic")

	return r
}

// Prometheus returns the underlying registry, for promhttp handlers.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

// Publish mirrors a merged counter snapshot into the metrics.
func (r *Registry) Publish(proto string, s SessionStats) {
	r.SessionsCreated.WithLabelValues(proto).Set(float64(s.Created))
	r.SessionsReleased.WithLabelValues(proto).Set(float64(s.Released))
	r.SessionTimeouts.WithLabelValues(proto).Set(float64(s.Timeouts))
	r.SessionPrunes.WithLabelValues(proto).Set(float64(s.Prunes))
	r.SessionDiscards.WithLabelValues(proto).Set(float64(s.Discards))
}
