package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coremgr",
			Subsystem: "core",
			Name:      "state_transitions_total",
			Help:      "Number of core process state transitions.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "coremgr",
			Subsystem: "core",
			Name:      "current_state",
			Help:      "Current core process state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	trafficBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "coremgr",
			Subsystem: "traffic",
			Name:      "cumulative_bytes",
			Help:      "Cumulative bytes reported by the core control plane.",
		}, []string{"direction"},
	)
	trafficRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "coremgr",
			Subsystem: "traffic",
			Name:      "rate_bytes_per_second",
			Help:      "Throughput derived from consecutive traffic samples.",
		}, []string{"direction"},
	)
	pollFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coremgr",
			Subsystem: "traffic",
			Name:      "poll_failures_total",
			Help:      "Number of failed control-plane traffic polls.",
		},
	)
	delayProbes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coremgr",
			Subsystem: "probe",
			Name:      "delay_milliseconds",
			Help:      "Measured proxy delay for successful latency probes.",
			Buckets:   []float64{50, 100, 200, 400, 800, 1600, 3200},
		}, []string{"proxy"},
	)
	delayProbeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coremgr",
			Subsystem: "probe",
			Name:      "delay_failures_total",
			Help:      "Number of latency probes that returned the unreachable sentinel.",
		}, []string{"proxy"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{stateTransitions, currentState, trafficBytes, trafficRate, pollFailures, delayProbes, delayProbeFailures}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetCurrentState(state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentState.WithLabelValues(state).Set(value)
	}
}

func SetTraffic(upload, download uint64) {
	if regOK.Load() {
		trafficBytes.WithLabelValues("upload").Set(float64(upload))
		trafficBytes.WithLabelValues("download").Set(float64(download))
	}
}

func SetRates(uploadBps, downloadBps int64) {
	if regOK.Load() {
		trafficRate.WithLabelValues("upload").Set(float64(uploadBps))
		trafficRate.WithLabelValues("download").Set(float64(downloadBps))
	}
}

func IncPollFailure() {
	if regOK.Load() {
		pollFailures.Inc()
	}
}

func ObserveDelay(proxy string, ms int) {
	if !regOK.Load() {
		return
	}
	if ms < 0 {
		delayProbeFailures.WithLabelValues(proxy).Inc()
		return
	}
	delayProbes.WithLabelValues(proxy).Observe(float64(ms))
}
