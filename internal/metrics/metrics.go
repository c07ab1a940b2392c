// Package metrics holds the prometheus collectors for the voice engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicebot"

var (
	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Sessions currently attached to a channel.",
	})

	sessionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Sessions created since start.",
	})

	bargeInsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "barge_ins_total",
		Help:      "Caller speech that cancelled an in-flight reply.",
	})

	fallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fallbacks_total",
		Help:      "Fixed lines or silence substituted for a failed capability.",
	}, []string{"reason"})

	synthesisOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "synthesis_outcomes_total",
		Help:      "Final state of synthesis handles.",
	}, []string{"outcome"})

	capabilityDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "capability_duration_seconds",
		Help:      "Latency of recognizer, generator and synthesizer calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"capability"})

	all = []prometheus.Collector{
		sessionsActive, sessionsTotal, bargeInsTotal,
		fallbacksTotal, synthesisOutcomes, capabilityDuration,
	}
)

// Capability labels.
const (
	Recognizer  = "recognizer"
	Generator   = "generator"
	Synthesizer = "synthesizer"
)

// NewRegistry returns a registry with the voicebot collectors and the Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range all {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func SessionOpened() {
	sessionsTotal.Inc()
	sessionsActive.Inc()
}

func SessionClosed() { sessionsActive.Dec() }

func BargeIn() { bargeInsTotal.Inc() }

func Fallback(reason string) { fallbacksTotal.WithLabelValues(reason).Inc() }

func SynthesisOutcome(outcome string) { synthesisOutcomes.WithLabelValues(outcome).Inc() }

// ObserveSince records the latency of a capability call started at begin.
func ObserveSince(capability string, begin time.Time) {
	capabilityDuration.WithLabelValues(capability).Observe(time.Since(begin).Seconds())
}
