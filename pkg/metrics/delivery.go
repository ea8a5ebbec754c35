package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DeliveryMetrics records outbound delivery outcomes and ingest volume.
type DeliveryMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	ingested *prometheus.CounterVec
}

// NewDeliveryMetrics registers the delivery metrics on the provided registerer.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	if reg == nil {
		return &DeliveryMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "delivery_duration_seconds",
		Help:    "Duration of outbound deliveries in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"destination"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_success",
		Help: "Successful outbound deliveries.",
	}, []string{"destination"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_failure",
		Help: "Failed outbound deliveries.",
	}, []string{"destination"})
	ingested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_ingested",
		Help: "Events accepted for routing, by source.",
	}, []string{"source"})
	reg.MustRegister(duration, success, failure, ingested)
	return &DeliveryMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		ingested: ingested,
	}
}

// ObserveDuration records the delivery duration for the named destination.
func (d *DeliveryMetrics) ObserveDuration(destination string, duration time.Duration) {
	if d == nil || d.duration == nil {
		return
	}
	d.duration.WithLabelValues(normalizeLabel(destination)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named destination.
func (d *DeliveryMetrics) IncSuccess(destination string) {
	if d == nil || d.success == nil {
		return
	}
	d.success.WithLabelValues(normalizeLabel(destination)).Inc()
}

// IncFailure increments the failure counter for the named destination.
func (d *DeliveryMetrics) IncFailure(destination string) {
	if d == nil || d.failure == nil {
		return
	}
	d.failure.WithLabelValues(normalizeLabel(destination)).Inc()
}

// IncIngested increments the ingest counter for the named source.
func (d *DeliveryMetrics) IncIngested(source string) {
	if d == nil || d.ingested == nil {
		return
	}
	d.ingested.WithLabelValues(normalizeLabel(source)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
