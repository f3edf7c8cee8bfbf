package alert

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spoofwatch/internal/validate"
)

// Metrics is the Prometheus sink. It also carries the decoder discard
// counter and the reference size gauge so one registry serves /metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	Verdicts            *prometheus.CounterVec
	Alerts              *prometheus.CounterVec
	Discards            *prometheus.CounterVec
	ReferenceSatellites prometheus.Gauge
}

// NewMetrics registers the collectors on reg, defaulting to the global
// registry when nil. Registering twice on the same registry returns the
// existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	verdicts, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spoofwatch_verdicts_total",
		Help: "Validation verdicts, labeled by layer and status.",
	}, []string{"layer", "status"}), "spoofwatch_verdicts_total")
	if err != nil {
		return nil, err
	}
	alerts, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spoofwatch_alerts_total",
		Help: "Failed validations, labeled by layer and satellite id.",
	}, []string{"layer", "satellite"}), "spoofwatch_alerts_total")
	if err != nil {
		return nil, err
	}
	discards, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spoofwatch_frames_discarded_total",
		Help: "UBX frames dropped by the decoder, labeled by reason.",
	}, []string{"reason"}), "spoofwatch_frames_discarded_total")
	if err != nil {
		return nil, err
	}
	refSats, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spoofwatch_reference_satellites",
		Help: "Satellites present in the loaded reference almanac.",
	}), "spoofwatch_reference_satellites")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:            gatherer,
		Verdicts:            verdicts,
		Alerts:              alerts,
		Discards:            discards,
		ReferenceSatellites: refSats,
	}, nil
}

func (m *Metrics) Fail(_ context.Context, v validate.Verdict) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(string(v.Layer), string(v.Status)).Inc()
	m.Alerts.WithLabelValues(string(v.Layer), satelliteLabel(v.SatelliteID)).Inc()
}

// maxSatelliteLabel bounds the alerts_total series; ids are read off the wire.
const maxSatelliteLabel = 255

func satelliteLabel(id uint32) string {
	if id == 0 || id > maxSatelliteLabel {
		return "other"
	}
	return strconv.FormatUint(uint64(id), 10)
}

func (m *Metrics) Pass(_ context.Context, v validate.Verdict) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(string(v.Layer), string(v.Status)).Inc()
}

func (m *Metrics) Skip(_ context.Context, v validate.Verdict) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(string(v.Layer), string(v.Status)).Inc()
}

// Discard counts one decoder discard.
func (m *Metrics) Discard(reason string) {
	if m == nil {
		return
	}
	m.Discards.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetReferenceSatellites(n int) {
	if m == nil {
		return
	}
	m.ReferenceSatellites.Set(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (m *Metrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
