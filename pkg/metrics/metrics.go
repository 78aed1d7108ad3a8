// Package metrics exposes engine state and activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/dougsko/antbridge/pkg/engine"
	"github.com/dougsko/antbridge/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "antbridge"

// StatusFunc returns the current engine status.
type StatusFunc func() engine.Status

// Metrics holds the collectors for one engine on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	commandsSent *prometheus.CounterVec // by rig and origin
	sendFailures prometheus.Counter
	connErrors   prometheus.Counter
	autoEnabled  *prometheus.GaugeVec
	frequency    *prometheus.GaugeVec // kHz, by rig
	antenna      *prometheus.GaugeVec // logger-reported antenna, by rig
}

// New registers all collectors. Totals and controller readings are read
// from status at scrape time; commands and failures are counted from events.
func New(status StatusFunc) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		commandsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_sent_total",
				Help:      "Antenna commands written to the controller",
			},
			[]string{"rig", "origin"},
		),
		sendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Commands the controller channel could not send",
		}),
		connErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_errors_total",
			Help:      "Controller connection errors",
		}),
		autoEnabled: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "auto_enabled",
				Help:      "Automatic antenna selection state (1=enabled)",
			},
			[]string{"rig"},
		),
		frequency: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rig_frequency_khz",
				Help:      "Last reported receive frequency",
			},
			[]string{"rig"},
		),
		antenna: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rig_logger_antenna",
				Help:      "Antenna number reported by the logger",
			},
			[]string{"rig"},
		),
	}

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "datagrams_received_total",
		Help:      "Telemetry datagrams received",
	}, func() float64 { return float64(status().Counters.Datagrams) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decode_errors_total",
		Help:      "Telemetry datagrams that failed to decode",
	}, func() float64 { return float64(status().Counters.DecodeErrors) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_messages_total",
		Help:      "Valid controller status messages received",
	}, func() float64 { return float64(status().Counters.StatusMessages) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "controller_connected",
		Help:      "Controller connection state (1=connected, 0=disconnected)",
	}, func() float64 { return boolValue(status().Connected) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "busy",
		Help:      "A select command is awaiting confirmation (1=busy)",
	}, func() float64 { return boolValue(status().Busy) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "controller_rssi",
		Help:      "Controller reported RSSI",
	}, func() float64 { return float64(status().Controller.RSSI) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "controller_snr",
		Help:      "Controller reported SNR",
	}, func() float64 { return float64(status().Controller.SNR) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "controller_link_rssi",
		Help:      "Controller reported link RSSI",
	}, func() float64 { return float64(status().Controller.LinkRSSI) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "controller_power",
		Help:      "Controller reported power",
	}, func() float64 { return float64(status().Controller.Power) })

	s := status()
	for _, rig := range protocol.Rigs {
		m.commandsSent.WithLabelValues(rig.String(), string(engine.OriginAuto))
		m.commandsSent.WithLabelValues(rig.String(), string(engine.OriginManual))
		m.autoEnabled.WithLabelValues(rig.String()).Set(boolValue(s.Auto(rig)))
	}

	return m
}

// HandleEvent updates event-driven collectors. It is an engine.Listener.
func (m *Metrics) HandleEvent(ev engine.Event) {
	switch ev.Kind {
	case engine.EventCommandSent:
		rig := ev.Rig.String()
		if ev.Rig == "" {
			rig = "raw"
		}
		m.commandsSent.WithLabelValues(rig, string(ev.Origin)).Inc()
	case engine.EventSendFailed:
		m.sendFailures.Inc()
	case engine.EventConnectionError:
		m.connErrors.Inc()
	case engine.EventAutoChanged:
		m.autoEnabled.WithLabelValues(ev.Rig.String()).Set(boolValue(ev.Status.Auto(ev.Rig)))
	case engine.EventTelemetryUpdated:
		live := ev.Status.Telemetry.Rig(ev.Rig)
		m.frequency.WithLabelValues(ev.Rig.String()).Set(float64(live.Freq))
		m.antenna.WithLabelValues(ev.Rig.String()).Set(float64(live.Antenna))
	}
}

// Registry returns the dedicated registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
