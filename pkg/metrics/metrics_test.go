package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/dougsko/antbridge/pkg/engine"
	"github.com/dougsko/antbridge/pkg/protocol"
	"github.com/dougsko/antbridge/pkg/state"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsFromEvents(t *testing.T) {
	m := New(func() engine.Status { return engine.Status{} })

	m.HandleEvent(engine.Event{Kind: engine.EventCommandSent, Rig: protocol.RigA, Command: "A3", Origin: engine.OriginAuto})
	m.HandleEvent(engine.Event{Kind: engine.EventCommandSent, Rig: protocol.RigA, Command: "A4", Origin: engine.OriginAuto})
	m.HandleEvent(engine.Event{Kind: engine.EventCommandSent, Rig: protocol.RigB, Command: "B1", Origin: engine.OriginManual})
	m.HandleEvent(engine.Event{Kind: engine.EventSendFailed, Text: "not connected"})
	m.HandleEvent(engine.Event{Kind: engine.EventConnectionError, Text: "dial"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commandsSent.WithLabelValues("A", "auto")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsSent.WithLabelValues("B", "manual")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.commandsSent.WithLabelValues("B", "auto")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sendFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connErrors))
}

func TestMetricsTelemetryAndAuto(t *testing.T) {
	m := New(func() engine.Status { return engine.Status{AutoB: true} })
	assert.Equal(t, 0.0, testutil.ToFloat64(m.autoEnabled.WithLabelValues("A")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.autoEnabled.WithLabelValues("B")))

	m.HandleEvent(engine.Event{
		Kind: engine.EventTelemetryUpdated,
		Rig:  protocol.RigB,
		Status: engine.Status{Telemetry: state.Telemetry{
			B: state.RigTelemetry{Freq: 7074, Antenna: 2},
		}},
	})
	assert.Equal(t, 7074.0, testutil.ToFloat64(m.frequency.WithLabelValues("B")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.antenna.WithLabelValues("B")))

	m.HandleEvent(engine.Event{Kind: engine.EventAutoChanged, Rig: protocol.RigA, Status: engine.Status{AutoA: true}})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.autoEnabled.WithLabelValues("A")))
}

func TestMetricsHandler(t *testing.T) {
	status := engine.Status{
		Connected:  true,
		Controller: state.CommandState{RSSI: -70, Power: 12},
		Counters:   engine.Counters{Datagrams: 42, DecodeErrors: 3, StatusMessages: 7},
	}
	m := New(func() engine.Status { return status })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "antbridge_datagrams_received_total 42")
	assert.Contains(t, text, "antbridge_decode_errors_total 3")
	assert.Contains(t, text, "antbridge_status_messages_total 7")
	assert.Contains(t, text, "antbridge_controller_connected 1")
	assert.Contains(t, text, "antbridge_busy 0")
	assert.Contains(t, text, "antbridge_controller_rssi -70")
	assert.Contains(t, text, "antbridge_controller_power 12")
}
