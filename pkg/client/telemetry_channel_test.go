package client

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dougsko/antbridge/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLoopback(t *testing.T) (*TelemetryChannel, chan []byte) {
	t.Helper()
	ch := NewTelemetryChannel(TelemetryChannelConfig{Host: "127.0.0.1", Port: 0, Enabled: true}, logging.Discard())
	got := make(chan []byte, 16)
	ch.SetDatagramHandler(func(b []byte) { got <- b })
	require.NoError(t, ch.Open())
	t.Cleanup(func() { ch.Close() })
	return ch, got
}

func sendDatagram(t *testing.T, to net.Addr, payload string) {
	t.Helper()
	conn, err := net.Dial("udp", to.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(payload))
	require.NoError(t, err)
}

func TestTelemetryChannelReceives(t *testing.T) {
	ch, got := openLoopback(t)

	sendDatagram(t, ch.LocalAddr(), "<RadioInfo><RadioNr>1</RadioNr></RadioInfo>")
	sendDatagram(t, ch.LocalAddr(), "second")

	assert.Equal(t, "<RadioInfo><RadioNr>1</RadioNr></RadioInfo>", string(waitFor(t, got, "first datagram")))
	assert.Equal(t, "second", string(waitFor(t, got, "second datagram")))
}

func TestTelemetryChannelOpenIsIdempotent(t *testing.T) {
	ch, _ := openLoopback(t)
	addr := ch.LocalAddr()

	require.NoError(t, ch.Open())
	assert.Equal(t, addr.String(), ch.LocalAddr().String())
}

func TestTelemetryChannelBindFailure(t *testing.T) {
	first, _ := openLoopback(t)
	port := first.LocalAddr().(*net.UDPAddr).Port

	second := NewTelemetryChannel(TelemetryChannelConfig{Host: "127.0.0.1", Port: port, Enabled: true}, logging.Discard())
	err := second.Open()

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "udp bind", terr.Op)
	assert.Nil(t, second.LocalAddr())
	assert.NoError(t, second.Close())
}

func TestTelemetryChannelCloseStopsDelivery(t *testing.T) {
	ch, got := openLoopback(t)
	addr := ch.LocalAddr()

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	conn.Write([]byte("late"))
	conn.Close()

	select {
	case b := <-got:
		t.Fatalf("unexpected datagram after close: %q", b)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTelemetryChannelSendIsNoop(t *testing.T) {
	ch := NewTelemetryChannel(TelemetryChannelConfig{Host: "127.0.0.1", Port: 0, Enabled: true}, logging.Discard())
	assert.NoError(t, ch.Send([]byte("ignored")))
}

func TestTelemetryChannelDisabled(t *testing.T) {
	ch := NewTelemetryChannel(TelemetryChannelConfig{Host: "127.0.0.1", Port: 0, Enabled: false}, logging.Discard())
	require.NoError(t, ch.Open())
	assert.Nil(t, ch.LocalAddr())
}
