package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dougsko/antbridge/pkg/logging"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// controllerStub is a minimal antenna controller: it records every text
// message and pushes whatever is written to push.
type controllerStub struct {
	server   *httptest.Server
	received chan string
	push     chan string
	drop     chan struct{}
}

func newControllerStub(t *testing.T) *controllerStub {
	t.Helper()
	stub := &controllerStub{
		received: make(chan string, 16),
		push:     make(chan string, 16),
		drop:     make(chan struct{}),
	}
	upgrader := websocket.Upgrader{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				stub.received <- string(msg)
			}
		}()

		for {
			select {
			case msg := <-stub.push:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return
				}
			case <-stub.drop:
				return
			}
		}
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *controllerStub) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/"
}

type recorder struct {
	messages     chan string
	errors       chan string
	connected    chan struct{}
	disconnected chan struct{}
	sendFailed   chan string
}

func attach(ch *CommandChannel) *recorder {
	r := &recorder{
		messages:     make(chan string, 16),
		errors:       make(chan string, 16),
		connected:    make(chan struct{}, 4),
		disconnected: make(chan struct{}, 4),
		sendFailed:   make(chan string, 16),
	}
	ch.SetMessageHandler(func(m string) { r.messages <- m })
	ch.SetErrorHandler(func(e string) { r.errors <- e })
	ch.SetConnectedHandler(func() { r.connected <- struct{}{} })
	ch.SetDisconnectedHandler(func() { r.disconnected <- struct{}{} })
	ch.SetSendFailedHandler(func(reason string) { r.sendFailed <- reason })
	return r
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func TestCommandChannelRoundTrip(t *testing.T) {
	stub := newControllerStub(t)
	ch := NewCommandChannel(CommandChannelConfig{URL: stub.url(), Enabled: true}, logging.Discard())
	rec := attach(ch)
	defer ch.Close()

	ch.Connect()
	ch.Connect() // no-op while connecting or open
	waitFor(t, rec.connected, "connected")
	assert.True(t, ch.IsConnected())

	require.NoError(t, ch.Send("A3"))
	assert.Equal(t, "A3", waitFor(t, stub.received, "command at controller"))

	stub.push <- `{"a":"3"}`
	assert.Equal(t, `{"a":"3"}`, waitFor(t, rec.messages, "status message"))

	select {
	case <-rec.connected:
		t.Fatal("second Connect must not open another connection")
	default:
	}
}

func TestCommandChannelSendWhileDisconnected(t *testing.T) {
	ch := NewCommandChannel(CommandChannelConfig{URL: "ws://127.0.0.1:1/", Enabled: true}, logging.Discard())
	rec := attach(ch)

	err := ch.Send("A1")

	var sf *SendFailedError
	require.True(t, errors.As(err, &sf))
	assert.Equal(t, "not connected", sf.Reason)
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.Equal(t, "not connected", waitFor(t, rec.sendFailed, "send failed"))
}

func TestCommandChannelSendAfterClose(t *testing.T) {
	stub := newControllerStub(t)
	ch := NewCommandChannel(CommandChannelConfig{URL: stub.url(), Enabled: true}, logging.Discard())
	rec := attach(ch)

	ch.Connect()
	waitFor(t, rec.connected, "connected")
	require.NoError(t, ch.Close())

	err := ch.Send("B2")
	require.Error(t, err)
	assert.Equal(t, "not connected", waitFor(t, rec.sendFailed, "send failed"))
}

func TestCommandChannelServerDisconnect(t *testing.T) {
	stub := newControllerStub(t)
	ch := NewCommandChannel(CommandChannelConfig{URL: stub.url(), Enabled: true}, logging.Discard())
	rec := attach(ch)
	defer ch.Close()

	ch.Connect()
	waitFor(t, rec.connected, "connected")

	close(stub.drop)
	waitFor(t, rec.disconnected, "disconnected")
	assert.False(t, ch.IsConnected())
}

func TestCommandChannelDialFailure(t *testing.T) {
	stub := newControllerStub(t)
	url := stub.url()
	stub.server.Close()

	ch := NewCommandChannel(CommandChannelConfig{URL: url, Enabled: true}, logging.Discard())
	rec := attach(ch)

	ch.Connect()
	msg := waitFor(t, rec.errors, "dial error")
	assert.Contains(t, msg, "dial")
	assert.False(t, ch.IsConnected())
}

func TestCommandChannelNoEventsAfterClose(t *testing.T) {
	stub := newControllerStub(t)
	ch := NewCommandChannel(CommandChannelConfig{URL: stub.url(), Enabled: true}, logging.Discard())

	var closed atomic.Bool
	var late atomic.Int32
	check := func() {
		if closed.Load() {
			late.Add(1)
		}
	}
	ch.SetMessageHandler(func(string) { check() })
	ch.SetErrorHandler(func(string) { check() })
	ch.SetConnectedHandler(check)
	ch.SetDisconnectedHandler(check)

	ch.Connect()
	require.NoError(t, ch.Close())
	closed.Store(true)
	require.NoError(t, ch.Close())

	stub.push <- `{"a":"1"}`
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), late.Load())
	assert.False(t, ch.IsConnected())
}

func TestCommandChannelDisabled(t *testing.T) {
	ch := NewCommandChannel(CommandChannelConfig{URL: "ws://127.0.0.1:1/", Enabled: false}, logging.Discard())
	rec := attach(ch)

	ch.Connect()
	assert.ErrorIs(t, ch.Send("A1"), ErrDisabled)
	assert.False(t, ch.IsConnected())
	select {
	case <-rec.sendFailed:
		t.Fatal("disabled channel must not report send failures")
	default:
	}
}
