package client

import (
	"context"
	"sync"
	"time"

	"github.com/dougsko/antbridge/pkg/logging"
	"github.com/gorilla/websocket"
)

// CommandChannelConfig configures the controller connection.
type CommandChannelConfig struct {
	URL     string
	Enabled bool
}

type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateOpen
)

// CommandChannel is one persistent WebSocket connection to the antenna
// controller. Connect and Close never block on the network; results arrive
// through the registered handlers from background goroutines.
type CommandChannel struct {
	config CommandChannelConfig
	log    *logging.ComponentLogger
	dialer *websocket.Dialer

	mu         sync.Mutex
	conn       *websocket.Conn
	state      connState
	gen        uint64 // bumped by Connect and Close; stale goroutines compare against it
	cancelDial context.CancelFunc

	writeMu sync.Mutex
	emitMu  sync.RWMutex

	onMessage      func(string)
	onError        func(string)
	onConnected    func()
	onDisconnected func()
	onSendFailed   func(string)
}

// NewCommandChannel creates a command channel for an already built ws:// URL.
func NewCommandChannel(cfg CommandChannelConfig, logger *logging.Logger) *CommandChannel {
	dialer := *websocket.DefaultDialer
	return &CommandChannel{
		config: cfg,
		log:    logger.Component("ws"),
		dialer: &dialer,
	}
}

// URL returns the controller URL.
func (c *CommandChannel) URL() string {
	return c.config.URL
}

// SetMessageHandler sets the callback for inbound text messages
func (c *CommandChannel) SetMessageHandler(handler func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

// SetErrorHandler sets the callback for transport errors
func (c *CommandChannel) SetErrorHandler(handler func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// SetConnectedHandler sets the callback for a completed connection
func (c *CommandChannel) SetConnectedHandler(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = handler
}

// SetDisconnectedHandler sets the callback for a lost connection
func (c *CommandChannel) SetDisconnectedHandler(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnected = handler
}

// SetSendFailedHandler sets the callback for messages that could not be sent
func (c *CommandChannel) SetSendFailedHandler(handler func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSendFailed = handler
}

// IsConnected returns whether the connection is open
func (c *CommandChannel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpen
}

// Connect starts a connection attempt. It is a no-op while a connection is
// open or being opened.
func (c *CommandChannel) Connect() {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.state = stateConnecting
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	c.mu.Unlock()

	c.log.Info("Opening WebSocket", logging.Fields{"url": c.config.URL})
	go c.dial(ctx, gen)
}

func (c *CommandChannel) dial(ctx context.Context, gen uint64) {
	conn, _, err := c.dialer.DialContext(ctx, c.config.URL, nil)

	c.mu.Lock()
	if gen != c.gen {
		// closed while dialing
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.cancelDial = nil
	if err != nil {
		c.state = stateIdle
		c.mu.Unlock()
		terr := &TransportError{Op: "dial", Addr: c.config.URL, Err: err}
		c.log.Error("WebSocket error", logging.Fields{"error": terr})
		c.emitString(gen, func() func(string) { return c.onError }, terr.Error())
		return
	}
	c.conn = conn
	c.state = stateOpen
	c.mu.Unlock()

	c.log.Info("WebSocket connected")
	c.emit(gen, func() func() { return c.onConnected })
	c.readLoop(conn, gen)
}

func (c *CommandChannel) readLoop(conn *websocket.Conn, gen uint64) {
	defer conn.Close()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := gen == c.gen
			if current {
				c.conn = nil
				c.state = stateIdle
			}
			c.mu.Unlock()

			if !current {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				terr := &TransportError{Op: "read", Addr: c.config.URL, Err: err}
				c.log.Error("WebSocket error", logging.Fields{"error": terr})
				c.emitString(gen, func() func(string) { return c.onError }, terr.Error())
			}
			c.log.Info("WebSocket disconnected")
			c.emit(gen, func() func() { return c.onDisconnected })
			return
		}

		if messageType != websocket.TextMessage {
			c.log.Debug("Ignoring non-text WebSocket message", logging.Fields{"bytes": len(message)})
			continue
		}
		c.log.Debug("WebSocket text message received", logging.Fields{"message": string(message)})
		c.emitString(gen, func() func(string) { return c.onMessage }, string(message))
	}
}

// Send transmits text. Without an open connection it fires the send-failed
// handler with "not connected" and returns a *SendFailedError. A disabled
// channel returns ErrDisabled.
func (c *CommandChannel) Send(text string) error {
	if !c.config.Enabled {
		return ErrDisabled
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.log.Warn("WebSocket not connected; message not sent")
		c.sendFailed(ErrNotConnected.Error())
		return &SendFailedError{Reason: ErrNotConnected.Error(), Err: ErrNotConnected}
	}

	c.log.Debug("Sending WebSocket message", logging.Fields{"message": text})
	c.writeMu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, []byte(text))
	c.writeMu.Unlock()
	if err != nil {
		terr := &TransportError{Op: "write", Addr: c.config.URL, Err: err}
		c.log.Warn("WebSocket send failed", logging.Fields{"error": terr})
		c.sendFailed(err.Error())
		return &SendFailedError{Reason: err.Error(), Err: terr}
	}
	return nil
}

// Close shuts the connection down. It is safe at any time, including during
// a dial, and no handler runs once it returns.
func (c *CommandChannel) Close() error {
	c.mu.Lock()
	c.gen++
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = stateIdle
	c.mu.Unlock()

	// wait for handlers already running
	c.emitMu.Lock()
	c.emitMu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.writeMu.Unlock()
	return conn.Close()
}

// sendFailed is a direct answer to a Send call, so it is not gated on the
// connection generation.
func (c *CommandChannel) sendFailed(reason string) {
	c.mu.Lock()
	handler := c.onSendFailed
	c.mu.Unlock()
	if handler != nil {
		handler(reason)
	}
}

func (c *CommandChannel) emit(gen uint64, pick func() func()) {
	c.emitMu.RLock()
	defer c.emitMu.RUnlock()

	c.mu.Lock()
	current := gen == c.gen
	handler := pick()
	c.mu.Unlock()

	if current && handler != nil {
		handler()
	}
}

func (c *CommandChannel) emitString(gen uint64, pick func() func(string), value string) {
	c.emitMu.RLock()
	defer c.emitMu.RUnlock()

	c.mu.Lock()
	current := gen == c.gen
	handler := pick()
	c.mu.Unlock()

	if current && handler != nil {
		handler(value)
	}
}
