package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/dougsko/antbridge/pkg/logging"
)

// maxDatagramSize covers the largest possible UDP payload.
const maxDatagramSize = 65536

// TelemetryChannelConfig configures the UDP listener.
type TelemetryChannelConfig struct {
	Host    string
	Port    int
	Enabled bool
}

// Address returns host:port.
func (c TelemetryChannelConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TelemetryChannel receives logger broadcasts. It only listens; every
// datagram is handed whole to the registered handler.
type TelemetryChannel struct {
	config TelemetryChannelConfig
	log    *logging.ComponentLogger

	mu         sync.Mutex
	conn       *net.UDPConn
	gen        uint64
	onDatagram func([]byte)

	emitMu sync.RWMutex
	wg     sync.WaitGroup
}

// NewTelemetryChannel creates an unbound telemetry channel.
func NewTelemetryChannel(cfg TelemetryChannelConfig, logger *logging.Logger) *TelemetryChannel {
	return &TelemetryChannel{
		config: cfg,
		log:    logger.Component("udp"),
	}
}

// SetDatagramHandler sets the callback for received datagrams
func (t *TelemetryChannel) SetDatagramHandler(handler func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDatagram = handler
}

// Open binds the configured address and starts receiving. A bind failure is
// returned as a *TransportError.
func (t *TelemetryChannel) Open() error {
	if !t.config.Enabled {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp", t.config.Address())
	if err != nil {
		return &TransportError{Op: "udp resolve", Addr: t.config.Address(), Err: err}
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return &TransportError{Op: "udp bind", Addr: t.config.Address(), Err: err}
	}

	t.conn = conn
	t.gen++
	gen := t.gen

	t.wg.Add(1)
	go t.receiveLoop(conn, gen)

	t.log.Info("UDP listening", logging.Fields{"addr": conn.LocalAddr().String()})
	return nil
}

// LocalAddr returns the bound address, or nil before Open.
func (t *TelemetryChannel) LocalAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

func (t *TelemetryChannel) receiveLoop(conn *net.UDPConn, gen uint64) {
	defer t.wg.Done()

	buffer := make([]byte, maxDatagramSize)
	for {
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.log.Warn("UDP read error", logging.Fields{"error": err})
			continue
		}

		t.log.Debug(fmt.Sprintf("UDP datagram received from %s (%d bytes)", from, n))

		data := make([]byte, n)
		copy(data, buffer[:n])
		t.emit(gen, data)
	}
}

func (t *TelemetryChannel) emit(gen uint64, data []byte) {
	t.emitMu.RLock()
	defer t.emitMu.RUnlock()

	t.mu.Lock()
	current := gen == t.gen
	handler := t.onDatagram
	t.mu.Unlock()

	if current && handler != nil {
		handler(data)
	}
}

// Send is a no-op; the channel is listen-only.
func (t *TelemetryChannel) Send(payload []byte) error {
	t.log.Debug("UDP send ignored (listen-only mode)", logging.Fields{"bytes": len(payload)})
	return nil
}

// Close stops receiving. It is idempotent and no handler runs once it returns.
func (t *TelemetryChannel) Close() error {
	t.mu.Lock()
	t.gen++
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	t.emitMu.Lock()
	t.emitMu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	t.wg.Wait()
	return err
}
