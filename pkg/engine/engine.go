package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dougsko/antbridge/pkg/client"
	"github.com/dougsko/antbridge/pkg/config"
	"github.com/dougsko/antbridge/pkg/logging"
	"github.com/dougsko/antbridge/pkg/policy"
	"github.com/dougsko/antbridge/pkg/protocol"
	"github.com/dougsko/antbridge/pkg/state"
)

// Status messages shown to operators.
const (
	MessageOK           = "OK"
	MessageConnected    = "Connected"
	MessageDisconnected = "Disconnected"
)

// workQueueSize bounds the number of pending events before transport
// goroutines start to wait on the loop.
const workQueueSize = 256

var (
	ErrNotRunning      = errors.New("engine not running")
	ErrInvalidAntenna  = errors.New("antenna value must not be negative")
	ErrAlreadyStarted  = errors.New("engine already started")
	errCommandRequired = errors.New("command text is empty")
)

// CommandSender is the controller side of the engine.
type CommandSender interface {
	Connect()
	Send(text string) error
	Close() error
	IsConnected() bool
	SetMessageHandler(func(string))
	SetErrorHandler(func(string))
	SetConnectedHandler(func())
	SetDisconnectedHandler(func())
	SetSendFailedHandler(func(string))
}

// TelemetrySource is the logger side of the engine.
type TelemetrySource interface {
	Open() error
	Close() error
	SetDatagramHandler(func([]byte))
}

// Counters are monotonically increasing totals kept by the loop.
type Counters struct {
	Datagrams      uint64 `json:"datagrams"`
	DecodeErrors   uint64 `json:"decode_errors"`
	StatusMessages uint64 `json:"status_messages"`
	CommandsSent   uint64 `json:"commands_sent"`
	SendFailures   uint64 `json:"send_failures"`
}

// Status is a point-in-time copy of everything the engine owns.
type Status struct {
	Connected  bool               `json:"connected"`
	Listening  bool               `json:"listening"`
	Busy       bool               `json:"busy"`
	Message    string             `json:"message"`
	AutoA      bool               `json:"auto_a"`
	AutoB      bool               `json:"auto_b"`
	Controller state.CommandState `json:"controller"`
	Telemetry  state.Telemetry    `json:"telemetry"`
	Counters   Counters           `json:"counters"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Auto returns the auto flag for rig.
func (s Status) Auto(rig protocol.Rig) bool {
	if rig == protocol.RigA {
		return s.AutoA
	}
	return s.AutoB
}

// Engine reconciles logger telemetry with controller state. Every state
// change happens on a single loop goroutine; transport callbacks only queue
// work for it.
type Engine struct {
	config    *config.Config
	log       *logging.ComponentLogger
	commands  CommandSender
	telemetry TelemetrySource
	policy    *policy.AutoSelect

	work    chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	sending atomic.Bool
	once    sync.Once

	// owned by the loop goroutine
	controller state.CommandState
	tel        state.Telemetry
	connected  bool
	listening  bool
	busy       bool
	message    string
	autoA      bool
	autoB      bool
	counters   Counters
	updatedAt  time.Time

	statusMu  sync.RWMutex
	published Status

	listenersMu sync.Mutex
	listeners   []subscription
	nextID      int
}

type subscription struct {
	id int
	fn Listener
}

// NewEngine creates an engine over the given channels. Auto flags and rules
// come from cfg.
func NewEngine(cfg *config.Config, logger *logging.Logger, commands CommandSender, telemetry TelemetrySource) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		config:    cfg,
		log:       logger.Component("engine"),
		commands:  commands,
		telemetry: telemetry,
		policy:    policy.NewAutoSelect(cfg.AutoSwitch.AntennaRules),
		work:      make(chan func(), workQueueSize),
		ctx:       ctx,
		cancel:    cancel,
		message:   MessageDisconnected,
		autoA:     cfg.AutoSwitch.AutoA,
		autoB:     cfg.AutoSwitch.AutoB,
	}
	e.published = e.snapshot()
	return e
}

// Start registers the transport handlers, launches the loop and opens both
// channels. A telemetry bind failure is logged and the engine keeps running
// without telemetry. The engine stops when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	if e.ctx.Err() != nil {
		return ErrNotRunning
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	e.commands.SetMessageHandler(func(text string) {
		e.enqueue(func() { e.handleStatusMessage(text) })
	})
	e.commands.SetErrorHandler(func(msg string) {
		e.enqueue(func() { e.handleError(msg) })
	})
	e.commands.SetConnectedHandler(func() {
		e.enqueue(e.handleConnected)
	})
	e.commands.SetDisconnectedHandler(func() {
		e.enqueue(e.handleDisconnected)
	})
	e.commands.SetSendFailedHandler(func(reason string) {
		// failures of sends issued by the loop are handled from the
		// returned error
		if e.sending.Load() {
			return
		}
		e.enqueue(func() { e.handleSendFailed("", "", "", reason) })
	})
	e.telemetry.SetDatagramHandler(func(payload []byte) {
		e.enqueue(func() { e.handleDatagram(payload) })
	})

	e.wg.Add(1)
	go e.loop()

	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				e.Stop()
			case <-e.ctx.Done():
			}
		}()
	}

	for _, w := range e.config.RuleWarnings() {
		e.log.Warn("Antenna rule accepted with warning", logging.Fields{"warning": w})
	}

	e.log.Info("Engine starting", logging.Fields{
		"rules":  len(e.policy.Rules()),
		"auto_a": e.autoA,
		"auto_b": e.autoB,
	})

	e.commands.Connect()

	if err := e.telemetry.Open(); err != nil {
		e.log.Error("UDP connection failed; telemetry disabled", logging.Fields{"error": err})
	} else {
		e.enqueue(func() { e.listening = true })
	}
	return nil
}

// Stop closes both channels and waits for the loop to exit. It is idempotent.
func (e *Engine) Stop() {
	e.once.Do(func() {
		e.log.Info("Engine stopping")
		if err := e.commands.Close(); err != nil {
			e.log.Debug("WebSocket close error", logging.Fields{"error": err})
		}
		if err := e.telemetry.Close(); err != nil {
			e.log.Debug("UDP close error", logging.Fields{"error": err})
		}
		e.cancel()
		e.wg.Wait()
		e.running.Store(false)
	})
}

// Done is closed once the engine has been stopped.
func (e *Engine) Done() <-chan struct{} {
	return e.ctx.Done()
}

func (e *Engine) loop() {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.work:
			fn()
			e.publish()
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Engine) enqueue(fn func()) {
	select {
	case e.work <- fn:
	case <-e.ctx.Done():
	}
}

// do runs fn on the loop and waits for it to finish.
func (e *Engine) do(fn func()) error {
	if !e.running.Load() {
		return ErrNotRunning
	}
	done := make(chan struct{})
	select {
	case e.work <- func() { fn(); close(done) }:
	case <-e.ctx.Done():
		return ErrNotRunning
	}
	select {
	case <-done:
		return nil
	case <-e.ctx.Done():
		return ErrNotRunning
	}
}

func (e *Engine) snapshot() Status {
	return Status{
		Connected:  e.connected,
		Listening:  e.listening,
		Busy:       e.busy,
		Message:    e.message,
		AutoA:      e.autoA,
		AutoB:      e.autoB,
		Controller: e.controller,
		Telemetry:  e.tel,
		Counters:   e.counters,
		UpdatedAt:  e.updatedAt,
	}
}

func (e *Engine) publish() {
	s := e.snapshot()
	e.statusMu.Lock()
	e.published = s
	e.statusMu.Unlock()
}

// Status returns the state as of the last processed event. It never waits on
// the loop and is safe to call from a Listener.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.published
}

// Rules returns the configured antenna rules.
func (e *Engine) Rules() []config.AntennaRule {
	return e.policy.Rules()
}

func (e *Engine) handleStatusMessage(text string) {
	update, err := protocol.ParseStatusMessage(text)
	if err != nil {
		e.log.Debug("Ignoring non-status message", logging.Fields{"error": err})
		return
	}

	e.counters.StatusMessages++
	next, changed := state.ApplyStatus(e.controller, update)
	e.controller = next
	if changed {
		e.updatedAt = time.Now()
		e.notify(Event{Kind: EventStatusChanged})
	}
	e.setBusy(false)
	e.setMessage(MessageOK)
}

func (e *Engine) handleError(msg string) {
	e.log.Warn("Controller connection error", logging.Fields{"error": msg})
	e.setBusy(false)
	e.setMessage(msg)
	e.notify(Event{Kind: EventConnectionError, Text: msg})
}

func (e *Engine) handleConnected() {
	e.connected = true
	e.setMessage(MessageConnected)
	e.notify(Event{Kind: EventConnected})
}

func (e *Engine) handleDisconnected() {
	e.connected = false
	e.setBusy(false)
	e.setMessage(MessageDisconnected)
	e.notify(Event{Kind: EventDisconnected})
}

func (e *Engine) handleSendFailed(rig protocol.Rig, command string, origin Origin, reason string) {
	e.counters.SendFailures++
	e.log.Warn("Command send failed", logging.Fields{"command": command, "reason": reason})
	e.setBusy(false)
	e.setMessage("Send failed: " + reason)
	e.notify(Event{Kind: EventSendFailed, Rig: rig, Command: command, Origin: origin, Text: reason})
}

func (e *Engine) handleDatagram(payload []byte) {
	e.counters.Datagrams++

	info, err := protocol.DecodeRadioInfo(payload)
	if err != nil {
		e.counters.DecodeErrors++
		e.log.Error("Failed to parse UDP XML", logging.Fields{"error": err})
		e.notify(Event{Kind: EventDecodeError, Text: err.Error()})
		return
	}

	next, changed := e.tel.Apply(info)
	e.tel = next
	if changed {
		e.updatedAt = time.Now()
		e.notify(Event{Kind: EventTelemetryUpdated, Rig: info.Radio()})
	}

	e.autoSelect(info)
}

func (e *Engine) autoSelect(info *protocol.RadioInfo) {
	d := e.policy.Evaluate(info, policy.View{
		Busy:     e.busy,
		AutoA:    e.autoA,
		AutoB:    e.autoB,
		Antennas: e.controller,
	})
	if !d.ShouldSend() {
		if d.Skip == policy.SkipAlreadySelected || d.Skip == policy.SkipBusy {
			e.log.Debug("Auto-select skipped", logging.Fields{
				"rig":    d.Rig.String(),
				"reason": string(d.Skip),
			})
		}
		return
	}

	e.log.Info("Auto-selecting antenna", logging.Fields{
		"rig":     d.Rig.String(),
		"freq":    info.Freq,
		"antenna": d.Antenna,
		"command": d.Command,
	})
	e.issueSelect(d.Rig, d.Antenna, OriginAuto)
}

// issueSelect sends a select command unless the antenna is already selected.
// It reports whether a command was attempted.
func (e *Engine) issueSelect(rig protocol.Rig, value int, origin Origin) bool {
	if e.controller.Antenna(rig) == protocol.Selector(value) {
		return false
	}

	command := protocol.FormatSelectCommand(rig, value)
	e.setMessage("Sending command: " + command)
	e.setBusy(true)
	e.send(rig, command, origin)
	return true
}

// send writes text to the controller. A failure reported by the channel is
// processed before send returns.
func (e *Engine) send(rig protocol.Rig, text string, origin Origin) error {
	e.sending.Store(true)
	err := e.commands.Send(text)
	e.sending.Store(false)

	if errors.Is(err, client.ErrDisabled) {
		// nothing left the process, so nothing is counted or reported
		e.log.Debug("Command channel disabled; command dropped", logging.Fields{"command": text})
		return err
	}
	if err != nil {
		var sf *client.SendFailedError
		reason := err.Error()
		if errors.As(err, &sf) {
			reason = sf.Reason
		}
		e.handleSendFailed(rig, text, origin, reason)
		return err
	}

	e.counters.CommandsSent++
	e.notify(Event{Kind: EventCommandSent, Rig: rig, Command: text, Origin: origin})
	return nil
}

func (e *Engine) setBusy(busy bool) {
	if e.busy == busy {
		return
	}
	e.busy = busy
	e.notify(Event{Kind: EventBusyChanged})
}

func (e *Engine) setMessage(msg string) {
	if e.message == msg {
		return
	}
	e.message = msg
	e.notify(Event{Kind: EventMessageChanged, Text: msg})
}

// SelectAntenna manually selects value on rig. It is not gated by the busy
// flag. The returned bool is false when the antenna was already selected.
func (e *Engine) SelectAntenna(rig protocol.Rig, value int) (bool, error) {
	if value < 0 {
		return false, ErrInvalidAntenna
	}
	var sent bool
	err := e.do(func() {
		e.log.Info("Manual antenna select", logging.Fields{"rig": rig.String(), "antenna": value})
		sent = e.issueSelect(rig, value, OriginManual)
	})
	return sent, err
}

// SendText sends raw text to the controller. Surrounding whitespace is
// trimmed and empty text is rejected. The busy flag is not touched.
func (e *Engine) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errCommandRequired
	}
	var sendErr error
	err := e.do(func() {
		e.log.Info("Sending raw command", logging.Fields{"command": text})
		sendErr = e.send("", text, OriginManual)
	})
	if err != nil {
		return err
	}
	return sendErr
}

// SetAuto enables or disables automatic selection for rig.
func (e *Engine) SetAuto(rig protocol.Rig, enabled bool) error {
	return e.do(func() {
		flag := &e.autoB
		if rig == protocol.RigA {
			flag = &e.autoA
		}
		if *flag == enabled {
			return
		}
		*flag = enabled
		e.log.Info("Auto mode changed", logging.Fields{"rig": rig.String(), "enabled": enabled})
		e.notify(Event{Kind: EventAutoChanged, Rig: rig})
	})
}

// IsEmptyCommand reports whether err came from SendText being given nothing
// to send.
func IsEmptyCommand(err error) bool {
	return errors.Is(err, errCommandRequired)
}
