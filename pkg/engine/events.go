package engine

import (
	"time"

	"github.com/dougsko/antbridge/pkg/protocol"
)

// EventKind names an engine notification.
type EventKind string

const (
	EventStatusChanged    EventKind = "status_changed"
	EventTelemetryUpdated EventKind = "telemetry_updated"
	EventCommandSent      EventKind = "command_sent"
	EventSendFailed       EventKind = "send_failed"
	EventConnectionError  EventKind = "connection_error"
	EventConnected        EventKind = "connected"
	EventDisconnected     EventKind = "disconnected"
	EventBusyChanged      EventKind = "busy_changed"
	EventAutoChanged      EventKind = "auto_changed"
	EventMessageChanged   EventKind = "message_changed"
	EventDecodeError      EventKind = "decode_error"
)

// Origin tells who issued a command.
type Origin string

const (
	OriginAuto   Origin = "auto"
	OriginManual Origin = "manual"
)

// Event is delivered to listeners. Status is the engine state right after
// the change.
type Event struct {
	Kind    EventKind    `json:"kind"`
	Time    time.Time    `json:"time"`
	Rig     protocol.Rig `json:"rig,omitempty"`
	Command string       `json:"command,omitempty"`
	Origin  Origin       `json:"origin,omitempty"`
	Text    string       `json:"text,omitempty"`
	Status  Status       `json:"status"`
}

// Listener receives engine events on the loop goroutine. It must not block.
type Listener func(Event)

// Subscribe registers l and returns a function that removes it. Listeners
// are called in registration order.
func (e *Engine) Subscribe(l Listener) func() {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()

	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, subscription{id: id, fn: l})

	return func() {
		e.listenersMu.Lock()
		defer e.listenersMu.Unlock()
		for i, s := range e.listeners {
			if s.id == id {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) notify(ev Event) {
	ev.Time = time.Now()
	ev.Status = e.snapshot()

	e.listenersMu.Lock()
	listeners := make([]Listener, len(e.listeners))
	for i, s := range e.listeners {
		listeners[i] = s.fn
	}
	e.listenersMu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}
