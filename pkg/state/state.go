// Package state holds the canonical views of the controller and the logger
// telemetry, and the pure functions that merge updates into them.
package state

import (
	"github.com/dougsko/antbridge/pkg/protocol"
)

// CommandState is the last known controller status. A and B hold antenna
// selector strings ("-" or digits), empty until the first status arrives.
type CommandState struct {
	A        string `json:"a"`
	B        string `json:"b"`
	Commands int    `json:"cmds"`
	I2C      int    `json:"i2cs"`
	RSSI     int    `json:"rssi"`
	SNR      int    `json:"snr"`
	LinkRSSI int    `json:"lrssi"`
	Power    int    `json:"pwr"`
}

// Antenna returns the selector string currently held by rig.
func (s CommandState) Antenna(rig protocol.Rig) string {
	if rig == protocol.RigA {
		return s.A
	}
	return s.B
}

// ApplyStatus merges a partial update into old. Keys absent from the update
// keep their previous value. changed is false when every present key already
// held the same value.
func ApplyStatus(old CommandState, u protocol.StatusUpdate) (CommandState, bool) {
	next := old
	setString(&next.A, u.A)
	setString(&next.B, u.B)
	setInt(&next.Commands, u.Commands)
	setInt(&next.I2C, u.I2C)
	setInt(&next.RSSI, u.RSSI)
	setInt(&next.SNR, u.SNR)
	setInt(&next.LinkRSSI, u.LinkRSSI)
	setInt(&next.Power, u.Power)
	return next, next != old
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// RigTelemetry is the tracked part of the latest snapshot for one rig.
type RigTelemetry struct {
	Freq      int    `json:"freq"`
	TXFreq    int    `json:"tx_freq"`
	Mode      string `json:"mode"`
	OpCall    string `json:"op_call"`
	Antenna   int    `json:"antenna"`
	IsRunning bool   `json:"is_running"`
}

// Telemetry holds per-rig live telemetry. A snapshot for one rig never
// touches the other.
type Telemetry struct {
	A RigTelemetry `json:"a"`
	B RigTelemetry `json:"b"`

	// Last full snapshots, nil until the first datagram for the rig.
	LastA *protocol.RadioInfo `json:"last_a,omitempty"`
	LastB *protocol.RadioInfo `json:"last_b,omitempty"`
}

// Rig returns the tracked telemetry for rig.
func (t Telemetry) Rig(rig protocol.Rig) RigTelemetry {
	if rig == protocol.RigA {
		return t.A
	}
	return t.B
}

// Apply records info against its rig. changed reports whether any tracked
// field of that rig differs from before; the stored snapshot is replaced
// either way.
func (t Telemetry) Apply(info *protocol.RadioInfo) (Telemetry, bool) {
	next := t
	live := RigTelemetry{
		Freq:      info.Freq,
		TXFreq:    info.TXFreq,
		Mode:      info.Mode,
		OpCall:    info.OpCall,
		Antenna:   info.Antenna,
		IsRunning: info.IsRunning,
	}

	var changed bool
	if info.Radio() == protocol.RigA {
		changed = next.A != live || next.LastA == nil
		next.A = live
		next.LastA = info
	} else {
		changed = next.B != live || next.LastB == nil
		next.B = live
		next.LastB = info
	}
	return next, changed
}
