// Package policy decides when a telemetry snapshot should trigger an
// automatic antenna select command.
//
// Two rigs share one set of antennas. When a rule's primary antenna is
// already held by the other rig the secondary is used instead. Both rigs are
// evaluated independently in event order, so two snapshots arriving back to
// back can still race for the same antenna; the single in-flight busy guard
// is the only protection.
package policy

import (
	"strings"

	"github.com/dougsko/antbridge/pkg/config"
	"github.com/dougsko/antbridge/pkg/protocol"
	"github.com/dougsko/antbridge/pkg/state"
)

// SkipReason explains why no command was issued.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipBusy            SkipReason = "busy"
	SkipAutoDisabled    SkipReason = "auto_disabled"
	SkipNoRule          SkipReason = "no_rule"
	SkipAlreadySelected SkipReason = "already_selected"
)

// View is the engine state the policy reads. It is never modified.
type View struct {
	Busy     bool
	AutoA    bool
	AutoB    bool
	Antennas state.CommandState
}

func (v View) autoEnabled(rig protocol.Rig) bool {
	if rig == protocol.RigA {
		return v.AutoA
	}
	return v.AutoB
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Skip    SkipReason
	Rig     protocol.Rig
	Antenna int
	Command string
	Rule    *config.AntennaRule
}

// ShouldSend reports whether a select command must be sent.
func (d Decision) ShouldSend() bool {
	return d.Skip == SkipNone
}

// AutoSelect evaluates the ordered antenna rules.
type AutoSelect struct {
	rules []config.AntennaRule
}

// NewAutoSelect copies rules; the policy never sees later edits.
func NewAutoSelect(rules []config.AntennaRule) *AutoSelect {
	copied := make([]config.AntennaRule, len(rules))
	copy(copied, rules)
	return &AutoSelect{rules: copied}
}

// Rules returns a copy of the configured rules.
func (p *AutoSelect) Rules() []config.AntennaRule {
	out := make([]config.AntennaRule, len(p.rules))
	copy(out, p.rules)
	return out
}

// Match returns the first rule for rig whose [min, max) range holds freq.
func (p *AutoSelect) Match(rig protocol.Rig, freq int) (*config.AntennaRule, bool) {
	for i := range p.rules {
		rule := &p.rules[i]
		if strings.ToUpper(rule.Rig) != string(rig) {
			continue
		}
		if rule.MinFrequency <= freq && freq < rule.MaxFrequency {
			return rule, true
		}
	}
	return nil, false
}

// Target picks the rule's primary antenna unless the other rig already holds
// it, in which case the secondary is used.
func Target(rule *config.AntennaRule, rig protocol.Rig, antennas state.CommandState) int {
	if antennas.Antenna(rig.Other()) == protocol.Selector(rule.PrimaryAntenna) {
		return rule.SecondaryAntenna
	}
	return rule.PrimaryAntenna
}

// Evaluate runs one auto-select check for a fresh snapshot.
func (p *AutoSelect) Evaluate(info *protocol.RadioInfo, v View) Decision {
	rig := info.Radio()
	d := Decision{Rig: rig}

	if v.Busy {
		d.Skip = SkipBusy
		return d
	}
	if !v.autoEnabled(rig) {
		d.Skip = SkipAutoDisabled
		return d
	}

	rule, ok := p.Match(rig, info.Freq)
	if !ok {
		d.Skip = SkipNoRule
		return d
	}
	d.Rule = rule
	d.Antenna = Target(rule, rig, v.Antennas)

	if v.Antennas.Antenna(rig) == protocol.Selector(d.Antenna) {
		d.Skip = SkipAlreadySelected
		return d
	}

	d.Command = protocol.FormatSelectCommand(rig, d.Antenna)
	return d
}
