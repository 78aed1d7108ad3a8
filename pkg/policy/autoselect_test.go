package policy

import (
	"testing"

	"github.com/dougsko/antbridge/pkg/config"
	"github.com/dougsko/antbridge/pkg/protocol"
	"github.com/dougsko/antbridge/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var twentyMeters = []config.AntennaRule{
	{Rig: "A", MinFrequency: 14000, MaxFrequency: 14350, PrimaryAntenna: 3, SecondaryAntenna: 5},
	{Rig: "B", MinFrequency: 14000, MaxFrequency: 14350, PrimaryAntenna: 3, SecondaryAntenna: 4},
	{Rig: "A", MinFrequency: 7000, MaxFrequency: 7300, PrimaryAntenna: 1, SecondaryAntenna: 0},
}

func rigA(freq int) *protocol.RadioInfo {
	return &protocol.RadioInfo{RadioNr: 1, Freq: freq}
}

func TestEvaluateSecondaryWhenOtherRigHoldsPrimary(t *testing.T) {
	p := NewAutoSelect(twentyMeters)
	v := View{AutoA: true, Antennas: state.CommandState{A: "-", B: "3"}}

	d := p.Evaluate(rigA(14200), v)

	require.True(t, d.ShouldSend())
	assert.Equal(t, protocol.RigA, d.Rig)
	assert.Equal(t, 5, d.Antenna)
	assert.Equal(t, "A5", d.Command)
}

func TestEvaluatePrimary(t *testing.T) {
	p := NewAutoSelect(twentyMeters)
	v := View{AutoA: true, Antennas: state.CommandState{A: "1", B: "2"}}

	d := p.Evaluate(rigA(14000), v)

	require.True(t, d.ShouldSend())
	assert.Equal(t, "A3", d.Command)
}

func TestEvaluateAlreadySelected(t *testing.T) {
	p := NewAutoSelect(twentyMeters)
	v := View{AutoA: true, Antennas: state.CommandState{A: "3", B: "-"}}

	d := p.Evaluate(rigA(14200), v)

	assert.False(t, d.ShouldSend())
	assert.Equal(t, SkipAlreadySelected, d.Skip)
	assert.Empty(t, d.Command)
}

func TestEvaluateDeselectTargetComparesAsDash(t *testing.T) {
	p := NewAutoSelect(twentyMeters)
	// 40m rule: primary 1 is on rig B, secondary is 0 ("-") which A already has
	v := View{AutoA: true, Antennas: state.CommandState{A: "-", B: "1"}}

	d := p.Evaluate(rigA(7050), v)
	assert.Equal(t, SkipAlreadySelected, d.Skip)

	v.Antennas.A = "2"
	d = p.Evaluate(rigA(7050), v)
	require.True(t, d.ShouldSend())
	assert.Equal(t, "A-", d.Command)
}

func TestEvaluateBusyGate(t *testing.T) {
	p := NewAutoSelect(twentyMeters)
	v := View{Busy: true, AutoA: true, AutoB: true, Antennas: state.CommandState{A: "-", B: "-"}}

	d := p.Evaluate(rigA(14200), v)

	assert.Equal(t, SkipBusy, d.Skip)
	assert.False(t, d.ShouldSend())
}

func TestEvaluateAutoDisabledPerRig(t *testing.T) {
	p := NewAutoSelect(twentyMeters)
	v := View{AutoA: false, AutoB: true}

	assert.Equal(t, SkipAutoDisabled, p.Evaluate(rigA(14200), v).Skip)

	d := p.Evaluate(&protocol.RadioInfo{RadioNr: 2, Freq: 14200}, v)
	require.True(t, d.ShouldSend())
	assert.Equal(t, "B3", d.Command)
}

func TestEvaluateNoRule(t *testing.T) {
	p := NewAutoSelect(twentyMeters)
	v := View{AutoA: true}

	// max is exclusive
	assert.Equal(t, SkipNoRule, p.Evaluate(rigA(14350), v).Skip)
	assert.Equal(t, SkipNoRule, p.Evaluate(rigA(13999), v).Skip)
	assert.Equal(t, SkipNoRule, p.Evaluate(rigA(21000), v).Skip)
}

func TestMatchFirstRuleWins(t *testing.T) {
	p := NewAutoSelect([]config.AntennaRule{
		{Rig: "a", MinFrequency: 14000, MaxFrequency: 15000, PrimaryAntenna: 1},
		{Rig: "A", MinFrequency: 14000, MaxFrequency: 14100, PrimaryAntenna: 2},
	})

	rule, ok := p.Match(protocol.RigA, 14050)
	require.True(t, ok)
	assert.Equal(t, 1, rule.PrimaryAntenna)

	_, ok = p.Match(protocol.RigB, 14050)
	assert.False(t, ok)
}

func TestRadioNumberFallbackSelectsRigB(t *testing.T) {
	p := NewAutoSelect(twentyMeters)
	v := View{AutoB: true, Antennas: state.CommandState{A: "3", B: "-"}}

	// radio 3 is treated as rig B
	d := p.Evaluate(&protocol.RadioInfo{RadioNr: 3, Freq: 14100}, v)
	require.True(t, d.ShouldSend())
	assert.Equal(t, "B4", d.Command)
}

func TestRulesAreCopied(t *testing.T) {
	rules := []config.AntennaRule{{Rig: "A", MinFrequency: 1, MaxFrequency: 2, PrimaryAntenna: 1}}
	p := NewAutoSelect(rules)
	rules[0].PrimaryAntenna = 9

	assert.Equal(t, 1, p.Rules()[0].PrimaryAntenna)
}
