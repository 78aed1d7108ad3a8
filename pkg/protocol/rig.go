package protocol

import (
	"fmt"
	"strings"
)

// Rig identifies one of the two tracked radios.
type Rig string

const (
	RigA Rig = "A"
	RigB Rig = "B"
)

// Rigs lists both rigs in display order.
var Rigs = []Rig{RigA, RigB}

// RigFromNumber maps a logger radio number to a rig. Radio 1 is A and every
// other value, including 0 and 3+, is B. Only the two-rig model exists.
func RigFromNumber(n int) Rig {
	if n == 1 {
		return RigA
	}
	return RigB
}

// ParseRig parses "A" or "B", case-insensitively.
func ParseRig(s string) (Rig, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return RigA, nil
	case "B":
		return RigB, nil
	}
	return "", fmt.Errorf("unknown rig %q", s)
}

// Other returns the opposite rig.
func (r Rig) Other() Rig {
	if r == RigA {
		return RigB
	}
	return RigA
}

func (r Rig) String() string {
	return string(r)
}
