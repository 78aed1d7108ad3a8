package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// StatusUpdate is one status message from the antenna controller. A nil
// field means the key was absent and the previous value must be kept.
type StatusUpdate struct {
	A        *string
	B        *string
	Commands *int
	I2C      *int
	RSSI     *int
	SNR      *int
	LinkRSSI *int
	Power    *int
}

// Status message keys
const (
	KeyA        = "a"
	KeyB        = "b"
	KeyCommands = "cmds"
	KeyI2C      = "i2cs"
	KeyRSSI     = "rssi"
	KeySNR      = "snr"
	KeyLinkRSSI = "lrssi"
	KeyPower    = "pwr"
)

var errNotObject = errors.New("status message is not a JSON object")

// ParseStatusMessage parses a controller status message. Anything that is not
// a JSON object returns a *DecodeError; callers ignore those messages.
func ParseStatusMessage(text string) (StatusUpdate, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return StatusUpdate{}, &DecodeError{Format: "json", Err: err}
	}
	if raw == nil {
		return StatusUpdate{}, &DecodeError{Format: "json", Err: errNotObject}
	}

	var u StatusUpdate
	u.A = stringField(raw, KeyA)
	u.B = stringField(raw, KeyB)
	u.Commands = intField(raw, KeyCommands)
	u.I2C = intField(raw, KeyI2C)
	u.RSSI = intField(raw, KeyRSSI)
	u.SNR = intField(raw, KeySNR)
	u.LinkRSSI = intField(raw, KeyLinkRSSI)
	u.Power = intField(raw, KeyPower)
	return u, nil
}

// Empty reports whether the update carries no known key.
func (u StatusUpdate) Empty() bool {
	return u.A == nil && u.B == nil && u.Commands == nil && u.I2C == nil &&
		u.RSSI == nil && u.SNR == nil && u.LinkRSSI == nil && u.Power == nil
}

func decodeValue(r json.RawMessage) interface{} {
	d := json.NewDecoder(bytes.NewReader(r))
	d.UseNumber()
	var v interface{}
	if err := d.Decode(&v); err != nil {
		return nil
	}
	return v
}

// stringField accepts strings and stringifies numbers and booleans, the way
// the controller firmware is inconsistent about quoting selectors.
func stringField(raw map[string]json.RawMessage, key string) *string {
	r, ok := raw[key]
	if !ok {
		return nil
	}
	var s string
	switch v := decodeValue(r).(type) {
	case string:
		s = v
	case json.Number:
		s = v.String()
	case bool:
		s = strconv.FormatBool(v)
	default:
		return nil
	}
	return &s
}

func intField(raw map[string]json.RawMessage, key string) *int {
	r, ok := raw[key]
	if !ok {
		return nil
	}
	var n int
	switch v := decodeValue(r).(type) {
	case json.Number:
		// out-of-range values leave the key unset
		if i, err := v.Int64(); err == nil {
			if i < math.MinInt || i > math.MaxInt {
				return nil
			}
			n = int(i)
		} else if f, err := v.Float64(); err == nil {
			if f < float64(math.MinInt) || f >= -float64(math.MinInt) {
				return nil
			}
			n = int(f)
		} else {
			return nil
		}
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		n = i
	case bool:
		if v {
			n = 1
		}
	default:
		return nil
	}
	return &n
}

// Selector is the wire form of an antenna choice: "-" for none, else digits.
func Selector(value int) string {
	if value == 0 {
		return "-"
	}
	return strconv.Itoa(value)
}

// FormatSelectCommand builds the outbound select command, e.g. "A3" or "B-".
func FormatSelectCommand(rig Rig, value int) string {
	return string(rig) + Selector(value)
}

// ParseSelectCommand parses "A3", "b-" and the like back into rig and antenna.
func ParseSelectCommand(text string) (Rig, int, error) {
	text = strings.TrimSpace(text)
	if len(text) < 2 {
		return "", 0, fmt.Errorf("invalid select command %q", text)
	}
	rig, err := ParseRig(text[:1])
	if err != nil {
		return "", 0, fmt.Errorf("invalid select command %q: %w", text, err)
	}
	sel := text[1:]
	if sel == "-" {
		return rig, 0, nil
	}
	value, err := strconv.Atoi(sel)
	if err != nil || value < 0 || strings.HasPrefix(sel, "+") {
		return "", 0, fmt.Errorf("invalid antenna selector %q", sel)
	}
	return rig, value, nil
}

// Response represents a response from the HTTP API
type Response struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// String converts a Response to its JSON form
func (r *Response) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data map[string]interface{}) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}
