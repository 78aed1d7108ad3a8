package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseStatusMessage(t *testing.T) {
	t.Run("Full Status", func(t *testing.T) {
		u, err := ParseStatusMessage(`{"a":"3","b":"-","cmds":12,"i2cs":4,"rssi":-61,"snr":9,"lrssi":-70,"pwr":100}`)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if u.A == nil || *u.A != "3" {
			t.Errorf("Expected a=3, got %v", u.A)
		}
		if u.B == nil || *u.B != "-" {
			t.Errorf("Expected b=-, got %v", u.B)
		}
		if u.Commands == nil || *u.Commands != 12 {
			t.Errorf("Expected cmds=12, got %v", u.Commands)
		}
		if u.RSSI == nil || *u.RSSI != -61 {
			t.Errorf("Expected rssi=-61, got %v", u.RSSI)
		}
		if u.LinkRSSI == nil || *u.LinkRSSI != -70 {
			t.Errorf("Expected lrssi=-70, got %v", u.LinkRSSI)
		}
		if u.Power == nil || *u.Power != 100 {
			t.Errorf("Expected pwr=100, got %v", u.Power)
		}
	})

	t.Run("Partial Status", func(t *testing.T) {
		u, err := ParseStatusMessage(`{"a":"3"}`)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if u.A == nil || *u.A != "3" {
			t.Errorf("Expected a=3, got %v", u.A)
		}
		if u.B != nil || u.Commands != nil || u.SNR != nil {
			t.Error("Expected absent keys to stay nil")
		}
	})

	t.Run("Numeric Selector Is Stringified", func(t *testing.T) {
		u, err := ParseStatusMessage(`{"b":4}`)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if u.B == nil || *u.B != "4" {
			t.Errorf("Expected b=4, got %v", u.B)
		}
	})

	t.Run("Lenient Integers", func(t *testing.T) {
		u, err := ParseStatusMessage(`{"cmds":"7","snr":3.9,"pwr":"high"}`)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if u.Commands == nil || *u.Commands != 7 {
			t.Errorf("Expected cmds=7, got %v", u.Commands)
		}
		if u.SNR == nil || *u.SNR != 3 {
			t.Errorf("Expected snr=3, got %v", u.SNR)
		}
		if u.Power != nil {
			t.Errorf("Expected unparseable pwr to be ignored, got %v", *u.Power)
		}
	})

	t.Run("Out Of Range Numbers", func(t *testing.T) {
		u, err := ParseStatusMessage(`{"rssi":1e300,"pwr":9223372036854775808,"snr":-1e19,"cmds":12.0}`)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if u.RSSI != nil {
			t.Errorf("Expected rssi to be ignored, got %v", *u.RSSI)
		}
		if u.Power != nil {
			t.Errorf("Expected pwr to be ignored, got %v", *u.Power)
		}
		if u.SNR != nil {
			t.Errorf("Expected snr to be ignored, got %v", *u.SNR)
		}
		if u.Commands == nil || *u.Commands != 12 {
			t.Errorf("Expected cmds=12, got %v", u.Commands)
		}
	})

	t.Run("Unknown Keys Only", func(t *testing.T) {
		u, err := ParseStatusMessage(`{"hello":"world"}`)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if !u.Empty() {
			t.Error("Expected empty update")
		}
	})

	t.Run("Not JSON Or Not Object", func(t *testing.T) {
		for _, text := range []string{"hello", "", "[1,2]", "42", `"a"`, "null"} {
			_, err := ParseStatusMessage(text)
			if err == nil {
				t.Errorf("Expected error for %q", text)
				continue
			}
			var de *DecodeError
			if !errors.As(err, &de) || de.Format != "json" {
				t.Errorf("Expected json DecodeError for %q, got %v", text, err)
			}
		}
	})
}

func TestSelectCommand(t *testing.T) {
	t.Run("Selector", func(t *testing.T) {
		if Selector(0) != "-" {
			t.Errorf("Expected '-', got %s", Selector(0))
		}
		if Selector(5) != "5" {
			t.Errorf("Expected '5', got %s", Selector(5))
		}
		if Selector(12) != "12" {
			t.Errorf("Expected '12', got %s", Selector(12))
		}
	})

	t.Run("Format", func(t *testing.T) {
		if cmd := FormatSelectCommand(RigA, 3); cmd != "A3" {
			t.Errorf("Expected A3, got %s", cmd)
		}
		if cmd := FormatSelectCommand(RigB, 0); cmd != "B-" {
			t.Errorf("Expected B-, got %s", cmd)
		}
	})

	t.Run("Parse", func(t *testing.T) {
		rig, value, err := ParseSelectCommand(" b- ")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if rig != RigB || value != 0 {
			t.Errorf("Expected B/0, got %s/%d", rig, value)
		}

		rig, value, err = ParseSelectCommand("A12")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if rig != RigA || value != 12 {
			t.Errorf("Expected A/12, got %s/%d", rig, value)
		}
	})

	t.Run("Parse Invalid", func(t *testing.T) {
		for _, text := range []string{"", "A", "C3", "Ax", "A-1", "A+3"} {
			if _, _, err := ParseSelectCommand(text); err == nil {
				t.Errorf("Expected error for %q", text)
			}
		}
	})
}

func TestRig(t *testing.T) {
	t.Run("From Number", func(t *testing.T) {
		cases := map[int]Rig{1: RigA, 2: RigB, 0: RigB, 3: RigB, -1: RigB}
		for n, want := range cases {
			if got := RigFromNumber(n); got != want {
				t.Errorf("RigFromNumber(%d): expected %s, got %s", n, want, got)
			}
		}
	})

	t.Run("Parse", func(t *testing.T) {
		if rig, err := ParseRig("a"); err != nil || rig != RigA {
			t.Errorf("Expected A, got %s (%v)", rig, err)
		}
		if _, err := ParseRig("C"); err == nil {
			t.Error("Expected error for rig C")
		}
	})

	t.Run("Other", func(t *testing.T) {
		if RigA.Other() != RigB || RigB.Other() != RigA {
			t.Error("Expected Other to swap rigs")
		}
	})
}

func TestResponse(t *testing.T) {
	t.Run("Success Response JSON", func(t *testing.T) {
		resp := NewSuccessResponse(map[string]interface{}{"command": "A3"})
		var decoded Response
		if err := json.Unmarshal([]byte(resp.String()), &decoded); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if !decoded.Success {
			t.Error("Expected success to be true")
		}
		if decoded.Data["command"] != "A3" {
			t.Errorf("Expected command A3, got %v", decoded.Data["command"])
		}
	})

	t.Run("Error Response JSON", func(t *testing.T) {
		resp := NewErrorResponse("not connected")
		jsonStr := resp.String()
		if !strings.Contains(jsonStr, `"error":"not connected"`) {
			t.Errorf("Expected error field in JSON, got %s", jsonStr)
		}
		if strings.Contains(jsonStr, `"data"`) {
			t.Errorf("Expected data to be omitted, got %s", jsonStr)
		}
	})
}
