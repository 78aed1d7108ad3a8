package protocol

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// DecodeError reports a payload that could not be decoded. The payload is
// discarded by the caller.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// RadioInfo is one decoded RadioInfo telemetry datagram. Freq and TXFreq are
// the wire value divided by 100 (kHz for N1MM+).
type RadioInfo struct {
	StationName   string `json:"station_name"`
	RadioNr       int    `json:"radio_nr"`
	Freq          int    `json:"freq"`
	TXFreq        int    `json:"tx_freq"`
	Mode          string `json:"mode"`
	OpCall        string `json:"op_call"`
	IsRunning     bool   `json:"is_running"`
	FocusEntry    int    `json:"focus_entry"`
	Antenna       int    `json:"antenna"`
	Rotors        string `json:"rotors"`
	FocusRadioNr  int    `json:"focus_radio_nr"`
	IsStereo      bool   `json:"is_stereo"`
	ActiveRadioNr int    `json:"active_radio_nr"`
}

// Radio is the rig this datagram describes.
func (r *RadioInfo) Radio() Rig {
	return RigFromNumber(r.RadioNr)
}

// FocusRadio is the rig holding keyboard focus in the logger.
func (r *RadioInfo) FocusRadio() Rig {
	return RigFromNumber(r.FocusRadioNr)
}

// ActiveRadio is the rig currently transmitting or selected for TX.
func (r *RadioInfo) ActiveRadio() Rig {
	return RigFromNumber(r.ActiveRadioNr)
}

// firstText holds the text of the first occurrence of an element. Later
// occurrences are consumed and ignored.
type firstText struct {
	seen bool
	text string
}

func (f *firstText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	if !f.seen {
		f.seen = true
		f.text = s
	}
	return nil
}

// radioInfoXML binds the direct children of the root element.
type radioInfoXML struct {
	StationName   firstText `xml:"StationName"`
	RadioNr       firstText `xml:"RadioNr"`
	Freq          firstText `xml:"Freq"`
	TXFreq        firstText `xml:"TXFreq"`
	Mode          firstText `xml:"Mode"`
	OpCall        firstText `xml:"OpCall"`
	IsRunning     firstText `xml:"IsRunning"`
	FocusEntry    firstText `xml:"FocusEntry"`
	Antenna       firstText `xml:"Antenna"`
	Rotors        firstText `xml:"Rotors"`
	FocusRadioNr  firstText `xml:"FocusRadioNr"`
	IsStereo      firstText `xml:"IsStereo"`
	ActiveRadioNr firstText `xml:"ActiveRadioNr"`
}

var trueValues = map[string]bool{
	"1":    true,
	"true": true,
	"yes":  true,
	"on":   true,
}

// ParseBool reports whether value is one of 1/true/yes/on, ignoring case and
// surrounding whitespace.
func ParseBool(value string) bool {
	return trueValues[strings.ToLower(strings.TrimSpace(value))]
}

// DecodeRadioInfo decodes a RadioInfo XML datagram. Invalid UTF-8 is replaced
// rather than rejected, and any declared encoding is ignored.
func DecodeRadioInfo(payload []byte) (*RadioInfo, error) {
	text, err := unicode.UTF8BOM.NewDecoder().Bytes(payload)
	if err != nil {
		return nil, &DecodeError{Format: "xml", Err: err}
	}

	d := xml.NewDecoder(bytes.NewReader(text))
	d.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var raw radioInfoXML
	if err := d.Decode(&raw); err != nil {
		return nil, &DecodeError{Format: "xml", Err: err}
	}
	if err := expectEOF(d); err != nil {
		return nil, &DecodeError{Format: "xml", Err: err}
	}

	p := intParser{}
	info := &RadioInfo{
		StationName:   strings.TrimSpace(raw.StationName.text),
		RadioNr:       p.parse("RadioNr", raw.RadioNr.text),
		Freq:          p.parse("Freq", raw.Freq.text) / 100,
		TXFreq:        p.parse("TXFreq", raw.TXFreq.text) / 100,
		Mode:          strings.TrimSpace(raw.Mode.text),
		OpCall:        strings.TrimSpace(raw.OpCall.text),
		IsRunning:     ParseBool(raw.IsRunning.text),
		FocusEntry:    p.parse("FocusEntry", raw.FocusEntry.text),
		Antenna:       p.parse("Antenna", raw.Antenna.text),
		Rotors:        strings.TrimSpace(raw.Rotors.text),
		FocusRadioNr:  p.parse("FocusRadioNr", raw.FocusRadioNr.text),
		IsStereo:      ParseBool(raw.IsStereo.text),
		ActiveRadioNr: p.parse("ActiveRadioNr", raw.ActiveRadioNr.text),
	}
	if p.err != nil {
		return nil, &DecodeError{Format: "xml", Err: p.err}
	}
	return info, nil
}

// expectEOF rejects a second root element or stray text after the first.
func expectEOF(d *xml.Decoder) error {
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return fmt.Errorf("junk after document element: <%s>", t.Name.Local)
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return fmt.Errorf("junk after document element")
			}
		}
	}
}

// intParser keeps the first conversion error so a struct literal can parse
// every field in one pass.
type intParser struct {
	err error
}

func (p *intParser) parse(name, value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("element %s: invalid integer %q", name, value)
		}
		return 0
	}
	return n
}
