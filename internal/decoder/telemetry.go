package decoder

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Trailer keys as sent by the device firmware.
const (
	keyFirmware  = "FW Version"
	keyBattery   = "Battery %"
	keyBlockTime = "Block's Time"
)

// Telemetry is the content of a data payload's JSON trailer.
// Has* flags report which keys were present and well-formed.
type Telemetry struct {
	Firmware    string
	Battery     int
	Time        float64
	HasFirmware bool
	HasBattery  bool
	HasTime     bool
}

// ParseTelemetry decodes a JSON trailer. The device pads the trailer with NUL
// bytes; anything after the first NUL is ignored. Unparseable input yields a
// zero Telemetry.
func ParseTelemetry(b []byte) Telemetry {
	var tm Telemetry

	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(b), &doc); err != nil {
		return tm
	}

	if s, ok := scalar(doc[keyFirmware]); ok {
		tm.Firmware, tm.HasFirmware = s, true
	}
	if s, ok := scalar(doc[keyBattery]); ok {
		if v, err := strconv.Atoi(s); err == nil {
			tm.Battery, tm.HasBattery = v, true
		}
	}
	if s, ok := scalar(doc[keyBlockTime]); ok {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			tm.Time, tm.HasTime = v, true
		}
	}
	return tm
}

// EncodeTelemetry renders a trailer the way the firmware does, NUL padded to TelemetrySize.
// Content longer than the trailer is truncated.
func EncodeTelemetry(firmware string, battery int, blockTime float64) []byte {
	doc := map[string]string{
		keyFirmware:  firmware,
		keyBattery:   strconv.Itoa(battery),
		keyBlockTime: strconv.FormatFloat(blockTime, 'f', -1, 64),
	}
	b, _ := json.Marshal(doc)
	out := make([]byte, TelemetrySize)
	copy(out, b)
	return out
}

// scalar accepts both quoted and bare JSON values.
func scalar(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
