// Package telemetry turns raw tracker payloads into partial state updates.
//
// Several firmware generations publish the same report under different
// field names (sys.sec vs security, relay vs relays, spd vs speed). The
// decoder accepts all of them and produces a single domain.Update. Only
// fields present in the payload are set; JSON null counts as absent.
package telemetry

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"smart-tracker/internal/domain"
)

type object = map[string]any

// Decode parses one payload. It fails only when the payload is not a JSON
// object; individual fields that cannot be read degrade per field.
func Decode(payload []byte) (domain.Update, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return domain.Update{}, &domain.DecodeError{Reason: "empty payload"}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return domain.Update{}, &domain.DecodeError{Reason: "invalid json", Err: err}
	}
	if dec.More() {
		return domain.Update{}, &domain.DecodeError{Reason: "trailing data after json object"}
	}

	root, ok := raw.(object)
	if !ok {
		return domain.Update{}, &domain.DecodeError{Reason: "payload is not a json object"}
	}

	var u domain.Update

	u.DeviceID = stringField(root, "device_id", "deviceId")
	if ts := numberField(root, "timestamp", "ts", "timestampUnix"); ts != nil {
		v := int64(*ts)
		u.TimestampUnix = &v
	}

	if gps := objectField(root, "gps"); gps != nil {
		u.Lat = numberField(gps, "lat")
		u.Lng = numberField(gps, "lng", "lon")
		u.Satellites = intField(gps, "sat", "satellites")
		u.SpeedKmh = numberField(gps, "spd", "speed", "speedKmh")
	}

	sys := objectField(root, "sys")
	system := objectField(root, "system")
	sensor := objectField(root, "sensor")
	signal := objectField(root, "signal")

	u.BatteryVoltage = firstNumber(
		numberField(sys, "vbat"),
		numberField(system, "batteryVoltage"),
		numberField(sensor, "voltage_input"),
	)
	u.SignalStrengthDbm = firstInt(
		intField(sys, "rssi"),
		intField(system, "signalStrengthDbm"),
		intField(signal, "rssi"),
	)
	u.OperatorName = firstString(
		stringField(sys, "operator"),
		stringField(system, "operatorName"),
	)

	if relays := objectField(root, "relay", "relays"); relays != nil {
		u.R1 = boolField(relays, "r1")
		u.R2 = boolField(relays, "r2")
		u.R3 = boolField(relays, "r3")
		u.R4 = boolField(relays, "r4")
	}

	// Top-level "security" is what current firmware sends; sys.sec is the
	// older location and only used when the top-level flag is missing.
	u.SecurityEnabled = firstBool(
		boolField(root, "security", "securityEnabled"),
		boolField(sys, "sec"),
	)
	u.SendStreamingEnabled = boolField(root, "send_status", "sendStreamingEnabled")

	return u, nil
}

func lookup(m object, keys ...string) (any, bool) {
	if m == nil {
		return nil, false
	}
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func objectField(m object, keys ...string) object {
	v, ok := lookup(m, keys...)
	if !ok {
		return nil
	}
	o, _ := v.(object)
	return o
}

func stringField(m object, keys ...string) *string {
	v, ok := lookup(m, keys...)
	if !ok {
		return nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	default:
		return nil
	}
	return &s
}

// numberField returns a pointer when the key is present. A present value
// that is not numeric coerces to 0.
func numberField(m object, keys ...string) *float64 {
	v, ok := lookup(m, keys...)
	if !ok {
		return nil
	}
	n := coerceNumber(v)
	return &n
}

func intField(m object, keys ...string) *int {
	f := numberField(m, keys...)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

func coerceNumber(v any) float64 {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		f = parsed
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// boolField returns nil both for absent keys and for values it cannot read
// as a flag, so an unreadable flag keeps its prior value instead of
// flipping to false.
func boolField(m object, keys ...string) *bool {
	v, ok := lookup(m, keys...)
	if !ok {
		return nil
	}
	b, ok := coerceBool(v)
	if !ok {
		return nil
	}
	return &b
}

func coerceBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return false, false
		}
		return f != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "on":
			return true, true
		case "0", "false", "off":
			return false, true
		}
	}
	return false, false
}

func firstNumber(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstInt(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstString(vals ...*string) *string {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstBool(vals ...*bool) *bool {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
