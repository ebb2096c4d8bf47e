package telemetry_test

import (
	"errors"
	"testing"

	"smart-tracker/internal/domain"
	"smart-tracker/internal/telemetry"
)

func TestDecode_FullPayload(t *testing.T) {
	payload := []byte(`{
		"device_id": "trk-01",
		"timestamp": 1731900000,
		"gps": {"lat": -7.981894, "lng": 112.626503, "sat": 9, "spd": 42.5},
		"sys": {"vbat": 12.4, "rssi": -71, "operator": "Telkomsel", "sec": true},
		"relay": {"r1": 0, "r2": 1, "r3": 0, "r4": 1},
		"send_status": 1
	}`)

	u, err := telemetry.Decode(payload)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	if u.DeviceID == nil || *u.DeviceID != "trk-01" {
		t.Errorf("device id: got %v, want trk-01", u.DeviceID)
	}
	if u.TimestampUnix == nil || *u.TimestampUnix != 1731900000 {
		t.Errorf("timestamp: got %v", u.TimestampUnix)
	}
	if u.Lat == nil || *u.Lat != -7.981894 {
		t.Errorf("lat: got %v", u.Lat)
	}
	if u.Satellites == nil || *u.Satellites != 9 {
		t.Errorf("satellites: got %v", u.Satellites)
	}
	if u.SpeedKmh == nil || *u.SpeedKmh != 42.5 {
		t.Errorf("speed: got %v", u.SpeedKmh)
	}
	if u.BatteryVoltage == nil || *u.BatteryVoltage != 12.4 {
		t.Errorf("vbat: got %v", u.BatteryVoltage)
	}
	if u.SignalStrengthDbm == nil || *u.SignalStrengthDbm != -71 {
		t.Errorf("rssi: got %v", u.SignalStrengthDbm)
	}
	if u.OperatorName == nil || *u.OperatorName != "Telkomsel" {
		t.Errorf("operator: got %v", u.OperatorName)
	}
	if u.R1 == nil || *u.R1 {
		t.Errorf("r1: got %v, want false", u.R1)
	}
	if u.R2 == nil || !*u.R2 {
		t.Errorf("r2: got %v, want true", u.R2)
	}
	if u.SecurityEnabled == nil || !*u.SecurityEnabled {
		t.Errorf("security: got %v, want true", u.SecurityEnabled)
	}
	if u.SendStreamingEnabled == nil || !*u.SendStreamingEnabled {
		t.Errorf("streaming: got %v, want true", u.SendStreamingEnabled)
	}
}

func TestDecode_FieldNameVariants(t *testing.T) {
	payload := []byte(`{
		"deviceId": "trk-02",
		"gps": {"lat": 1.5, "lon": 2.5, "satellites": 4, "speed": 10},
		"system": {"batteryVoltage": 3.9, "signalStrengthDbm": -90, "operatorName": "XL"},
		"relays": {"r1": true, "r3": "ON"},
		"security": false,
		"sendStreamingEnabled": false
	}`)

	u, err := telemetry.Decode(payload)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	if u.DeviceID == nil || *u.DeviceID != "trk-02" {
		t.Errorf("device id: got %v", u.DeviceID)
	}
	if u.Lng == nil || *u.Lng != 2.5 {
		t.Errorf("lng: got %v", u.Lng)
	}
	if u.SpeedKmh == nil || *u.SpeedKmh != 10 {
		t.Errorf("speed: got %v", u.SpeedKmh)
	}
	if u.BatteryVoltage == nil || *u.BatteryVoltage != 3.9 {
		t.Errorf("vbat: got %v", u.BatteryVoltage)
	}
	if u.OperatorName == nil || *u.OperatorName != "XL" {
		t.Errorf("operator: got %v", u.OperatorName)
	}
	if u.R1 == nil || !*u.R1 {
		t.Errorf("r1: got %v, want true", u.R1)
	}
	if u.R2 != nil {
		t.Errorf("r2: got %v, want absent", *u.R2)
	}
	if u.R3 == nil || !*u.R3 {
		t.Errorf("r3: got %v, want true", u.R3)
	}
	if u.SecurityEnabled == nil || *u.SecurityEnabled {
		t.Errorf("security: got %v, want false", u.SecurityEnabled)
	}
}

func TestDecode_Fallbacks(t *testing.T) {
	payload := []byte(`{"sensor": {"voltage_input": "12.1"}, "signal": {"rssi": -60}}`)

	u, err := telemetry.Decode(payload)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	if u.BatteryVoltage == nil || *u.BatteryVoltage != 12.1 {
		t.Errorf("vbat fallback: got %v, want 12.1", u.BatteryVoltage)
	}
	if u.SignalStrengthDbm == nil || *u.SignalStrengthDbm != -60 {
		t.Errorf("rssi fallback: got %v, want -60", u.SignalStrengthDbm)
	}
}

func TestDecode_SecurityPrecedence(t *testing.T) {
	u, err := telemetry.Decode([]byte(`{"security": true, "sys": {"sec": false}}`))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if u.SecurityEnabled == nil || !*u.SecurityEnabled {
		t.Errorf("security: got %v, want top-level true", u.SecurityEnabled)
	}

	u, err = telemetry.Decode([]byte(`{"sys": {"sec": 1}}`))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if u.SecurityEnabled == nil || !*u.SecurityEnabled {
		t.Errorf("security from sys.sec: got %v, want true", u.SecurityEnabled)
	}
}

func TestDecode_Coercion(t *testing.T) {
	u, err := telemetry.Decode([]byte(`{
		"gps": {"lat": "not-a-number", "lng": null},
		"sys": {"vbat": true},
		"relay": {"r1": "maybe", "r2": null, "r4": 0}
	}`))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	if u.Lat == nil || *u.Lat != 0 {
		t.Errorf("non-numeric lat: got %v, want 0", u.Lat)
	}
	if u.Lng != nil {
		t.Errorf("null lng: got %v, want absent", *u.Lng)
	}
	if u.BatteryVoltage == nil || *u.BatteryVoltage != 1 {
		t.Errorf("bool vbat: got %v, want 1", u.BatteryVoltage)
	}
	if u.R1 != nil {
		t.Errorf("unreadable r1: got %v, want absent", *u.R1)
	}
	if u.R2 != nil {
		t.Errorf("null r2: got %v, want absent", *u.R2)
	}
	if u.R4 == nil || *u.R4 {
		t.Errorf("r4: got %v, want false", u.R4)
	}
}

func TestDecode_SparsePayload(t *testing.T) {
	u, err := telemetry.Decode([]byte(`{"gps": {"lat": 3}}`))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	if u.SecurityEnabled != nil || u.R1 != nil || u.BatteryVoltage != nil || u.DeviceID != nil {
		t.Errorf("sparse payload set fields it did not carry: %+v", u)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "empty", payload: ""},
		{name: "whitespace", payload: "   "},
		{name: "invalid json", payload: "{gps:"},
		{name: "array", payload: `[1,2,3]`},
		{name: "string", payload: `"SEND_ON"`},
		{name: "trailing data", payload: `{"a":1} {"b":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := telemetry.Decode([]byte(tt.payload))
			if err == nil {
				t.Fatal("expected error")
			}
			var decodeErr *domain.DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("error type: got %T, want *domain.DecodeError", err)
			}
		})
	}
}
