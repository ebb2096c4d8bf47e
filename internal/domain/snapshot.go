package domain

type GPS struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Satellites int     `json:"satellites"`
	SpeedKmh   float64 `json:"speedKmh"`
}

type System struct {
	BatteryVoltage    float64 `json:"batteryVoltage"`
	SignalStrengthDbm int     `json:"signalStrengthDbm"`
	OperatorName      string  `json:"operatorName"`
}

// Relays mirrors the four relay outputs on the tracker board:
// R1 ignition, R2 starter, R3 anti-theft cutoff, R4 hazard lights.
type Relays struct {
	R1 bool `json:"r1"`
	R2 bool `json:"r2"`
	R3 bool `json:"r3"`
	R4 bool `json:"r4"`
}

func (r Relays) Get(id Relay) bool {
	switch id {
	case RelayIgnition:
		return r.R1
	case RelayStarter:
		return r.R2
	case RelayAntiTheft:
		return r.R3
	case RelayHazard:
		return r.R4
	default:
		return false
	}
}

func (r Relays) With(id Relay, on bool) Relays {
	switch id {
	case RelayIgnition:
		r.R1 = on
	case RelayStarter:
		r.R2 = on
	case RelayAntiTheft:
		r.R3 = on
	case RelayHazard:
		r.R4 = on
	}
	return r
}

// Snapshot is the last-known device state. It is a plain value: copies
// handed out by the store cannot alias the store's own state.
type Snapshot struct {
	DeviceID             string `json:"deviceId"`
	TimestampUnix        int64  `json:"timestampUnix"`
	GPS                  GPS    `json:"gps"`
	System               System `json:"system"`
	Relays               Relays `json:"relays"`
	SecurityEnabled      bool   `json:"securityEnabled"`
	SendStreamingEnabled bool   `json:"sendStreamingEnabled"`
}

// Update is a partial snapshot decoded from one inbound payload.
// A nil field means the payload did not carry it.
type Update struct {
	DeviceID      *string
	TimestampUnix *int64

	Lat        *float64
	Lng        *float64
	Satellites *int
	SpeedKmh   *float64

	BatteryVoltage    *float64
	SignalStrengthDbm *int
	OperatorName      *string

	R1 *bool
	R2 *bool
	R3 *bool
	R4 *bool

	SecurityEnabled      *bool
	SendStreamingEnabled *bool
}

func (u Update) Empty() bool {
	return u == Update{}
}

type Group string

const (
	GroupGPS       Group = "gps"
	GroupSystem    Group = "system"
	GroupRelays    Group = "relays"
	GroupSecurity  Group = "security"
	GroupStreaming Group = "streaming"
)

// Diff lists the top-level groups whose values changed in an apply.
type Diff struct {
	GPS       bool
	System    bool
	Relays    bool
	Security  bool
	Streaming bool
}

func (d Diff) Empty() bool {
	return d == Diff{}
}

func (d Diff) Has(g Group) bool {
	switch g {
	case GroupGPS:
		return d.GPS
	case GroupSystem:
		return d.System
	case GroupRelays:
		return d.Relays
	case GroupSecurity:
		return d.Security
	case GroupStreaming:
		return d.Streaming
	default:
		return false
	}
}

func (d Diff) Groups() []Group {
	var groups []Group
	for _, g := range []Group{GroupGPS, GroupSystem, GroupRelays, GroupSecurity, GroupStreaming} {
		if d.Has(g) {
			groups = append(groups, g)
		}
	}
	return groups
}

func DiffSnapshots(prev, next Snapshot) Diff {
	return Diff{
		GPS:       prev.GPS != next.GPS,
		System:    prev.System != next.System,
		Relays:    prev.Relays != next.Relays,
		Security:  prev.SecurityEnabled != next.SecurityEnabled,
		Streaming: prev.SendStreamingEnabled != next.SendStreamingEnabled,
	}
}

type LinkStatus string

const (
	LinkDisconnected LinkStatus = "disconnected"
	LinkReconnecting LinkStatus = "reconnecting"
	LinkConnected    LinkStatus = "connected"
)
