package domain

import "time"

// Control is a dashboard button.
type Control string

const (
	ControlIgnition   Control = "ignition"
	ControlStarter    Control = "starter"
	ControlAntiTheft  Control = "anti-theft"
	ControlHazard     Control = "hazard"
	ControlSecurity   Control = "security"
	ControlStreaming  Control = "streaming"
	ControlPing       Control = "ping"
	ControlModemReset Control = "modem-reset"
	ControlReset      Control = "reset"
)

func ParseControl(s string) (Control, bool) {
	c := Control(s)
	switch c {
	case ControlIgnition, ControlStarter, ControlAntiTheft, ControlHazard,
		ControlSecurity, ControlStreaming, ControlPing, ControlModemReset, ControlReset:
		return c, true
	}
	return "", false
}

// ControlResult lists what a control actually published.
type ControlResult struct {
	Control Control  `json:"control"`
	Sent    []string `json:"sent"`
}

// Record is one report persisted through the tracker endpoint.
type Record struct {
	ID         string
	DeviceID   string
	ReceivedAt time.Time
	Body       map[string]any
}

// Document renders the record the way clients read it back: the stored
// body with the server receipt timestamp merged in.
func (r Record) Document() map[string]any {
	doc := make(map[string]any, len(r.Body)+1)
	for k, v := range r.Body {
		doc[k] = v
	}
	doc["received_at"] = r.ReceivedAt.UTC().Format(time.RFC3339Nano)
	return doc
}
