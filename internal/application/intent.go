package application

import (
	"time"

	"smart-tracker/internal/domain"
)

// DefaultIntentHold bounds how long a commanded value that telemetry never
// confirms keeps shadowing the reported one.
const DefaultIntentHold = 30 * time.Second

type pendingValue struct {
	on      bool
	expires time.Time
}

// commandIntent holds relay and security values the dashboard has
// commanded but the device has not reported back yet. Automation edges
// are taken against reported state with these values laid over it, so a
// late confirmation is not a new transition.
type commandIntent struct {
	hold     time.Duration
	relays   map[domain.Relay]pendingValue
	security *pendingValue
}

func newCommandIntent(hold time.Duration) *commandIntent {
	if hold <= 0 {
		hold = DefaultIntentHold
	}
	return &commandIntent{
		hold:   hold,
		relays: make(map[domain.Relay]pendingValue),
	}
}

func (c *commandIntent) setRelay(r domain.Relay, on bool, now time.Time) {
	c.relays[r] = pendingValue{on: on, expires: now.Add(c.hold)}
}

func (c *commandIntent) setSecurity(on bool, now time.Time) {
	c.security = &pendingValue{on: on, expires: now.Add(c.hold)}
}

// overlay drops values the report confirms or that have expired and lays
// the rest over reported.
func (c *commandIntent) overlay(reported domain.Snapshot, now time.Time) domain.Snapshot {
	out := reported

	for r, v := range c.relays {
		if reported.Relays.Get(r) == v.on || !now.Before(v.expires) {
			delete(c.relays, r)
			continue
		}
		out.Relays = out.Relays.With(r, v.on)
	}

	if v := c.security; v != nil {
		if reported.SecurityEnabled == v.on || !now.Before(v.expires) {
			c.security = nil
		} else {
			out.SecurityEnabled = v.on
		}
	}

	return out
}
