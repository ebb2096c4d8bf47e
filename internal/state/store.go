// Package state holds the authoritative last-known device snapshot.
package state

import (
	"sync"

	"smart-tracker/internal/domain"
)

// Store has a single writer (the session loop) and any number of readers.
type Store struct {
	mu      sync.RWMutex
	current domain.Snapshot
	applied uint64
}

func NewStore() *Store {
	return &Store{}
}

// Apply merges a partial update into the current snapshot. Fields the
// update does not carry keep their prior values. Apply cannot fail.
func (s *Store) Apply(u domain.Update) (domain.Snapshot, domain.Diff) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current
	next := Merge(prev, u)

	s.current = next
	s.applied++

	return next, domain.DiffSnapshots(prev, next)
}

func (s *Store) Current() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Applied reports how many updates have been merged so far.
func (s *Store) Applied() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}

// Merge returns base with every field present in u overwritten.
func Merge(base domain.Snapshot, u domain.Update) domain.Snapshot {
	next := base

	setString(&next.DeviceID, u.DeviceID)
	setInt64(&next.TimestampUnix, u.TimestampUnix)

	setFloat(&next.GPS.Lat, u.Lat)
	setFloat(&next.GPS.Lng, u.Lng)
	setInt(&next.GPS.Satellites, u.Satellites)
	setFloat(&next.GPS.SpeedKmh, u.SpeedKmh)

	setFloat(&next.System.BatteryVoltage, u.BatteryVoltage)
	setInt(&next.System.SignalStrengthDbm, u.SignalStrengthDbm)
	setString(&next.System.OperatorName, u.OperatorName)

	setBool(&next.Relays.R1, u.R1)
	setBool(&next.Relays.R2, u.R2)
	setBool(&next.Relays.R3, u.R3)
	setBool(&next.Relays.R4, u.R4)

	setBool(&next.SecurityEnabled, u.SecurityEnabled)
	setBool(&next.SendStreamingEnabled, u.SendStreamingEnabled)

	return next
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
