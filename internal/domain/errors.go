package domain

import (
	"errors"
	"fmt"
)

var (
	ErrIgnitionOff    = errors.New("ignition relay is off")
	ErrStarterBusy    = errors.New("starter pulse already running")
	ErrRelaysLocked   = errors.New("relays are locked while security is on")
	ErrAutomaticRelay = errors.New("anti-theft relay is controlled by automation only")
	ErrUnknownControl = errors.New("unknown control")
	ErrSessionClosed  = errors.New("session closed")
)

// DecodeError marks an inbound payload that could not be interpreted.
// The state store is never touched when one is returned.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode telemetry: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode telemetry: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type NotConnectedError struct {
	Command string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("transport not connected, dropped %s", e.Command)
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
