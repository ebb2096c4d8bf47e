package application

import (
	"errors"
	"fmt"
	"time"

	"smart-tracker/internal/domain"
)

func (s *Session) handleControl(c domain.Control) (domain.ControlResult, error) {
	cur := s.store.Current()
	result := domain.ControlResult{Control: c}

	if s.cfg.LockRelaysWhenArmed && cur.SecurityEnabled {
		switch c {
		case domain.ControlIgnition, domain.ControlStarter, domain.ControlHazard:
			return result, domain.ErrRelaysLocked
		}
	}

	var err error
	switch c {
	case domain.ControlIgnition:
		result.Sent, err = s.toggleRelay(cur, domain.RelayIgnition, c)
	case domain.ControlHazard:
		result.Sent, err = s.toggleRelay(cur, domain.RelayHazard, c)
	case domain.ControlStarter:
		result.Sent, err = s.startStarterPulse(cur)
	case domain.ControlAntiTheft:
		err = domain.ErrAutomaticRelay
	case domain.ControlSecurity:
		result.Sent, err = s.toggleSecurity(cur)
	case domain.ControlStreaming:
		tok := domain.TokenStreamingOn
		if cur.SendStreamingEnabled {
			tok = domain.TokenStreamingOff
		}
		result.Sent, err = s.sendManual(domain.TokenCommand(tok), c)
	case domain.ControlPing:
		result.Sent, err = s.sendManual(domain.TokenCommand(domain.TokenPing), c)
	case domain.ControlModemReset:
		result.Sent, err = s.sendManual(domain.TokenCommand(domain.TokenModemReset), c)
	case domain.ControlReset:
		result.Sent, err = s.resetAll(cur)
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownControl, c)
	}

	var notConnected *domain.NotConnectedError
	if errors.As(err, &notConnected) {
		s.notify(fmt.Sprintf("Command not sent, tracker link is %s", s.Status().Link))
	}
	return result, err
}

func (s *Session) sendManual(cmd domain.Command, c domain.Control) ([]string, error) {
	cmd = cmd.WithOrigin(domain.OriginManual, string(c))
	if _, err := s.dispatcher.Dispatch(cmd, s.cfg.CommandPolicy); err != nil {
		return nil, err
	}
	return []string{cmd.String()}, nil
}

// toggleRelay commands the opposite of the reported relay state, then runs
// the automation rules against the state the command asks for.
func (s *Session) toggleRelay(cur domain.Snapshot, r domain.Relay, c domain.Control) ([]string, error) {
	on := !cur.Relays.Get(r)
	sent, err := s.sendManual(domain.RelayCommand(r, on, s.cfg.Encoding), c)
	if err != nil {
		return nil, err
	}

	s.intent.setRelay(r, on, time.Now())
	if r == domain.RelayIgnition && !on && s.starter != nil {
		sent = append(sent, s.finishStarterPulse("ignition-off")...)
	}
	return append(sent, s.evaluate(cur)...), nil
}

func (s *Session) toggleSecurity(cur domain.Snapshot) ([]string, error) {
	on := !cur.SecurityEnabled
	tok := domain.TokenSecurityOff
	if on {
		tok = domain.TokenSecurityOn
	}

	sent, err := s.sendManual(domain.TokenCommand(tok), domain.ControlSecurity)
	if err != nil {
		return nil, err
	}

	s.intent.setSecurity(on, time.Now())
	return append(sent, s.evaluate(cur)...), nil
}

func (s *Session) startStarterPulse(cur domain.Snapshot) ([]string, error) {
	if s.starter != nil {
		return nil, domain.ErrStarterBusy
	}
	if !cur.Relays.R1 {
		return nil, domain.ErrIgnitionOff
	}

	sent, err := s.sendManual(domain.RelayCommand(domain.RelayStarter, true, s.cfg.Encoding), domain.ControlStarter)
	if err != nil {
		return nil, err
	}

	s.starter = time.NewTimer(s.cfg.StarterPulse)
	s.intent.setRelay(domain.RelayStarter, true, time.Now())
	s.mu.Lock()
	s.starting = true
	s.mu.Unlock()

	return sent, nil
}

// resetAll cuts a running starter pulse; the reset sequence releases the
// starter itself.
func (s *Session) resetAll(cur domain.Snapshot) ([]string, error) {
	if s.starter != nil {
		s.cancelStarterPulse()
	}

	reset := []domain.Command{
		domain.RelayCommand(domain.RelayIgnition, false, s.cfg.Encoding),
		domain.RelayCommand(domain.RelayStarter, false, s.cfg.Encoding),
		domain.RelayCommand(domain.RelayAntiTheft, false, s.cfg.Encoding),
		domain.RelayCommand(domain.RelayHazard, false, s.cfg.Encoding),
		domain.TokenCommand(domain.TokenSecurityOff),
	}

	var sent []string
	for _, cmd := range reset {
		out, err := s.sendManual(cmd, domain.ControlReset)
		if err != nil {
			return sent, err
		}
		sent = append(sent, out...)
	}

	now := time.Now()
	for _, r := range []domain.Relay{domain.RelayIgnition, domain.RelayStarter, domain.RelayAntiTheft, domain.RelayHazard} {
		s.intent.setRelay(r, false, now)
	}
	s.intent.setSecurity(false, now)
	return append(sent, s.evaluate(cur)...), nil
}
