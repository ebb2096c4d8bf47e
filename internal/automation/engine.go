// Package automation derives corrective relay commands from state changes.
//
// Every rule is edge-triggered: it fires when its condition holds in the
// new snapshot and did not hold in the previous one. Re-evaluating a pair
// of identical snapshots never produces a command.
package automation

import "smart-tracker/internal/domain"

const (
	RuleStarterCutoff    = "starter-cutoff"
	RuleAntiTheftEngage  = "anti-theft-engage"
	RuleAntiTheftDisarm  = "anti-theft-disarm"
	RuleAntiTheftDriving = "anti-theft-driving"
)

const DefaultVoltageThreshold = 5.0

// Decision is the outcome of one evaluation. Notes describe states that
// looked relevant but matched no rule; they carry no commands.
type Decision struct {
	Commands []domain.Command
	Notes    []string
}

type Engine struct {
	voltageThreshold float64
	encoding         domain.Encoding
}

func NewEngine(voltageThreshold float64, encoding domain.Encoding) *Engine {
	if voltageThreshold <= 0 {
		voltageThreshold = DefaultVoltageThreshold
	}
	if encoding == "" {
		encoding = domain.EncodingToken
	}
	return &Engine{
		voltageThreshold: voltageThreshold,
		encoding:         encoding,
	}
}

func (e *Engine) Decide(prev, next domain.Snapshot) []domain.Command {
	return e.Evaluate(prev, next).Commands
}

func (e *Engine) Evaluate(prev, next domain.Snapshot) Decision {
	var d Decision

	if rising(prev, next, starterWithoutIgnition) {
		d.Commands = append(d.Commands, e.relay(domain.RelayStarter, false, RuleStarterCutoff))
	}

	// The three anti-theft conditions are mutually exclusive: engage needs
	// r3 off, both releases need r3 on and differ on the security flag.
	switch {
	case rising(prev, next, e.antiTheftArmed):
		d.Commands = append(d.Commands, e.relay(domain.RelayAntiTheft, true, RuleAntiTheftEngage))
	case rising(prev, next, antiTheftDisarmed):
		d.Commands = append(d.Commands, e.relay(domain.RelayAntiTheft, false, RuleAntiTheftDisarm))
	case rising(prev, next, antiTheftWhileDriving):
		d.Commands = append(d.Commands, e.relay(domain.RelayAntiTheft, false, RuleAntiTheftDriving))
	}

	if rising(prev, next, e.armedOnBackupPower) {
		d.Notes = append(d.Notes, "security armed with ignition off but battery voltage at or below threshold; anti-theft relay left as is")
	}

	return d
}

func (e *Engine) relay(r domain.Relay, on bool, rule string) domain.Command {
	return domain.RelayCommand(r, on, e.encoding).WithOrigin(domain.OriginAutomation, rule)
}

func rising(prev, next domain.Snapshot, cond func(domain.Snapshot) bool) bool {
	return cond(next) && !cond(prev)
}

func starterWithoutIgnition(s domain.Snapshot) bool {
	return !s.Relays.R1 && s.Relays.R2
}

// antiTheftArmed: vehicle power present (above the backup-battery
// threshold), security on, ignition off and cutoff not yet engaged.
func (e *Engine) antiTheftArmed(s domain.Snapshot) bool {
	return s.SecurityEnabled &&
		s.System.BatteryVoltage > e.voltageThreshold &&
		!s.Relays.R1 &&
		!s.Relays.R3
}

func antiTheftDisarmed(s domain.Snapshot) bool {
	return !s.SecurityEnabled && s.Relays.R3
}

func antiTheftWhileDriving(s domain.Snapshot) bool {
	return s.SecurityEnabled && s.Relays.R1 && s.Relays.R3
}

func (e *Engine) armedOnBackupPower(s domain.Snapshot) bool {
	return s.SecurityEnabled &&
		s.System.BatteryVoltage <= e.voltageThreshold &&
		!s.Relays.R1 &&
		!s.Relays.R3
}
