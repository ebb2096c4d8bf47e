package domain

import (
	"encoding/json"
	"fmt"
)

type Token string

const (
	TokenIgnitionOn   Token = "R1_ON"
	TokenIgnitionOff  Token = "R1_OFF"
	TokenStarterOn    Token = "R2_ON"
	TokenStarterOff   Token = "R2_OFF"
	TokenAntiTheftOn  Token = "R3_ON"
	TokenAntiTheftOff Token = "R3_OFF"
	TokenHazardOn     Token = "R4_ON"
	TokenHazardOff    Token = "R4_OFF"
	TokenSecurityOn   Token = "SEC_ON"
	TokenSecurityOff  Token = "SEC_OFF"
	TokenStreamingOn  Token = "SEND_ON"
	TokenStreamingOff Token = "SEND_OFF"
	TokenPing         Token = "PING"
	TokenModemReset   Token = "MODEM_RST"
)

type Relay string

const (
	RelayIgnition  Relay = "r1"
	RelayStarter   Relay = "r2"
	RelayAntiTheft Relay = "r3"
	RelayHazard    Relay = "r4"
)

var relayTokens = map[Relay][2]Token{
	RelayIgnition:  {TokenIgnitionOff, TokenIgnitionOn},
	RelayStarter:   {TokenStarterOff, TokenStarterOn},
	RelayAntiTheft: {TokenAntiTheftOff, TokenAntiTheftOn},
	RelayHazard:    {TokenHazardOff, TokenHazardOn},
}

// Encoding selects how relay commands go on the wire. Symbolic commands
// (security, streaming, ping, modem reset) are always plain tokens.
type Encoding string

const (
	EncodingToken  Encoding = "token"
	EncodingObject Encoding = "object"
)

type CommandKind int

const (
	KindToken CommandKind = iota
	KindAssign
)

// Delivery is an optional per-command quality hint.
type Delivery int

const (
	DeliveryDefault Delivery = iota
	DeliveryFireAndForget
	DeliveryAcknowledged
)

type Origin string

const (
	OriginManual     Origin = "manual"
	OriginAutomation Origin = "automation"
	OriginSession    Origin = "session"
)

type Command struct {
	Kind  CommandKind
	Token Token
	Relay Relay
	Value bool

	Delivery Delivery
	Retain   bool

	Origin Origin
	Reason string
}

func TokenCommand(t Token) Command {
	return Command{Kind: KindToken, Token: t}
}

func AssignCommand(r Relay, on bool) Command {
	return Command{Kind: KindAssign, Relay: r, Value: on}
}

// RelayCommand builds the command that drives relay r to the given state
// in the deployment's encoding.
func RelayCommand(r Relay, on bool, enc Encoding) Command {
	if enc == EncodingObject {
		return AssignCommand(r, on)
	}
	idx := 0
	if on {
		idx = 1
	}
	return TokenCommand(relayTokens[r][idx])
}

func (c Command) WithOrigin(o Origin, reason string) Command {
	c.Origin = o
	c.Reason = reason
	return c
}

func (c Command) WithDelivery(d Delivery) Command {
	c.Delivery = d
	return c
}

// Target reports the relay and state a command drives, in either encoding.
func (c Command) Target() (Relay, bool, bool) {
	if c.Kind == KindAssign {
		return c.Relay, c.Value, true
	}
	for r, tokens := range relayTokens {
		switch c.Token {
		case tokens[0]:
			return r, false, true
		case tokens[1]:
			return r, true, true
		}
	}
	return "", false, false
}

func (c Command) Payload() ([]byte, error) {
	switch c.Kind {
	case KindToken:
		if c.Token == "" {
			return nil, fmt.Errorf("empty command token")
		}
		return []byte(c.Token), nil
	case KindAssign:
		if _, ok := relayTokens[c.Relay]; !ok {
			return nil, fmt.Errorf("unknown relay %q", c.Relay)
		}
		v := 0
		if c.Value {
			v = 1
		}
		return json.Marshal(map[string]int{string(c.Relay): v})
	default:
		return nil, fmt.Errorf("unknown command kind %d", c.Kind)
	}
}

func (c Command) String() string {
	if c.Kind == KindAssign {
		v := 0
		if c.Value {
			v = 1
		}
		return fmt.Sprintf("%s=%d", c.Relay, v)
	}
	return string(c.Token)
}
