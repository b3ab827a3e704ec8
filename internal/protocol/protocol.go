package protocol

import (
	"encoding/json"
	"fmt"
)

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeIntent  = "INTENT"
	TypeOutcome = "OUTCOME"
	TypeNotify  = "NOTIFY"
	TypeError   = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// DecodeHello schema-checks and decodes a HELLO. A version other than
// Version is an error.
func DecodeHello(b []byte) (HelloMsg, error) {
	var m HelloMsg
	if err := decode(TypeHello, b, &m); err != nil {
		return m, err
	}
	if m.ProtocolVersion != Version {
		return m, fmt.Errorf("unsupported protocol_version %q", m.ProtocolVersion)
	}
	return m, nil
}

// DecodeIntent schema-checks and decodes an INTENT.
func DecodeIntent(b []byte) (IntentMsg, error) {
	var m IntentMsg
	err := decode(TypeIntent, b, &m)
	return m, err
}

func decode(typ string, b []byte, out any) error {
	if err := Validate(typ, b); err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
