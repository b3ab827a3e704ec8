package protocol_test

import (
	"encoding/json"
	"testing"

	"eraforge.game/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	valid := map[string]string{
		protocol.TypeHello:  `{"type":"HELLO","protocol_version":"1.0","client_name":"ui"}`,
		protocol.TypeIntent: `{"type":"INTENT","id":"I1","intent":"hire_worker","target":"gatherer"}`,
	}
	for typ, raw := range valid {
		if err := protocol.Validate(typ, []byte(raw)); err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
	}

	out, err := json.Marshal(protocol.OutcomeMsg{
		Type: protocol.TypeOutcome, ID: "I1", Intent: protocol.IntentForage,
		OK: false, Code: protocol.ErrNoResource, Message: "need sticks=8",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := protocol.Validate(protocol.TypeOutcome, out); err != nil {
		t.Fatalf("outcome: %v", err)
	}
}

func TestSchemas_RejectMalformed(t *testing.T) {
	bad := map[string]string{
		"missing id":    `{"type":"INTENT","intent":"forage"}`,
		"extra field":   `{"type":"INTENT","id":"I1","intent":"forage","amount":3}`,
		"wrong type":    `{"type":"HELLO","id":"I1","intent":"forage"}`,
		"numeric field": `{"type":"INTENT","id":7,"intent":"forage"}`,
	}
	for name, raw := range bad {
		if err := protocol.Validate(protocol.TypeIntent, []byte(raw)); err == nil {
			t.Fatalf("%s: expected schema error", name)
		}
	}
	if err := protocol.Validate("NOTIFY", []byte(`{}`)); err != nil {
		t.Fatalf("types without schema should pass: %v", err)
	}
}

func TestDecodeHelloAndIntent(t *testing.T) {
	h, err := protocol.DecodeHello([]byte(`{"type":"HELLO","protocol_version":"1.0","notifications":["gameSaved"]}`))
	if err != nil || len(h.Notifications) != 1 {
		t.Fatalf("hello: %+v %v", h, err)
	}
	if _, err := protocol.DecodeHello([]byte(`{"type":"HELLO","protocol_version":"0.9"}`)); err == nil {
		t.Fatalf("old version accepted")
	}
	in, err := protocol.DecodeIntent([]byte(`{"type":"INTENT","id":"a","intent":"craft","target":"flintKnife"}`))
	if err != nil || in.Intent != protocol.IntentCraft || in.Target != "flintKnife" {
		t.Fatalf("intent: %+v %v", in, err)
	}
	if _, err := protocol.DecodeIntent([]byte(`{"type":"INTENT","intent":"craft"}`)); err == nil {
		t.Fatalf("intent without id accepted")
	}
}
