package main

import (
	"testing"

	"eraforge.game/internal/protocol"
)

func TestPlannerRound(t *testing.T) {
	p := newPlanner("gatherer")
	var got []string
	for i := 0; i < roundLength; i++ {
		intent, _ := p.next()
		got = append(got, intent)
	}
	if got[roundLength-2] != protocol.IntentHire || got[roundLength-1] != protocol.IntentAdvanceEra {
		t.Fatalf("round: %v", got)
	}
	for _, in := range got[:roundLength-2] {
		if in != protocol.IntentForage {
			t.Fatalf("round: %v", got)
		}
	}
}

func TestPlannerBacksOffFailedHire(t *testing.T) {
	p := newPlanner("gatherer")
	p.observe(protocol.OutcomeMsg{Intent: protocol.IntentHire, Code: protocol.ErrNoResource})
	for round := 0; round < 3; round++ {
		for i := 0; i < roundLength; i++ {
			if intent, _ := p.next(); intent == protocol.IntentHire {
				t.Fatalf("hired during backoff round %d", round)
			}
		}
	}
	hired := false
	for i := 0; i < roundLength; i++ {
		if intent, target := p.next(); intent == protocol.IntentHire && target == "gatherer" {
			hired = true
		}
	}
	if !hired {
		t.Fatalf("no hire after backoff")
	}
}
