package main

import "eraforge.game/internal/protocol"

// planner cycles through a fixed play loop: gather, try to hire, try to
// advance. Failed hires back off for a few rounds.
type planner struct {
	worker string
	ready  bool

	step    int
	backoff int
}

func newPlanner(worker string) *planner {
	return &planner{worker: worker}
}

const roundLength = 8

func (p *planner) next() (intent, target string) {
	p.step++
	switch p.step % roundLength {
	case 0:
		return protocol.IntentAdvanceEra, ""
	case roundLength - 1:
		if p.backoff > 0 {
			p.backoff--
			return protocol.IntentForage, ""
		}
		return protocol.IntentHire, p.worker
	default:
		return protocol.IntentForage, ""
	}
}

func (p *planner) observe(o protocol.OutcomeMsg) {
	if o.Intent == protocol.IntentHire && !o.OK && o.Code == protocol.ErrNoResource {
		p.backoff = 3
	}
}
