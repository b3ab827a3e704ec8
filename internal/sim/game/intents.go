package game

import (
	"errors"
	"fmt"
	"time"

	"eraforge.game/internal/persistence/savestore"
	"eraforge.game/internal/protocol"
	"eraforge.game/internal/sim/events"
	"eraforge.game/internal/sim/production"
	"eraforge.game/internal/sim/progression"
	"eraforge.game/internal/sim/state"
)

// Outcome is the structured result of every intent. Code is one of the
// protocol error codes when OK is false.
type Outcome struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
	Data   any    `json:"data,omitempty"`
}

func ok(data any) Outcome { return Outcome{OK: true, Data: data} }

func fail(code string, err error) Outcome {
	return Outcome{Code: code, Reason: err.Error()}
}

// CodeFor maps an engine error to its protocol code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, state.ErrInsufficient):
		return protocol.ErrNoResource
	case errors.Is(err, production.ErrLocked):
		return protocol.ErrLocked
	case errors.Is(err, production.ErrAlreadyOwned):
		return protocol.ErrConflict
	case errors.Is(err, production.ErrUnknownAction),
		errors.Is(err, production.ErrUnknownWorker),
		errors.Is(err, production.ErrUnknownUpgrade),
		errors.Is(err, production.ErrUnknownRecipe),
		errors.Is(err, state.ErrUnknownWorker),
		errors.Is(err, events.ErrUnknownEvent):
		return protocol.ErrUnknown
	case errors.Is(err, progression.ErrRequirements):
		return protocol.ErrRequirements
	case errors.Is(err, progression.ErrTerminal):
		return protocol.ErrTerminal
	case errors.Is(err, state.ErrInvalidAmount):
		return protocol.ErrBadRequest
	case errors.Is(err, savestore.ErrNotFound), errors.Is(err, state.ErrNoPersistence):
		return protocol.ErrPersistence
	default:
		return protocol.ErrInternal
	}
}

func (g *Game) record(intent string, start time.Time, out Outcome) Outcome {
	g.metrics.RecordIntent(intent, out.Code, time.Since(start).Seconds())
	return out
}

func (g *Game) PerformForage() Outcome { return g.Perform("forage") }
func (g *Game) PerformHunt() Outcome   { return g.Perform("hunt") }
func (g *Game) PerformCook() Outcome   { return g.Perform("cook") }

// Perform runs any manual action offered by the current era.
func (g *Game) Perform(action string) Outcome {
	start := time.Now()
	res, err := g.Engine.Perform(action)
	if err != nil {
		return g.record(action, start, fail(CodeFor(err), err))
	}
	g.evaluateAchievements()
	if res.Failed {
		return g.record(action, start, Outcome{
			Code:   protocol.ErrFailed,
			Reason: fmt.Sprintf("%s failed; spent %s", action, production.FormatAmounts(res.Consumed)),
			Data:   res,
		})
	}
	return g.record(action, start, ok(res))
}

func (g *Game) Craft(recipe string) Outcome {
	start := time.Now()
	res, err := g.Engine.Craft(recipe)
	if err != nil {
		return g.record(protocol.IntentCraft, start, fail(CodeFor(err), err))
	}
	g.evaluateAchievements()
	return g.record(protocol.IntentCraft, start, ok(res))
}

// HireWorker buys one unit. The first unit of a type starts its production
// task with an immediate tick.
func (g *Game) HireWorker(id string) Outcome {
	start := time.Now()
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()
	if g.closed {
		return g.record(protocol.IntentHire, start, Outcome{Code: protocol.ErrInternal, Reason: "game closed"})
	}
	res, err := g.Engine.Hire(id)
	if err != nil {
		return g.record(protocol.IntentHire, start, fail(CodeFor(err), err))
	}
	g.Scheduler.Ensure(id)
	g.evaluateAchievements()
	return g.record(protocol.IntentHire, start, ok(res))
}

// FireWorker dismisses one unit without refund. A type left with no units
// goes idle at its next tick.
func (g *Game) FireWorker(id string) Outcome {
	start := time.Now()
	if g.Store.WorkerCount(id) <= 0 {
		if _, known := g.Store.Catalogs().Worker(id); !known {
			return g.record(protocol.IntentFire, start, fail(protocol.ErrUnknown, fmt.Errorf("%w: %s", production.ErrUnknownWorker, id)))
		}
		return g.record(protocol.IntentFire, start, Outcome{Code: protocol.ErrConflict, Reason: "no " + id + " to dismiss"})
	}
	if err := g.Store.AddWorker(id, -1); err != nil {
		return g.record(protocol.IntentFire, start, fail(CodeFor(err), err))
	}
	return g.record(protocol.IntentFire, start, ok(map[string]int{id: g.Store.WorkerCount(id)}))
}

func (g *Game) BuyUpgrade(id string) Outcome {
	start := time.Now()
	res, err := g.Engine.BuyUpgrade(id)
	if err != nil {
		return g.record(protocol.IntentBuyUpgrade, start, fail(CodeFor(err), err))
	}
	g.evaluateAchievements()
	return g.record(protocol.IntentBuyUpgrade, start, ok(res))
}

func (g *Game) AdvanceEra() Outcome {
	start := time.Now()
	res, err := g.Gate.AdvanceEra()
	if err != nil {
		return g.record(protocol.IntentAdvanceEra, start, Outcome{Code: CodeFor(err), Reason: err.Error(), Data: g.Store.GateStatus()})
	}
	g.evaluateAchievements()
	return g.record(protocol.IntentAdvanceEra, start, ok(res))
}

func (g *Game) SaveGame() Outcome {
	start := time.Now()
	err := g.Store.Save()
	g.metrics.RecordSave("manual", err)
	if err != nil {
		return g.record(protocol.IntentSave, start, fail(protocol.ErrPersistence, err))
	}
	return g.record(protocol.IntentSave, start, ok(nil))
}

// LoadGame stops every worker task, installs the saved state and restarts
// tasks from the loaded roster. A failed load keeps the current game running.
func (g *Game) LoadGame() Outcome {
	start := time.Now()
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()
	g.Scheduler.StopAll()
	err := g.Store.Load()
	if !g.closed {
		g.Scheduler.RestartAll()
	}
	if err != nil {
		return g.record(protocol.IntentLoad, start, fail(protocol.ErrPersistence, err))
	}
	g.Events.Reset()
	g.evaluateAchievements()
	snap := g.Store.Snapshot()
	return g.record(protocol.IntentLoad, start, ok(map[string]string{"game_id": snap.GameID, "era": snap.Era}))
}

// ResetGame replaces the game with a fresh one.
func (g *Game) ResetGame() Outcome {
	start := time.Now()
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()
	g.Scheduler.StopAll()
	g.Store.Reset()
	if !g.closed {
		g.Scheduler.RestartAll()
	}
	g.Events.Reset()
	return g.record(protocol.IntentReset, start, ok(map[string]string{"game_id": g.Store.Snapshot().GameID}))
}

// Handle dispatches a gateway intent by name.
func (g *Game) Handle(intent, target string) Outcome {
	needsTarget := func() (Outcome, bool) {
		if target == "" {
			return Outcome{Code: protocol.ErrBadRequest, Reason: intent + " needs a target"}, false
		}
		return Outcome{}, true
	}
	switch intent {
	case protocol.IntentForage:
		return g.PerformForage()
	case protocol.IntentHunt:
		return g.PerformHunt()
	case protocol.IntentCook:
		return g.PerformCook()
	case protocol.IntentPerform:
		if out, ok := needsTarget(); !ok {
			return out
		}
		return g.Perform(target)
	case protocol.IntentCraft:
		if out, ok := needsTarget(); !ok {
			return out
		}
		return g.Craft(target)
	case protocol.IntentHire:
		if out, ok := needsTarget(); !ok {
			return out
		}
		return g.HireWorker(target)
	case protocol.IntentFire:
		if out, ok := needsTarget(); !ok {
			return out
		}
		return g.FireWorker(target)
	case protocol.IntentBuyUpgrade:
		if out, ok := needsTarget(); !ok {
			return out
		}
		return g.BuyUpgrade(target)
	case protocol.IntentAdvanceEra:
		return g.AdvanceEra()
	case protocol.IntentSave:
		return g.SaveGame()
	case protocol.IntentLoad:
		return g.LoadGame()
	case protocol.IntentReset:
		return g.ResetGame()
	case protocol.IntentGetState:
		return ok(g.State())
	case protocol.IntentGateStatus:
		return ok(g.GateStatus())
	default:
		return Outcome{Code: protocol.ErrBadRequest, Reason: "unknown intent " + intent}
	}
}
