// Package events rolls era-specific historical events whose effects are
// proportional to current holdings.
package events

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"eraforge.game/internal/sim/catalogs"
	"eraforge.game/internal/sim/production"
	"eraforge.game/internal/sim/state"
)

var ErrUnknownEvent = errors.New("unknown historical event")

type Config struct {
	Store  *state.Store
	RNG    production.RNG
	Logger *log.Logger
	Now    func() time.Time
}

type Engine struct {
	store *state.Store
	rng   production.RNG
	log   *log.Logger
	now   func() time.Time

	mu       sync.Mutex
	lastPoll time.Time
}

func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("events: nil store")
	}
	if cfg.RNG == nil {
		cfg.RNG = production.NewRNG(uint64(time.Now().UnixNano()))
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &Engine{store: cfg.Store, rng: cfg.RNG, log: cfg.Logger, now: cfg.Now}
	e.lastPoll = e.now()
	return e, nil
}

// Chance is the trigger probability for the current state:
// base * populationFactor * eraFactor, clamped to [0, 1]. It is zero below
// the era's minimum event population.
func (e *Engine) Chance() float64 {
	var p float64
	e.store.View(func(tx *state.Tx) { p = e.chance(tx) })
	return p
}

func (e *Engine) chance(tx *state.Tx) float64 {
	cfg := e.store.Tuning().Events
	cats := tx.Catalogs()
	era, ok := cats.Era(tx.Era())
	if !ok || len(era.Events) == 0 {
		return 0
	}
	pop := tx.Resource("population")
	if pop < era.MinEventPop {
		return 0
	}

	popFactor := 1.0
	if cfg.PopulationReference > 0 {
		popFactor = clamp(pop/cfg.PopulationReference, 0, cfg.MaxPopulationFactor)
	}
	weight := era.EventFactor
	if weight <= 0 {
		weight = 1
	}
	eraFactor := clamp((1+cfg.EraStep*float64(cats.EraIndex(era.ID)))*weight, 0, cfg.MaxEraFactor)
	return clamp(cfg.BaseChance*popFactor*eraFactor, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

// Poll rolls for an event once the cooldown since the previous roll has
// elapsed. ok reports whether an event applied.
func (e *Engine) Poll() (state.HistoricalEventApplied, bool) {
	cooldown := time.Duration(e.store.Tuning().Events.CooldownSeconds) * time.Second
	now := e.now()
	e.mu.Lock()
	if now.Sub(e.lastPoll) < cooldown {
		e.mu.Unlock()
		return state.HistoricalEventApplied{}, false
	}
	e.lastPoll = now
	e.mu.Unlock()

	var out state.HistoricalEventApplied
	applied := false
	_ = e.store.Batch(func(tx *state.Tx) error {
		p := e.chance(tx)
		if p <= 0 || e.rng.Float64() >= p {
			return nil
		}
		era, _ := tx.Catalogs().Era(tx.Era())
		i := int(e.rng.Float64() * float64(len(era.Events)))
		if i >= len(era.Events) {
			i = len(era.Events) - 1
		}
		out, applied = apply(tx, era.ID, era.Events[i])
		return nil
	})
	if applied {
		e.log.Printf("historical event %s in %s: %v", out.ID, out.Era, out.Changes)
	}
	return out, applied
}

// Trigger applies event id from the current era immediately, ignoring the
// cooldown and the trigger chance.
func (e *Engine) Trigger(id string) (state.HistoricalEventApplied, error) {
	var out state.HistoricalEventApplied
	err := e.store.Batch(func(tx *state.Tx) error {
		era, _ := tx.Catalogs().Era(tx.Era())
		for _, ev := range era.Events {
			if ev.ID == id {
				out, _ = apply(tx, era.ID, ev)
				return nil
			}
		}
		return fmt.Errorf("%w: %s in %s", ErrUnknownEvent, id, era.ID)
	})
	return out, err
}

// Reset restarts the cooldown window.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.lastPoll = e.now()
	e.mu.Unlock()
}

// apply changes each named resource by floor(quantity * |fraction|), as a
// gain or a loss by the fraction's sign. Zero changes are skipped; the
// historicalEvent notification is emitted only when something changed.
func apply(tx *state.Tx, era string, ev catalogs.HistoricalEvent) (state.HistoricalEventApplied, bool) {
	out := state.HistoricalEventApplied{ID: ev.ID, Name: ev.Name, Era: era, Changes: map[string]float64{}}
	ids := make([]string, 0, len(ev.Effect))
	for id := range ev.Effect {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		frac := ev.Effect[id]
		mag := math.Floor(tx.Resource(id) * math.Abs(frac))
		if mag == 0 {
			continue
		}
		if frac < 0 {
			mag = -mag
		}
		if err := tx.AddResource(id, mag); err != nil {
			continue
		}
		out.Changes[id] = mag
	}
	if len(out.Changes) == 0 {
		return out, false
	}
	tx.Emit(state.EventHistoricalEvent, out)
	return out, true
}
