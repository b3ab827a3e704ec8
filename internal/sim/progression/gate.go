// Package progression advances the game through the fixed era order.
package progression

import (
	"errors"
	"fmt"
	"io"
	"log"

	"eraforge.game/internal/sim/state"
	"eraforge.game/internal/sim/tuning"
)

var (
	ErrRequirements = errors.New("era requirements not met")
	ErrTerminal     = errors.New("already in the final era")
)

type Gate struct {
	store *state.Store
	log   *log.Logger
}

func New(store *state.Store, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Gate{store: store, log: logger}
}

// NextEra returns the era after current, or ok=false for the terminal era.
func (g *Gate) NextEra(current string) (string, bool) {
	return g.store.Catalogs().NextEra(current)
}

type Advance struct {
	OldEra string             `json:"old_era"`
	NewEra string             `json:"new_era"`
	Spent  map[string]float64 `json:"spent,omitempty"`
	Bonus  map[string]float64 `json:"bonus,omitempty"`
}

// AdvanceEra re-checks the gate and moves to the next era in one batch. In
// explicit gate mode the required stockpile is consumed. A failed advance
// leaves the state untouched.
func (g *Gate) AdvanceEra() (Advance, error) {
	var out Advance
	explicit := g.store.Tuning().EraGate.Mode == tuning.GateExplicit
	err := g.store.Batch(func(tx *state.Tx) error {
		status := tx.GateStatus()
		if !status.Ready {
			return fmt.Errorf("%w: %s", ErrRequirements, describe(status))
		}
		cats := tx.Catalogs()
		next, ok := cats.NextEra(tx.Era())
		if !ok {
			return ErrTerminal
		}
		cur, _ := cats.Era(tx.Era())
		if explicit && len(cur.Requirement.Stockpile) > 0 {
			if err := tx.Spend(cur.Requirement.Stockpile); err != nil {
				return err
			}
			out.Spent = clone(cur.Requirement.Stockpile)
		}
		out.OldEra = tx.Era()
		if err := tx.SetEra(next); err != nil {
			return err
		}
		out.NewEra = next
		nextDef, _ := cats.Era(next)
		if len(nextDef.StartingBonus) > 0 {
			if err := tx.Grant(nextDef.StartingBonus); err != nil {
				return err
			}
			out.Bonus = clone(nextDef.StartingBonus)
		}
		return nil
	})
	if err != nil {
		return Advance{}, err
	}
	g.log.Printf("era advanced %s -> %s", out.OldEra, out.NewEra)
	return out, nil
}

func describe(s state.GateStatus) string {
	if s.Mode == tuning.GateExplicit {
		return fmt.Sprintf("population %g/%g, missing upgrades %v, missing stockpile %v",
			s.Population, s.PopulationRequired, s.MissingUpgrades, s.MissingStockpile)
	}
	return fmt.Sprintf("population %g/%g, resources %d/%d, upgrades %d/%d",
		s.Population, s.PopulationRequired, s.Diversity, s.DiversityRequired, s.Upgrades, s.UpgradesRequired)
}

func clone(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
