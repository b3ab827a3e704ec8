package state

import (
	"fmt"
	"math"
	"sort"

	"eraforge.game/internal/sim/catalogs"
)

// Tx is the mutation handle passed to Batch. It is only valid inside the
// callback that received it.
type Tx struct {
	s        *Store
	st       *GameState
	readOnly bool
	pending  []Notification
}

func (tx *Tx) emit(ev Event, data any) {
	if tx.readOnly {
		return
	}
	tx.pending = append(tx.pending, Notification{Event: ev, Data: data})
}

// Emit queues a notification that is delivered after the batch completes.
func (tx *Tx) Emit(ev Event, data any) { tx.emit(ev, data) }

func (tx *Tx) Catalogs() *catalogs.Catalogs { return tx.s.cats }

func (tx *Tx) Resource(id string) float64 {
	return tx.st.Resources[id]
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (tx *Tx) AddResource(id string, delta float64) error {
	if !finite(delta) {
		tx.s.log.Printf("rejected resource delta id=%s delta=%v", id, delta)
		return fmt.Errorf("%w: %s delta %v", ErrInvalidAmount, id, delta)
	}
	old := tx.st.Resources[id]
	next := old + delta
	if next < 0 || !finite(next) {
		next = 0
	}
	tx.st.Resources[id] = next
	tx.emit(EventResourceChange, ResourceChange{ID: id, OldValue: old, NewValue: next, Delta: delta})
	return nil
}

func (tx *Tx) CanAfford(cost catalogs.Cost) bool {
	for id, need := range cost {
		if tx.st.Resources[id] < need {
			return false
		}
	}
	return true
}

// Spend debits cost if affordable. Entries are applied in id order so
// notifications are stable.
func (tx *Tx) Spend(cost catalogs.Cost) error {
	if !tx.CanAfford(cost) {
		return ErrInsufficient
	}
	for _, id := range sortedKeys(cost) {
		amt := cost[id]
		if amt == 0 {
			continue
		}
		if err := tx.AddResource(id, -amt); err != nil {
			return err
		}
	}
	return nil
}

// Grant adds every entry of amounts.
func (tx *Tx) Grant(amounts map[string]float64) error {
	for _, id := range sortedKeys(amounts) {
		amt := amounts[id]
		if amt == 0 {
			continue
		}
		if err := tx.AddResource(id, amt); err != nil {
			return err
		}
	}
	return nil
}

// Missing returns how much of each cost entry is lacking.
func (tx *Tx) Missing(cost catalogs.Cost) map[string]float64 {
	out := map[string]float64{}
	for id, need := range cost {
		if have := tx.st.Resources[id]; have < need {
			out[id] = need - have
		}
	}
	return out
}

func (tx *Tx) WorkerCount(id string) int {
	return tx.st.Workers[id]
}

// Workers returns a copy of the roster.
func (tx *Tx) Workers() map[string]int {
	out := make(map[string]int, len(tx.st.Workers))
	for k, v := range tx.st.Workers {
		out[k] = v
	}
	return out
}

func (tx *Tx) AddWorker(id string, delta int) (int, error) {
	if _, ok := tx.s.cats.Worker(id); !ok {
		tx.s.log.Printf("rejected worker change for unknown id=%s", id)
		return 0, fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	old := tx.st.Workers[id]
	next := old + delta
	if next < 0 {
		next = 0
	}
	tx.st.Workers[id] = next
	tx.emit(EventWorkerChange, WorkerChange{ID: id, OldCount: old, NewCount: next, Delta: delta})
	return next, nil
}

func (tx *Tx) HasUpgrade(id string) bool {
	return tx.st.Upgrades[id]
}

func (tx *Tx) UnlockUpgrade(id string) bool {
	if _, ok := tx.s.cats.Upgrade(id); !ok {
		tx.s.log.Printf("ignored unlock of unknown upgrade id=%s", id)
		return false
	}
	if tx.st.Upgrades[id] {
		return true
	}
	tx.st.Upgrades[id] = true
	tx.emit(EventUpgradeUnlocked, UpgradeUnlocked{ID: id})
	return true
}

// EfficiencyMultiplier composes global upgrade multipliers with the
// per-resource efficiency entries of unlocked upgrades. All factors multiply.
func (tx *Tx) EfficiencyMultiplier(resource string) float64 {
	m := 1.0
	for _, id := range tx.s.cats.UpgradeIDs() {
		if !tx.st.Upgrades[id] {
			continue
		}
		u, ok := tx.s.cats.Upgrade(id)
		if !ok {
			continue
		}
		if g, ok := u.Effect.Multipliers[catalogs.GlobalMultiplierKey]; ok && g > 0 {
			m *= g
		}
	}
	for _, e := range tx.s.cats.EfficiencyEntries(resource) {
		if tx.st.Upgrades[e.Upgrade] {
			m *= e.Multiplier
		}
	}
	return m
}

// Probability layers the bonuses of unlocked upgrades and the game's own
// overrides on the immutable tuning value.
func (tx *Tx) Probability(key string) float64 {
	p := tx.s.tune.Probability(key) + upgradeBonus(tx.s.cats, tx.st.Upgrades, key) + tx.st.ProbabilityOverrides[key]
	if p < 0 || !finite(p) {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// upgradeBonus sums the probability bonus for key over unlocked upgrades.
func upgradeBonus(cats *catalogs.Catalogs, unlocked map[string]bool, key string) float64 {
	var sum float64
	for _, id := range cats.UpgradeIDs() {
		if !unlocked[id] {
			continue
		}
		if u, ok := cats.Upgrade(id); ok {
			sum += u.Effect.ProbabilityBonus[key]
		}
	}
	return sum
}

func (tx *Tx) Era() string { return tx.st.Era }

// SetEra moves to era and resets the era-scoped progress counter.
func (tx *Tx) SetEra(era string) error {
	if _, ok := tx.s.cats.Era(era); !ok {
		return fmt.Errorf("unknown era %q", era)
	}
	old := tx.st.Era
	tx.st.Era = era
	tx.st.Progression.EraProgress = 0
	tx.emit(EventEraAdvancement, EraAdvancement{OldEra: old, NewEra: era})
	return nil
}

// RecordAction bumps the action counters.
func (tx *Tx) RecordAction() {
	tx.st.Progression.TotalActions++
	tx.st.Progression.EraProgress++
}

func (tx *Tx) Progression() Progression {
	p := tx.st.Progression
	p.Achievements = append([]string{}, p.Achievements...)
	return p
}

func (tx *Tx) HasAchievement(id string) bool {
	for _, a := range tx.st.Progression.Achievements {
		if a == id {
			return true
		}
	}
	return false
}

// GrantAchievement records id once.
func (tx *Tx) GrantAchievement(id string) bool {
	if tx.HasAchievement(id) {
		return false
	}
	tx.st.Progression.Achievements = append(tx.st.Progression.Achievements, id)
	tx.emit(EventAchievementUnlocked, AchievementUnlocked{ID: id})
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
