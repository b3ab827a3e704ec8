// Package production applies manual actions, crafting, hiring, upgrade
// purchases and worker ticks to the State Store.
//
// Every operation runs its checks and mutations inside a single state.Batch,
// so an affordability check can never be separated from the spend it guards.
package production

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"strings"

	"eraforge.game/internal/sim/catalogs"
	"eraforge.game/internal/sim/state"
)

var (
	ErrUnknownAction  = errors.New("unknown action")
	ErrUnknownWorker  = errors.New("unknown worker")
	ErrUnknownUpgrade = errors.New("unknown upgrade")
	ErrUnknownRecipe  = errors.New("unknown recipe")
	ErrLocked         = errors.New("locked")
	ErrAlreadyOwned   = errors.New("upgrade already unlocked")
)

type Config struct {
	Store  *state.Store
	RNG    RNG
	Logger *log.Logger
}

type Engine struct {
	store *state.Store
	rng   RNG
	log   *log.Logger
}

func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("production: nil store")
	}
	if cfg.RNG == nil {
		cfg.RNG = NewRNG(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return &Engine{store: cfg.Store, rng: cfg.RNG, log: cfg.Logger}, nil
}

// ActionResult reports a manual action. Failed marks the probabilistic
// failure path: Consumed was spent and nothing was produced.
type ActionResult struct {
	Action   string             `json:"action"`
	Failed   bool               `json:"failed,omitempty"`
	Consumed map[string]float64 `json:"consumed,omitempty"`
	Yield    map[string]float64 `json:"yield,omitempty"`
	Bonus    map[string]float64 `json:"bonus,omitempty"`
}

// Perform runs the manual action id as offered by the current era.
func (e *Engine) Perform(id string) (ActionResult, error) {
	res := ActionResult{Action: id}
	err := e.store.Batch(func(tx *state.Tx) error {
		a, ok := tx.Catalogs().Action(id, tx.Era())
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAction, id)
		}
		if a.RequiresUpgrade != "" && !tx.HasUpgrade(a.RequiresUpgrade) {
			return fmt.Errorf("%w: %s requires %s", ErrLocked, id, a.RequiresUpgrade)
		}
		if err := spend(tx, a.Consumes); err != nil {
			return err
		}
		res.Consumed = copyCost(a.Consumes)
		tx.RecordAction()

		if a.FailureChance != "" && e.roll(tx.Probability(a.FailureChance)) {
			res.Failed = true
			return nil
		}

		res.Yield = map[string]float64{}
		for _, r := range sortedIDs(a.Produces) {
			base := a.Produces[r]
			if base <= 0 {
				continue
			}
			res.Yield[r] = Yield(base, tx.EfficiencyMultiplier(r))
		}
		for _, b := range a.Bonuses {
			if b.Amount <= 0 || !e.roll(tx.Probability(b.Chance)) {
				continue
			}
			if res.Bonus == nil {
				res.Bonus = map[string]float64{}
			}
			res.Bonus[b.Resource] += b.Amount
		}
		if err := tx.Grant(res.Yield); err != nil {
			return err
		}
		return tx.Grant(res.Bonus)
	})
	if err != nil {
		return ActionResult{Action: id}, err
	}
	return res, nil
}

// Yield is the amount a manual action produces for one output:
// max(1, floor(base * multiplier)).
func Yield(base, multiplier float64) float64 {
	return math.Max(1, math.Floor(base*multiplier))
}

func (e *Engine) roll(p float64) bool {
	if p <= 0 {
		return false
	}
	return e.rng.Float64() < p
}

type CraftResult struct {
	Recipe   string             `json:"recipe"`
	Consumed map[string]float64 `json:"consumed"`
	Produced map[string]float64 `json:"produced"`
}

// Craft converts a recipe's inputs into its outputs.
func (e *Engine) Craft(id string) (CraftResult, error) {
	res := CraftResult{Recipe: id}
	err := e.store.Batch(func(tx *state.Tx) error {
		cats := tx.Catalogs()
		r, ok := cats.EraRecipe(tx.Era(), id)
		if !ok {
			if _, known := cats.Recipe(id); known {
				return fmt.Errorf("%w: recipe %s is not available in %s", ErrLocked, id, tx.Era())
			}
			return fmt.Errorf("%w: %s", ErrUnknownRecipe, id)
		}
		if r.RequiresUpgrade != "" && !tx.HasUpgrade(r.RequiresUpgrade) {
			return fmt.Errorf("%w: %s requires %s", ErrLocked, id, r.RequiresUpgrade)
		}
		if err := spend(tx, r.Inputs); err != nil {
			return err
		}
		if err := tx.Grant(r.Outputs); err != nil {
			return err
		}
		tx.RecordAction()
		res.Consumed = copyCost(r.Inputs)
		res.Produced = copyCost(r.Outputs)
		return nil
	})
	if err != nil {
		return CraftResult{Recipe: id}, err
	}
	return res, nil
}

// costEpsilon absorbs float error in base*growth^owned (20*1.15 is
// 23.000000000000004).
const costEpsilon = 1e-9

// HireCost is ceil(base * growth^owned) for every entry of the base cost.
func HireCost(base catalogs.Cost, growth float64, owned int) catalogs.Cost {
	out := make(catalogs.Cost, len(base))
	scale := math.Pow(growth, float64(owned))
	for id, amt := range base {
		v := amt * scale
		out[id] = math.Ceil(v - costEpsilon*math.Max(1, math.Abs(v)))
	}
	return out
}

// NextHireCost returns what the next unit of worker id costs.
func (e *Engine) NextHireCost(id string) (catalogs.Cost, bool) {
	w, ok := e.store.Catalogs().Worker(id)
	if !ok {
		return nil, false
	}
	return HireCost(w.Cost, e.store.Tuning().HireGrowthFactor, e.store.WorkerCount(id)), true
}

type HireResult struct {
	Worker string             `json:"worker"`
	Count  int                `json:"count"`
	Cost   map[string]float64 `json:"cost"`
}

// First reports whether this hire took the worker type from zero to one.
func (h HireResult) First() bool { return h.Count == 1 }

func (e *Engine) Hire(id string) (HireResult, error) {
	res := HireResult{Worker: id}
	growth := e.store.Tuning().HireGrowthFactor
	err := e.store.Batch(func(tx *state.Tx) error {
		cats := tx.Catalogs()
		w, ok := cats.EraWorker(tx.Era(), id)
		if !ok {
			if _, known := cats.Worker(id); known {
				return fmt.Errorf("%w: %s is not available in %s", ErrLocked, id, tx.Era())
			}
			return fmt.Errorf("%w: %s", ErrUnknownWorker, id)
		}
		if w.RequiresUpgrade != "" && !tx.HasUpgrade(w.RequiresUpgrade) {
			return fmt.Errorf("%w: %s requires %s", ErrLocked, id, w.RequiresUpgrade)
		}
		cost := HireCost(w.Cost, growth, tx.WorkerCount(id))
		if err := spend(tx, cost); err != nil {
			return err
		}
		n, err := tx.AddWorker(id, 1)
		if err != nil {
			return err
		}
		res.Count = n
		res.Cost = cost
		return nil
	})
	if err != nil {
		return HireResult{Worker: id}, err
	}
	return res, nil
}

type UpgradeResult struct {
	Upgrade string             `json:"upgrade"`
	Cost    map[string]float64 `json:"cost"`
	// Unlocks lists the actions, workers and recipes now available.
	Unlocks []string `json:"unlocks,omitempty"`
}

// BuyUpgrade unlocks an upgrade offered by the current or an earlier era.
func (e *Engine) BuyUpgrade(id string) (UpgradeResult, error) {
	res := UpgradeResult{Upgrade: id}
	err := e.store.Batch(func(tx *state.Tx) error {
		cats := tx.Catalogs()
		u, ok := cats.Upgrade(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownUpgrade, id)
		}
		if cats.EraIndex(cats.UpgradeEra(id)) > cats.EraIndex(tx.Era()) {
			return fmt.Errorf("%w: %s is not available in %s", ErrLocked, id, tx.Era())
		}
		if tx.HasUpgrade(id) {
			return fmt.Errorf("%w: %s", ErrAlreadyOwned, id)
		}
		if err := spend(tx, u.Cost); err != nil {
			return err
		}
		tx.UnlockUpgrade(id)
		res.Cost = copyCost(u.Cost)
		res.Unlocks = append([]string(nil), u.Effect.Unlocks...)
		return nil
	})
	if err != nil {
		return UpgradeResult{Upgrade: id}, err
	}
	return res, nil
}

// TickReport summarizes one worker-type tick.
type TickReport struct {
	Worker   string             `json:"worker"`
	Units    int                `json:"units"`
	Worked   int                `json:"worked"`
	Blocked  int                `json:"blocked"`
	Factor   float64            `json:"factor"`
	Produced map[string]float64 `json:"produced,omitempty"`
}

// WorkerTick runs one production round for every hired unit of worker id.
// Each unit pays its own consumption or is counted as blocked; production is
// floor(base * factor) per working unit, summed and granted in one step.
func (e *Engine) WorkerTick(id string, factor float64) (TickReport, error) {
	rep := TickReport{Worker: id, Factor: factor}
	err := e.store.Batch(func(tx *state.Tx) error {
		w, ok := tx.Catalogs().Worker(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownWorker, id)
		}
		rep.Units = tx.WorkerCount(id)
		if rep.Units == 0 {
			return nil
		}
		totals := map[string]float64{}
		for i := 0; i < rep.Units; i++ {
			if len(w.Consumes) > 0 {
				if !tx.CanAfford(w.Consumes) {
					rep.Blocked++
					continue
				}
				if err := tx.Spend(w.Consumes); err != nil {
					return err
				}
			}
			rep.Worked++
			for r, base := range w.Produces {
				totals[r] += math.Floor(base * factor)
			}
		}
		for r, v := range totals {
			if v == 0 {
				delete(totals, r)
			}
		}
		rep.Produced = totals
		return tx.Grant(totals)
	})
	if err != nil {
		return TickReport{Worker: id, Factor: factor}, err
	}
	return rep, nil
}

// spend debits cost or reports what is missing.
func spend(tx *state.Tx, cost catalogs.Cost) error {
	if len(cost) == 0 {
		return nil
	}
	if missing := tx.Missing(cost); len(missing) > 0 {
		return fmt.Errorf("%w: need %s", state.ErrInsufficient, FormatAmounts(missing))
	}
	return tx.Spend(cost)
}

// FormatAmounts renders amounts as "id=n, id=n" in id order.
func FormatAmounts(m map[string]float64) string {
	parts := make([]string, 0, len(m))
	for _, id := range sortedIDs(m) {
		parts = append(parts, fmt.Sprintf("%s=%g", id, m[id]))
	}
	return strings.Join(parts, ", ")
}

func copyCost(c catalogs.Cost) map[string]float64 {
	if len(c) == 0 {
		return nil
	}
	out := make(map[string]float64, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func sortedIDs(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
