package progression

import (
	"errors"
	"testing"

	"eraforge.game/internal/sim/simtest"
	"eraforge.game/internal/sim/state"
	"eraforge.game/internal/sim/tuning"
)

// readyPaleolithic satisfies both gate modes for the first era.
func readyPaleolithic(t *testing.T, f *simtest.Fixture) {
	t.Helper()
	f.Set(t, map[string]float64{
		"population": 12, "sticks": 150, "stones": 40, "meat": 10,
		"cookedMeat": 30, "bones": 5, "fur": 5,
	})
	f.Unlock(t, "fireControl", "spears", "stoneTools")
}

func TestNextEra(t *testing.T) {
	f := simtest.New(t, nil)
	g := New(f.Store, nil)
	if next, ok := g.NextEra("paleolithic"); !ok || next != "neolithic" {
		t.Fatalf("next: %q %v", next, ok)
	}
	if _, ok := g.NextEra("universal"); ok {
		t.Fatalf("universal is terminal")
	}
}

func TestAdvanceFailsWithoutMutation(t *testing.T) {
	f := simtest.New(t, nil)
	g := New(f.Store, nil)
	rec := f.Record(state.EventEraAdvancement)
	before := f.Store.Snapshot()
	if _, err := g.AdvanceEra(); !errors.Is(err, ErrRequirements) {
		t.Fatalf("want ErrRequirements, got %v", err)
	}
	after := f.Store.Snapshot()
	if after.Era != before.Era || after.Resources["sticks"] != before.Resources["sticks"] {
		t.Fatalf("failed advance mutated state")
	}
	if rec.Count(state.EventEraAdvancement) != 0 {
		t.Fatalf("failed advance emitted eraAdvancement")
	}
}

func TestAdvanceFractional(t *testing.T) {
	f := simtest.New(t, nil)
	g := New(f.Store, nil)
	readyPaleolithic(t, f)
	_ = f.Store.Batch(func(tx *state.Tx) error { tx.RecordAction(); return nil })
	rec := f.Record(state.EventEraAdvancement)

	adv, err := g.AdvanceEra()
	if err != nil {
		t.Fatalf("advance: %v (gate %+v)", err, f.Store.GateStatus())
	}
	if adv.OldEra != "paleolithic" || adv.NewEra != "neolithic" || len(adv.Spent) != 0 {
		t.Fatalf("advance: %+v", adv)
	}
	snap := f.Store.Snapshot()
	if snap.Era != "neolithic" || snap.Progression.EraProgress != 0 || snap.Progression.TotalActions != 1 {
		t.Fatalf("after advance: era=%s prog=%+v", snap.Era, snap.Progression)
	}
	if snap.Resources["grain"] != 10 || snap.Resources["clay"] != 5 {
		t.Fatalf("starting bonus not granted: %v", snap.Resources)
	}
	if snap.Resources["sticks"] != 150 {
		t.Fatalf("fractional gate should not spend: sticks=%v", snap.Resources["sticks"])
	}
	got := rec.All()
	if len(got) != 1 {
		t.Fatalf("eraAdvancement count: %d", len(got))
	}
	if ev := got[0].Data.(state.EraAdvancement); ev.OldEra != "paleolithic" || ev.NewEra != "neolithic" {
		t.Fatalf("payload: %+v", ev)
	}
}

func TestAdvanceExplicitSpendsStockpile(t *testing.T) {
	f := simtest.New(t, func(tu *tuning.Tuning) { tu.EraGate.Mode = tuning.GateExplicit })
	g := New(f.Store, nil)
	readyPaleolithic(t, f)

	if _, err := g.AdvanceEra(); err != nil {
		t.Fatalf("advance: %v (gate %+v)", err, f.Store.GateStatus())
	}
	if got := f.Store.Resource("sticks"); got != 50 {
		t.Fatalf("sticks: got %v want 50", got)
	}
	if got := f.Store.Resource("cookedMeat"); got != 10 {
		t.Fatalf("cookedMeat: got %v want 10", got)
	}
	// Re-entry fails: neolithic requirements are not met.
	if _, err := g.AdvanceEra(); !errors.Is(err, ErrRequirements) {
		t.Fatalf("second advance: %v", err)
	}
	if f.Store.Era() != "neolithic" {
		t.Fatalf("era: %s", f.Store.Era())
	}
}

func TestAdvanceTerminal(t *testing.T) {
	f := simtest.New(t, nil)
	g := New(f.Store, nil)
	_ = f.Store.Batch(func(tx *state.Tx) error { return tx.SetEra("universal") })
	f.Set(t, map[string]float64{"population": 1e6})
	_ = f.Store.Batch(func(tx *state.Tx) error {
		era, _ := tx.Catalogs().Era("universal")
		for _, r := range era.ActiveResources {
			_ = tx.AddResource(r, 1e6)
		}
		for _, u := range era.Upgrades {
			tx.UnlockUpgrade(u.ID)
		}
		return nil
	})
	if _, err := g.AdvanceEra(); !errors.Is(err, ErrTerminal) {
		t.Fatalf("want ErrTerminal, got %v (gate %+v)", err, f.Store.GateStatus())
	}
	if f.Store.Era() != "universal" {
		t.Fatalf("era changed")
	}
}

func TestEraNeverDecreases(t *testing.T) {
	f := simtest.New(t, nil)
	g := New(f.Store, nil)
	cats := f.Cats
	prev := cats.EraIndex(f.Store.Era())
	for i := 0; i < 10; i++ {
		_ = f.Store.Batch(func(tx *state.Tx) error {
			era, _ := tx.Catalogs().Era(tx.Era())
			for _, r := range era.ActiveResources {
				_ = tx.AddResource(r, 1e7)
			}
			for _, u := range era.Upgrades {
				tx.UnlockUpgrade(u.ID)
			}
			return nil
		})
		_, _ = g.AdvanceEra()
		cur := cats.EraIndex(f.Store.Era())
		if cur < prev {
			t.Fatalf("era index went from %d to %d", prev, cur)
		}
		prev = cur
	}
	if f.Store.Era() != "universal" {
		t.Fatalf("expected to reach the final era, at %s", f.Store.Era())
	}
}
