package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

const configDir = "../../../configs"

func TestLoadRepoCatalogs(t *testing.T) {
	c, err := Load(configDir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.FirstEra() != "paleolithic" {
		t.Fatalf("first era: %q", c.FirstEra())
	}
	if last := c.Eras.Order[len(c.Eras.Order)-1]; last != "universal" {
		t.Fatalf("terminal era: %q", last)
	}
	if next, ok := c.NextEra("paleolithic"); !ok || next != "neolithic" {
		t.Fatalf("next era: %q %v", next, ok)
	}
	if _, ok := c.NextEra("universal"); ok {
		t.Fatalf("universal should be terminal")
	}
	g, ok := c.Worker("gatherer")
	if !ok || g.Cost["sticks"] != 8 || g.Produces["sticks"] != 1 {
		t.Fatalf("gatherer: %+v", g)
	}
	if c.Digest() == "" || c.Eras.Digest == "" {
		t.Fatalf("missing digests")
	}
}

func TestActionLookupInheritsEarlierEras(t *testing.T) {
	c, err := Load(configDir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := c.Action("forage", "bronze"); !ok {
		t.Fatalf("forage should be available in later eras")
	}
	if _, ok := c.Action("farm", "paleolithic"); ok {
		t.Fatalf("farm should not be available before the neolithic")
	}
	if _, ok := c.EraRecipe("paleolithic", "alloy"); ok {
		t.Fatalf("alloy recipe leaked into paleolithic")
	}
	if _, ok := c.EraRecipe("classical", "alloy"); !ok {
		t.Fatalf("alloy recipe should stay usable after the bronze age")
	}
}

func TestEfficiencyEntriesCombineTables(t *testing.T) {
	c, err := Load(configDir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := c.EfficiencyEntries("sticks")
	found := false
	for _, e := range got {
		if e.Upgrade == "stoneTools" && e.Multiplier == 1.5 {
			found = true
		}
	}
	if !found {
		t.Fatalf("stoneTools multiplier not indexed: %+v", got)
	}
	if len(c.EfficiencyEntries(GlobalMultiplierKey)) != 0 {
		t.Fatalf("global multipliers must not be indexed per resource")
	}
}

func TestNewRejectsUnknownResource(t *testing.T) {
	_, err := New(
		[]ResourceDef{{ID: "sticks"}},
		[]EraDef{{ID: "a", Order: 1, Workers: []WorkerDef{{ID: "w", Produces: Cost{"gold": 1}, IntervalMs: 100}}}},
		Migrations{}, nil,
	)
	if err == nil {
		t.Fatalf("expected unknown resource error")
	}
}

func TestNewChecksUpgradeUnlocks(t *testing.T) {
	res := []ResourceDef{{ID: "sticks"}}
	era := func(unlocks []string, gate string) []EraDef {
		return []EraDef{{
			ID: "a", Order: 1,
			Upgrades: []UpgradeDef{{ID: "axe", Effect: UpgradeEffect{Unlocks: unlocks}}},
			Actions:  []ActionDef{{ID: "chop", RequiresUpgrade: gate, Produces: Cost{"sticks": 1}}},
		}}
	}
	if _, err := New(res, era([]string{"chop"}, "axe"), Migrations{}, nil); err != nil {
		t.Fatalf("consistent unlocks rejected: %v", err)
	}
	if _, err := New(res, era([]string{"chop"}, ""), Migrations{}, nil); err == nil {
		t.Fatalf("unlock of an ungated action accepted")
	}
	if _, err := New(res, era(nil, "axe"), Migrations{}, nil); err == nil {
		t.Fatalf("gated action missing from unlocks accepted")
	}
	if _, err := New(res, era([]string{"chop"}, "saw"), Migrations{}, nil); err == nil {
		t.Fatalf("gate on unknown upgrade accepted")
	}
}

func TestNewRejectsDuplicateOrder(t *testing.T) {
	_, err := New(
		[]ResourceDef{{ID: "sticks"}},
		[]EraDef{{ID: "a", Order: 1}, {ID: "b", Order: 1}},
		Migrations{}, nil,
	)
	if err == nil {
		t.Fatalf("expected duplicate order error")
	}
}

func TestLoadMissingErasDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "resources.json"), []byte(`[{"id":"sticks"}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected error without eras")
	}
}
