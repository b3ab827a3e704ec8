package state

import (
	"errors"
	"math"
	"testing"
	"time"

	"eraforge.game/internal/persistence/savestore"
	"eraforge.game/internal/sim/catalogs"
	"eraforge.game/internal/sim/tuning"
)

const configDir = "../../../configs"

func newTestStore(t *testing.T) (*Store, *savestore.Memory) {
	t.Helper()
	cats, err := catalogs.Load(configDir)
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	tune, err := tuning.Load(configDir + "/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	mem := savestore.NewMemory()
	s, err := New(Config{
		Catalogs:    cats,
		Tuning:      tune,
		Persistence: mem,
		Now:         func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, mem
}

func TestInitialStateSeedsCatalog(t *testing.T) {
	s, _ := newTestStore(t)
	snap := s.Snapshot()
	if snap.Era != "paleolithic" {
		t.Fatalf("era: %q", snap.Era)
	}
	if snap.Resources["sticks"] != 10 || snap.Resources["stones"] != 5 || snap.Resources["population"] != 1 {
		t.Fatalf("starting resources: %v", snap.Resources)
	}
	if _, ok := snap.Resources["stardust"]; !ok {
		t.Fatalf("every catalog resource should be seeded")
	}
	if n, ok := snap.Workers["gatherer"]; !ok || n != 0 {
		t.Fatalf("gatherer should be seeded at 0")
	}
	if unlocked, ok := snap.Upgrades["fireControl"]; !ok || unlocked {
		t.Fatalf("fireControl should be seeded locked")
	}
	if snap.GameID == "" {
		t.Fatalf("missing game id")
	}
}

func TestAddResourceNeverGoesNegative(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.AddResource("sticks", -25); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := s.Resource("sticks"); got != 0 {
		t.Fatalf("sticks: got %v want 0", got)
	}
	if err := s.AddResource("sticks", math.NaN()); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("NaN delta: want ErrInvalidAmount, got %v", err)
	}
	if err := s.AddResource("sticks", math.Inf(1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("Inf delta: want ErrInvalidAmount, got %v", err)
	}
	if got := s.Resource("sticks"); got != 0 {
		t.Fatalf("rejected deltas must not change the ledger, got %v", got)
	}
}

func TestSpendIsAllOrNothing(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.SpendResources(catalogs.Cost{"sticks": 5, "stones": 50})
	if !errors.Is(err, ErrInsufficient) {
		t.Fatalf("want ErrInsufficient, got %v", err)
	}
	if s.Resource("sticks") != 10 || s.Resource("stones") != 5 {
		t.Fatalf("failed spend changed ledger: sticks=%v stones=%v", s.Resource("sticks"), s.Resource("stones"))
	}
	if err := s.SpendResources(catalogs.Cost{"sticks": 4, "stones": 5}); err != nil {
		t.Fatalf("spend: %v", err)
	}
	if s.Resource("sticks") != 6 || s.Resource("stones") != 0 {
		t.Fatalf("after spend: sticks=%v stones=%v", s.Resource("sticks"), s.Resource("stones"))
	}
}

func TestAddWorkerRejectsUnknownAndFloorsAtZero(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.AddWorker("wizard", 1); !errors.Is(err, ErrUnknownWorker) {
		t.Fatalf("want ErrUnknownWorker, got %v", err)
	}
	if err := s.AddWorker("gatherer", 2); err != nil {
		t.Fatalf("add worker: %v", err)
	}
	if err := s.AddWorker("gatherer", -5); err != nil {
		t.Fatalf("remove worker: %v", err)
	}
	if n := s.WorkerCount("gatherer"); n != 0 {
		t.Fatalf("gatherer: got %d want 0", n)
	}
}

func TestUnlockUpgradeIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	var unlocked int
	s.AddListener(EventUpgradeUnlocked, func(n Notification) { unlocked++ })

	if !s.UnlockUpgrade("furClothing") || !s.UnlockUpgrade("furClothing") {
		t.Fatalf("unlock should report true for a known upgrade")
	}
	if unlocked != 1 {
		t.Fatalf("upgradeUnlocked fired %d times, want 1", unlocked)
	}
	if s.UnlockUpgrade("warpDrive") {
		t.Fatalf("unknown upgrade should report false")
	}
	if _, ok := s.Snapshot().Upgrades["warpDrive"]; ok {
		t.Fatalf("unknown upgrade must not be recorded")
	}
	// The probability bonus is applied once.
	if got, want := s.Probability("furChanceFromHunt"), 0.35; math.Abs(got-want) > 1e-9 {
		t.Fatalf("furChanceFromHunt: got %v want %v", got, want)
	}
}

func TestEfficiencyMultiplierIsOrderIndependent(t *testing.T) {
	a, _ := newTestStore(t)
	b, _ := newTestStore(t)
	for _, id := range []string{"stoneTools", "furClothing", "spears"} {
		a.UnlockUpgrade(id)
	}
	for _, id := range []string{"spears", "furClothing", "stoneTools"} {
		b.UnlockUpgrade(id)
	}
	for _, r := range []string{"sticks", "stones", "meat", "bones"} {
		if a.EfficiencyMultiplier(r) != b.EfficiencyMultiplier(r) {
			t.Fatalf("%s: %v != %v", r, a.EfficiencyMultiplier(r), b.EfficiencyMultiplier(r))
		}
	}
	if got, want := a.EfficiencyMultiplier("sticks"), 1.5*1.1; math.Abs(got-want) > 1e-9 {
		t.Fatalf("sticks multiplier: got %v want %v", got, want)
	}
	if got := a.EfficiencyMultiplier("clay"); math.Abs(got-1.1) > 1e-9 {
		t.Fatalf("clay multiplier should carry only the global factor, got %v", got)
	}
	fresh, _ := newTestStore(t)
	if got := fresh.EfficiencyMultiplier("sticks"); got != 1 {
		t.Fatalf("no upgrades: got %v want 1", got)
	}
}

func TestProbabilityClampsOverrides(t *testing.T) {
	s, _ := newTestStore(t)
	_ = s.Batch(func(tx *Tx) error {
		tx.st.ProbabilityOverrides["cookBurnChance"] = 5
		tx.st.ProbabilityOverrides["stoneChanceFromSticks"] = -5
		return nil
	})
	if p := s.Probability("cookBurnChance"); p != 1 {
		t.Fatalf("cookBurnChance: got %v want 1", p)
	}
	if p := s.Probability("stoneChanceFromSticks"); p != 0 {
		t.Fatalf("stoneChanceFromSticks: got %v want 0", p)
	}
	if p := s.Probability("nope"); p != 0 {
		t.Fatalf("unknown key: got %v want 0", p)
	}
}

func TestBatchDeliversNotificationsAfterUnlock(t *testing.T) {
	s, _ := newTestStore(t)
	var seen []float64
	s.AddListener(EventResourceChange, func(n Notification) {
		// Reading through the store would deadlock if the lock were still held.
		seen = append(seen, s.Resource("sticks"))
	})
	_ = s.Batch(func(tx *Tx) error {
		_ = tx.AddResource("sticks", 1)
		_ = tx.AddResource("sticks", 1)
		return nil
	})
	if len(seen) != 2 || seen[0] != 12 || seen[1] != 12 {
		t.Fatalf("listeners should observe the applied batch, got %v", seen)
	}
}

func TestBatchPanicReleasesLock(t *testing.T) {
	s, _ := newTestStore(t)
	var changes int
	s.AddListener(EventResourceChange, func(Notification) { changes++ })

	err := s.Batch(func(tx *Tx) error {
		_ = tx.AddResource("sticks", 1)
		panic("boom")
	})
	if !errors.Is(err, ErrBatchPanic) {
		t.Fatalf("want ErrBatchPanic, got %v", err)
	}
	if changes != 0 {
		t.Fatalf("notifications from a panicked batch were delivered: %d", changes)
	}
	done := make(chan struct{})
	go func() {
		_ = s.AddResource("stones", 1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("store still locked after a panicking batch")
	}
	if changes != 1 {
		t.Fatalf("later batch notifications: %d", changes)
	}
}

func TestListenerPanicDoesNotStopOthers(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddListener(EventResourceChange, func(Notification) { panic("boom") })
	var got []ResourceChange
	s.AddListener(EventAll, func(n Notification) {
		if rc, ok := n.Data.(ResourceChange); ok {
			got = append(got, rc)
		}
	})
	if err := s.AddResource("stones", 3); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(got) != 1 || got[0].OldValue != 5 || got[0].NewValue != 8 || got[0].Delta != 3 {
		t.Fatalf("wildcard listener: %+v", got)
	}
}

func TestRemoveListener(t *testing.T) {
	s, _ := newTestStore(t)
	var calls int
	id := s.AddListener(EventResourceChange, func(Notification) { calls++ })
	if !s.RemoveListener(EventResourceChange, id) {
		t.Fatalf("remove should find the listener")
	}
	if s.RemoveListener(EventResourceChange, id) {
		t.Fatalf("second remove should report false")
	}
	_ = s.AddResource("sticks", 1)
	if calls != 0 {
		t.Fatalf("removed listener was called %d times", calls)
	}

	s.AddListener(EventWorkerChange, func(Notification) { calls++ })
	s.RemoveAllListeners("")
	_ = s.AddWorker("gatherer", 1)
	if calls != 0 {
		t.Fatalf("RemoveAllListeners left a listener behind")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, mem := newTestStore(t)
	_ = s.AddResource("meat", 7)
	_ = s.AddWorker("gatherer", 3)
	s.UnlockUpgrade("fireControl")
	_ = s.Batch(func(tx *Tx) error { tx.RecordAction(); return nil })

	var saved int
	s.AddListener(EventGameSaved, func(Notification) { saved++ })
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved != 1 {
		t.Fatalf("gameSaved fired %d times", saved)
	}
	before := s.Snapshot()

	s.Reset()
	if s.Resource("meat") != 0 {
		t.Fatalf("reset did not clear meat")
	}
	var loaded int
	s.AddListener(EventGameLoaded, func(Notification) { loaded++ })
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != 1 {
		t.Fatalf("gameLoaded fired %d times", loaded)
	}
	after := s.Snapshot()
	if after.GameID != before.GameID || after.Resources["meat"] != 7 || after.Workers["gatherer"] != 3 ||
		!after.Upgrades["fireControl"] || after.Progression.TotalActions != 1 {
		t.Fatalf("round trip mismatch:\nbefore=%+v\nafter=%+v", before, after)
	}
	if after.SavedAt != "2026-01-02T03:04:05Z" {
		t.Fatalf("saved_at: %q", after.SavedAt)
	}
	if _, err := mem.Read("eraforge_save"); err != nil {
		t.Fatalf("slot not written: %v", err)
	}
}

func TestLoadKeepsDefaultsForNewCatalogKeys(t *testing.T) {
	s, _ := newTestStore(t)
	doc := []byte(`{"era":"paleolithic","resources":{"sticks":42},"workers":{"gatherer":2,"retired":4},"upgrades":{"spears":true}}`)
	if err := s.LoadBytes(doc); err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := s.Snapshot()
	if snap.Resources["sticks"] != 42 {
		t.Fatalf("sticks: %v", snap.Resources["sticks"])
	}
	if v, ok := snap.Resources["stardust"]; !ok || v != 0 {
		t.Fatalf("stardust should keep its default")
	}
	if snap.Resources["stones"] != 5 {
		t.Fatalf("absent resources keep starting values, got stones=%v", snap.Resources["stones"])
	}
	if _, ok := snap.Workers["retired"]; ok {
		t.Fatalf("unknown worker should be dropped")
	}
	if snap.Workers["hunter"] != 0 || snap.Workers["gatherer"] != 2 {
		t.Fatalf("workers: %v", snap.Workers)
	}
	if !snap.Upgrades["spears"] || snap.Upgrades["fireControl"] {
		t.Fatalf("upgrades: %v", snap.Upgrades)
	}
}

func TestLoadCorruptLeavesStateUntouched(t *testing.T) {
	s, mem := newTestStore(t)
	_ = s.AddResource("sticks", 90)
	before := s.Snapshot()
	for _, doc := range []string{`{not json`, `[1,2,3]`, `{"version":"two"}`} {
		if err := mem.Write("eraforge_save", []byte(doc)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := s.Load(); err == nil {
			t.Fatalf("load %q: expected error", doc)
		}
	}
	if after := s.Snapshot(); after.Resources["sticks"] != before.Resources["sticks"] || after.GameID != before.GameID {
		t.Fatalf("failed load changed the state")
	}
}

func TestLoadMissingSlot(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Load(); !errors.Is(err, savestore.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestLegacyMigration(t *testing.T) {
	cats, err := catalogs.Load(configDir)
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	raw := map[string]any{
		"resources":        map[string]any{"meat": 2.0, "fur": 1.0, "rawMeat": 5.0, "hide": 3.0},
		"unlockedUpgrades": []any{"fire", "spears"},
		"totalClicks":      12.0,
	}
	out := MigrateLegacySave(raw, cats.Migrations, nil)
	res := out["resources"].(map[string]any)
	if res["meat"] != 7.0 || res["fur"] != 4.0 {
		t.Fatalf("resources: %v", res)
	}
	if _, ok := res["rawMeat"]; ok {
		t.Fatalf("rawMeat left behind")
	}
	if _, ok := res["hide"]; ok {
		t.Fatalf("hide left behind")
	}
	upg := out["upgrades"].(map[string]any)
	if upg["fireControl"] != true || upg["spears"] != true {
		t.Fatalf("upgrades: %v", upg)
	}
	if _, ok := upg["fire"]; ok {
		t.Fatalf("fire alias left behind")
	}
	if _, ok := out["unlockedUpgrades"]; ok {
		t.Fatalf("unlockedUpgrades left behind")
	}
	if prog := out["progression"].(map[string]any); prog["total_actions"] != 12.0 {
		t.Fatalf("progression: %v", prog)
	}

	// Malformed shapes are skipped, never fatal.
	weird := MigrateLegacySave(map[string]any{"resources": "lots", "unlockedUpgrades": "fire"}, cats.Migrations, nil)
	if _, ok := weird["unlockedUpgrades"]; ok {
		t.Fatalf("malformed unlockedUpgrades should still be dropped")
	}
}

func TestLoadLegacyDocument(t *testing.T) {
	s, _ := newTestStore(t)
	doc := []byte(`{"currentEra":"neolithic","resources":{"rawMeat":5,"hide":3},"unlockedUpgrades":["fire"]}`)
	if err := s.LoadBytes(doc); err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := s.Snapshot()
	if snap.Era != "neolithic" || snap.Resources["meat"] != 5 || snap.Resources["fur"] != 3 || !snap.Upgrades["fireControl"] {
		t.Fatalf("legacy load: era=%s res=%v upg=%v", snap.Era, snap.Resources, snap.UnlockedUpgrades())
	}
}

func TestValidateRepairsCorruption(t *testing.T) {
	s, _ := newTestStore(t)
	if !s.Validate() {
		t.Fatalf("fresh state should validate clean")
	}
	_ = s.Batch(func(tx *Tx) error {
		tx.st.Resources["sticks"] = math.NaN()
		tx.st.Resources["stones"] = -4
		tx.st.Workers["gatherer"] = -2
		return nil
	})
	if s.Validate() {
		t.Fatalf("corrupted state should report repairs")
	}
	snap := s.Snapshot()
	if snap.Resources["sticks"] != 0 || snap.Resources["stones"] != 0 || snap.Workers["gatherer"] != 0 {
		t.Fatalf("not repaired: %v %v", snap.Resources, snap.Workers)
	}
	if !s.Validate() {
		t.Fatalf("second pass should be clean")
	}
}

func TestLoadRepairsNonNumericResources(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.LoadBytes([]byte(`{"resources":{"sticks":"many","stones":-3}}`)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Resource("sticks") != 0 || s.Resource("stones") != 0 {
		t.Fatalf("sticks=%v stones=%v", s.Resource("sticks"), s.Resource("stones"))
	}
}

func TestFractionalGate(t *testing.T) {
	s, _ := newTestStore(t)
	g := s.GateStatus()
	if g.Ready || g.Mode != tuning.GateFractional {
		t.Fatalf("fresh game should not be ready: %+v", g)
	}
	if g.PopulationRequired != 10 {
		t.Fatalf("population required: %v", g.PopulationRequired)
	}
	_ = s.Batch(func(tx *Tx) error {
		for _, r := range tx.Catalogs().Eras.ByID["paleolithic"].ActiveResources {
			_ = tx.AddResource(r, 50)
		}
		for _, u := range tx.Catalogs().Eras.ByID["paleolithic"].Upgrades {
			tx.UnlockUpgrade(u.ID)
		}
		return nil
	})
	if !s.CanAdvanceEra() {
		t.Fatalf("fully stocked game should be ready: %+v", s.GateStatus())
	}
}

func TestUpgradeBonusSurvivesLoad(t *testing.T) {
	in, _ := newTestStore(t)
	in.UnlockUpgrade("furClothing")
	want := in.Probability("furChanceFromHunt")

	docs := map[string]string{
		"legacy list":   `{"unlockedUpgrades":["furClothing"]}`,
		"unversioned":   `{"upgrades":{"furClothing":true}}`,
		"version 2":     `{"version":2,"upgrades":{"furClothing":true},"probability_overrides":{"furChanceFromHunt":0.1}}`,
		"version 2 pre": `{"version":2,"upgrades":{"furClothing":true}}`,
	}
	for name, doc := range docs {
		s, _ := newTestStore(t)
		if err := s.LoadBytes([]byte(doc)); err != nil {
			t.Fatalf("%s: load: %v", name, err)
		}
		if got := s.Probability("furChanceFromHunt"); math.Abs(got-want) > 1e-9 {
			t.Fatalf("%s: furChanceFromHunt got %v want %v", name, got, want)
		}
	}

	data, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, _ := newTestStore(t)
	if err := out.LoadBytes(data); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := out.Probability("furChanceFromHunt"); math.Abs(got-want) > 1e-9 {
		t.Fatalf("round trip: got %v want %v", got, want)
	}
}
