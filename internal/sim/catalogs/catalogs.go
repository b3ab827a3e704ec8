package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Catalogs is the static game content. It is built once by Load and never
// mutated afterwards; every component shares it by pointer.
type Catalogs struct {
	Resources    ResourceCatalog
	Eras         EraCatalog
	Migrations   Migrations
	Achievements []Achievement

	workers  map[string]WorkerDef
	upgrades map[string]UpgradeDef
	recipes  map[string]RecipeDef
	// resource id -> efficiency entries across all eras
	efficiency map[string][]EfficiencyEntry
	// upgrade id -> era id that owns it
	upgradeEra map[string]string
}

type ResourceCatalog struct {
	Defs   []ResourceDef
	ByID   map[string]ResourceDef
	Digest string
}

type ResourceDef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Cost maps a resource id to a required quantity.
type Cost map[string]float64

type EraCatalog struct {
	Order  []string
	ByID   map[string]EraDef
	Digest string
}

type EraDef struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	Order           int               `json:"order"`
	ActiveResources []string          `json:"active_resources"`
	PopulationCap   float64           `json:"population_cap"`
	MinEventPop     float64           `json:"min_event_population"`
	EventFactor     float64           `json:"event_factor"`
	StartingBonus   Cost              `json:"starting_bonus,omitempty"`
	Requirement     EraRequirement    `json:"requirement"`
	Actions         []ActionDef       `json:"actions,omitempty"`
	Workers         []WorkerDef       `json:"workers,omitempty"`
	Upgrades        []UpgradeDef      `json:"upgrades,omitempty"`
	Recipes         []RecipeDef       `json:"recipes,omitempty"`
	Efficiency      []EfficiencyEntry `json:"efficiency,omitempty"`
	Events          []HistoricalEvent `json:"events,omitempty"`
}

type EraRequirement struct {
	Population float64  `json:"population,omitempty"`
	Upgrades   []string `json:"upgrades,omitempty"`
	Stockpile  Cost     `json:"stockpile,omitempty"`
}

type ActionDef struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	RequiresUpgrade string     `json:"requires_upgrade,omitempty"`
	Produces        Cost       `json:"produces"`
	Consumes        Cost       `json:"consumes,omitempty"`
	Bonuses         []BonusDef `json:"bonuses,omitempty"`
	// FailureChance names a tuning probability, e.g. "cookBurnChance".
	FailureChance string `json:"failure_chance,omitempty"`
}

type BonusDef struct {
	Resource string  `json:"resource"`
	Amount   float64 `json:"amount"`
	Chance   string  `json:"chance"`
}

type WorkerDef struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	RequiresUpgrade string `json:"requires_upgrade,omitempty"`
	Cost            Cost   `json:"cost"`
	Produces        Cost   `json:"produces"`
	Consumes        Cost   `json:"consumes,omitempty"`
	IntervalMs      int    `json:"interval_ms"`
}

type UpgradeDef struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Cost   Cost          `json:"cost"`
	Effect UpgradeEffect `json:"effect"`
}

type UpgradeEffect struct {
	// Multipliers keyed by resource id; "*" applies to every resource.
	Multipliers      map[string]float64 `json:"multipliers,omitempty"`
	ProbabilityBonus map[string]float64 `json:"probability_bonus,omitempty"`
	Unlocks          []string           `json:"unlocks,omitempty"`
}

type RecipeDef struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	RequiresUpgrade string `json:"requires_upgrade,omitempty"`
	Inputs          Cost   `json:"inputs"`
	Outputs         Cost   `json:"outputs"`
}

type EfficiencyEntry struct {
	Upgrade    string  `json:"upgrade"`
	Resource   string  `json:"resource"`
	Multiplier float64 `json:"multiplier"`
}

type HistoricalEvent struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Effect      map[string]float64 `json:"effect"`
}

type Migrations struct {
	ResourceAliases map[string]string `json:"resource_aliases"`
	WorkerAliases   map[string]string `json:"worker_aliases"`
	UpgradeAliases  map[string]string `json:"upgrade_aliases"`
	Digest          string            `json:"-"`
}

type Achievement struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Kind     string  `json:"kind"` // "total_actions","resource","era"
	Target   float64 `json:"target,omitempty"`
	Resource string  `json:"resource,omitempty"`
	Era      string  `json:"era,omitempty"`
}

const GlobalMultiplierKey = "*"

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadResources(filepath.Join(configDir, "resources.json"), &c.Resources); err != nil {
		return nil, err
	}
	if err := loadEras(filepath.Join(configDir, "eras"), &c.Eras); err != nil {
		return nil, err
	}
	if err := loadMigrations(filepath.Join(configDir, "migrations.json"), &c.Migrations); err != nil {
		return nil, err
	}
	if err := loadAchievements(filepath.Join(configDir, "achievements.json"), &c.Achievements); err != nil {
		return nil, err
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

// New builds catalogs from in-memory definitions. Eras are ordered by their
// Order field.
func New(resources []ResourceDef, eras []EraDef, mig Migrations, achievements []Achievement) (*Catalogs, error) {
	c := Catalogs{
		Migrations:   mig,
		Achievements: achievements,
	}
	c.Resources.Defs = resources
	c.Resources.ByID = map[string]ResourceDef{}
	for _, r := range resources {
		if r.ID == "" {
			return nil, fmt.Errorf("resources: empty id")
		}
		c.Resources.ByID[r.ID] = r
	}
	c.Eras.ByID = map[string]EraDef{}
	for _, e := range eras {
		if e.ID == "" {
			return nil, fmt.Errorf("eras: empty id")
		}
		c.Eras.ByID[e.ID] = e
	}
	if err := orderEras(&c.Eras); err != nil {
		return nil, err
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadResources(path string, out *ResourceCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ResourceDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("resources.json: %w", err)
	}
	out.Defs = defs
	out.ByID = make(map[string]ResourceDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("resources.json: empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("resources.json: duplicate id %s", d.ID)
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func loadEras(dir string, out *EraCatalog) error {
	out.ByID = map[string]EraDef{}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("eras: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("eras: no era definitions in %s", dir)
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var era EraDef
		if err := json.Unmarshal(b, &era); err != nil {
			return fmt.Errorf("era %s: %w", filepath.Base(p), err)
		}
		if era.ID == "" {
			return fmt.Errorf("era %s: missing id", filepath.Base(p))
		}
		if _, dup := out.ByID[era.ID]; dup {
			return fmt.Errorf("era %s: duplicate id %s", filepath.Base(p), era.ID)
		}
		out.ByID[era.ID] = era
	}
	out.Digest = sha256Hex(concat.Bytes())
	return orderEras(out)
}

func orderEras(out *EraCatalog) error {
	ids := make([]string, 0, len(out.ByID))
	for id := range out.ByID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := out.ByID[ids[i]], out.ByID[ids[j]]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})
	for i := 1; i < len(ids); i++ {
		if out.ByID[ids[i]].Order == out.ByID[ids[i-1]].Order {
			return fmt.Errorf("eras: %s and %s share order %d", ids[i-1], ids[i], out.ByID[ids[i]].Order)
		}
	}
	out.Order = ids
	return nil
}

func loadMigrations(path string, out *Migrations) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		// Older content packs ship without aliases.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("migrations.json: %w", err)
	}
	return nil
}

func loadAchievements(path string, out *[]Achievement) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("achievements.json: %w", err)
	}
	return nil
}

// index builds the cross-era lookup tables and checks references.
func (c *Catalogs) index() error {
	c.workers = map[string]WorkerDef{}
	c.upgrades = map[string]UpgradeDef{}
	c.recipes = map[string]RecipeDef{}
	c.upgradeEra = map[string]string{}
	c.efficiency = map[string][]EfficiencyEntry{}

	known := func(where, id string) error {
		if _, ok := c.Resources.ByID[id]; !ok {
			return fmt.Errorf("%s: unknown resource %q", where, id)
		}
		return nil
	}
	knownAll := func(where string, m map[string]float64) error {
		for id := range m {
			if err := known(where, id); err != nil {
				return err
			}
		}
		return nil
	}

	for _, eraID := range c.Eras.Order {
		era := c.Eras.ByID[eraID]
		for _, r := range era.ActiveResources {
			if err := known("era "+eraID, r); err != nil {
				return err
			}
		}
		for _, u := range era.Upgrades {
			if u.ID == "" {
				return fmt.Errorf("era %s: upgrade with empty id", eraID)
			}
			if _, dup := c.upgrades[u.ID]; dup {
				return fmt.Errorf("era %s: duplicate upgrade %s", eraID, u.ID)
			}
			if err := knownAll("upgrade "+u.ID, u.Cost); err != nil {
				return err
			}
			c.upgrades[u.ID] = u
			c.upgradeEra[u.ID] = eraID
		}
		for _, w := range era.Workers {
			if w.ID == "" {
				return fmt.Errorf("era %s: worker with empty id", eraID)
			}
			if _, dup := c.workers[w.ID]; dup {
				return fmt.Errorf("era %s: duplicate worker %s", eraID, w.ID)
			}
			for _, m := range []Cost{w.Cost, w.Produces, w.Consumes} {
				if err := knownAll("worker "+w.ID, m); err != nil {
					return err
				}
			}
			if w.IntervalMs <= 0 {
				return fmt.Errorf("worker %s: interval_ms must be positive", w.ID)
			}
			c.workers[w.ID] = w
		}
		for _, r := range era.Recipes {
			if _, dup := c.recipes[r.ID]; dup {
				return fmt.Errorf("era %s: duplicate recipe %s", eraID, r.ID)
			}
			for _, m := range []Cost{r.Inputs, r.Outputs} {
				if err := knownAll("recipe "+r.ID, m); err != nil {
					return err
				}
			}
			c.recipes[r.ID] = r
		}
		for _, a := range era.Actions {
			for _, m := range []Cost{a.Produces, a.Consumes} {
				if err := knownAll("action "+a.ID, m); err != nil {
					return err
				}
			}
			for _, b := range a.Bonuses {
				if err := known("action "+a.ID, b.Resource); err != nil {
					return err
				}
			}
		}
		for _, ev := range era.Events {
			if err := knownAll("event "+ev.ID, ev.Effect); err != nil {
				return err
			}
		}
		for _, e := range era.Efficiency {
			if e.Multiplier <= 0 {
				return fmt.Errorf("era %s: efficiency %s/%s must be positive", eraID, e.Upgrade, e.Resource)
			}
			c.efficiency[e.Resource] = append(c.efficiency[e.Resource], e)
		}
		for _, u := range era.Upgrades {
			for res, m := range u.Effect.Multipliers {
				if res == GlobalMultiplierKey {
					continue
				}
				if m <= 0 {
					return fmt.Errorf("upgrade %s: multiplier for %s must be positive", u.ID, res)
				}
				c.efficiency[res] = append(c.efficiency[res], EfficiencyEntry{Upgrade: u.ID, Resource: res, Multiplier: m})
			}
		}
	}

	if err := c.checkUnlocks(); err != nil {
		return err
	}

	// Required upgrades must exist somewhere in the catalog.
	for _, eraID := range c.Eras.Order {
		era := c.Eras.ByID[eraID]
		for _, u := range era.Requirement.Upgrades {
			if _, ok := c.upgrades[u]; !ok {
				return fmt.Errorf("era %s: requirement names unknown upgrade %s", eraID, u)
			}
		}
		for _, e := range era.Efficiency {
			if _, ok := c.upgrades[e.Upgrade]; !ok {
				return fmt.Errorf("era %s: efficiency names unknown upgrade %s", eraID, e.Upgrade)
			}
		}
	}
	return nil
}

// checkUnlocks keeps each upgrade's unlocks list in step with the
// requires_upgrade gates: every listed id must be an action, worker or recipe
// gated on that upgrade, and every gated id must be listed.
func (c *Catalogs) checkUnlocks() error {
	// An action and a worker may share an id, so one id can carry several gates.
	gates := map[string]map[string]bool{}
	gate := func(kind, id, upgrade string) error {
		if upgrade == "" {
			return nil
		}
		if _, ok := c.upgrades[upgrade]; !ok {
			return fmt.Errorf("%s %s: requires unknown upgrade %s", kind, id, upgrade)
		}
		if gates[id] == nil {
			gates[id] = map[string]bool{}
		}
		gates[id][upgrade] = true
		return nil
	}
	for _, eraID := range c.Eras.Order {
		era := c.Eras.ByID[eraID]
		for _, a := range era.Actions {
			if err := gate("action", a.ID, a.RequiresUpgrade); err != nil {
				return err
			}
		}
		for _, w := range era.Workers {
			if err := gate("worker", w.ID, w.RequiresUpgrade); err != nil {
				return err
			}
		}
		for _, r := range era.Recipes {
			if err := gate("recipe", r.ID, r.RequiresUpgrade); err != nil {
				return err
			}
		}
	}

	listed := map[string]bool{}
	for id, u := range c.upgrades {
		for _, target := range u.Effect.Unlocks {
			if !gates[target][id] {
				return fmt.Errorf("upgrade %s: unlocks %q, which is not gated on it", id, target)
			}
			listed[id+"/"+target] = true
		}
	}
	for target, ups := range gates {
		for upgrade := range ups {
			if !listed[upgrade+"/"+target] {
				return fmt.Errorf("upgrade %s: missing %q from unlocks", upgrade, target)
			}
		}
	}
	return nil
}

// FirstEra returns the id of the starting era.
func (c *Catalogs) FirstEra() string {
	if len(c.Eras.Order) == 0 {
		return ""
	}
	return c.Eras.Order[0]
}

func (c *Catalogs) Era(id string) (EraDef, bool) {
	e, ok := c.Eras.ByID[id]
	return e, ok
}

// EraAt returns the era at position i of the era order.
func (c *Catalogs) EraAt(i int) (EraDef, bool) {
	if i < 0 || i >= len(c.Eras.Order) {
		return EraDef{}, false
	}
	return c.Eras.ByID[c.Eras.Order[i]], true
}

// EraIndex returns the position of id in the era order, or -1.
func (c *Catalogs) EraIndex(id string) int {
	for i, e := range c.Eras.Order {
		if e == id {
			return i
		}
	}
	return -1
}

// NextEra returns the era following current, or ok=false when current is
// terminal or unknown.
func (c *Catalogs) NextEra(current string) (string, bool) {
	i := c.EraIndex(current)
	if i < 0 || i+1 >= len(c.Eras.Order) {
		return "", false
	}
	return c.Eras.Order[i+1], true
}

func (c *Catalogs) Worker(id string) (WorkerDef, bool) {
	w, ok := c.workers[id]
	return w, ok
}

func (c *Catalogs) Upgrade(id string) (UpgradeDef, bool) {
	u, ok := c.upgrades[id]
	return u, ok
}

// UpgradeEra returns the era that offers upgrade id.
func (c *Catalogs) UpgradeEra(id string) string { return c.upgradeEra[id] }

func (c *Catalogs) Recipe(id string) (RecipeDef, bool) {
	r, ok := c.recipes[id]
	return r, ok
}

// WorkerIDs returns every worker id across all eras, sorted.
func (c *Catalogs) WorkerIDs() []string {
	ids := make([]string, 0, len(c.workers))
	for id := range c.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UpgradeIDs returns every upgrade id across all eras, sorted.
func (c *Catalogs) UpgradeIDs() []string {
	ids := make([]string, 0, len(c.upgrades))
	for id := range c.upgrades {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Action looks up an action available in era: the era's own actions win over
// same-id actions of earlier eras.
func (c *Catalogs) Action(id, era string) (ActionDef, bool) {
	last := c.EraIndex(era)
	for i := last; i >= 0; i-- {
		for _, a := range c.Eras.ByID[c.Eras.Order[i]].Actions {
			if a.ID == id {
				return a, true
			}
		}
	}
	return ActionDef{}, false
}

// EraWorker returns a worker that can be hired in era: workers stay
// available after their own era ends.
func (c *Catalogs) EraWorker(era, id string) (WorkerDef, bool) {
	last := c.EraIndex(era)
	for i := 0; i <= last; i++ {
		for _, w := range c.Eras.ByID[c.Eras.Order[i]].Workers {
			if w.ID == id {
				return w, true
			}
		}
	}
	return WorkerDef{}, false
}

// EraRecipe returns a recipe usable in era (own or earlier eras).
func (c *Catalogs) EraRecipe(era, id string) (RecipeDef, bool) {
	r, ok := c.recipes[id]
	if !ok {
		return RecipeDef{}, false
	}
	last := c.EraIndex(era)
	for i := 0; i <= last; i++ {
		for _, er := range c.Eras.ByID[c.Eras.Order[i]].Recipes {
			if er.ID == id {
				return r, true
			}
		}
	}
	return RecipeDef{}, false
}

// EfficiencyEntries returns every per-resource efficiency entry across all
// eras: the explicit efficiency tables plus per-resource upgrade multipliers.
func (c *Catalogs) EfficiencyEntries(resource string) []EfficiencyEntry {
	return c.efficiency[resource]
}

// Digest summarizes every catalog file so clients can detect content changes.
func (c *Catalogs) Digest() string {
	return sha256Hex([]byte(c.Resources.Digest + c.Eras.Digest + c.Migrations.Digest))
}
