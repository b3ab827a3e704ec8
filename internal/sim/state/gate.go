package state

import (
	"math"
	"sort"

	"eraforge.game/internal/sim/tuning"
)

// GateStatus explains the current era-advancement requirement.
type GateStatus struct {
	Mode string `json:"mode"`
	Era  string `json:"era"`

	Population         float64 `json:"population"`
	PopulationRequired float64 `json:"population_required"`

	// Fractional mode.
	Diversity         int `json:"diversity,omitempty"`
	DiversityRequired int `json:"diversity_required,omitempty"`
	Upgrades          int `json:"upgrades,omitempty"`
	UpgradesRequired  int `json:"upgrades_required,omitempty"`

	// Explicit mode.
	MissingUpgrades  []string           `json:"missing_upgrades,omitempty"`
	MissingStockpile map[string]float64 `json:"missing_stockpile,omitempty"`

	Ready bool `json:"ready"`
}

func (tx *Tx) CanAdvanceEra() bool {
	return tx.GateStatus().Ready
}

func (tx *Tx) GateStatus() GateStatus {
	if tx.s.tune.EraGate.Mode == tuning.GateExplicit {
		return tx.explicitGate()
	}
	return tx.fractionalGate()
}

// fractionalGate requires a population share of the era cap, a number of
// stocked active resources and a share of the era's upgrades, all at once.
func (tx *Tx) fractionalGate() GateStatus {
	g := tx.s.tune.EraGate
	era, _ := tx.s.cats.Era(tx.st.Era)
	out := GateStatus{Mode: tuning.GateFractional, Era: era.ID}

	out.Population = tx.st.Resources["population"]
	out.PopulationRequired = math.Ceil(tuning.ClampFraction(g.PopulationFraction) * era.PopulationCap)

	for _, r := range era.ActiveResources {
		if tx.st.Resources[r] >= 1 {
			out.Diversity++
		}
	}
	out.DiversityRequired = int(math.Ceil(tuning.ClampFraction(g.DiversityFraction) * float64(len(era.ActiveResources))))

	for _, u := range era.Upgrades {
		if tx.st.Upgrades[u.ID] {
			out.Upgrades++
		}
	}
	out.UpgradesRequired = int(math.Ceil(tuning.ClampFraction(g.UpgradeFraction) * float64(len(era.Upgrades))))

	out.Ready = out.Population >= out.PopulationRequired &&
		out.Diversity >= out.DiversityRequired &&
		out.Upgrades >= out.UpgradesRequired
	return out
}

// explicitGate checks the era's own population floor, tech list and stockpile.
func (tx *Tx) explicitGate() GateStatus {
	era, _ := tx.s.cats.Era(tx.st.Era)
	req := era.Requirement
	out := GateStatus{Mode: tuning.GateExplicit, Era: era.ID}

	out.Population = tx.st.Resources["population"]
	out.PopulationRequired = req.Population

	for _, u := range req.Upgrades {
		if !tx.st.Upgrades[u] {
			out.MissingUpgrades = append(out.MissingUpgrades, u)
		}
	}
	sort.Strings(out.MissingUpgrades)
	if missing := tx.Missing(req.Stockpile); len(missing) > 0 {
		out.MissingStockpile = missing
	}

	out.Ready = out.Population >= out.PopulationRequired &&
		len(out.MissingUpgrades) == 0 &&
		len(out.MissingStockpile) == 0
	return out
}
