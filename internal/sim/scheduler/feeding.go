package scheduler

import (
	"math"
	"time"

	"eraforge.game/internal/sim/state"
	"eraforge.game/internal/sim/tuning"
)

type Feeding string

const (
	WellFed  Feeding = "wellFed"
	Hungry   Feeding = "hungry"
	Starving Feeding = "starving"
)

// FeedingStatus is the colony-wide classification shared by every worker
// tick until the next feeding round.
type FeedingStatus struct {
	State     Feeding   `json:"state"`
	Factor    float64   `json:"factor"`
	Demand    float64   `json:"demand"`
	Eaten     float64   `json:"eaten"`
	Evaluated time.Time `json:"evaluated"`
}

// classify feeds the whole roster from the food stock in one batch.
func classify(tx *state.Tx, f tuning.Feeding) (FeedingStatus, error) {
	workers := 0
	for _, n := range tx.Workers() {
		if n > 0 {
			workers += n
		}
	}
	out := FeedingStatus{State: WellFed, Factor: 1}
	out.Demand = float64(workers) * f.FoodPerWorker
	if out.Demand <= 0 {
		return out, nil
	}
	have := tx.Resource(f.FoodResource)
	switch {
	case have >= out.Demand:
		out.Eaten = out.Demand
	case have > 0:
		out.State, out.Factor = Hungry, f.HungryFactor
		out.Eaten = have
	default:
		out.State, out.Factor = Starving, f.StarvingFactor
		return out, nil
	}
	// Round off float noise so a fully eaten stock lands on exactly zero.
	if math.Abs(have-out.Eaten) < 1e-9 {
		out.Eaten = have
	}
	if err := tx.AddResource(f.FoodResource, -out.Eaten); err != nil {
		return FeedingStatus{}, err
	}
	return out, nil
}
