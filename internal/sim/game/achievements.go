package game

import "eraforge.game/internal/sim/state"

// evaluateAchievements grants every catalog achievement whose condition now holds.
func (g *Game) evaluateAchievements() {
	_ = g.Store.Batch(func(tx *state.Tx) error {
		cats := tx.Catalogs()
		for _, a := range cats.Achievements {
			if tx.HasAchievement(a.ID) {
				continue
			}
			var met bool
			switch a.Kind {
			case "total_actions":
				met = float64(tx.Progression().TotalActions) >= a.Target
			case "resource":
				met = tx.Resource(a.Resource) >= a.Target
			case "era":
				met = cats.EraIndex(tx.Era()) >= cats.EraIndex(a.Era)
			}
			if met {
				tx.GrantAchievement(a.ID)
			}
		}
		return nil
	})
}
