package game

import (
	"context"
	"time"
)

// Run is the housekeeping loop: it accrues play time, polls the event
// engine, auto-saves and refreshes gauges until ctx ends or Close is called.
// On the way out every worker task is stopped before the final save, which
// is written when auto-save is enabled.
func (g *Game) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.every)
	defer ticker.Stop()

	last := g.now()
	lastSave := last
	for {
		select {
		case <-ctx.Done():
			g.Close()
			g.finalSave()
			return ctx.Err()
		case <-g.stop:
			g.Close()
			g.finalSave()
			return nil
		case <-ticker.C:
			now := g.now()
			g.housekeep(now, now.Sub(last), &lastSave)
			last = now
		}
	}
}

func (g *Game) housekeep(now time.Time, elapsed time.Duration, lastSave *time.Time) {
	if elapsed > 0 {
		g.Store.AddPlayTime(elapsed)
	}
	if _, applied := g.Events.Poll(); applied {
		g.evaluateAchievements()
	}

	snap := g.Store.Snapshot()
	g.metrics.ObserveState(snap.Resources, snap.Workers, g.Store.Catalogs().EraIndex(snap.Era))

	every := time.Duration(g.Store.Tuning().AutoSaveSeconds) * time.Second
	if snap.Settings.AutoSave && every > 0 && now.Sub(*lastSave) >= every {
		err := g.Store.Save()
		g.metrics.RecordSave("auto", err)
		if err != nil {
			g.log.Printf("auto-save: %v", err)
		}
		*lastSave = now
	}
}

func (g *Game) finalSave() {
	if !g.Store.Snapshot().Settings.AutoSave {
		return
	}
	err := g.Store.Save()
	g.metrics.RecordSave("shutdown", err)
	if err != nil {
		g.log.Printf("final save: %v", err)
	}
}
