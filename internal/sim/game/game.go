// Package game wires the State Store, Production Engine, Worker Scheduler,
// Progression Gate and Event Engine into one session and exposes the player
// intents as structured outcomes.
package game

import (
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"eraforge.game/internal/metrics"
	"eraforge.game/internal/sim/catalogs"
	"eraforge.game/internal/sim/events"
	"eraforge.game/internal/sim/production"
	"eraforge.game/internal/sim/progression"
	"eraforge.game/internal/sim/scheduler"
	"eraforge.game/internal/sim/state"
	"eraforge.game/internal/sim/tuning"
)

type Config struct {
	Catalogs    *catalogs.Catalogs
	Tuning      tuning.Tuning
	Persistence state.Persistence
	Logger      *log.Logger
	Metrics     *metrics.Collectors
	RNG         production.RNG
	Now         func() time.Time

	// Speed divides worker intervals (1 = real time).
	Speed float64
	// HousekeepingInterval is the Run loop cadence; 0 means one second.
	HousekeepingInterval time.Duration
}

type Game struct {
	Store     *state.Store
	Engine    *production.Engine
	Scheduler *scheduler.Scheduler
	Gate      *progression.Gate
	Events    *events.Engine

	log     *log.Logger
	metrics *metrics.Collectors
	now     func() time.Time
	every   time.Duration

	// lifecycle orders hires against the stop/restart cycle of load and reset.
	lifecycle sync.Mutex
	closed    bool

	stop     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config) (*Game, error) {
	if cfg.Catalogs == nil {
		return nil, errors.New("game: nil catalogs")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RNG == nil {
		cfg.RNG = production.NewRNG(uint64(cfg.Now().UnixNano()))
	}
	if cfg.HousekeepingInterval <= 0 {
		cfg.HousekeepingInterval = time.Second
	}

	store, err := state.New(state.Config{
		Catalogs:    cfg.Catalogs,
		Tuning:      cfg.Tuning,
		Persistence: cfg.Persistence,
		Logger:      cfg.Logger,
		Now:         cfg.Now,
	})
	if err != nil {
		return nil, err
	}
	engine, err := production.New(production.Config{Store: store, RNG: cfg.RNG, Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	ev, err := events.New(events.Config{Store: store, RNG: cfg.RNG, Logger: cfg.Logger, Now: cfg.Now})
	if err != nil {
		return nil, err
	}

	g := &Game{
		Store:   store,
		Engine:  engine,
		Gate:    progression.New(store, cfg.Logger),
		Events:  ev,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
		every:   cfg.HousekeepingInterval,
		stop:    make(chan struct{}),
	}
	g.Scheduler, err = scheduler.New(scheduler.Config{
		Store:  store,
		Engine: engine,
		Logger: cfg.Logger,
		Now:    cfg.Now,
		Speed:  cfg.Speed,
		OnTick: g.onTick,
	})
	if err != nil {
		return nil, err
	}
	store.AddListener(state.EventHistoricalEvent, func(n state.Notification) {
		if ev, ok := n.Data.(state.HistoricalEventApplied); ok {
			g.metrics.RecordHistoricalEvent(ev.ID)
		}
	})
	return g, nil
}

func (g *Game) onTick(rep production.TickReport, feeding scheduler.FeedingStatus) {
	g.metrics.RecordTick(rep.Worker, rep.Blocked, rep.Produced, feeding.Factor)
	g.evaluateAchievements()
}

// State returns a read-only snapshot of the game.
func (g *Game) State() state.GameState { return g.Store.Snapshot() }

func (g *Game) GateStatus() state.GateStatus { return g.Store.GateStatus() }

func (g *Game) Feeding() scheduler.FeedingStatus { return g.Scheduler.Feeding() }

// Resume starts worker tasks for the current roster, e.g. after the initial load.
func (g *Game) Resume() []string {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()
	if g.closed {
		return nil
	}
	return g.Scheduler.RestartAll()
}

// Close stops every timer. It is safe to call more than once; the game must
// not be used afterwards.
func (g *Game) Close() {
	g.lifecycle.Lock()
	g.closed = true
	g.lifecycle.Unlock()
	g.stopOnce.Do(func() { close(g.stop) })
	g.Scheduler.StopAll()
}
