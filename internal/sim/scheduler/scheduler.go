// Package scheduler runs one periodic production task per hired worker type.
//
// A worker type is Idle while nobody of that type is hired and Running while
// its task is registered. Hiring the first unit starts the task with an
// immediate tick; a tick that finds the roster empty unregisters its own task.
package scheduler

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"eraforge.game/internal/sim/production"
	"eraforge.game/internal/sim/state"
)

// Ticker produces for every hired unit of a worker type.
type Ticker interface {
	WorkerTick(id string, factor float64) (production.TickReport, error)
}

type Config struct {
	Store  *state.Store
	Engine Ticker
	Logger *log.Logger
	Now    func() time.Time

	// Speed divides every worker interval; 0 means 1.
	Speed float64

	// OnTick is called after every tick that found hired units.
	OnTick func(rep production.TickReport, feeding FeedingStatus)
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Scheduler struct {
	store  *state.Store
	engine Ticker
	log    *log.Logger
	now    func() time.Time
	speed  float64
	onTick func(production.TickReport, FeedingStatus)

	mu    sync.Mutex
	tasks map[string]*task

	// beforeRetire runs between a tick that found no units and the
	// unregistering of its task.
	beforeRetire func(id string)

	fmu     sync.Mutex
	feeding FeedingStatus
	fed     bool
}

func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil || cfg.Engine == nil {
		return nil, errors.New("scheduler: store and engine are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	return &Scheduler{
		store:  cfg.Store,
		engine: cfg.Engine,
		log:    cfg.Logger,
		now:    cfg.Now,
		speed:  cfg.Speed,
		onTick: cfg.OnTick,
		tasks:  map[string]*task{},
	}, nil
}

// Ensure moves worker type id to Running if it has hired units and is not
// already running. The first tick fires before Ensure returns. It reports
// whether a task was started.
func (s *Scheduler) Ensure(id string) bool {
	return s.start(id, true)
}

func (s *Scheduler) start(id string, immediate bool) bool {
	w, ok := s.store.Catalogs().Worker(id)
	if !ok || s.store.WorkerCount(id) <= 0 {
		return false
	}
	interval := time.Duration(float64(w.IntervalMs) / s.speed * float64(time.Millisecond))
	if interval <= 0 {
		interval = time.Millisecond
	}

	s.mu.Lock()
	if _, running := s.tasks[id]; running {
		s.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	s.tasks[id] = t
	s.mu.Unlock()

	if immediate && !s.Tick(id) && s.retire(id, t) {
		close(t.done)
		return false
	}
	go s.run(ctx, id, interval, t)
	s.log.Printf("worker %s running every %s", id, interval)
	return true
}

func (s *Scheduler) run(ctx context.Context, id string, interval time.Duration, t *task) {
	defer close(t.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if !s.Tick(id) && s.retire(id, t) {
				s.log.Printf("worker %s idle", id)
				return
			}
		}
	}
}

// retire unregisters t if it is still the task for id and the roster is
// still empty. A unit hired since the tick keeps the task running, since
// Ensure saw it registered and started nothing. It reports whether t stopped.
func (s *Scheduler) retire(id string, t *task) bool {
	if s.beforeRetire != nil {
		s.beforeRetire(id)
	}
	s.mu.Lock()
	if s.tasks[id] == t && s.store.WorkerCount(id) > 0 {
		s.mu.Unlock()
		return false
	}
	if s.tasks[id] == t {
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	t.cancel()
	return true
}

// Tick runs one production round for id. It reports false when the type has
// no hired units, which is how a running task notices it should stop.
func (s *Scheduler) Tick(id string) bool {
	if s.store.WorkerCount(id) <= 0 {
		return false
	}
	feeding := s.Feeding()
	rep, err := s.engine.WorkerTick(id, feeding.Factor)
	if err != nil {
		s.log.Printf("worker %s tick: %v", id, err)
		return true
	}
	if rep.Units == 0 {
		return false
	}
	if s.onTick != nil {
		s.onTick(rep, feeding)
	}
	return true
}

// Feeding returns the colony feeding state, re-evaluating (and eating) at
// most once per feeding interval.
func (s *Scheduler) Feeding() FeedingStatus {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	f := s.store.Tuning().Feeding
	now := s.now()
	window := time.Duration(f.IntervalMs) * time.Millisecond
	if s.fed && now.Sub(s.feeding.Evaluated) < window {
		return s.feeding
	}
	var out FeedingStatus
	err := s.store.Batch(func(tx *state.Tx) error {
		var err error
		out, err = classify(tx, f)
		return err
	})
	if err != nil {
		s.log.Printf("feeding: %v", err)
		return FeedingStatus{State: WellFed, Factor: 1, Evaluated: now}
	}
	if s.fed && out.State != s.feeding.State {
		s.log.Printf("colony is now %s (demand=%g eaten=%g)", out.State, out.Demand, out.Eaten)
	}
	out.Evaluated = now
	s.feeding = out
	s.fed = true
	return out
}

// Running lists worker types with an active task, sorted.
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Scheduler) IsRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	return ok
}

// StopAll cancels every task, waits for in-flight ticks to finish and
// clears the registry.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = map[string]*task{}
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
	s.fmu.Lock()
	s.fed = false
	s.fmu.Unlock()
}

// RestartAll starts a task for every hired worker type that is not already
// running. Restarted tasks wait a full interval before their first tick.
func (s *Scheduler) RestartAll() []string {
	var started []string
	for _, id := range s.store.Catalogs().WorkerIDs() {
		if s.start(id, false) {
			started = append(started, id)
		}
	}
	return started
}
