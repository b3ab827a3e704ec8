// Package simtest builds fully wired State Stores over the repository
// configs for tests in other packages.
package simtest

import (
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"eraforge.game/internal/persistence/savestore"
	"eraforge.game/internal/sim/catalogs"
	"eraforge.game/internal/sim/state"
	"eraforge.game/internal/sim/tuning"
)

// ConfigDir is the repository configs directory, independent of the calling
// test's working directory.
func ConfigDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "configs")
}

var (
	catsOnce sync.Once
	cats     *catalogs.Catalogs
	catsErr  error
)

// Catalogs loads the repository catalogs once per test binary.
func Catalogs(t testing.TB) *catalogs.Catalogs {
	t.Helper()
	catsOnce.Do(func() { cats, catsErr = catalogs.Load(ConfigDir()) })
	if catsErr != nil {
		t.Fatalf("load catalogs: %v", catsErr)
	}
	return cats
}

// Tuning loads configs/tuning.yaml with every chance roll zeroed, so tests
// opt into randomness explicitly.
func Tuning(t testing.TB) tuning.Tuning {
	t.Helper()
	tune, err := tuning.Load(filepath.Join(ConfigDir(), "tuning.yaml"))
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	for k := range tune.Probabilities {
		tune.Probabilities[k] = 0
	}
	return tune
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type Fixture struct {
	Cats  *catalogs.Catalogs
	Tune  tuning.Tuning
	Mem   *savestore.Memory
	Clock *Clock
	Store *state.Store
}

// New builds a store over in-memory persistence. mutate, when non-nil, edits
// the tuning before the store is created.
func New(t testing.TB, mutate func(*tuning.Tuning)) *Fixture {
	t.Helper()
	f := &Fixture{
		Cats:  Catalogs(t),
		Tune:  Tuning(t),
		Mem:   savestore.NewMemory(),
		Clock: NewClock(),
	}
	if mutate != nil {
		mutate(&f.Tune)
	}
	s, err := state.New(state.Config{
		Catalogs:    f.Cats,
		Tuning:      f.Tune,
		Persistence: f.Mem,
		Now:         f.Clock.Now,
	})
	if err != nil {
		t.Fatalf("state.New: %v", err)
	}
	f.Store = s
	return f
}

// Set overwrites resource values directly.
func (f *Fixture) Set(t testing.TB, amounts map[string]float64) {
	t.Helper()
	err := f.Store.Batch(func(tx *state.Tx) error {
		for id, v := range amounts {
			if err := tx.AddResource(id, v-tx.Resource(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("set resources: %v", err)
	}
}

// Unlock unlocks upgrades without paying for them.
func (f *Fixture) Unlock(t testing.TB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if !f.Store.UnlockUpgrade(id) {
			t.Fatalf("unlock %s: unknown upgrade", id)
		}
	}
}

// Hire adds workers without paying for them.
func (f *Fixture) Hire(t testing.TB, id string, n int) {
	t.Helper()
	if err := f.Store.AddWorker(id, n); err != nil {
		t.Fatalf("add worker %s: %v", id, err)
	}
}

// Recorder collects notifications.
type Recorder struct {
	mu  sync.Mutex
	got []state.Notification
}

func (f *Fixture) Record(events ...state.Event) *Recorder {
	r := &Recorder{}
	if len(events) == 0 {
		events = []state.Event{state.EventAll}
	}
	for _, ev := range events {
		f.Store.AddListener(ev, func(n state.Notification) {
			r.mu.Lock()
			r.got = append(r.got, n)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *Recorder) All() []state.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]state.Notification(nil), r.got...)
}

// Count returns how many notifications of ev were recorded.
func (r *Recorder) Count(ev state.Event) int {
	n := 0
	for _, x := range r.All() {
		if x.Event == ev {
			n++
		}
	}
	return n
}
