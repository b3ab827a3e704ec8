package state

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"eraforge.game/internal/sim/catalogs"
	"eraforge.game/internal/sim/tuning"
)

// SaveVersion is written into every save document.
const SaveVersion = 3

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrBatchPanic    = errors.New("state batch panicked")
	ErrInsufficient  = errors.New("insufficient resources")
	ErrUnknownWorker = errors.New("unknown worker")
	ErrNoPersistence = errors.New("no persistence adapter")
)

// GameState is the serializable game data. Only Store mutates it.
type GameState struct {
	Version              int                `json:"version"`
	GameID               string             `json:"game_id"`
	Era                  string             `json:"era"`
	Resources            map[string]float64 `json:"resources"`
	Workers              map[string]int     `json:"workers"`
	Upgrades             map[string]bool    `json:"upgrades"`
	Progression          Progression        `json:"progression"`
	Settings             Settings           `json:"settings"`
	ProbabilityOverrides map[string]float64 `json:"probability_overrides,omitempty"`
	SavedAt              string             `json:"saved_at,omitempty"`
}

type Progression struct {
	PlayTimeSeconds float64  `json:"play_time_seconds"`
	TotalActions    int64    `json:"total_actions"`
	Achievements    []string `json:"achievements"`
	// EraProgress counts actions taken in the current era; reset on advance.
	EraProgress int64 `json:"era_progress"`
}

type Settings struct {
	AutoSave      bool `json:"auto_save"`
	Notifications bool `json:"notifications"`
}

// Persistence is the durable key-value store used for save/load.
type Persistence interface {
	Read(slot string) ([]byte, error)
	Write(slot string, data []byte) error
}

type Config struct {
	Catalogs    *catalogs.Catalogs
	Tuning      tuning.Tuning
	Persistence Persistence
	Logger      *log.Logger
	Now         func() time.Time
}

// Store is the single owner of the mutable game state. Every mutation runs
// under mu; notifications are delivered after mu is released so listeners
// always observe a fully applied change.
type Store struct {
	cats    *catalogs.Catalogs
	tune    tuning.Tuning
	persist Persistence
	log     *log.Logger
	now     func() time.Time
	schema  *jsonschema.Schema

	mu sync.Mutex
	st GameState

	lmu          sync.RWMutex
	listeners    map[Event][]listenerEntry
	nextListener ListenerID
}

func New(cfg Config) (*Store, error) {
	if cfg.Catalogs == nil {
		return nil, errors.New("state: nil catalogs")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	schema, err := compileSaveSchema()
	if err != nil {
		return nil, err
	}
	s := &Store{
		cats:      cfg.Catalogs,
		tune:      cfg.Tuning.Clone(),
		persist:   cfg.Persistence,
		log:       cfg.Logger,
		now:       cfg.Now,
		schema:    schema,
		listeners: map[Event][]listenerEntry{},
	}
	s.st = s.initialState()
	return s, nil
}

func (s *Store) Catalogs() *catalogs.Catalogs { return s.cats }
func (s *Store) Tuning() tuning.Tuning         { return s.tune }

// initialState builds a fresh game: every catalog id pre-seeded, starting
// resources applied.
func (s *Store) initialState() GameState {
	st := GameState{
		Version:              SaveVersion,
		GameID:               uuid.NewString(),
		Era:                  s.cats.FirstEra(),
		Resources:            make(map[string]float64, len(s.cats.Resources.Defs)),
		Workers:              map[string]int{},
		Upgrades:             map[string]bool{},
		Progression:          Progression{Achievements: []string{}},
		Settings:             Settings{AutoSave: true, Notifications: true},
		ProbabilityOverrides: map[string]float64{},
	}
	for _, r := range s.cats.Resources.Defs {
		st.Resources[r.ID] = 0
	}
	for id, v := range s.tune.StartingResources {
		st.Resources[id] = v
	}
	for _, id := range s.cats.WorkerIDs() {
		st.Workers[id] = 0
	}
	for _, id := range s.cats.UpgradeIDs() {
		st.Upgrades[id] = false
	}
	return st
}

// Batch runs fn with exclusive access to the state. Checks and the mutations
// they guard must happen inside the same fn so nothing interleaves; queued
// notifications are dispatched once fn returns.
//
// A panic in fn is recovered and returned as ErrBatchPanic; the state is
// repaired with Validate and the batch's notifications are dropped.
func (s *Store) Batch(fn func(tx *Tx) error) error {
	pending, err := s.runBatch(fn)
	s.dispatch(pending)
	return err
}

func (s *Store) runBatch(fn func(tx *Tx) error) (pending []Notification, err error) {
	s.mu.Lock()
	tx := &Tx{s: s, st: &s.st}
	defer func() {
		if r := recover(); r != nil {
			s.log.Printf("batch panicked: %v", r)
			validateState(&s.st, s.log)
			pending, err = nil, fmt.Errorf("%w: %v", ErrBatchPanic, r)
		}
		tx.st = nil
		s.mu.Unlock()
	}()
	err = fn(tx)
	return tx.pending, err
}

// View runs fn with read access to the state.
func (s *Store) View(fn func(tx *Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Tx{s: s, st: &s.st, readOnly: true}
	fn(tx)
}

func (s *Store) Resource(id string) float64 {
	var v float64
	s.View(func(tx *Tx) { v = tx.Resource(id) })
	return v
}

// AddResource applies delta (clamped at zero). Non-finite deltas are rejected.
func (s *Store) AddResource(id string, delta float64) error {
	return s.Batch(func(tx *Tx) error { return tx.AddResource(id, delta) })
}

func (s *Store) CanAfford(cost catalogs.Cost) bool {
	var ok bool
	s.View(func(tx *Tx) { ok = tx.CanAfford(cost) })
	return ok
}

// SpendResources debits every entry of cost, or nothing at all.
func (s *Store) SpendResources(cost catalogs.Cost) error {
	return s.Batch(func(tx *Tx) error { return tx.Spend(cost) })
}

func (s *Store) WorkerCount(id string) int {
	var n int
	s.View(func(tx *Tx) { n = tx.WorkerCount(id) })
	return n
}

func (s *Store) AddWorker(id string, delta int) error {
	return s.Batch(func(tx *Tx) error {
		_, err := tx.AddWorker(id, delta)
		return err
	})
}

func (s *Store) HasUpgrade(id string) bool {
	var ok bool
	s.View(func(tx *Tx) { ok = tx.HasUpgrade(id) })
	return ok
}

// UnlockUpgrade reports false for unknown ids.
func (s *Store) UnlockUpgrade(id string) bool {
	var ok bool
	_ = s.Batch(func(tx *Tx) error {
		ok = tx.UnlockUpgrade(id)
		return nil
	})
	return ok
}

func (s *Store) EfficiencyMultiplier(resource string) float64 {
	var m float64
	s.View(func(tx *Tx) { m = tx.EfficiencyMultiplier(resource) })
	return m
}

func (s *Store) Probability(key string) float64 {
	var p float64
	s.View(func(tx *Tx) { p = tx.Probability(key) })
	return p
}

func (s *Store) Era() string {
	var e string
	s.View(func(tx *Tx) { e = tx.Era() })
	return e
}

func (s *Store) CanAdvanceEra() bool {
	var ok bool
	s.View(func(tx *Tx) { ok = tx.CanAdvanceEra() })
	return ok
}

func (s *Store) GateStatus() GateStatus {
	var g GateStatus
	s.View(func(tx *Tx) { g = tx.GateStatus() })
	return g
}

// AddPlayTime accumulates wall-clock play time.
func (s *Store) AddPlayTime(d time.Duration) {
	_ = s.Batch(func(tx *Tx) error {
		tx.st.Progression.PlayTimeSeconds += d.Seconds()
		return nil
	})
}

func (s *Store) SetSettings(v Settings) {
	_ = s.Batch(func(tx *Tx) error {
		tx.st.Settings = v
		return nil
	})
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clone()
}

// Reset replaces the state with a fresh game.
func (s *Store) Reset() {
	s.mu.Lock()
	s.st = s.initialState()
	id := s.st.GameID
	s.mu.Unlock()
	s.log.Printf("game reset id=%s", id)
	s.dispatch([]Notification{{Event: EventGameReset, Data: GameReset{GameID: id}}})
}

func (g GameState) clone() GameState {
	out := g
	out.Resources = make(map[string]float64, len(g.Resources))
	for k, v := range g.Resources {
		out.Resources[k] = v
	}
	out.Workers = make(map[string]int, len(g.Workers))
	for k, v := range g.Workers {
		out.Workers[k] = v
	}
	out.Upgrades = make(map[string]bool, len(g.Upgrades))
	for k, v := range g.Upgrades {
		out.Upgrades[k] = v
	}
	out.ProbabilityOverrides = make(map[string]float64, len(g.ProbabilityOverrides))
	for k, v := range g.ProbabilityOverrides {
		out.ProbabilityOverrides[k] = v
	}
	out.Progression.Achievements = append([]string{}, g.Progression.Achievements...)
	return out
}

// UnlockedUpgrades lists unlocked upgrade ids, sorted.
func (g GameState) UnlockedUpgrades() []string {
	var out []string
	for id, ok := range g.Upgrades {
		if ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// TotalWorkers sums the roster.
func (g GameState) TotalWorkers() int {
	n := 0
	for _, c := range g.Workers {
		if c > 0 {
			n += c
		}
	}
	return n
}
