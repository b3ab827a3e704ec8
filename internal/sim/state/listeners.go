package state

import "sort"

type Event string

const (
	EventResourceChange      Event = "resourceChange"
	EventWorkerChange        Event = "workerChange"
	EventUpgradeUnlocked     Event = "upgradeUnlocked"
	EventGameLoaded          Event = "gameLoaded"
	EventGameSaved           Event = "gameSaved"
	EventGameReset           Event = "gameReset"
	EventEraAdvancement      Event = "eraAdvancement"
	EventAchievementUnlocked Event = "achievementUnlocked"
	EventHistoricalEvent     Event = "historicalEvent"

	// EventAll subscribes to every event.
	EventAll Event = "*"
)

type Notification struct {
	Event Event `json:"event"`
	Data  any   `json:"data"`
}

type ResourceChange struct {
	ID       string  `json:"id"`
	OldValue float64 `json:"old_value"`
	NewValue float64 `json:"new_value"`
	Delta    float64 `json:"delta"`
}

type WorkerChange struct {
	ID       string `json:"id"`
	OldCount int    `json:"old_count"`
	NewCount int    `json:"new_count"`
	Delta    int    `json:"delta"`
}

type UpgradeUnlocked struct {
	ID string `json:"id"`
}

type EraAdvancement struct {
	OldEra string `json:"old_era"`
	NewEra string `json:"new_era"`
}

type AchievementUnlocked struct {
	ID string `json:"id"`
}

type GameLoaded struct {
	GameID  string `json:"game_id"`
	Era     string `json:"era"`
	SavedAt string `json:"saved_at,omitempty"`
}

type GameSaved struct {
	GameID  string `json:"game_id"`
	Slot    string `json:"slot"`
	SavedAt string `json:"saved_at"`
}

type GameReset struct {
	GameID string `json:"game_id"`
}

type HistoricalEventApplied struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	Era     string             `json:"era"`
	Changes map[string]float64 `json:"changes"`
}

type Listener func(n Notification)

type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// AddListener registers fn for ev (EventAll for every event).
func (s *Store) AddListener(ev Event, fn Listener) ListenerID {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.nextListener++
	id := s.nextListener
	s.listeners[ev] = append(s.listeners[ev], listenerEntry{id: id, fn: fn})
	return id
}

func (s *Store) RemoveListener(ev Event, id ListenerID) bool {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	entries := s.listeners[ev]
	for i, e := range entries {
		if e.id == id {
			s.listeners[ev] = append(entries[:i:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAllListeners drops the listeners of ev, or of every event when ev is empty.
func (s *Store) RemoveAllListeners(ev Event) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	if ev == "" {
		s.listeners = map[Event][]listenerEntry{}
		return
	}
	delete(s.listeners, ev)
}

// NotifyListeners delivers data to every listener of ev.
func (s *Store) NotifyListeners(ev Event, data any) {
	s.dispatch([]Notification{{Event: ev, Data: data}})
}

func (s *Store) dispatch(ns []Notification) {
	for _, n := range ns {
		s.lmu.RLock()
		entries := make([]listenerEntry, 0, len(s.listeners[n.Event])+len(s.listeners[EventAll]))
		entries = append(entries, s.listeners[n.Event]...)
		entries = append(entries, s.listeners[EventAll]...)
		s.lmu.RUnlock()

		sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
		for _, e := range entries {
			s.invoke(e, n)
		}
	}
}

func (s *Store) invoke(e listenerEntry, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Printf("listener %d for %s panicked: %v", e.id, n.Event, r)
		}
	}()
	e.fn(n)
}
