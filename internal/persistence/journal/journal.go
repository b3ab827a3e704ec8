// Package journal keeps a compressed audit trail of notable game events:
// era advancements, historical events, achievements, loads and resets.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"eraforge.game/internal/sim/state"
)

// Entry is one journal line.
type Entry struct {
	Time   string          `json:"time"`
	GameID string          `json:"game_id,omitempty"`
	Era    string          `json:"era,omitempty"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Journaled lists the notifications the journal records.
var Journaled = []state.Event{
	state.EventEraAdvancement,
	state.EventHistoricalEvent,
	state.EventAchievementUnlocked,
	state.EventGameLoaded,
	state.EventGameReset,
}

type Journal struct {
	w   *rotator
	log *log.Logger
	now func() time.Time

	store *state.Store
	ids   map[state.Event]state.ListenerID
}

// Open creates a journal writing under dir.
func Open(dir string, logger *log.Logger) *Journal {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Journal{
		w:   newRotator(dir, "journal", Hourly),
		log: logger,
		now: time.Now,
	}
}

// Attach subscribes the journal to store.
func (j *Journal) Attach(store *state.Store) {
	j.store = store
	j.ids = map[state.Event]state.ListenerID{}
	for _, ev := range Journaled {
		j.ids[ev] = store.AddListener(ev, j.record)
	}
}

func (j *Journal) record(n state.Notification) {
	data, err := json.Marshal(n.Data)
	if err != nil {
		j.log.Printf("journal: encode %s: %v", n.Event, err)
		return
	}
	e := Entry{
		Time:  j.now().UTC().Format(time.RFC3339Nano),
		Event: string(n.Event),
		Data:  data,
	}
	if j.store != nil {
		snap := j.store.Snapshot()
		e.GameID, e.Era = snap.GameID, snap.Era
	}
	if err := j.w.Append(e); err != nil {
		j.log.Printf("journal: write %s: %v", n.Event, err)
	}
}

// Close detaches from the store and flushes the current file.
func (j *Journal) Close() error {
	if j.store != nil {
		for ev, id := range j.ids {
			j.store.RemoveListener(ev, id)
		}
		j.store = nil
	}
	return j.w.Close()
}

// ReadFile decodes one journal file.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Entry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// ReadDir decodes every journal file under dir in chronological order.
func ReadDir(dir string) ([]Entry, error) {
	files, err := filepath.Glob(filepath.Join(dir, "journal-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var out []Entry
	for _, p := range files {
		entries, err := ReadFile(p)
		if err != nil {
			return out, err
		}
		out = append(out, entries...)
	}
	return out, nil
}
