package state

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed save.schema.json
var saveSchemaJSON string

func compileSaveSchema() (*jsonschema.Schema, error) {
	s, err := jsonschema.CompileString("save.schema.json", saveSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile save schema: %w", err)
	}
	return s, nil
}

// SaveSchema returns the embedded JSON schema for save documents.
func SaveSchema() string { return saveSchemaJSON }

// Save validates the state and writes it to the configured slot.
func (s *Store) Save() error {
	if s.persist == nil {
		return ErrNoPersistence
	}
	data, st, err := s.encode()
	if err != nil {
		s.log.Printf("save: %v", err)
		return err
	}
	slot := s.tune.SaveSlot
	if err := s.persist.Write(slot, data); err != nil {
		s.log.Printf("save slot=%s: %v", slot, err)
		return fmt.Errorf("write slot %s: %w", slot, err)
	}
	s.dispatch([]Notification{{Event: EventGameSaved, Data: GameSaved{GameID: st.GameID, Slot: slot, SavedAt: st.SavedAt}}})
	return nil
}

// Encode returns the save document for the current state.
func (s *Store) Encode() ([]byte, error) {
	data, _, err := s.encode()
	return data, err
}

func (s *Store) encode() ([]byte, GameState, error) {
	s.mu.Lock()
	validateState(&s.st, s.log)
	s.st.Version = SaveVersion
	s.st.SavedAt = s.now().UTC().Format(time.RFC3339)
	st := s.st.clone()
	s.mu.Unlock()

	data, err := json.Marshal(st)
	if err != nil {
		return nil, st, fmt.Errorf("encode save: %w", err)
	}
	return data, st, nil
}

// Load reads the configured slot and replaces the current state with it.
// On any failure the in-memory state is left untouched.
func (s *Store) Load() error {
	if s.persist == nil {
		return ErrNoPersistence
	}
	slot := s.tune.SaveSlot
	data, err := s.persist.Read(slot)
	if err != nil {
		s.log.Printf("load slot=%s: %v", slot, err)
		return fmt.Errorf("read slot %s: %w", slot, err)
	}
	return s.LoadBytes(data)
}

// LoadBytes installs a save document.
func (s *Store) LoadBytes(data []byte) error {
	st, err := s.Decode(data)
	if err != nil {
		s.log.Printf("load: %v", err)
		return err
	}
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
	s.log.Printf("game loaded id=%s era=%s", st.GameID, st.Era)
	s.dispatch([]Notification{{Event: EventGameLoaded, Data: GameLoaded{GameID: st.GameID, Era: st.Era, SavedAt: st.SavedAt}}})
	return nil
}

// Decode turns a save document (current or legacy) into a repaired state
// without installing it.
func (s *Store) Decode(data []byte) (GameState, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return GameState{}, fmt.Errorf("corrupt save: %w", err)
	}
	if err := s.schema.Validate(doc); err != nil {
		return GameState{}, fmt.Errorf("corrupt save: %w", err)
	}
	raw, ok := doc.(map[string]any)
	if !ok {
		return GameState{}, fmt.Errorf("corrupt save: top level is not an object")
	}
	version, _ := raw["version"].(float64)
	raw = MigrateLegacySave(raw, s.cats.Migrations, s.log)
	st := s.merge(raw)
	if version == 2 {
		s.dropUpgradeOverrides(&st)
	}
	validateState(&st, s.log)
	return st, nil
}

// dropUpgradeOverrides removes upgrade bonuses that version 2 saves folded
// into the overrides; they are now derived from the unlocked upgrades.
func (s *Store) dropUpgradeOverrides(st *GameState) {
	for key, v := range st.ProbabilityOverrides {
		if v <= 0 {
			continue
		}
		rest := v - upgradeBonus(s.cats, st.Upgrades, key)
		if rest < 1e-9 {
			delete(st.ProbabilityOverrides, key)
			continue
		}
		st.ProbabilityOverrides[key] = rest
	}
}

// ValidateDocument checks data against the save schema only.
func (s *Store) ValidateDocument(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return s.schema.Validate(doc)
}

// merge lays the loaded document over a fresh state. Top-level fields replace
// the defaults; the resource, worker and upgrade maps merge per key so ids
// added to the catalog after the save was written keep their defaults.
func (s *Store) merge(raw map[string]any) GameState {
	st := s.initialState()
	for key, v := range raw {
		switch key {
		case "game_id":
			if id, ok := v.(string); ok && id != "" {
				st.GameID = id
			}
		case "era":
			era, _ := v.(string)
			if _, ok := s.cats.Era(era); ok {
				st.Era = era
			} else {
				s.log.Printf("load: unknown era %q, starting at %s", era, st.Era)
			}
		case "resources":
			m, _ := v.(map[string]any)
			for id, val := range m {
				st.Resources[id] = toFloat(val)
			}
		case "workers":
			m, _ := v.(map[string]any)
			for id, val := range m {
				if _, ok := s.cats.Worker(id); !ok {
					s.log.Printf("load: dropped unknown worker %s", id)
					continue
				}
				f := toFloat(val)
				if math.IsNaN(f) || math.IsInf(f, 0) {
					s.log.Printf("load: corrected worker %s: %v -> 0", id, val)
					f = 0
				}
				st.Workers[id] = int(math.Floor(f))
			}
		case "upgrades":
			m, _ := v.(map[string]any)
			for id, val := range m {
				if _, ok := s.cats.Upgrade(id); !ok {
					s.log.Printf("load: dropped unknown upgrade %s", id)
					continue
				}
				b, _ := val.(bool)
				st.Upgrades[id] = b
			}
		case "progression":
			var p Progression
			if err := remarshal(v, &p); err != nil {
				s.log.Printf("load: progression: %v", err)
				continue
			}
			if p.Achievements == nil {
				p.Achievements = []string{}
			}
			st.Progression = p
		case "settings":
			var set Settings
			if err := remarshal(v, &set); err != nil {
				s.log.Printf("load: settings: %v", err)
				continue
			}
			st.Settings = set
		case "probability_overrides":
			var o map[string]float64
			if err := remarshal(v, &o); err != nil {
				s.log.Printf("load: probability overrides: %v", err)
				continue
			}
			if o == nil {
				o = map[string]float64{}
			}
			st.ProbabilityOverrides = o
		case "saved_at":
			st.SavedAt, _ = v.(string)
		}
	}
	return st
}

func remarshal(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// toFloat maps non-numeric values to NaN so validation repairs them.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case int:
		return float64(n)
	default:
		return math.NaN()
	}
}
