package state

import (
	"log"
	"math"
)

// Validate repairs NaN, infinite and negative ledger values and negative
// roster counts. It reports whether the state was already clean.
func (s *Store) Validate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return validateState(&s.st, s.log)
}

func validateState(st *GameState, logger *log.Logger) bool {
	clean := true
	for _, id := range sortedKeys(st.Resources) {
		v := st.Resources[id]
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			logger.Printf("validate: corrected resource %s: %v -> 0", id, v)
			st.Resources[id] = 0
			clean = false
		}
	}
	for _, id := range sortedKeys(st.Workers) {
		if n := st.Workers[id]; n < 0 {
			logger.Printf("validate: corrected worker %s: %d -> 0", id, n)
			st.Workers[id] = 0
			clean = false
		}
	}
	for _, id := range sortedKeys(st.ProbabilityOverrides) {
		v := st.ProbabilityOverrides[id]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			logger.Printf("validate: corrected probability override %s: %v -> 0", id, v)
			st.ProbabilityOverrides[id] = 0
			clean = false
		}
	}
	if st.Progression.TotalActions < 0 {
		st.Progression.TotalActions = 0
		clean = false
	}
	if st.Progression.EraProgress < 0 {
		st.Progression.EraProgress = 0
		clean = false
	}
	if p := st.Progression.PlayTimeSeconds; math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		st.Progression.PlayTimeSeconds = 0
		clean = false
	}
	return clean
}
