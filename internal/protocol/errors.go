package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrRateLimit       = "E_RATE_LIMIT"

	// Intent layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrUnknown      = "E_UNKNOWN"
	ErrNoResource   = "E_NO_RESOURCE"
	ErrLocked       = "E_LOCKED"
	ErrRequirements = "E_REQUIREMENTS"
	ErrTerminal     = "E_TERMINAL"
	ErrConflict     = "E_CONFLICT"
	ErrPersistence  = "E_PERSISTENCE"
	ErrInternal     = "E_INTERNAL"

	// ErrFailed marks a probabilistic failure: inputs were spent and nothing
	// was produced. It is an expected outcome, not a fault.
	ErrFailed = "E_FAILED"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrRateLimit:       {},
	ErrBadRequest:      {},
	ErrUnknown:         {},
	ErrNoResource:      {},
	ErrLocked:          {},
	ErrRequirements:    {},
	ErrTerminal:        {},
	ErrConflict:        {},
	ErrPersistence:     {},
	ErrInternal:        {},
	ErrFailed:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
