package protocol

import "encoding/json"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	// Notifications selects pushed events; empty means all.
	Notifications []string `json:"notifications,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	GameID          string          `json:"game_id"`
	Catalogs        CatalogDigests  `json:"catalogs"`
	State           json.RawMessage `json:"state"`
	Intents         []string        `json:"intents"`
}

type CatalogDigests struct {
	Resources  string `json:"resources"`
	Eras       string `json:"eras"`
	Migrations string `json:"migrations"`
	Combined   string `json:"combined"`
}

// Intent names.
const (
	IntentForage     = "forage"
	IntentHunt       = "hunt"
	IntentCook       = "cook"
	IntentPerform    = "perform"
	IntentCraft      = "craft"
	IntentHire       = "hire_worker"
	IntentFire       = "fire_worker"
	IntentBuyUpgrade = "buy_upgrade"
	IntentAdvanceEra = "advance_era"
	IntentSave       = "save_game"
	IntentLoad       = "load_game"
	IntentReset      = "reset_game"
	IntentGetState   = "get_state"
	IntentGateStatus = "gate_status"
)

// Intents lists every intent the gateway accepts.
var Intents = []string{
	IntentForage, IntentHunt, IntentCook, IntentPerform, IntentCraft,
	IntentHire, IntentFire, IntentBuyUpgrade, IntentAdvanceEra,
	IntentSave, IntentLoad, IntentReset, IntentGetState, IntentGateStatus,
}

// INTENT (client -> server)
type IntentMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ID              string `json:"id"`
	Intent          string `json:"intent"`
	// Target is the action, recipe, worker or upgrade id where the intent needs one.
	Target string `json:"target,omitempty"`
}

// OUTCOME (server -> client)
type OutcomeMsg struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Intent  string `json:"intent"`
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// NOTIFY (server -> client)
type NotifyMsg struct {
	Type  string `json:"type"`
	Seq   uint64 `json:"seq"`
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ERROR (server -> client) for messages that are not intents.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
