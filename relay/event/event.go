// Package event defines the records the relay emits while it runs. Sinks,
// the journal, the status API and the MCP tools all speak these types.
package event

import "encoding/json"

// Kind is what happened.
type Kind string

const (
	KindLoopStarted   Kind = "loop_started"
	KindLoopStopped   Kind = "loop_stopped"
	KindCodeChanged   Kind = "code_changed"   // capture stored a new code, counter reset
	KindAttempt       Kind = "attempt"        // submit ran one attempt and counted it
	KindAttemptVoided Kind = "attempt_voided" // attempt ran but was not counted
	KindExhausted     Kind = "exhausted"      // counter reached the per-code limit
	KindManualCode    Kind = "manual_code"
	KindManualReset   Kind = "manual_reset"
)

// Role names the loop that produced an event.
type Role string

const (
	RoleCapture  Role = "capture"
	RoleSubmit   Role = "submit"
	RoleOperator Role = "operator"
)

// Controls records which page controls a submit attempt located.
type Controls struct {
	EnterButton  bool `json:"enter_button"`
	Input        bool `json:"input"`
	SubmitButton bool `json:"submit_button"`
}

// All reports whether every control was found.
func (c Controls) All() bool {
	return c.EnterButton && c.Input && c.SubmitButton
}

// Event is one journal entry.
type Event struct {
	ID        string    `json:"id"` // UUIDv7
	Kind      Kind      `json:"kind"`
	Role      Role      `json:"role"`
	RunID     string    `json:"run_id,omitempty"`
	PageURL   string    `json:"page_url,omitempty"`
	Code      string    `json:"code,omitempty"`
	Attempts  int       `json:"attempts"`
	MaxTries  int       `json:"max_tries,omitempty"`
	Controls  *Controls `json:"controls,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp int64     `json:"timestamp"` // epoch milliseconds
}

// Marshal serialises an Event to JSON.
func Marshal(e *Event) ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserialises an Event from JSON.
func Unmarshal(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
