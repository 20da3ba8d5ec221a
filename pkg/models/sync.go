package models

import "time"

// PassState is the orchestrator state machine position.
type PassState string

const (
	PassIdle      PassState = "idle"
	PassImporting PassState = "importing"
	PassExporting PassState = "exporting"
	PassFailed    PassState = "failed"
)

// Import statuses per reconciled record.
const (
	StatusCreated   = "created"
	StatusUpdated   = "updated"
	StatusUnchanged = "unchanged"
	StatusRejected  = "rejected"
)

// ImportResult summarizes one import phase.
type ImportResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Rejected  int `json:"rejected"`
	Total     int `json:"total"`
}

// Changed returns how many records were written locally.
func (r ImportResult) Changed() int {
	return r.Created + r.Updated
}

// PassStatus is the externally visible state of the engine, served by the
// status API and cached between passes.
type PassStatus struct {
	State        PassState    `json:"state"`
	LastStarted  *time.Time   `json:"last_started,omitempty"`
	LastFinished *time.Time   `json:"last_finished,omitempty"`
	LastError    string       `json:"last_error,omitempty"`
	Imported     ImportResult `json:"imported"`
	Exported     int          `json:"exported"`
}
