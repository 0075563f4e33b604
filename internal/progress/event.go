// Package progress fans out progress events of long-running tenant jobs
// (bulk imports, batch invoicing) to the clients watching them.
package progress

import (
	"encoding/json"
	"time"

	id "campusgate/pkg/domain"
	dErrors "campusgate/pkg/domain-errors"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no event can follow.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Event is one progress report for an operation.
type Event struct {
	OperationID id.OperationID
	TenantID    id.TenantID
	Percent     int
	Status      Status
	Message     string
	At          time.Time
}

func (e Event) Validate() error {
	if e.OperationID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "operation id is required")
	}
	if e.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if e.Percent < 0 || e.Percent > 100 {
		return dErrors.New(dErrors.CodeInvalidInput, "percent must be between 0 and 100")
	}
	if !e.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown progress status")
	}
	return nil
}

type wireEvent struct {
	OperationID string    `json:"operation_id"`
	TenantID    string    `json:"tenant_id"`
	Percent     int       `json:"percent"`
	Status      Status    `json:"status"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		OperationID: e.OperationID.String(),
		TenantID:    e.TenantID.String(),
		Percent:     e.Percent,
		Status:      e.Status,
		Message:     e.Message,
		At:          e.At,
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	opID, err := id.ParseOperationID(w.OperationID)
	if err != nil {
		return err
	}
	tenantID, err := id.ParseTenantID(w.TenantID)
	if err != nil {
		return err
	}
	*e = Event{
		OperationID: opID,
		TenantID:    tenantID,
		Percent:     w.Percent,
		Status:      w.Status,
		Message:     w.Message,
		At:          w.At,
	}
	return nil
}
