package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

// Suggestion lifecycle states.
const (
	SuggestionStatusPending     = "pending"
	SuggestionStatusApproved    = "approved"
	SuggestionStatusRejected    = "rejected"
	SuggestionStatusApplied     = "applied"
	SuggestionStatusFailedApply = "failed_apply"
)

// Edit actions.
const (
	ActionAdd    = "ADD"
	ActionDelete = "DELETE"
)

// PreviousValues records, per post, what a field held before the first
// write an apply run made to it. Keyed by external post id so undo
// survives internal re-import.
type PreviousValues map[string][]string

func (v PreviousValues) Value() (driver.Value, error) {
	if v == nil {
		return json.Marshal(PreviousValues{})
	}
	return json.Marshal(v)
}

func (v *PreviousValues) Scan(value interface{}) error {
	if value == nil {
		*v = PreviousValues{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, v)
}

// EditSuggestion is a proposed bulk edit moving through the
// pending -> approved -> applied lifecycle.
type EditSuggestion struct {
	ID             int64          `gorm:"primaryKey" json:"id"`
	ConditionField string         `gorm:"not null;index" json:"condition_field"`
	Pattern        string         `gorm:"not null" json:"pattern"`
	Action         string         `gorm:"not null" json:"action"`
	ActionField    string         `gorm:"not null" json:"action_field"`
	ActionValue    *string        `json:"action_value"`
	Status         string         `gorm:"default:pending;index" json:"status"`
	SuggesterID    *int64         `gorm:"index" json:"suggester_id,omitempty"`
	Suggester      *User          `gorm:"foreignKey:SuggesterID" json:"suggester,omitempty"`
	ApproverID     *int64         `json:"approver_id,omitempty"`
	Approver       *User          `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	PreviousValues PreviousValues `gorm:"type:jsonb" json:"-"`
	ApplyRunID     string         `json:"apply_run_id,omitempty"`
	ApplyReport    datatypes.JSON `gorm:"type:jsonb" json:"apply_report,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	AppliedAt      *time.Time     `json:"applied_at,omitempty"`
}

func (EditSuggestion) TableName() string {
	return "edit_suggestions"
}

// Resolved reports whether the suggestion has left the pending state.
func (s *EditSuggestion) Resolved() bool {
	return s.Status != SuggestionStatusPending
}
