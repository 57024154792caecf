package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
)

type Classification string

const (
	ClassRegular        Classification = "regular"
	ClassUrgent         Classification = "urgent"
	ClassDirectedAction Classification = "directed_action"
)

var validClassifications = map[Classification]bool{
	ClassRegular: true, ClassUrgent: true, ClassDirectedAction: true,
}

func (c Classification) Valid() bool {
	return validClassifications[c]
}

// Status of a queue item. Cancelling an item is recorded as completed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSeen      Status = "seen"
	StatusCompleted Status = "completed"
)

// Item is one patient hand-off. Sender, recipient and classification never
// change after creation.
type Item struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	PatientCode    string         `db:"patient_code" json:"patient_code"`
	PatientName    string         `db:"patient_name" json:"patient_name"`
	FromUserID     uuid.UUID      `db:"from_user_id" json:"from_user_id"`
	FromRole       staff.Role     `db:"from_role" json:"from_role"`
	ToRoomID       *int           `db:"to_room_id" json:"to_room_id,omitempty"`
	ToUserID       *uuid.UUID     `db:"to_user_id" json:"to_user_id,omitempty"`
	ToRole         *staff.Role    `db:"to_role" json:"to_role,omitempty"`
	Classification Classification `db:"classification" json:"classification"`
	ActionCode     *string        `db:"action_code" json:"action_code,omitempty"`
	ActionLabel    *string        `db:"action_label" json:"action_label,omitempty"`
	IsChecked      bool           `db:"is_checked" json:"is_checked"`
	Status         Status         `db:"status" json:"status"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	SeenAt         *time.Time     `db:"seen_at" json:"seen_at,omitempty"`
	CompletedAt    *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

func (i *Item) Validate() error {
	if i.PatientCode == "" {
		return fault.Invalidf("patient_code is required")
	}
	if i.PatientName == "" {
		return fault.Invalidf("patient_name is required")
	}
	if i.FromUserID == uuid.Nil {
		return fault.Invalidf("from user_id is required")
	}
	if !i.FromRole.Valid() {
		return fault.Invalidf("invalid from role: %q", i.FromRole)
	}
	if i.ToRoomID == nil && i.ToUserID == nil && i.ToRole == nil {
		return fault.Invalidf("a recipient room, user or role is required")
	}
	if i.ToRole != nil && !i.ToRole.Valid() {
		return fault.Invalidf("invalid to role: %q", *i.ToRole)
	}
	if !i.Classification.Valid() {
		return fault.Invalidf("invalid classification: %q", i.Classification)
	}
	if i.Classification == ClassDirectedAction && (i.ActionLabel == nil || *i.ActionLabel == "") {
		return fault.Invalidf("action_label is required for directed actions")
	}
	return nil
}

func (i *Item) Completed() bool {
	return i.Status == StatusCompleted
}

// Patient identifies the patient being handed off.
type Patient struct {
	Code string `json:"patient_code"`
	Name string `json:"patient_name"`
}
