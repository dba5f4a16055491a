package models

import "time"

// PickupMethod records how custody was released
type PickupMethod string

const (
	PickupGuardian               PickupMethod = "Guardian"
	PickupAuthorized             PickupMethod = "Authorized"
	PickupTemporaryAuthorization PickupMethod = "TemporaryAuthorization"
	PickupLeaderOverride         PickupMethod = "LeaderOverride"
	PickupQR                     PickupMethod = "QR"
)

// CustodyRecord is one check-in/check-out cycle of a child
type CustodyRecord struct {
	ID               int64        `json:"id"`
	ChildID          int64        `json:"child_id"`
	EventDate        string       `json:"event_date"`
	EventName        string       `json:"event_name"`
	Classroom        string       `json:"classroom"`
	CustodyToken     string       `json:"-"`
	LabelNumber      int          `json:"label_number"`
	CheckedInAt      time.Time    `json:"checked_in_at"`
	CheckedInBy      string       `json:"checked_in_by"`
	CheckedOutAt     *time.Time   `json:"checked_out_at,omitempty"`
	CheckedOutBy     string       `json:"checked_out_by,omitempty"`
	PickupPersonName string       `json:"pickup_person_name,omitempty"`
	PickupMethod     PickupMethod `json:"pickup_method,omitempty"`
}

// IsOpen reports whether the child is still in custody
func (r CustodyRecord) IsOpen() bool {
	return r.CheckedOutAt == nil
}

// Departure carries the fields written when a record is closed
type Departure struct {
	At               time.Time
	By               string
	PickupPersonName string
	Method           PickupMethod
}

// LeaderOverride documents an emergency release
type LeaderOverride struct {
	ID                   int64     `json:"id"`
	CustodyRecordID      int64     `json:"custody_record_id"`
	LeaderActorID        string    `json:"leader_actor_id"`
	Reason               string    `json:"reason"`
	PickupPersonName     string    `json:"pickup_person_name"`
	PickupPersonDocument string    `json:"pickup_person_document,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// PickupAttempt is one checkout try against a custody record
type PickupAttempt struct {
	ID              int64     `json:"id"`
	CustodyRecordID int64     `json:"custody_record_id"`
	CandidateID     string    `json:"candidate_id"`
	ActorID         string    `json:"actor_id"`
	AttemptedAt     time.Time `json:"attempted_at"`
	Succeeded       bool      `json:"succeeded"`
	FailureReason   string    `json:"failure_reason,omitempty"`
}
