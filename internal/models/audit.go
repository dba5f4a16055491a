package models

import "time"

// Audit event types
const (
	AuditCheckIn                = "checkin"
	AuditCheckOut               = "checkout"
	AuditAuthorizationUsed      = "authorization_used"
	AuditPickupDenied           = "pickup_denied"
	AuditLeaderOverride         = "leader_override"
	AuditAuthorizationCreated   = "authorization_created"
	AuditAuthorizationApproved  = "authorization_approved"
	AuditAuthorizationCancelled = "authorization_cancelled"
	AuditAuthorizationExpired   = "authorization_expired"
)

// AuditEvent is an append-only fact about a custody transfer or grant
type AuditEvent struct {
	ID              int64             `json:"id"`
	EventType       string            `json:"event_type"`
	ChildID         int64             `json:"child_id"`
	CustodyRecordID *int64            `json:"custody_record_id,omitempty"`
	ActorID         string            `json:"actor_id"`
	OccurredAt      time.Time         `json:"occurred_at"`
	Details         map[string]string `json:"details,omitempty"`
}
