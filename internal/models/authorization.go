package models

import "time"

// AuthorizationType is the validity shape of a pickup grant
type AuthorizationType string

const (
	AuthorizationOneTime   AuthorizationType = "one_time"
	AuthorizationDateRange AuthorizationType = "date_range"
	AuthorizationPermanent AuthorizationType = "permanent"
)

// Valid reports whether t is a known authorization type
func (t AuthorizationType) Valid() bool {
	switch t {
	case AuthorizationOneTime, AuthorizationDateRange, AuthorizationPermanent:
		return true
	}
	return false
}

// GrantStatus is the lifecycle state of a pickup grant
type GrantStatus string

const (
	GrantPending   GrantStatus = "pending"
	GrantApproved  GrantStatus = "approved"
	GrantActive    GrantStatus = "active"
	GrantUsed      GrantStatus = "used"
	GrantExpired   GrantStatus = "expired"
	GrantCancelled GrantStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed
func (s GrantStatus) IsTerminal() bool {
	return s == GrantUsed || s == GrantExpired || s == GrantCancelled
}

// PickupAuthorization is a temporary grant created by a guardian
type PickupAuthorization struct {
	ID                     int64             `json:"id"`
	ChildID                int64             `json:"child_id"`
	CreatedByGuardianID    int64             `json:"created_by_guardian_id"`
	AuthorizedName         string            `json:"authorized_name"`
	Relationship           string            `json:"relationship,omitempty"`
	Document               string            `json:"document,omitempty"`
	Type                   AuthorizationType `json:"authorization_type"`
	ValidFrom              time.Time         `json:"valid_from"`
	ValidUntil             *time.Time        `json:"valid_until,omitempty"`
	PINHash                string            `json:"-"`
	Status                 GrantStatus       `json:"status"`
	LeaderApprovalRequired bool              `json:"leader_approval_required"`
	ApprovedBy             string            `json:"approved_by,omitempty"`
	ApprovedAt             *time.Time        `json:"approved_at,omitempty"`
	CancelledBy            string            `json:"cancelled_by,omitempty"`
	CancelledAt            *time.Time        `json:"cancelled_at,omitempty"`
	UsedAt                 *time.Time        `json:"used_at,omitempty"`
	UsedByCustodyRecordID  *int64            `json:"used_by_custody_record_id,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
}

// IsUsableAt reports whether the grant may authorize a pickup at t
func (a PickupAuthorization) IsUsableAt(t time.Time) bool {
	if a.Status != GrantApproved && a.Status != GrantActive {
		return false
	}
	if t.Before(a.ValidFrom) {
		return false
	}
	if a.ValidUntil != nil && t.After(*a.ValidUntil) {
		return false
	}
	return true
}

// IsExpiredAt reports whether the validity window closed before t
func (a PickupAuthorization) IsExpiredAt(t time.Time) bool {
	return a.ValidUntil != nil && t.After(*a.ValidUntil)
}

// SingleUse reports whether a successful pickup consumes the grant
func (a PickupAuthorization) SingleUse() bool {
	return a.Type == AuthorizationOneTime
}
