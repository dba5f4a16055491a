package models

import "time"

// Guardian is a parent or legal guardian of one or more children
type Guardian struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	PINHash   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPIN reports whether pickups by this guardian are PIN-challenged
func (g Guardian) HasPIN() bool {
	return g.PINHash != ""
}

// ChildGuardian links a guardian to a child
type ChildGuardian struct {
	ID           int64     `json:"id"`
	ChildID      int64     `json:"child_id"`
	GuardianID   int64     `json:"guardian_id"`
	Relationship string    `json:"relationship,omitempty"`
	IsPrimary    bool      `json:"is_primary"`
	CanPickup    bool      `json:"can_pickup"`
	CreatedAt    time.Time `json:"created_at"`
}

// LinkedGuardian combines a guardian with the link to a specific child
type LinkedGuardian struct {
	Guardian Guardian      `json:"guardian"`
	Link     ChildGuardian `json:"link"`
}

// AuthorizedPickup is a standing, PIN-protected permission for a non-guardian
type AuthorizedPickup struct {
	ID           int64     `json:"id"`
	ChildID      int64     `json:"child_id"`
	Name         string    `json:"name"`
	Relationship string    `json:"relationship,omitempty"`
	PINHash      string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
