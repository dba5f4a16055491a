package models

// Roles asserted by the session collaborator
const (
	RoleStaff  = "staff"
	RoleLeader = "leader"
	RoleAdmin  = "admin"
	RoleKiosk  = "kiosk"
)

// Actor is the authenticated staff member or device performing an operation
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the actor holds role
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the actor holds at least one of roles
func (a Actor) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if a.HasRole(role) {
			return true
		}
	}
	return false
}
