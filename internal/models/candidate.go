package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Provenance says where a pickup candidate's permission comes from.
// The set of implementations is closed: GuardianSource, AuthorizedSource
// and TemporarySource.
type Provenance interface {
	Method() PickupMethod
	Kind() string
	isProvenance()
}

// GuardianSource marks a candidate who is a linked guardian
type GuardianSource struct {
	GuardianID int64 `json:"guardian_id"`
	IsPrimary  bool  `json:"is_primary"`
}

func (GuardianSource) Method() PickupMethod { return PickupGuardian }
func (GuardianSource) Kind() string         { return "guardian" }
func (GuardianSource) isProvenance()        {}

// AuthorizedSource marks a standing authorized pickup
type AuthorizedSource struct {
	AuthorizedPickupID int64 `json:"authorized_pickup_id"`
}

func (AuthorizedSource) Method() PickupMethod { return PickupAuthorized }
func (AuthorizedSource) Kind() string         { return "authorized" }
func (AuthorizedSource) isProvenance()        {}

// TemporarySource marks a pickup grant
type TemporarySource struct {
	GrantID int64             `json:"grant_id"`
	Type    AuthorizationType `json:"authorization_type"`
}

func (TemporarySource) Method() PickupMethod { return PickupTemporaryAuthorization }
func (TemporarySource) Kind() string         { return "temporary" }
func (TemporarySource) isProvenance()        {}

// Candidate is a person who may be selected to collect a child
type Candidate struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Relationship string     `json:"relationship,omitempty"`
	RequiresPIN  bool       `json:"requires_pin"`
	PINHash      string     `json:"-"`
	Source       Provenance `json:"-"`
}

// CandidateID builds the stable identifier of a candidate
func CandidateID(kind string, id int64) string {
	return kind + ":" + strconv.FormatInt(id, 10)
}

// ParseCandidateID splits a candidate identifier into its kind and numeric id
func ParseCandidateID(s string) (string, int64, error) {
	kind, raw, ok := strings.Cut(s, ":")
	if !ok {
		return "", 0, fmt.Errorf("malformed candidate id %q", s)
	}
	switch kind {
	case "guardian", "authorized", "temporary":
	default:
		return "", 0, fmt.Errorf("unknown candidate kind %q", kind)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("malformed candidate id %q", s)
	}
	return kind, id, nil
}

// GrantID returns the grant behind a temporary candidate
func (c Candidate) GrantID() (int64, bool) {
	if src, ok := c.Source.(TemporarySource); ok {
		return src.GrantID, true
	}
	return 0, false
}

// Method returns the pickup method used when this candidate collects the child
func (c Candidate) Method() PickupMethod {
	if c.Source == nil {
		return ""
	}
	return c.Source.Method()
}
