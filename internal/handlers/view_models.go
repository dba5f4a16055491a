package handlers

import (
	"kidcheck/internal/models"
)

// CandidateView is the public form of a pickup candidate. PIN hashes never
// leave the server.
type CandidateView struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Relationship string              `json:"relationship,omitempty"`
	RequiresPIN  bool                `json:"requires_pin"`
	Kind         string              `json:"kind"`
	Method       models.PickupMethod `json:"method"`
}

func candidateViews(cs []models.Candidate) []CandidateView {
	views := make([]CandidateView, 0, len(cs))
	for _, c := range cs {
		v := CandidateView{
			ID:           c.ID,
			Name:         c.Name,
			Relationship: c.Relationship,
			RequiresPIN:  c.RequiresPIN,
			Method:       c.Method(),
		}
		if c.Source != nil {
			v.Kind = c.Source.Kind()
		}
		views = append(views, v)
	}
	return views
}

// CustodyView is a custody record plus the QR payload printed on its label
type CustodyView struct {
	*models.CustodyRecord
	QRPayload string `json:"qr_payload,omitempty"`
}

// LookupView answers a scan or label lookup
type LookupView struct {
	Record     *models.CustodyRecord `json:"record"`
	Candidates []CandidateView       `json:"candidates"`
}
