package models

import "time"

// Child is a person in care, assigned to exactly one classroom
type Child struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	BirthDate        *time.Time `json:"birth_date,omitempty"`
	ClassroomID      int64      `json:"classroom_id"`
	Classroom        string     `json:"classroom"`
	Allergies        string     `json:"allergies,omitempty"`
	MedicalNotes     string     `json:"medical_notes,omitempty"`
	EmergencyContact string     `json:"emergency_contact,omitempty"`
	EmergencyPhone   string     `json:"emergency_phone,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// AgeInMonths returns the child's age at t, or -1 when no birth date is known
func (c Child) AgeInMonths(t time.Time) int {
	if c.BirthDate == nil {
		return -1
	}
	b := c.BirthDate.In(t.Location())
	months := (t.Year()-b.Year())*12 + int(t.Month()) - int(b.Month())
	if t.Day() < b.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
