package models

import "time"

// Classroom is a supervised group with a hard capacity limit
type Classroom struct {
	ID                    int64     `json:"id"`
	Name                  string    `json:"name"`
	MaxCapacity           int       `json:"max_capacity"`
	RatioChildrenPerAdult int       `json:"ratio_children_per_adult"`
	MinAgeMonths          int       `json:"min_age_months"`
	MaxAgeMonths          int       `json:"max_age_months"`
	IsActive              bool      `json:"is_active"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Occupancy is the live headcount of a classroom on one event date
type Occupancy struct {
	Classroom      string `json:"classroom"`
	Date           string `json:"date"`
	Current        int    `json:"current"`
	Max            int    `json:"max"`
	Ratio          int    `json:"ratio_children_per_adult"`
	AdultsRequired int    `json:"adults_required"`
	IsActive       bool   `json:"is_active"`
}

// HasRoom reports whether another child may be admitted
func (o Occupancy) HasRoom() bool {
	return o.IsActive && o.Current < o.Max
}

// Available returns the number of free places, never negative
func (o Occupancy) Available() int {
	if o.Current >= o.Max {
		return 0
	}
	return o.Max - o.Current
}

// AdultsFor returns how many supervising adults a headcount needs.
// A ratio of zero means the classroom has no ratio rule.
func AdultsFor(current, ratio int) int {
	if ratio <= 0 || current <= 0 {
		return 0
	}
	return (current + ratio - 1) / ratio
}
