package service

import (
	"context"

	"kidcheck/internal/database"
	"kidcheck/internal/models"
	"kidcheck/internal/repository"
)

// CapacityLedger reports classroom occupancy. Occupancy is always counted
// from open custody records, never kept as a separate counter.
type CapacityLedger struct {
	classrooms *repository.ClassroomRepository
	custody    *repository.CustodyRepository
}

// NewCapacityLedger creates a ledger reading through q
func NewCapacityLedger(q database.DBTX) *CapacityLedger {
	return &CapacityLedger{
		classrooms: repository.NewClassroomRepository(q),
		custody:    repository.NewCustodyRepository(q),
	}
}

// WithTx returns a ledger reading inside the transaction q
func (l *CapacityLedger) WithTx(q database.DBTX) *CapacityLedger {
	return &CapacityLedger{
		classrooms: l.classrooms.WithTx(q),
		custody:    l.custody.WithTx(q),
	}
}

// Occupancy returns the headcount of a classroom on an event date
func (l *CapacityLedger) Occupancy(ctx context.Context, classroom, date string) (*models.Occupancy, error) {
	c, err := l.classrooms.GetByName(ctx, classroom)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrClassroomNotFound
	}

	current, err := l.custody.CountOpen(ctx, c.Name, date)
	if err != nil {
		return nil, err
	}
	return occupancyOf(c, date, current), nil
}

// HasRoom reports whether the classroom is active and below its maximum
func (l *CapacityLedger) HasRoom(ctx context.Context, classroom, date string) (bool, error) {
	occ, err := l.Occupancy(ctx, classroom, date)
	if err != nil {
		return false, err
	}
	return occ.HasRoom(), nil
}

// List returns the occupancy of every classroom on an event date
func (l *CapacityLedger) List(ctx context.Context, date string) ([]models.Occupancy, error) {
	classrooms, err := l.classrooms.List(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := l.custody.CountOpenByClassroom(ctx, date)
	if err != nil {
		return nil, err
	}

	result := make([]models.Occupancy, 0, len(classrooms))
	for i := range classrooms {
		result = append(result, *occupancyOf(&classrooms[i], date, counts[classrooms[i].Name]))
	}
	return result, nil
}

func occupancyOf(c *models.Classroom, date string, current int) *models.Occupancy {
	return &models.Occupancy{
		Classroom:      c.Name,
		Date:           date,
		Current:        current,
		Max:            c.MaxCapacity,
		Ratio:          c.RatioChildrenPerAdult,
		AdultsRequired: models.AdultsFor(current, c.RatioChildrenPerAdult),
		IsActive:       c.IsActive,
	}
}
