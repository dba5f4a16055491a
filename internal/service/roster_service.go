package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"kidcheck/internal/config"
	"kidcheck/internal/database"
	"kidcheck/internal/models"
	"kidcheck/internal/repository"
	"kidcheck/internal/security"
	"kidcheck/internal/validation"
)

// RosterService maintains children, guardians, authorized pickups and
// classrooms
type RosterService struct {
	db         *database.DB
	classrooms *repository.ClassroomRepository
	children   *repository.ChildRepository
	guardians  *repository.GuardianRepository
	pickups    *repository.AuthorizedPickupRepository
	pins       *security.PINHasher
	logger     *zap.Logger
}

// NewRosterService creates a new roster service
func NewRosterService(d Dependencies) *RosterService {
	d = d.withDefaults()
	return &RosterService{
		db:         d.DB,
		classrooms: repository.NewClassroomRepository(d.DB),
		children:   repository.NewChildRepository(d.DB),
		guardians:  repository.NewGuardianRepository(d.DB),
		pickups:    repository.NewAuthorizedPickupRepository(d.DB),
		pins:       d.PINs,
		logger:     d.Logger,
	}
}

// SyncClassrooms makes the classrooms table match configuration. Classrooms
// no longer configured are deactivated, never deleted.
func (s *RosterService) SyncClassrooms(ctx context.Context, cfg []config.ClassroomConfig) ([]models.Classroom, error) {
	var synced []models.Classroom
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		synced = nil
		classrooms := s.classrooms.WithTx(tx)

		configured := make(map[string]bool, len(cfg))
		for _, c := range cfg {
			room, err := classrooms.Upsert(ctx, models.Classroom{
				Name:                  c.Name,
				MaxCapacity:           c.MaxCapacity,
				RatioChildrenPerAdult: c.RatioChildrenPerAdult,
				MinAgeMonths:          c.MinAgeMonths,
				MaxAgeMonths:          c.MaxAgeMonths,
				IsActive:              c.IsActive(),
			})
			if err != nil {
				return err
			}
			configured[c.Name] = true
			synced = append(synced, *room)
		}

		existing, err := classrooms.List(ctx)
		if err != nil {
			return err
		}
		for _, c := range existing {
			if !configured[c.Name] && c.IsActive {
				if err := classrooms.SetActive(ctx, c.ID, false); err != nil {
					return err
				}
				s.logger.Info("classroom deactivated, no longer configured", zap.String("classroom", c.Name))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("classrooms synchronised", zap.Int("count", len(synced)))
	return synced, nil
}

// ListClassrooms returns every classroom
func (s *RosterService) ListClassrooms(ctx context.Context) ([]models.Classroom, error) {
	return s.classrooms.List(ctx)
}

// ChildInput is the editable part of a child's profile
type ChildInput struct {
	Name             string     `json:"name"`
	BirthDate        *time.Time `json:"birth_date,omitempty"`
	Classroom        string     `json:"classroom"`
	Allergies        string     `json:"allergies"`
	MedicalNotes     string     `json:"medical_notes"`
	EmergencyContact string     `json:"emergency_contact"`
	EmergencyPhone   string     `json:"emergency_phone"`
}

func (s *RosterService) childFromInput(ctx context.Context, in ChildInput) (*models.Child, error) {
	if err := validation.ValidateName("name", in.Name); err != nil {
		return nil, err
	}
	room, err := s.classrooms.GetByName(ctx, in.Classroom)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrClassroomNotFound
	}
	return &models.Child{
		Name:             strings.TrimSpace(in.Name),
		BirthDate:        in.BirthDate,
		ClassroomID:      room.ID,
		Classroom:        room.Name,
		Allergies:        strings.TrimSpace(in.Allergies),
		MedicalNotes:     strings.TrimSpace(in.MedicalNotes),
		EmergencyContact: strings.TrimSpace(in.EmergencyContact),
		EmergencyPhone:   strings.TrimSpace(in.EmergencyPhone),
	}, nil
}

// CreateChild registers a child in a classroom
func (s *RosterService) CreateChild(ctx context.Context, in ChildInput) (*models.Child, error) {
	child, err := s.childFromInput(ctx, in)
	if err != nil {
		return nil, err
	}
	created, err := s.children.Create(ctx, *child)
	if err != nil {
		return nil, err
	}
	s.logger.Info("child registered", zap.Int64("child_id", created.ID), zap.String("classroom", created.Classroom))
	return created, nil
}

// UpdateChild replaces a child's profile. Open custody records keep the
// classroom they were checked into.
func (s *RosterService) UpdateChild(ctx context.Context, id int64, in ChildInput) (*models.Child, error) {
	existing, err := s.children.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrChildNotFound
	}
	child, err := s.childFromInput(ctx, in)
	if err != nil {
		return nil, err
	}
	child.ID = id
	if err := s.children.Update(ctx, *child); err != nil {
		return nil, err
	}
	return s.children.GetByID(ctx, id)
}

// GetChild returns a child by id
func (s *RosterService) GetChild(ctx context.Context, id int64) (*models.Child, error) {
	child, err := s.children.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, ErrChildNotFound
	}
	return child, nil
}

// ListChildren returns the children of a classroom, or all children when
// classroom is empty
func (s *RosterService) ListChildren(ctx context.Context, classroom string) ([]models.Child, error) {
	if classroom == "" {
		return s.children.List(ctx, 0)
	}
	room, err := s.classrooms.GetByName(ctx, classroom)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrClassroomNotFound
	}
	return s.children.List(ctx, room.ID)
}

// GuardianInput describes a new guardian. PIN is optional.
type GuardianInput struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	PIN   string `json:"pin"`
}

// CreateGuardian registers a guardian
func (s *RosterService) CreateGuardian(ctx context.Context, in GuardianInput) (*models.Guardian, error) {
	if err := validation.ValidateName("name", in.Name); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Email) != "" {
		if err := validation.ValidateEmail(in.Email); err != nil {
			return nil, err
		}
	}

	var hash string
	if in.PIN != "" {
		if err := validation.ValidatePIN(in.PIN); err != nil {
			return nil, err
		}
		var err error
		if hash, err = s.pins.Hash(in.PIN); err != nil {
			return nil, err
		}
	}

	return s.guardians.Create(ctx, models.Guardian{
		Name:    strings.TrimSpace(in.Name),
		Phone:   strings.TrimSpace(in.Phone),
		Email:   strings.TrimSpace(in.Email),
		PINHash: hash,
	})
}

// GetGuardian returns a guardian by id
func (s *RosterService) GetGuardian(ctx context.Context, id int64) (*models.Guardian, error) {
	g, err := s.guardians.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGuardianNotFound
	}
	return g, nil
}

// SetGuardianPIN sets a guardian's pickup PIN. An empty PIN removes the
// challenge.
func (s *RosterService) SetGuardianPIN(ctx context.Context, guardianID int64, pin string) error {
	if _, err := s.GetGuardian(ctx, guardianID); err != nil {
		return err
	}
	if pin == "" {
		return s.guardians.SetPINHash(ctx, guardianID, "")
	}
	if err := validation.ValidatePIN(pin); err != nil {
		return err
	}
	hash, err := s.pins.Hash(pin)
	if err != nil {
		return err
	}
	return s.guardians.SetPINHash(ctx, guardianID, hash)
}

// LinkInput describes the relationship between a guardian and a child
type LinkInput struct {
	ChildID      int64  `json:"child_id"`
	GuardianID   int64  `json:"guardian_id"`
	Relationship string `json:"relationship"`
	IsPrimary    bool   `json:"is_primary"`
	CanPickup    bool   `json:"can_pickup"`
}

// LinkGuardian attaches a guardian to a child
func (s *RosterService) LinkGuardian(ctx context.Context, in LinkInput) (*models.ChildGuardian, error) {
	if _, err := s.GetChild(ctx, in.ChildID); err != nil {
		return nil, err
	}
	if _, err := s.GetGuardian(ctx, in.GuardianID); err != nil {
		return nil, err
	}
	existing, err := s.guardians.GetLink(ctx, in.ChildID, in.GuardianID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyLinked
	}
	return s.guardians.Link(ctx, models.ChildGuardian{
		ChildID:      in.ChildID,
		GuardianID:   in.GuardianID,
		Relationship: strings.TrimSpace(in.Relationship),
		IsPrimary:    in.IsPrimary,
		CanPickup:    in.CanPickup,
	})
}

// UpdateLink changes the flags of an existing link
func (s *RosterService) UpdateLink(ctx context.Context, in LinkInput) (*models.ChildGuardian, error) {
	err := s.guardians.UpdateLink(ctx, models.ChildGuardian{
		ChildID:      in.ChildID,
		GuardianID:   in.GuardianID,
		Relationship: strings.TrimSpace(in.Relationship),
		IsPrimary:    in.IsPrimary,
		CanPickup:    in.CanPickup,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGuardianNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.guardians.GetLink(ctx, in.ChildID, in.GuardianID)
}

// ListGuardians returns the guardians linked to a child, primary first
func (s *RosterService) ListGuardians(ctx context.Context, childID int64) ([]models.LinkedGuardian, error) {
	if _, err := s.GetChild(ctx, childID); err != nil {
		return nil, err
	}
	return s.guardians.ListForChild(ctx, childID, false)
}

// AuthorizedPickupInput describes a standing pickup permission
type AuthorizedPickupInput struct {
	ChildID      int64  `json:"child_id"`
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	PIN          string `json:"pin"`
}

// AddAuthorizedPickup registers a non-guardian who may collect the child
func (s *RosterService) AddAuthorizedPickup(ctx context.Context, in AuthorizedPickupInput) (*models.AuthorizedPickup, error) {
	if _, err := s.GetChild(ctx, in.ChildID); err != nil {
		return nil, err
	}
	if err := validation.ValidateName("name", in.Name); err != nil {
		return nil, err
	}
	if err := validation.ValidatePIN(in.PIN); err != nil {
		return nil, err
	}
	hash, err := s.pins.Hash(in.PIN)
	if err != nil {
		return nil, err
	}
	return s.pickups.Create(ctx, models.AuthorizedPickup{
		ChildID:      in.ChildID,
		Name:         strings.TrimSpace(in.Name),
		Relationship: strings.TrimSpace(in.Relationship),
		PINHash:      hash,
	})
}

// DeactivateAuthorizedPickup withdraws a standing permission
func (s *RosterService) DeactivateAuthorizedPickup(ctx context.Context, id int64) error {
	ok, err := s.pickups.Deactivate(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAuthorizedPickupNotFound
	}
	return nil
}

// ListAuthorizedPickups returns a child's authorized pickups
func (s *RosterService) ListAuthorizedPickups(ctx context.Context, childID int64, activeOnly bool) ([]models.AuthorizedPickup, error) {
	return s.pickups.ListForChild(ctx, childID, activeOnly)
}
