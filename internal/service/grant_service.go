package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"kidcheck/internal/database"
	"kidcheck/internal/models"
	"kidcheck/internal/repository"
	"kidcheck/internal/security"
	"kidcheck/internal/validation"
)

// GrantService manages temporary pickup authorizations
type GrantService struct {
	db        *database.DB
	children  *repository.ChildRepository
	guardians *repository.GuardianRepository
	grants    *repository.PickupAuthorizationRepository
	pins      *security.PINHasher
	audit     AuditSink
	logger    *zap.Logger
	loc       *time.Location
	roles     []string
}

// NewGrantService creates a new grant service
func NewGrantService(d Dependencies) *GrantService {
	d = d.withDefaults()
	return &GrantService{
		db:        d.DB,
		children:  repository.NewChildRepository(d.DB),
		guardians: repository.NewGuardianRepository(d.DB),
		grants:    repository.NewPickupAuthorizationRepository(d.DB),
		pins:      d.PINs,
		audit:     d.Audit,
		logger:    d.Logger,
		loc:       d.Location,
		roles:     d.OverrideRoles,
	}
}

// CreateGrantRequest is a guardian's request to let someone else collect a child
type CreateGrantRequest struct {
	ChildID                int64
	GuardianID             int64
	AuthorizedName         string
	Relationship           string
	Document               string
	Type                   models.AuthorizationType
	ValidFrom              time.Time
	ValidUntil             *time.Time
	PIN                    string
	LeaderApprovalRequired bool
	Actor                  models.Actor
}

// Create registers a grant. Grants needing leader approval start pending,
// others start active.
func (s *GrantService) Create(ctx context.Context, req CreateGrantRequest, now time.Time) (*models.PickupAuthorization, error) {
	if err := requireActor(req.Actor); err != nil {
		return nil, err
	}
	if err := validation.ValidateName("authorized_name", req.AuthorizedName); err != nil {
		return nil, err
	}
	if !req.Type.Valid() {
		return nil, validation.ValidationError{Field: "authorization_type", Message: "must be one_time, date_range or permanent"}
	}
	if err := validation.ValidatePIN(req.PIN); err != nil {
		return nil, err
	}

	from := req.ValidFrom
	if from.IsZero() {
		from = now
	}
	until := req.ValidUntil
	switch req.Type {
	case models.AuthorizationOneTime:
		if until == nil {
			y, m, d := from.In(s.loc).Date()
			end := time.Date(y, m, d, 23, 59, 59, 0, s.loc)
			until = &end
		}
	case models.AuthorizationDateRange:
		if until == nil {
			return nil, validation.ValidationError{Field: "valid_until", Message: "date range grants need an end"}
		}
	}
	if until != nil {
		if !until.After(from) {
			return nil, validation.ValidationError{Field: "valid_until", Message: "must be after valid_from"}
		}
		if until.Before(now) {
			return nil, validation.ValidationError{Field: "valid_until", Message: "must be in the future"}
		}
	}

	child, err := s.children.GetByID(ctx, req.ChildID)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, ErrChildNotFound
	}
	link, err := s.guardians.GetLink(ctx, req.ChildID, req.GuardianID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrNotAuthorized
	}

	hash, err := s.pins.Hash(req.PIN)
	if err != nil {
		return nil, err
	}

	status := models.GrantActive
	if req.LeaderApprovalRequired {
		status = models.GrantPending
	}
	grant, err := s.grants.Create(ctx, models.PickupAuthorization{
		ChildID:                req.ChildID,
		CreatedByGuardianID:    req.GuardianID,
		AuthorizedName:         strings.TrimSpace(req.AuthorizedName),
		Relationship:           strings.TrimSpace(req.Relationship),
		Document:               strings.TrimSpace(req.Document),
		Type:                   req.Type,
		ValidFrom:              from,
		ValidUntil:             until,
		PINHash:                hash,
		Status:                 status,
		LeaderApprovalRequired: req.LeaderApprovalRequired,
		CreatedAt:              now,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("pickup authorization created",
		zap.Int64("grant_id", grant.ID),
		zap.Int64("child_id", grant.ChildID),
		zap.String("type", string(grant.Type)),
		zap.String("status", string(grant.Status)))
	s.emit(ctx, grant, models.AuditAuthorizationCreated, req.Actor.ID, now, map[string]string{
		"authorized_name": grant.AuthorizedName,
		"type":            string(grant.Type),
		"status":          string(grant.Status),
	})
	return grant, nil
}

// Approve moves a pending grant to approved. Only leaders may approve.
func (s *GrantService) Approve(ctx context.Context, grantID int64, actor models.Actor, now time.Time) (*models.PickupAuthorization, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.HasAnyRole(s.roles...) {
		return nil, ErrOverrideForbidden
	}

	var grant *models.PickupAuthorization
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		grants := s.grants.WithTx(tx)
		g, err := grants.GetByID(ctx, grantID)
		if err != nil {
			return err
		}
		if g == nil {
			return ErrGrantNotFound
		}
		if g.Status.IsTerminal() || g.IsExpiredAt(now) {
			return ErrGrantExpiredOrUsed
		}
		if g.Status != models.GrantPending {
			return ErrInvalidGrantState
		}
		ok, err := grants.Approve(ctx, grantID, actor.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidGrantState
		}
		g.Status = models.GrantApproved
		g.ApprovedBy = actor.ID
		at := now.UTC()
		g.ApprovedAt = &at
		grant = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, grant, models.AuditAuthorizationApproved, actor.ID, now, nil)
	return grant, nil
}

// Cancel withdraws a grant that has not reached a terminal state
func (s *GrantService) Cancel(ctx context.Context, grantID int64, actor models.Actor, now time.Time) (*models.PickupAuthorization, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var grant *models.PickupAuthorization
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		grants := s.grants.WithTx(tx)
		g, err := grants.GetByID(ctx, grantID)
		if err != nil {
			return err
		}
		if g == nil {
			return ErrGrantNotFound
		}
		if g.Status.IsTerminal() {
			return ErrGrantExpiredOrUsed
		}
		ok, err := grants.Cancel(ctx, grantID, actor.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrGrantExpiredOrUsed
		}
		g.Status = models.GrantCancelled
		g.CancelledBy = actor.ID
		at := now.UTC()
		g.CancelledAt = &at
		grant = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, grant, models.AuditAuthorizationCancelled, actor.ID, now, nil)
	return grant, nil
}

// ExpireStale moves every live grant whose window has closed to expired and
// returns how many were swept
func (s *GrantService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	live, err := s.grants.ListByStatus(ctx, models.GrantPending, models.GrantApproved, models.GrantActive)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range live {
		g := &live[i]
		if !g.IsExpiredAt(now) {
			continue
		}
		ok, err := s.grants.Expire(ctx, g.ID)
		if err != nil {
			return expired, err
		}
		if !ok {
			continue
		}
		expired++
		g.Status = models.GrantExpired
		s.emit(ctx, g, models.AuditAuthorizationExpired, "system", now, nil)
	}

	if expired > 0 {
		s.logger.Info("expired pickup authorizations", zap.Int("count", expired))
	}
	return expired, nil
}

// Get returns a grant by id
func (s *GrantService) Get(ctx context.Context, grantID int64) (*models.PickupAuthorization, error) {
	g, err := s.grants.GetByID(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGrantNotFound
	}
	return g, nil
}

// ListForChild returns all grants of a child, newest first
func (s *GrantService) ListForChild(ctx context.Context, childID int64) ([]models.PickupAuthorization, error) {
	return s.grants.ListForChild(ctx, childID)
}

func (s *GrantService) emit(ctx context.Context, g *models.PickupAuthorization, eventType, actorID string, now time.Time, details map[string]string) {
	if details == nil {
		details = map[string]string{}
	}
	details["grant_id"] = strconv.FormatInt(g.ID, 10)
	emit(ctx, s.audit, s.logger, models.AuditEvent{
		EventType:  eventType,
		ChildID:    g.ChildID,
		ActorID:    actorID,
		OccurredAt: now,
		Details:    details,
	})
}
