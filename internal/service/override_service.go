package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"kidcheck/internal/database"
	"kidcheck/internal/metrics"
	"kidcheck/internal/models"
	"kidcheck/internal/repository"
	"kidcheck/internal/security"
	"kidcheck/internal/validation"
)

// OverrideService releases children in emergencies without the normal
// authorization checks. Every release is documented and audited.
type OverrideService struct {
	db        *database.DB
	custody   *repository.CustodyRepository
	overrides *repository.OverrideRepository
	limiter   security.AttemptLimiter
	audit     AuditSink
	notifier  Notifier
	metrics   metrics.Recorder
	logger    *zap.Logger
	roles     []string
}

// NewOverrideService creates a new override service
func NewOverrideService(d Dependencies) *OverrideService {
	d = d.withDefaults()
	return &OverrideService{
		db:        d.DB,
		custody:   repository.NewCustodyRepository(d.DB),
		overrides: repository.NewOverrideRepository(d.DB),
		limiter:   d.Attempts,
		audit:     d.Audit,
		notifier:  d.Notifier,
		metrics:   d.Metrics,
		logger:    d.Logger,
		roles:     d.OverrideRoles,
	}
}

// OverrideRequest documents an emergency release
type OverrideRequest struct {
	CustodyRecordID      int64
	Actor                models.Actor
	Reason               string
	PickupPersonName     string
	PickupPersonDocument string
}

// OverrideResult is the outcome of a successful release
type OverrideResult struct {
	Override *models.LeaderOverride `json:"override"`
	Record   *models.CustodyRecord  `json:"record"`
}

// CanOverride reports whether the actor holds an override-eligible role
func (s *OverrideService) CanOverride(actor models.Actor) bool {
	return actor.HasAnyRole(s.roles...)
}

// Release closes an open custody record on a leader's authority
func (s *OverrideService) Release(ctx context.Context, req OverrideRequest, now time.Time) (*OverrideResult, error) {
	if err := requireActor(req.Actor); err != nil {
		return nil, err
	}
	if !s.CanOverride(req.Actor) {
		s.metrics.Rejected("override", reasonOf(ErrOverrideForbidden))
		s.logger.Warn("override refused",
			zap.String("actor_id", req.Actor.ID),
			zap.Int64("custody_record_id", req.CustodyRecordID))
		return nil, ErrOverrideForbidden
	}
	if err := validation.ValidateReason(req.Reason); err != nil {
		return nil, err
	}
	if err := validation.ValidateName("pickup_person_name", req.PickupPersonName); err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(req.Reason)
	person := strings.TrimSpace(req.PickupPersonName)
	var result *OverrideResult

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		result = nil
		custody := s.custody.WithTx(tx)
		rec, err := custody.GetByID(ctx, req.CustodyRecordID)
		if err != nil {
			return err
		}
		if rec == nil || !rec.IsOpen() {
			return ErrUnknownOrAlreadyClosed
		}

		override, err := s.overrides.WithTx(tx).Create(ctx, models.LeaderOverride{
			CustodyRecordID:      rec.ID,
			LeaderActorID:        req.Actor.ID,
			Reason:               reason,
			PickupPersonName:     person,
			PickupPersonDocument: strings.TrimSpace(req.PickupPersonDocument),
			CreatedAt:            now,
		})
		if err != nil {
			return err
		}

		closed, err := closeCustody(ctx, custody, rec, models.Departure{
			At:               now,
			By:               req.Actor.ID,
			PickupPersonName: fmt.Sprintf("%s (override: %s)", person, reason),
			Method:           models.PickupLeaderOverride,
		})
		if err != nil {
			return err
		}

		result = &OverrideResult{Override: override, Record: closed}
		return nil
	})
	if err != nil {
		s.metrics.Rejected("override", reasonOf(err))
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, pinFailureKey(result.Record.ID)); err != nil {
			s.logger.Warn("failed to reset PIN attempts", zap.Int64("custody_record_id", result.Record.ID), zap.Error(err))
		}
	}

	s.metrics.Override()
	s.metrics.CheckOut(string(models.PickupLeaderOverride))
	s.logger.Warn("child released by leader override",
		zap.Int64("child_id", result.Record.ChildID),
		zap.Int64("custody_record_id", result.Record.ID),
		zap.String("leader", req.Actor.ID),
		zap.String("pickup_person", person))

	emit(ctx, s.audit, s.logger, models.AuditEvent{
		EventType:       models.AuditLeaderOverride,
		ChildID:         result.Record.ChildID,
		CustodyRecordID: &result.Record.ID,
		ActorID:         req.Actor.ID,
		OccurredAt:      now,
		Details: map[string]string{
			"reason":        reason,
			"pickup_person": person,
			"document":      result.Override.PickupPersonDocument,
		},
	})

	override, record := *result.Override, *result.Record
	notify(s.logger, "override", func(ctx context.Context) error {
		return s.notifier.NotifyOverride(ctx, override, record)
	})
	return result, nil
}

// Get returns the override documenting a record's release, if any
func (s *OverrideService) Get(ctx context.Context, recordID int64) (*models.LeaderOverride, error) {
	return s.overrides.GetByCustodyRecord(ctx, recordID)
}
