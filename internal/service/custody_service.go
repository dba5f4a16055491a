package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"kidcheck/internal/credentials"
	"kidcheck/internal/database"
	"kidcheck/internal/metrics"
	"kidcheck/internal/models"
	"kidcheck/internal/repository"
	"kidcheck/internal/security"
	"kidcheck/internal/validation"
)

// CustodyService checks children in and out
type CustodyService struct {
	db             *database.DB
	ledger         *CapacityLedger
	directory      *AuthorizationDirectory
	classrooms     *repository.ClassroomRepository
	children       *repository.ChildRepository
	custody        *repository.CustodyRepository
	grants         *repository.PickupAuthorizationRepository
	attempts       *repository.AttemptRepository
	pins           *security.PINHasher
	qr             *security.QRSigner
	limiter        security.AttemptLimiter
	audit          AuditSink
	notifier       Notifier
	metrics        metrics.Recorder
	logger         *zap.Logger
	loc            *time.Location
	maxPINFailures int
}

// NewCustodyService creates a new custody service
func NewCustodyService(d Dependencies) *CustodyService {
	d = d.withDefaults()
	return &CustodyService{
		db:             d.DB,
		ledger:         NewCapacityLedger(d.DB),
		directory:      NewAuthorizationDirectory(d.DB),
		classrooms:     repository.NewClassroomRepository(d.DB),
		children:       repository.NewChildRepository(d.DB),
		custody:        repository.NewCustodyRepository(d.DB),
		grants:         repository.NewPickupAuthorizationRepository(d.DB),
		attempts:       repository.NewAttemptRepository(d.DB),
		pins:           d.PINs,
		qr:             d.QR,
		limiter:        d.Attempts,
		audit:          d.Audit,
		notifier:       d.Notifier,
		metrics:        d.Metrics,
		logger:         d.Logger,
		loc:            d.Location,
		maxPINFailures: d.MaxPINFailures,
	}
}

// CheckInRequest asks to place a child in a classroom
type CheckInRequest struct {
	ChildID   int64
	EventName string
	// Classroom defaults to the child's assigned classroom when empty
	Classroom string
	Actor     models.Actor
}

// CustodyRef identifies an open custody record, either by the scanned QR
// payload or by record id after a manual label match.
type CustodyRef struct {
	QRPayload string
	RecordID  int64
}

// CheckOutRequest asks to release a child to a candidate
type CheckOutRequest struct {
	Ref         CustodyRef
	CandidateID string
	PIN         string
	Actor       models.Actor
}

// CheckIn opens a custody record for a child. All checks and the insert run
// in one transaction so concurrent check-ins never exceed capacity.
func (s *CustodyService) CheckIn(ctx context.Context, req CheckInRequest, now time.Time) (*models.CustodyRecord, error) {
	if err := requireActor(req.Actor); err != nil {
		return nil, err
	}
	if err := validation.ValidateEventName(req.EventName); err != nil {
		return nil, err
	}

	date := EventDate(now, s.loc)
	var rec *models.CustodyRecord

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		rec = nil
		child, err := s.children.WithTx(tx).GetByID(ctx, req.ChildID)
		if err != nil {
			return err
		}
		if child == nil {
			return ErrChildNotFound
		}

		classroomName := req.Classroom
		if classroomName == "" {
			classroomName = child.Classroom
		}
		classroom, err := s.classrooms.WithTx(tx).GetByName(ctx, classroomName)
		if err != nil {
			return err
		}
		if classroom == nil {
			return ErrClassroomNotFound
		}
		if !classroom.IsActive {
			return ErrInactiveClassroom
		}

		custody := s.custody.WithTx(tx)
		open, err := custody.GetOpenByChild(ctx, child.ID)
		if err != nil {
			return err
		}
		if open != nil {
			return ErrAlreadyCheckedIn
		}

		occ, err := s.ledger.WithTx(tx).Occupancy(ctx, classroom.Name, date)
		if err != nil {
			return err
		}
		if !occ.HasRoom() {
			return ErrClassroomFull
		}

		token, err := credentials.GenerateCustodyToken()
		if err != nil {
			return fmt.Errorf("failed to generate custody token: %w", err)
		}
		label, err := custody.NextLabelNumber(ctx, date)
		if err != nil {
			return err
		}

		rec, err = custody.Create(ctx, models.CustodyRecord{
			ChildID:      child.ID,
			EventDate:    date,
			EventName:    strings.TrimSpace(req.EventName),
			Classroom:    classroom.Name,
			CustodyToken: token,
			LabelNumber:  label,
			CheckedInAt:  now,
			CheckedInBy:  req.Actor.ID,
		})
		return err
	})
	if err != nil {
		s.metrics.Rejected("checkin", reasonOf(err))
		return nil, err
	}

	s.metrics.CheckIn(rec.Classroom)
	s.logger.Info("child checked in",
		zap.Int64("child_id", rec.ChildID),
		zap.Int64("custody_record_id", rec.ID),
		zap.String("classroom", rec.Classroom),
		zap.Int("label", rec.LabelNumber))
	emit(ctx, s.audit, s.logger, models.AuditEvent{
		EventType:       models.AuditCheckIn,
		ChildID:         rec.ChildID,
		CustodyRecordID: &rec.ID,
		ActorID:         req.Actor.ID,
		OccurredAt:      now,
		Details: map[string]string{
			"classroom":  rec.Classroom,
			"event_name": rec.EventName,
			"label":      strconv.Itoa(rec.LabelNumber),
		},
	})
	return rec, nil
}

// pinFailureKey scopes the attempt limiter to one custody record
func pinFailureKey(recordID int64) string {
	return "custody:" + strconv.FormatInt(recordID, 10)
}

// CheckOut releases a child to a verified candidate. Closing the record and
// consuming a one-time grant happen in the same transaction.
func (s *CustodyService) CheckOut(ctx context.Context, req CheckOutRequest, now time.Time) (*models.CustodyRecord, error) {
	if err := requireActor(req.Actor); err != nil {
		return nil, err
	}
	if req.CandidateID == "" {
		return nil, validation.ValidationError{Field: "candidate_id", Message: "candidate is required"}
	}

	var (
		closed    *models.CustodyRecord
		candidate *models.Candidate
		failed    *models.CustodyRecord
	)

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		closed, candidate, failed = nil, nil, nil

		custody := s.custody.WithTx(tx)
		rec, err := s.resolveOpen(ctx, custody, req.Ref)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrUnknownOrAlreadyClosed
		}

		candidates, err := s.directory.WithTx(tx).ResolvePickupCandidates(ctx, rec.ChildID, now)
		if err != nil {
			return err
		}
		c, ok := findCandidate(candidates, req.CandidateID)
		if !ok {
			failed = rec
			return ErrNotAuthorized
		}

		if c.RequiresPIN {
			if err := s.checkAttempts(ctx, rec.ID); err != nil {
				failed = rec
				return err
			}
			if !s.pins.Verify(c.PINHash, req.PIN) {
				failed = rec
				return ErrInvalidPIN
			}
		}

		closed, err = closeCustody(ctx, custody, rec, models.Departure{
			At:               now,
			By:               req.Actor.ID,
			PickupPersonName: c.Name,
			Method:           c.Method(),
		})
		if err != nil {
			return err
		}

		if src, ok := c.Source.(models.TemporarySource); ok && src.Type == models.AuthorizationOneTime {
			used, err := s.grants.WithTx(tx).MarkUsed(ctx, src.GrantID, now, rec.ID)
			if err != nil {
				return err
			}
			if !used {
				return ErrGrantExpiredOrUsed
			}
		}

		if err := s.attempts.WithTx(tx).Create(ctx, models.PickupAttempt{
			CustodyRecordID: rec.ID,
			CandidateID:     c.ID,
			ActorID:         req.Actor.ID,
			AttemptedAt:     now,
			Succeeded:       true,
		}); err != nil {
			return err
		}

		candidate = c
		return nil
	})
	if err != nil {
		s.metrics.Rejected("checkout", reasonOf(err))
		if failed != nil {
			s.recordFailure(ctx, failed, req, err, now)
		}
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, pinFailureKey(closed.ID)); err != nil {
			s.logger.Warn("failed to reset PIN attempts", zap.Int64("custody_record_id", closed.ID), zap.Error(err))
		}
	}

	s.metrics.CheckOut(string(closed.PickupMethod))
	s.logger.Info("child checked out",
		zap.Int64("child_id", closed.ChildID),
		zap.Int64("custody_record_id", closed.ID),
		zap.String("method", string(closed.PickupMethod)))

	events := []models.AuditEvent{{
		EventType:       models.AuditCheckOut,
		ChildID:         closed.ChildID,
		CustodyRecordID: &closed.ID,
		ActorID:         req.Actor.ID,
		OccurredAt:      now,
		Details: map[string]string{
			"candidate_id":  candidate.ID,
			"pickup_person": candidate.Name,
			"method":        string(closed.PickupMethod),
		},
	}}
	if grantID, ok := candidate.GrantID(); ok {
		events = append(events, models.AuditEvent{
			EventType:       models.AuditAuthorizationUsed,
			ChildID:         closed.ChildID,
			CustodyRecordID: &closed.ID,
			ActorID:         req.Actor.ID,
			OccurredAt:      now,
			Details: map[string]string{
				"grant_id":      strconv.FormatInt(grantID, 10),
				"pickup_person": candidate.Name,
			},
		})
	}
	emit(ctx, s.audit, s.logger, events...)
	return closed, nil
}

// checkAttempts rejects a checkout once the record has collected too many
// PIN failures
func (s *CustodyService) checkAttempts(ctx context.Context, recordID int64) error {
	if s.limiter == nil || s.maxPINFailures <= 0 {
		return nil
	}
	n, err := s.limiter.Failures(ctx, pinFailureKey(recordID))
	if err != nil {
		// A broken limiter store must not block pickups
		s.logger.Warn("failed to read PIN attempts", zap.Int64("custody_record_id", recordID), zap.Error(err))
		return nil
	}
	if n >= s.maxPINFailures {
		return ErrTooManyAttempts
	}
	return nil
}

// recordFailure persists a rejected checkout after the transaction rolled back
func (s *CustodyService) recordFailure(ctx context.Context, rec *models.CustodyRecord, req CheckOutRequest, cause error, now time.Time) {
	reason := reasonOf(cause)
	if err := s.attempts.Create(ctx, models.PickupAttempt{
		CustodyRecordID: rec.ID,
		CandidateID:     req.CandidateID,
		ActorID:         req.Actor.ID,
		AttemptedAt:     now,
		FailureReason:   reason,
	}); err != nil {
		s.logger.Error("failed to record pickup attempt", zap.Int64("custody_record_id", rec.ID), zap.Error(err))
	}

	if errors.Is(cause, ErrInvalidPIN) {
		s.metrics.PINFailure()
		if s.limiter != nil {
			n, err := s.limiter.RecordFailure(ctx, pinFailureKey(rec.ID))
			if err != nil {
				s.logger.Warn("failed to count PIN failure", zap.Int64("custody_record_id", rec.ID), zap.Error(err))
			} else if s.maxPINFailures > 0 && n == s.maxPINFailures {
				locked := *rec
				notify(s.logger, "lockout", func(ctx context.Context) error {
					return s.notifier.NotifyLockout(ctx, locked)
				})
			}
		}
	}

	s.logger.Warn("pickup denied",
		zap.Int64("custody_record_id", rec.ID),
		zap.String("candidate_id", req.CandidateID),
		zap.String("reason", reason))
	emit(ctx, s.audit, s.logger, models.AuditEvent{
		EventType:       models.AuditPickupDenied,
		ChildID:         rec.ChildID,
		CustodyRecordID: &rec.ID,
		ActorID:         req.Actor.ID,
		OccurredAt:      now,
		Details: map[string]string{
			"candidate_id": req.CandidateID,
			"reason":       reason,
		},
	})
}

// resolveOpen finds the open record behind a reference. It returns nil when
// the reference is forged, unknown or already closed.
func (s *CustodyService) resolveOpen(ctx context.Context, custody *repository.CustodyRepository, ref CustodyRef) (*models.CustodyRecord, error) {
	switch {
	case ref.QRPayload != "":
		if s.qr == nil {
			return nil, nil
		}
		token, err := s.qr.Decode(ref.QRPayload)
		if err != nil {
			return nil, nil
		}
		return custody.GetOpenByToken(ctx, token)
	case ref.RecordID > 0:
		rec, err := custody.GetByID(ctx, ref.RecordID)
		if err != nil || rec == nil || !rec.IsOpen() {
			return nil, err
		}
		return rec, nil
	}
	return nil, nil
}

// closeCustody is the terminal transition shared by checkout and the
// emergency override. Exactly one concurrent caller succeeds.
func closeCustody(ctx context.Context, custody *repository.CustodyRepository, rec *models.CustodyRecord, d models.Departure) (*models.CustodyRecord, error) {
	ok, err := custody.Close(ctx, rec.ID, d)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownOrAlreadyClosed
	}

	closed := *rec
	at := d.At.UTC()
	closed.CheckedOutAt = &at
	closed.CheckedOutBy = d.By
	closed.PickupPersonName = d.PickupPersonName
	closed.PickupMethod = d.Method
	return &closed, nil
}

// FindByToken returns the open record behind a scanned QR payload
func (s *CustodyService) FindByToken(ctx context.Context, payload string) (*models.CustodyRecord, error) {
	rec, err := s.resolveOpen(ctx, s.custody, CustodyRef{QRPayload: payload})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrCustodyNotFound
	}
	return rec, nil
}

// FindByLabel returns the open record printed with a label number. An empty
// date means today.
func (s *CustodyService) FindByLabel(ctx context.Context, date string, label int, now time.Time) (*models.CustodyRecord, error) {
	if date == "" {
		date = EventDate(now, s.loc)
	}
	rec, err := s.custody.GetOpenByLabel(ctx, date, label)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrCustodyNotFound
	}
	return rec, nil
}

// Candidates previews who may collect the child of an open record. The
// result is advisory; CheckOut resolves candidates again.
func (s *CustodyService) Candidates(ctx context.Context, ref CustodyRef, now time.Time) (*models.CustodyRecord, []models.Candidate, error) {
	rec, err := s.resolveOpen(ctx, s.custody, ref)
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, ErrUnknownOrAlreadyClosed
	}
	candidates, err := s.directory.ResolvePickupCandidates(ctx, rec.ChildID, now)
	if err != nil {
		return nil, nil, err
	}
	return rec, candidates, nil
}

// ListOpen returns the children in custody on a date, optionally for one
// classroom
func (s *CustodyService) ListOpen(ctx context.Context, date, classroom string, now time.Time) ([]models.CustodyRecord, error) {
	if date == "" {
		date = EventDate(now, s.loc)
	}
	return s.custody.ListOpen(ctx, date, classroom)
}

// History returns every custody record of a child, newest first
func (s *CustodyService) History(ctx context.Context, childID int64) ([]models.CustodyRecord, error) {
	child, err := s.children.GetByID(ctx, childID)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, ErrChildNotFound
	}
	return s.custody.ListByChild(ctx, childID)
}

// Attempts lists the checkout attempts made against a record
func (s *CustodyService) Attempts(ctx context.Context, recordID int64) ([]models.PickupAttempt, error) {
	return s.attempts.ListForRecord(ctx, recordID)
}

// QRPayload returns the signed payload printed on the guardian's label
func (s *CustodyService) QRPayload(rec *models.CustodyRecord) string {
	if s.qr == nil || rec == nil {
		return ""
	}
	return s.qr.Encode(rec.CustodyToken)
}
