package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"kidcheck/internal/database"
	"kidcheck/internal/models"
	"kidcheck/internal/repository"
)

// AuditSink receives custody and grant events after they are committed
type AuditSink interface {
	Record(ctx context.Context, e models.AuditEvent) error
}

// DBAuditSink stores events in the audit_events table
type DBAuditSink struct {
	repo *repository.AuditRepository
}

// NewDBAuditSink creates a sink writing through q
func NewDBAuditSink(q database.DBTX) *DBAuditSink {
	return &DBAuditSink{repo: repository.NewAuditRepository(q)}
}

// Record stores e
func (s *DBAuditSink) Record(ctx context.Context, e models.AuditEvent) error {
	_, err := s.repo.Create(ctx, e)
	return err
}

// List returns stored events matching f, newest first
func (s *DBAuditSink) List(ctx context.Context, f repository.AuditFilter) ([]models.AuditEvent, error) {
	return s.repo.List(ctx, f)
}

// LogAuditSink writes events to a structured logger
type LogAuditSink struct {
	logger *zap.Logger
}

// NewLogAuditSink creates a sink logging to logger
func NewLogAuditSink(logger *zap.Logger) *LogAuditSink {
	return &LogAuditSink{logger: logger.Named("audit")}
}

// Record logs e at info level
func (s *LogAuditSink) Record(_ context.Context, e models.AuditEvent) error {
	fields := []zap.Field{
		zap.String("event_type", e.EventType),
		zap.Int64("child_id", e.ChildID),
		zap.String("actor_id", e.ActorID),
		zap.Time("occurred_at", e.OccurredAt),
		zap.Any("details", e.Details),
	}
	if e.CustodyRecordID != nil {
		fields = append(fields, zap.Int64("custody_record_id", *e.CustodyRecordID))
	}
	s.logger.Info("audit event", fields...)
	return nil
}

// MultiAuditSink fans an event out to several sinks
type MultiAuditSink []AuditSink

// Record hands e to every sink and joins their errors
func (m MultiAuditSink) Record(ctx context.Context, e models.AuditEvent) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
