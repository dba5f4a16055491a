package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kidcheck/internal/database"
	"kidcheck/internal/metrics"
	"kidcheck/internal/models"
	"kidcheck/internal/security"
	"kidcheck/internal/validation"
)

// Dependencies are the collaborators shared by the custody services
type Dependencies struct {
	DB             *database.DB
	PINs           *security.PINHasher
	QR             *security.QRSigner
	Attempts       security.AttemptLimiter
	Audit          AuditSink
	Notifier       Notifier
	Metrics        metrics.Recorder
	Logger         *zap.Logger
	Location       *time.Location
	MaxPINFailures int
	OverrideRoles  []string
}

// withDefaults fills optional collaborators with no-op implementations
func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.Notifier == nil {
		d.Notifier = NopNotifier{}
	}
	if d.Audit == nil {
		d.Audit = NewLogAuditSink(d.Logger)
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.PINs == nil {
		d.PINs = security.NewPINHasher(0)
	}
	if len(d.OverrideRoles) == 0 {
		d.OverrideRoles = []string{models.RoleLeader, models.RoleAdmin}
	}
	return d
}

// Services bundles every service built from one set of dependencies
type Services struct {
	Ledger    *CapacityLedger
	Directory *AuthorizationDirectory
	Custody   *CustodyService
	Override  *OverrideService
	Grants    *GrantService
	Roster    *RosterService
	Backup    *BackupService
}

// New builds all services
func New(d Dependencies) *Services {
	d = d.withDefaults()
	return &Services{
		Ledger:    NewCapacityLedger(d.DB),
		Directory: NewAuthorizationDirectory(d.DB),
		Custody:   NewCustodyService(d),
		Override:  NewOverrideService(d),
		Grants:    NewGrantService(d),
		Roster:    NewRosterService(d),
		Backup:    NewBackupService(d.DB, d.Logger),
	}
}

// EventDate returns the calendar date of t in loc as YYYY-MM-DD
func EventDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

func requireActor(actor models.Actor) error {
	if actor.ID == "" {
		return validation.ValidationError{Field: "actor", Message: "actor is required"}
	}
	return nil
}

// emit hands events to the audit sink after commit. Sink failures are
// logged and never undo the operation.
func emit(ctx context.Context, sink AuditSink, logger *zap.Logger, events ...models.AuditEvent) {
	for _, e := range events {
		if err := sink.Record(ctx, e); err != nil {
			logger.Error("audit sink failed",
				zap.String("event_type", e.EventType),
				zap.Int64("child_id", e.ChildID),
				zap.Error(err))
		}
	}
}

// notify runs fn in the background with its own deadline
func notify(logger *zap.Logger, what string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			logger.Warn("notification failed", zap.String("notification", what), zap.Error(err))
		}
	}()
}
