package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"kidcheck/internal/database"
	"kidcheck/internal/models"
	"kidcheck/internal/repository"
)

// BackupVersion is the format version written by Export
const BackupVersion = "1.0"

// BackupData is the complete export of the roster and the custody trail
type BackupData struct {
	Version           string                   `json:"version"`
	ExportedAt        time.Time                `json:"exported_at"`
	DatabaseType      string                   `json:"database_type"`
	Classrooms        []models.Classroom       `json:"classrooms"`
	Children          []models.Child           `json:"children"`
	Guardians         []GuardianBackup         `json:"guardians"`
	Links             []models.ChildGuardian   `json:"links"`
	AuthorizedPickups []AuthorizedPickupBackup `json:"authorized_pickups"`
	Grants            []GrantBackup            `json:"grants"`
	CustodyRecords    []models.CustodyRecord   `json:"custody_records"`
	AuditEvents       []models.AuditEvent      `json:"audit_events"`
}

// GuardianBackup carries the PIN hash that the API never serialises
type GuardianBackup struct {
	models.Guardian
	PINHash string `json:"pin_hash,omitempty"`
}

// AuthorizedPickupBackup carries the PIN hash of a standing pickup
type AuthorizedPickupBackup struct {
	models.AuthorizedPickup
	PINHash string `json:"pin_hash"`
}

// GrantBackup carries the PIN hash of a pickup grant
type GrantBackup struct {
	models.PickupAuthorization
	PINHash string `json:"pin_hash"`
}

// ImportSummary counts the rows created by an import
type ImportSummary struct {
	Classrooms        int `json:"classrooms"`
	Children          int `json:"children"`
	Guardians         int `json:"guardians"`
	Links             int `json:"links"`
	AuthorizedPickups int `json:"authorized_pickups"`
}

// BackupService handles export and restore
type BackupService struct {
	db     *database.DB
	logger *zap.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB, logger *zap.Logger) *BackupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupService{db: db, logger: logger}
}

// Export writes the whole roster and custody trail as indented JSON
func (s *BackupService) Export(ctx context.Context, w io.Writer) (*BackupData, error) {
	s.logger.Info("starting export")

	backup := &BackupData{
		Version:      BackupVersion,
		ExportedAt:   time.Now().UTC(),
		DatabaseType: s.db.Dialect.Name(),
	}

	var err error
	if backup.Classrooms, err = repository.NewClassroomRepository(s.db).List(ctx); err != nil {
		return nil, fmt.Errorf("failed to export classrooms: %w", err)
	}
	if backup.Children, err = repository.NewChildRepository(s.db).List(ctx, 0); err != nil {
		return nil, fmt.Errorf("failed to export children: %w", err)
	}

	guardianRepo := repository.NewGuardianRepository(s.db)
	guardians, err := guardianRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export guardians: %w", err)
	}
	for _, g := range guardians {
		backup.Guardians = append(backup.Guardians, GuardianBackup{Guardian: g, PINHash: g.PINHash})
	}
	if backup.Links, err = guardianRepo.ListLinks(ctx); err != nil {
		return nil, fmt.Errorf("failed to export guardian links: %w", err)
	}

	pickups, err := repository.NewAuthorizedPickupRepository(s.db).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export authorized pickups: %w", err)
	}
	for _, p := range pickups {
		backup.AuthorizedPickups = append(backup.AuthorizedPickups, AuthorizedPickupBackup{AuthorizedPickup: p, PINHash: p.PINHash})
	}

	grants, err := repository.NewPickupAuthorizationRepository(s.db).ListByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export grants: %w", err)
	}
	for _, g := range grants {
		backup.Grants = append(backup.Grants, GrantBackup{PickupAuthorization: g, PINHash: g.PINHash})
	}

	if backup.CustodyRecords, err = repository.NewCustodyRepository(s.db).ListAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to export custody records: %w", err)
	}
	if backup.AuditEvents, err = repository.NewAuditRepository(s.db).List(ctx, repository.AuditFilter{}); err != nil {
		return nil, fmt.Errorf("failed to export audit events: %w", err)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}

	s.logger.Info("export complete",
		zap.Int("classrooms", len(backup.Classrooms)),
		zap.Int("children", len(backup.Children)),
		zap.Int("guardians", len(backup.Guardians)),
		zap.Int("custody_records", len(backup.CustodyRecords)),
		zap.Int("audit_events", len(backup.AuditEvents)))
	return backup, nil
}

// Import restores the roster from an export. Rows get new ids; references
// between them are remapped. Custody records, grants and audit events are
// history and are not restored.
func (s *BackupService) Import(ctx context.Context, r io.Reader) (*ImportSummary, error) {
	var backup BackupData
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}
	s.logger.Info("starting import", zap.String("version", backup.Version), zap.Time("exported_at", backup.ExportedAt))
	if backup.Version != BackupVersion {
		return nil, fmt.Errorf("unsupported backup version %q", backup.Version)
	}

	var summary *ImportSummary
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		summary = &ImportSummary{}
		classrooms := repository.NewClassroomRepository(tx)
		children := repository.NewChildRepository(tx)
		guardians := repository.NewGuardianRepository(tx)
		pickups := repository.NewAuthorizedPickupRepository(tx)

		classroomIDs := make(map[int64]int64, len(backup.Classrooms))
		for _, c := range backup.Classrooms {
			created, err := classrooms.Upsert(ctx, c)
			if err != nil {
				return fmt.Errorf("failed to import classroom %q: %w", c.Name, err)
			}
			classroomIDs[c.ID] = created.ID
			summary.Classrooms++
		}

		childIDs := make(map[int64]int64, len(backup.Children))
		for _, c := range backup.Children {
			classroomID, ok := classroomIDs[c.ClassroomID]
			if !ok {
				return fmt.Errorf("child %d references unknown classroom %d", c.ID, c.ClassroomID)
			}
			oldID := c.ID
			c.ClassroomID = classroomID
			created, err := children.Create(ctx, c)
			if err != nil {
				return fmt.Errorf("failed to import child %d: %w", oldID, err)
			}
			childIDs[oldID] = created.ID
			summary.Children++
		}

		guardianIDs := make(map[int64]int64, len(backup.Guardians))
		for _, g := range backup.Guardians {
			guardian := g.Guardian
			guardian.PINHash = g.PINHash
			created, err := guardians.Create(ctx, guardian)
			if err != nil {
				return fmt.Errorf("failed to import guardian %d: %w", g.ID, err)
			}
			guardianIDs[g.ID] = created.ID
			summary.Guardians++
		}

		for _, l := range backup.Links {
			childID, okChild := childIDs[l.ChildID]
			guardianID, okGuardian := guardianIDs[l.GuardianID]
			if !okChild || !okGuardian {
				return fmt.Errorf("link %d references unknown child or guardian", l.ID)
			}
			l.ChildID, l.GuardianID = childID, guardianID
			if _, err := guardians.Link(ctx, l); err != nil {
				return fmt.Errorf("failed to import link %d: %w", l.ID, err)
			}
			summary.Links++
		}

		for _, p := range backup.AuthorizedPickups {
			childID, ok := childIDs[p.ChildID]
			if !ok {
				return fmt.Errorf("authorized pickup %d references unknown child %d", p.ID, p.ChildID)
			}
			if !p.IsActive {
				continue
			}
			pickup := p.AuthorizedPickup
			pickup.ChildID = childID
			pickup.PINHash = p.PINHash
			if _, err := pickups.Create(ctx, pickup); err != nil {
				return fmt.Errorf("failed to import authorized pickup %d: %w", p.ID, err)
			}
			summary.AuthorizedPickups++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("import complete",
		zap.Int("classrooms", summary.Classrooms),
		zap.Int("children", summary.Children),
		zap.Int("guardians", summary.Guardians),
		zap.Int("links", summary.Links),
		zap.Int("authorized_pickups", summary.AuthorizedPickups))
	return summary, nil
}
