package service

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"kidcheck/internal/config"
	"kidcheck/internal/database"
	"kidcheck/internal/models"
	"kidcheck/internal/repository"
	"kidcheck/internal/security"
)

func TestSyncClassrooms(t *testing.T) {
	f := newFixture(t,
		config.ClassroomConfig{Name: "Maternal", MaxCapacity: 10, RatioChildrenPerAdult: 4},
		config.ClassroomConfig{Name: "Jardim", MaxCapacity: 15},
	)
	ctx := context.Background()
	child := f.child(t, "Ana Souza", "Jardim")

	// Jardim dropped from configuration, Maternal resized
	if _, err := f.svc.Roster.SyncClassrooms(ctx, []config.ClassroomConfig{{Name: "Maternal", MaxCapacity: 12}}); err != nil {
		t.Fatalf("SyncClassrooms: %v", err)
	}

	rooms, err := f.svc.Roster.ListClassrooms(ctx)
	if err != nil {
		t.Fatalf("ListClassrooms: %v", err)
	}
	byName := make(map[string]models.Classroom)
	for _, r := range rooms {
		byName[r.Name] = r
	}
	if byName["Maternal"].MaxCapacity != 12 || !byName["Maternal"].IsActive {
		t.Errorf("Maternal = %+v", byName["Maternal"])
	}
	if byName["Jardim"].IsActive {
		t.Error("Jardim should be deactivated")
	}

	_, err = f.svc.Custody.CheckIn(ctx, CheckInRequest{ChildID: child.ID, EventName: "Sunday", Actor: staff}, testNow)
	if !errors.Is(err, ErrInactiveClassroom) {
		t.Errorf("CheckIn() error = %v, want ErrInactiveClassroom", err)
	}

	occ, err := f.svc.Ledger.List(ctx, EventDate(testNow, f.svc.Custody.loc))
	if err != nil {
		t.Fatalf("Ledger.List: %v", err)
	}
	if len(occ) != 2 {
		t.Errorf("Ledger.List() returned %d classrooms, want 2", len(occ))
	}
	if _, err := f.svc.Ledger.Occupancy(ctx, "Attic", "2026-10-18"); !errors.Is(err, ErrClassroomNotFound) {
		t.Errorf("Occupancy(unknown) error = %v, want ErrClassroomNotFound", err)
	}
}

func TestRosterChildrenAndGuardians(t *testing.T) {
	f := newFixture(t,
		config.ClassroomConfig{Name: "Maternal", MaxCapacity: 10},
		config.ClassroomConfig{Name: "Jardim", MaxCapacity: 15},
	)
	ctx := context.Background()

	if _, err := f.svc.Roster.CreateChild(ctx, ChildInput{Name: "Ana", Classroom: "Attic"}); !errors.Is(err, ErrClassroomNotFound) {
		t.Errorf("CreateChild(unknown classroom) error = %v", err)
	}

	child := f.child(t, "Ana Souza", "Maternal")
	moved, err := f.svc.Roster.UpdateChild(ctx, child.ID, ChildInput{Name: "Ana Souza", Classroom: "Jardim", Allergies: "peanuts"})
	if err != nil {
		t.Fatalf("UpdateChild: %v", err)
	}
	if moved.Classroom != "Jardim" || moved.Allergies != "peanuts" {
		t.Errorf("updated child = %+v", moved)
	}

	jardim, err := f.svc.Roster.ListChildren(ctx, "Jardim")
	if err != nil || len(jardim) != 1 {
		t.Errorf("ListChildren(Jardim) = %d, %v", len(jardim), err)
	}

	g := f.guardian(t, child.ID, "Carla Souza", "1234", true)
	if _, err := f.svc.Roster.LinkGuardian(ctx, LinkInput{ChildID: child.ID, GuardianID: g.ID}); !errors.Is(err, ErrAlreadyLinked) {
		t.Errorf("duplicate link error = %v, want ErrAlreadyLinked", err)
	}

	link, err := f.svc.Roster.UpdateLink(ctx, LinkInput{ChildID: child.ID, GuardianID: g.ID, Relationship: "mother", CanPickup: false})
	if err != nil {
		t.Fatalf("UpdateLink: %v", err)
	}
	if link.CanPickup || link.Relationship != "mother" {
		t.Errorf("updated link = %+v", link)
	}
	if _, err := f.svc.Roster.UpdateLink(ctx, LinkInput{ChildID: child.ID, GuardianID: 999}); !errors.Is(err, ErrGuardianNotFound) {
		t.Errorf("UpdateLink(unknown) error = %v", err)
	}

	if err := f.svc.Roster.SetGuardianPIN(ctx, g.ID, ""); err != nil {
		t.Fatalf("clear PIN: %v", err)
	}
	cleared, err := f.svc.Roster.GetGuardian(ctx, g.ID)
	if err != nil || cleared.HasPIN() {
		t.Errorf("guardian PIN should be cleared: %+v, %v", cleared, err)
	}
	if err := f.svc.Roster.SetGuardianPIN(ctx, g.ID, "12x4"); err == nil {
		t.Error("expected invalid PIN to be rejected")
	}

	guardians, err := f.svc.Roster.ListGuardians(ctx, child.ID)
	if err != nil || len(guardians) != 1 {
		t.Errorf("ListGuardians = %d, %v", len(guardians), err)
	}

	if err := f.svc.Roster.DeactivateAuthorizedPickup(ctx, 999); !errors.Is(err, ErrAuthorizedPickupNotFound) {
		t.Errorf("DeactivateAuthorizedPickup(unknown) error = %v", err)
	}
}

func TestDBAuditSinkListsEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.child(t, "Ana Souza", "Maternal")
	g1 := f.guardian(t, c1.ID, "Carla Souza", "", true)
	rec := f.checkIn(t, c1.ID)
	if _, err := f.svc.Custody.CheckOut(ctx, CheckOutRequest{
		Ref: CustodyRef{RecordID: rec.ID}, CandidateID: guardianCandidate(g1), Actor: staff,
	}, testNow); err != nil {
		t.Fatalf("CheckOut: %v", err)
	}

	events, err := NewDBAuditSink(f.db).List(ctx, repository.AuditFilter{CustodyRecordID: rec.ID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].EventType != models.AuditCheckOut || events[1].EventType != models.AuditCheckIn {
		t.Errorf("events out of order: %s, %s", events[0].EventType, events[1].EventType)
	}
	if events[0].Details["method"] != string(models.PickupGuardian) {
		t.Errorf("checkout details = %v", events[0].Details)
	}
}

func TestBackupRoundTrip(t *testing.T) {
	f := newFixture(t, config.ClassroomConfig{Name: "Maternal", MaxCapacity: 10})
	ctx := context.Background()
	c1 := f.child(t, "Ana Souza", "Maternal")
	f.guardian(t, c1.ID, "Carla Souza", "1234", true)
	if _, err := f.svc.Roster.AddAuthorizedPickup(ctx, AuthorizedPickupInput{ChildID: c1.ID, Name: "Tia Rosa", PIN: "2468"}); err != nil {
		t.Fatalf("AddAuthorizedPickup: %v", err)
	}
	f.checkIn(t, c1.ID)

	var buf bytes.Buffer
	exported, err := f.svc.Backup.Export(ctx, &buf)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(exported.CustodyRecords) != 1 || len(exported.AuditEvents) == 0 {
		t.Errorf("export missing custody trail: %d records, %d events", len(exported.CustodyRecords), len(exported.AuditEvents))
	}
	if bytes.Contains(buf.Bytes(), []byte(`"custody_token"`)) {
		t.Error("export must not contain custody tokens")
	}

	target, err := database.Initialize(filepath.Join(t.TempDir(), "restore.db"))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer target.Close()
	if err := target.RunMigrations(ctx, "", zap.NewNop()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	summary, err := NewBackupService(target, zap.NewNop()).Import(ctx, &buf)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	want := ImportSummary{Classrooms: 1, Children: 1, Guardians: 1, Links: 1, AuthorizedPickups: 1}
	if *summary != want {
		t.Errorf("summary = %+v, want %+v", *summary, want)
	}

	restored, err := repository.NewGuardianRepository(target).List(ctx)
	if err != nil || len(restored) != 1 {
		t.Fatalf("restored guardians = %d, %v", len(restored), err)
	}
	if !security.NewPINHasher(bcrypt.MinCost).Verify(restored[0].PINHash, "1234") {
		t.Error("restored guardian PIN does not verify")
	}
}
