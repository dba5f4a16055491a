package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"kidcheck/internal/models"
	"kidcheck/internal/validation"
)

func TestOverrideRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.child(t, "Ana Souza", "Maternal")
	rec := f.checkIn(t, c1.ID)

	valid := OverrideRequest{
		CustodyRecordID:      rec.ID,
		Actor:                leader,
		Reason:               "Guardian hospitalised, aunt collecting",
		PickupPersonName:     "Rosa Lima",
		PickupPersonDocument: "RG 12.345.678-9",
	}

	tests := []struct {
		name      string
		mutate    func(r *OverrideRequest)
		wantErr   error
		wantField string
	}{
		{name: "staff may not override", mutate: func(r *OverrideRequest) { r.Actor = staff }, wantErr: ErrOverrideForbidden},
		{name: "kiosk may not override", mutate: func(r *OverrideRequest) { r.Actor = models.Actor{ID: "kiosk", Roles: []string{models.RoleKiosk}} }, wantErr: ErrOverrideForbidden},
		{name: "reason too short", mutate: func(r *OverrideRequest) { r.Reason = "  urgent  " }, wantField: "reason"},
		{name: "pickup person required", mutate: func(r *OverrideRequest) { r.PickupPersonName = "" }, wantField: "pickup_person_name"},
		{name: "unknown record", mutate: func(r *OverrideRequest) { r.CustodyRecordID = 999 }, wantErr: ErrUnknownOrAlreadyClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := f.svc.Override.Release(ctx, req, testNow)
			if tt.wantField != "" {
				var ve validation.ValidationError
				if !errors.As(err, &ve) || ve.Field != tt.wantField {
					t.Errorf("Release() error = %v, want validation error on %s", err, tt.wantField)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Release() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	result, err := f.svc.Override.Release(ctx, valid, testNow)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if result.Record.PickupMethod != models.PickupLeaderOverride {
		t.Errorf("pickup method = %q", result.Record.PickupMethod)
	}
	want := "Rosa Lima (override: Guardian hospitalised, aunt collecting)"
	if result.Record.PickupPersonName != want {
		t.Errorf("pickup person = %q, want %q", result.Record.PickupPersonName, want)
	}

	stored, err := f.svc.Override.Get(ctx, rec.ID)
	if err != nil || stored == nil {
		t.Fatalf("Get override = %v, %v", stored, err)
	}
	if stored.LeaderActorID != leader.ID || stored.PickupPersonDocument != "RG 12.345.678-9" {
		t.Errorf("stored override = %+v", stored)
	}

	if _, err := f.svc.Override.Release(ctx, valid, testNow); !errors.Is(err, ErrUnknownOrAlreadyClosed) {
		t.Errorf("second release error = %v, want ErrUnknownOrAlreadyClosed", err)
	}

	select {
	case o := <-f.notifier.overrides:
		if !strings.Contains(o.Reason, "hospitalised") {
			t.Errorf("notified override = %+v", o)
		}
	case <-time.After(2 * time.Second):
		t.Error("expected an override notification")
	}

	if f.sink.count(models.AuditLeaderOverride) != 1 {
		t.Errorf("expected one leader_override event, got %d", f.sink.count(models.AuditLeaderOverride))
	}
}

func TestOverrideRolesAreConfigurable(t *testing.T) {
	f := newFixture(t)
	svc := NewOverrideService(Dependencies{DB: f.db, OverrideRoles: []string{"security"}})

	if svc.CanOverride(leader) {
		t.Error("leader should not override when only security is configured")
	}
	if !svc.CanOverride(models.Actor{ID: "guard", Roles: []string{"security"}}) {
		t.Error("security role should override")
	}
}
