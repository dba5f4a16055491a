package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"kidcheck/internal/config"
	"kidcheck/internal/database"
	"kidcheck/internal/models"
	"kidcheck/internal/security"
	"kidcheck/internal/service"
)

type apiFixture struct {
	server *httptest.Server
	svc    *service.Services
	tokens *security.TokenManager
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Initialize(filepath.Join(t.TempDir(), "kidcheck.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.RunMigrations(ctx, "", zap.NewNop()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	svc := service.New(service.Dependencies{
		DB:             db,
		PINs:           security.NewPINHasher(bcrypt.MinCost),
		QR:             security.NewQRSigner("test-qr-secret-with-enough-bytes"),
		Attempts:       security.NewMemoryAttemptLimiter(15 * time.Minute),
		Audit:          service.NewDBAuditSink(db),
		Logger:         zap.NewNop(),
		Location:       time.UTC,
		MaxPINFailures: 3,
	})
	if _, err := svc.Roster.SyncClassrooms(ctx, []config.ClassroomConfig{{Name: "Maternal", MaxCapacity: 1}}); err != nil {
		t.Fatalf("SyncClassrooms: %v", err)
	}

	tokens := security.NewTokenManager(config.AuthConfig{JWTSecret: "test-jwt-secret", Issuer: "kidcheck", TokenTTL: time.Hour})
	router := NewRouter(svc, RouterConfig{
		Middleware: NewMiddleware(tokens, nil, zap.NewNop()),
		DB:         db,
		Location:   time.UTC,
		Logger:     zap.NewNop(),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &apiFixture{server: server, svc: svc, tokens: tokens}
}

func (f *apiFixture) token(t *testing.T, actorID string, roles ...string) string {
	t.Helper()
	tok, err := f.tokens.Issue(actorID, roles, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

// do sends a JSON request and decodes the reply into out when out is non-nil
func (f *apiFixture) do(t *testing.T, token, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (f *apiFixture) seedChild(t *testing.T, name, pin string) (*models.Child, *models.Guardian) {
	t.Helper()
	ctx := context.Background()
	child, err := f.svc.Roster.CreateChild(ctx, service.ChildInput{Name: name, Classroom: "Maternal"})
	if err != nil {
		t.Fatalf("CreateChild: %v", err)
	}
	g, err := f.svc.Roster.CreateGuardian(ctx, service.GuardianInput{Name: name + " Parent", PIN: pin})
	if err != nil {
		t.Fatalf("CreateGuardian: %v", err)
	}
	if _, err := f.svc.Roster.LinkGuardian(ctx, service.LinkInput{ChildID: child.ID, GuardianID: g.ID, CanPickup: true}); err != nil {
		t.Fatalf("LinkGuardian: %v", err)
	}
	return child, g
}

func TestCheckInAndCheckOutOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	staffToken := f.token(t, "desk-1", models.RoleStaff)
	c1, g1 := f.seedChild(t, "Ana", "1234")
	c2, _ := f.seedChild(t, "Bruno", "5678")

	var first CustodyView
	status := f.do(t, staffToken, http.MethodPost, "/api/checkins", map[string]any{"child_id": c1.ID, "event_name": "Sunday Service"}, &first)
	if status != http.StatusCreated {
		t.Fatalf("first check-in status = %d", status)
	}
	if first.QRPayload == "" || first.LabelNumber != 1 {
		t.Fatalf("unexpected check-in reply %+v", first)
	}

	var errBody ErrorResponse
	status = f.do(t, staffToken, http.MethodPost, "/api/checkins", map[string]any{"child_id": c2.ID, "event_name": "Sunday Service"}, &errBody)
	if status != http.StatusConflict || errBody.Code != CodeClassroomFull {
		t.Fatalf("second check-in = %d %+v, want classroom_full", status, errBody)
	}

	var lookup LookupView
	status = f.do(t, staffToken, http.MethodPost, "/api/custody/scan", map[string]any{"qr_payload": first.QRPayload}, &lookup)
	if status != http.StatusOK {
		t.Fatalf("scan status = %d", status)
	}
	candidateID := models.CandidateID("guardian", g1.ID)
	if len(lookup.Candidates) != 1 || lookup.Candidates[0].ID != candidateID || !lookup.Candidates[0].RequiresPIN {
		t.Fatalf("unexpected candidates %+v", lookup.Candidates)
	}
	if lookup.Candidates[0].Method != models.PickupGuardian {
		t.Errorf("candidate method = %q", lookup.Candidates[0].Method)
	}

	var byLabel models.CustodyRecord
	if status := f.do(t, staffToken, http.MethodGet, "/api/labels/1", nil, &byLabel); status != http.StatusOK || byLabel.ID != first.ID {
		t.Fatalf("label lookup = %d, record %d", status, byLabel.ID)
	}

	checkout := map[string]any{"qr_payload": first.QRPayload, "candidate_id": candidateID, "pin": "0000"}
	status = f.do(t, staffToken, http.MethodPost, "/api/checkouts", checkout, &errBody)
	if status != http.StatusUnauthorized || errBody.Code != CodeInvalidPIN {
		t.Fatalf("wrong PIN checkout = %d %+v", status, errBody)
	}

	checkout["pin"] = "1234"
	var closed models.CustodyRecord
	status = f.do(t, staffToken, http.MethodPost, "/api/checkouts", checkout, &closed)
	if status != http.StatusOK {
		t.Fatalf("checkout status = %d", status)
	}
	if closed.PickupMethod != models.PickupGuardian || closed.CheckedOutAt == nil {
		t.Errorf("unexpected closed record %+v", closed)
	}

	status = f.do(t, staffToken, http.MethodPost, "/api/checkouts", checkout, &errBody)
	if status != http.StatusNotFound || errBody.Code != CodeUnknownOrClosed {
		t.Fatalf("repeat checkout = %d %+v", status, errBody)
	}

	var attempts []models.PickupAttempt
	if status := f.do(t, staffToken, http.MethodGet, "/api/custody/"+strconv.FormatInt(closed.ID, 10)+"/attempts", nil, &attempts); status != http.StatusOK {
		t.Fatalf("attempts status = %d", status)
	}
	if len(attempts) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(attempts))
	}

	var occ []models.Occupancy
	if status := f.do(t, staffToken, http.MethodGet, "/api/occupancy", nil, &occ); status != http.StatusOK {
		t.Fatalf("occupancy status = %d", status)
	}
	if len(occ) != 1 || occ[0].Current != 0 {
		t.Errorf("unexpected occupancy %+v", occ)
	}
}

func TestOverrideOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	staffToken := f.token(t, "desk-1", models.RoleStaff)
	leaderToken := f.token(t, "leader-1", models.RoleLeader)
	child, _ := f.seedChild(t, "Ana", "1234")

	var rec CustodyView
	if status := f.do(t, staffToken, http.MethodPost, "/api/checkins", map[string]any{"child_id": child.ID, "event_name": "Sunday Service"}, &rec); status != http.StatusCreated {
		t.Fatalf("check-in status = %d", status)
	}
	path := "/api/custody/" + strconv.FormatInt(rec.ID, 10) + "/override"
	body := map[string]any{"reason": "guardian hospitalised, aunt collecting", "pickup_person_name": "Carla Souza", "pickup_person_document": "RG 123"}

	var errBody ErrorResponse
	if status := f.do(t, staffToken, http.MethodPost, path, body, &errBody); status != http.StatusForbidden || errBody.Code != CodeForbidden {
		t.Fatalf("staff override = %d %+v", status, errBody)
	}

	var res service.OverrideResult
	if status := f.do(t, leaderToken, http.MethodPost, path, body, &res); status != http.StatusOK {
		t.Fatalf("leader override status = %d", status)
	}
	if res.Record == nil || res.Record.PickupMethod != models.PickupLeaderOverride {
		t.Fatalf("unexpected override result %+v", res)
	}

	var o models.LeaderOverride
	if status := f.do(t, staffToken, http.MethodGet, path, nil, &o); status != http.StatusOK {
		t.Fatalf("get override status = %d", status)
	}
	if o.LeaderActorID != "leader-1" {
		t.Errorf("override actor = %q", o.LeaderActorID)
	}
}

func TestAuthMiddleware(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name       string
		token      string
		method     string
		path       string
		wantStatus int
	}{
		{name: "no token", method: http.MethodGet, path: "/api/classrooms", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", token: "not-a-jwt", method: http.MethodGet, path: "/api/classrooms", wantStatus: http.StatusUnauthorized},
		{name: "staff reads classrooms", token: f.token(t, "desk-1", models.RoleStaff), method: http.MethodGet, path: "/api/classrooms", wantStatus: http.StatusOK},
		{name: "staff denied admin", token: f.token(t, "desk-1", models.RoleStaff), method: http.MethodGet, path: "/api/admin/audit", wantStatus: http.StatusForbidden},
		{name: "admin reads audit", token: f.token(t, "root", models.RoleAdmin), method: http.MethodGet, path: "/api/admin/audit", wantStatus: http.StatusOK},
		{name: "health is public", method: http.MethodGet, path: "/healthz", wantStatus: http.StatusOK},
		{name: "bad path id", token: f.token(t, "desk-1", models.RoleStaff), method: http.MethodGet, path: "/api/children/abc", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.do(t, tt.token, tt.method, tt.path, nil, nil); got != tt.wantStatus {
				t.Errorf("status = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestRosterAndGrantsOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	staffToken := f.token(t, "desk-1", models.RoleStaff)

	var child models.Child
	if status := f.do(t, staffToken, http.MethodPost, "/api/children", map[string]any{"name": "Ana", "classroom": "Maternal"}, &child); status != http.StatusCreated {
		t.Fatalf("create child status = %d", status)
	}
	var g models.Guardian
	if status := f.do(t, staffToken, http.MethodPost, "/api/guardians", map[string]any{"name": "Maria"}, &g); status != http.StatusCreated {
		t.Fatalf("create guardian status = %d", status)
	}

	childPath := "/api/children/" + strconv.FormatInt(child.ID, 10)
	var link models.ChildGuardian
	if status := f.do(t, staffToken, http.MethodPost, childPath+"/guardians", map[string]any{"guardian_id": g.ID}, &link); status != http.StatusCreated {
		t.Fatalf("link status = %d", status)
	}
	if !link.CanPickup {
		t.Error("can_pickup should default to true")
	}
	if status := f.do(t, staffToken, http.MethodPost, childPath+"/guardians", map[string]any{"guardian_id": g.ID}, nil); status != http.StatusConflict {
		t.Errorf("duplicate link status = %d, want 409", status)
	}

	var grant models.PickupAuthorization
	status := f.do(t, staffToken, http.MethodPost, childPath+"/grants", map[string]any{
		"guardian_id":        g.ID,
		"authorized_name":    "Tia Carla",
		"authorization_type": "one_time",
		"pin":                "1234",
	}, &grant)
	if status != http.StatusCreated {
		t.Fatalf("create grant status = %d", status)
	}
	if grant.Status != models.GrantActive {
		t.Errorf("grant status = %q, want active", grant.Status)
	}

	var grants []models.PickupAuthorization
	if status := f.do(t, staffToken, http.MethodGet, childPath+"/grants", nil, &grants); status != http.StatusOK || len(grants) != 1 {
		t.Fatalf("list grants = %d, %d grants", status, len(grants))
	}

	grantPath := "/api/grants/" + strconv.FormatInt(grant.ID, 10)
	if status := f.do(t, staffToken, http.MethodPost, grantPath+"/cancel", nil, &grant); status != http.StatusOK {
		t.Fatalf("cancel status = %d", status)
	}
	if status := f.do(t, staffToken, http.MethodPost, grantPath+"/cancel", nil, nil); status != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", status)
	}
}

func TestAdminExport(t *testing.T) {
	f := newAPIFixture(t)
	f.seedChild(t, "Ana", "1234")

	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/api/admin/export", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "root", models.RoleAdmin))
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment; filename=kidcheck_backup_") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	var data service.BackupData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		t.Fatalf("decode backup: %v", err)
	}
	if len(data.Children) != 1 || len(data.Guardians) != 1 {
		t.Errorf("backup has %d children and %d guardians", len(data.Children), len(data.Guardians))
	}
}

func TestLoggingSetsRequestID(t *testing.T) {
	h := Logging(zap.NewNop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, _ := r.Context().Value(RequestIDContextKey).(string); id != "abc-123" {
			t.Errorf("request id in context = %q", id)
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}
