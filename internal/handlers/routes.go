package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"kidcheck/internal/database"
	"kidcheck/internal/models"
	"kidcheck/internal/service"
)

// RouterConfig carries what NewRouter needs beyond the services
type RouterConfig struct {
	Middleware *Middleware
	DB         *database.DB
	Location   *time.Location
	Metrics    http.Handler
	Logger     *zap.Logger
}

// NewRouter wires every route of the API
func NewRouter(svc *service.Services, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mw := cfg.Middleware

	custody := NewCustodyHandler(svc, cfg.Location, logger)
	grants := NewGrantHandler(svc.Grants, logger)
	roster := NewRosterHandler(svc.Roster, logger)
	admin := NewAdminHandler(svc.Backup, service.NewDBAuditSink(cfg.DB), svc.Grants, logger)

	staff := func(h http.HandlerFunc) http.HandlerFunc {
		return mw.RateLimit(mw.RequireActor(h))
	}
	adminOnly := func(h http.HandlerFunc) http.HandlerFunc {
		return mw.RateLimit(mw.RequireRole(models.RoleAdmin)(h))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.DB.PingContext(r.Context()); err != nil {
			respondWithStatus(w, http.StatusServiceUnavailable, CodeInternal, "database unavailable")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	// Custody
	mux.HandleFunc("POST /api/checkins", staff(custody.CheckIn))
	mux.HandleFunc("POST /api/checkouts", staff(custody.CheckOut))
	mux.HandleFunc("POST /api/custody/scan", staff(custody.Scan))
	mux.HandleFunc("GET /api/custody", staff(custody.ListOpen))
	mux.HandleFunc("GET /api/labels/{label}", staff(custody.ByLabel))
	mux.HandleFunc("GET /api/custody/{id}/candidates", staff(custody.Candidates))
	mux.HandleFunc("GET /api/custody/{id}/attempts", staff(custody.Attempts))
	mux.HandleFunc("POST /api/custody/{id}/override", staff(custody.Override))
	mux.HandleFunc("GET /api/custody/{id}/override", staff(custody.GetOverride))
	mux.HandleFunc("GET /api/occupancy", staff(custody.Occupancy))

	// Roster
	mux.HandleFunc("GET /api/classrooms", staff(roster.ListClassrooms))
	mux.HandleFunc("GET /api/children", staff(roster.ListChildren))
	mux.HandleFunc("POST /api/children", staff(roster.CreateChild))
	mux.HandleFunc("GET /api/children/{id}", staff(roster.GetChild))
	mux.HandleFunc("PUT /api/children/{id}", staff(roster.UpdateChild))
	mux.HandleFunc("GET /api/children/{id}/history", staff(custody.History))
	mux.HandleFunc("GET /api/children/{id}/guardians", staff(roster.ListGuardians))
	mux.HandleFunc("POST /api/children/{id}/guardians", staff(roster.LinkGuardian))
	mux.HandleFunc("PUT /api/children/{id}/guardians", staff(roster.UpdateLink))
	mux.HandleFunc("GET /api/children/{id}/authorized-pickups", staff(roster.ListAuthorizedPickups))
	mux.HandleFunc("POST /api/children/{id}/authorized-pickups", staff(roster.AddAuthorizedPickup))
	mux.HandleFunc("DELETE /api/authorized-pickups/{id}", staff(roster.DeactivateAuthorizedPickup))
	mux.HandleFunc("POST /api/guardians", staff(roster.CreateGuardian))
	mux.HandleFunc("GET /api/guardians/{id}", staff(roster.GetGuardian))
	mux.HandleFunc("PUT /api/guardians/{id}/pin", staff(roster.SetGuardianPIN))

	// Grants
	mux.HandleFunc("GET /api/children/{id}/grants", staff(grants.ListForChild))
	mux.HandleFunc("POST /api/children/{id}/grants", staff(grants.Create))
	mux.HandleFunc("GET /api/grants/{id}", staff(grants.Get))
	mux.HandleFunc("POST /api/grants/{id}/approve", staff(grants.Approve))
	mux.HandleFunc("POST /api/grants/{id}/cancel", staff(grants.Cancel))

	// Admin
	mux.HandleFunc("GET /api/admin/export", adminOnly(admin.ExportDatabase))
	mux.HandleFunc("POST /api/admin/import", adminOnly(admin.ImportDatabase))
	mux.HandleFunc("GET /api/admin/audit", adminOnly(admin.ListAudit))
	mux.HandleFunc("POST /api/admin/grants/expire", adminOnly(admin.ExpireGrants))

	return Logging(logger, mux)
}
