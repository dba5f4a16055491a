package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"kidcheck/internal/repository"
	"kidcheck/internal/service"
)

// AdminHandler serves backups, the audit trail and maintenance tasks
type AdminHandler struct {
	backup *service.BackupService
	audit  *service.DBAuditSink
	grants *service.GrantService
	now    func() time.Time
	logger *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(backup *service.BackupService, audit *service.DBAuditSink, grants *service.GrantService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{backup: backup, audit: audit, grants: grants, now: time.Now, logger: logger}
}

// ExportDatabase streams a JSON backup as a file download
func (h *AdminHandler) ExportDatabase(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	timestamp := h.now().Format("20060102_150405")
	filename := fmt.Sprintf("kidcheck_backup_%s.json", timestamp)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if _, err := h.backup.Export(r.Context(), w); err != nil {
		// Headers may already be on the wire
		h.logger.Error("export failed", zap.String("actor", actor.ID), zap.Error(err))
		return
	}
	h.logger.Info("database exported", zap.String("actor", actor.ID))
}

// ImportDatabase restores the roster from an uploaded backup
func (h *AdminHandler) ImportDatabase(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, 64*maxBodyBytes)

	summary, err := h.backup.Import(r.Context(), r.Body)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	h.logger.Info("database imported", zap.String("actor", actor.ID), zap.Any("summary", summary))
	respondJSON(w, http.StatusOK, summary)
}

// ListAudit lists audit events filtered by child_id, record_id and type
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f repository.AuditFilter
	var err error
	if v := q.Get("child_id"); v != "" {
		if f.ChildID, err = strconv.ParseInt(v, 10, 64); err != nil {
			respondWithStatus(w, http.StatusBadRequest, CodeBadRequest, "Invalid child_id")
			return
		}
	}
	if v := q.Get("record_id"); v != "" {
		if f.CustodyRecordID, err = strconv.ParseInt(v, 10, 64); err != nil {
			respondWithStatus(w, http.StatusBadRequest, CodeBadRequest, "Invalid record_id")
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			respondWithStatus(w, http.StatusBadRequest, CodeBadRequest, "Invalid limit")
			return
		}
	}
	f.EventType = q.Get("type")

	events, err := h.audit.List(r.Context(), f)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

// ExpireGrants moves lapsed grants to expired
func (h *AdminHandler) ExpireGrants(w http.ResponseWriter, r *http.Request) {
	n, err := h.grants.ExpireStale(r.Context(), h.now())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"expired": n})
}
