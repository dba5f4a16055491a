package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"kidcheck/internal/models"
	"kidcheck/internal/service"
)

// GrantHandler serves temporary pickup authorizations
type GrantHandler struct {
	grants *service.GrantService
	now    func() time.Time
	logger *zap.Logger
}

// NewGrantHandler creates a new grant handler
func NewGrantHandler(grants *service.GrantService, logger *zap.Logger) *GrantHandler {
	return &GrantHandler{grants: grants, now: time.Now, logger: logger}
}

type createGrantBody struct {
	GuardianID             int64                    `json:"guardian_id"`
	AuthorizedName         string                   `json:"authorized_name"`
	Relationship           string                   `json:"relationship"`
	Document               string                   `json:"document"`
	Type                   models.AuthorizationType `json:"authorization_type"`
	ValidFrom              *time.Time               `json:"valid_from"`
	ValidUntil             *time.Time               `json:"valid_until"`
	PIN                    string                   `json:"pin"`
	LeaderApprovalRequired bool                     `json:"leader_approval_required"`
}

// Create registers a grant for the child in the path
func (h *GrantHandler) Create(w http.ResponseWriter, r *http.Request) {
	childID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body createGrantBody
	if !decodeJSON(w, r, &body) {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	req := service.CreateGrantRequest{
		ChildID:                childID,
		GuardianID:             body.GuardianID,
		AuthorizedName:         body.AuthorizedName,
		Relationship:           body.Relationship,
		Document:               body.Document,
		Type:                   body.Type,
		ValidUntil:             body.ValidUntil,
		PIN:                    body.PIN,
		LeaderApprovalRequired: body.LeaderApprovalRequired,
		Actor:                  actor,
	}
	if body.ValidFrom != nil {
		req.ValidFrom = *body.ValidFrom
	}

	grant, err := h.grants.Create(r.Context(), req, h.now())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, grant)
}

// ListForChild lists every grant of the child in the path
func (h *GrantHandler) ListForChild(w http.ResponseWriter, r *http.Request) {
	childID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	grants, err := h.grants.ListForChild(r.Context(), childID)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, grants)
}

// Get returns one grant
func (h *GrantHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	grant, err := h.grants.Get(r.Context(), id)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, grant)
}

// Approve activates a pending grant
func (h *GrantHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	actor, _ := ActorFromContext(r.Context())
	grant, err := h.grants.Approve(r.Context(), id, actor, h.now())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, grant)
}

// Cancel revokes a grant that has not been used
func (h *GrantHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	actor, _ := ActorFromContext(r.Context())
	grant, err := h.grants.Cancel(r.Context(), id, actor, h.now())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, grant)
}
