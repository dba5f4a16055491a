package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"kidcheck/internal/service"
)

// RosterHandler serves classrooms, children, guardians and standing pickups
type RosterHandler struct {
	roster *service.RosterService
	logger *zap.Logger
}

// NewRosterHandler creates a new roster handler
func NewRosterHandler(roster *service.RosterService, logger *zap.Logger) *RosterHandler {
	return &RosterHandler{roster: roster, logger: logger}
}

// ListClassrooms lists configured classrooms
func (h *RosterHandler) ListClassrooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.roster.ListClassrooms(r.Context())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, rooms)
}

// CreateChild registers a child
func (h *RosterHandler) CreateChild(w http.ResponseWriter, r *http.Request) {
	var in service.ChildInput
	if !decodeJSON(w, r, &in) {
		return
	}
	child, err := h.roster.CreateChild(r.Context(), in)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, child)
}

// UpdateChild replaces the editable profile of a child
func (h *RosterHandler) UpdateChild(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in service.ChildInput
	if !decodeJSON(w, r, &in) {
		return
	}
	child, err := h.roster.UpdateChild(r.Context(), id, in)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, child)
}

// GetChild returns one child
func (h *RosterHandler) GetChild(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	child, err := h.roster.GetChild(r.Context(), id)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, child)
}

// ListChildren lists children, optionally filtered by classroom
func (h *RosterHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.roster.ListChildren(r.Context(), r.URL.Query().Get("classroom"))
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, children)
}

// CreateGuardian registers a guardian
func (h *RosterHandler) CreateGuardian(w http.ResponseWriter, r *http.Request) {
	var in service.GuardianInput
	if !decodeJSON(w, r, &in) {
		return
	}
	g, err := h.roster.CreateGuardian(r.Context(), in)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, g)
}

// GetGuardian returns one guardian
func (h *RosterHandler) GetGuardian(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	g, err := h.roster.GetGuardian(r.Context(), id)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, g)
}

type pinBody struct {
	PIN string `json:"pin"`
}

// SetGuardianPIN sets or clears a guardian's pickup PIN
func (h *RosterHandler) SetGuardianPIN(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body pinBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.roster.SetGuardianPIN(r.Context(), id, body.PIN); err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type linkBody struct {
	GuardianID   int64  `json:"guardian_id"`
	Relationship string `json:"relationship"`
	IsPrimary    bool   `json:"is_primary"`
	CanPickup    *bool  `json:"can_pickup"`
}

func (b linkBody) input(childID int64) service.LinkInput {
	canPickup := true
	if b.CanPickup != nil {
		canPickup = *b.CanPickup
	}
	return service.LinkInput{
		ChildID:      childID,
		GuardianID:   b.GuardianID,
		Relationship: b.Relationship,
		IsPrimary:    b.IsPrimary,
		CanPickup:    canPickup,
	}
}

// LinkGuardian attaches a guardian to the child in the path. can_pickup
// defaults to true.
func (h *RosterHandler) LinkGuardian(w http.ResponseWriter, r *http.Request) {
	childID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body linkBody
	if !decodeJSON(w, r, &body) {
		return
	}
	link, err := h.roster.LinkGuardian(r.Context(), body.input(childID))
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, link)
}

// UpdateLink changes an existing guardian link
func (h *RosterHandler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	childID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body linkBody
	if !decodeJSON(w, r, &body) {
		return
	}
	link, err := h.roster.UpdateLink(r.Context(), body.input(childID))
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, link)
}

// ListGuardians lists the guardians of a child
func (h *RosterHandler) ListGuardians(w http.ResponseWriter, r *http.Request) {
	childID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	links, err := h.roster.ListGuardians(r.Context(), childID)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, links)
}

type authorizedPickupBody struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	PIN          string `json:"pin"`
}

// AddAuthorizedPickup registers a standing pickup for the child in the path
func (h *RosterHandler) AddAuthorizedPickup(w http.ResponseWriter, r *http.Request) {
	childID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body authorizedPickupBody
	if !decodeJSON(w, r, &body) {
		return
	}
	p, err := h.roster.AddAuthorizedPickup(r.Context(), service.AuthorizedPickupInput{
		ChildID:      childID,
		Name:         body.Name,
		Relationship: body.Relationship,
		PIN:          body.PIN,
	})
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// ListAuthorizedPickups lists standing pickups. ?all=true includes
// deactivated ones.
func (h *RosterHandler) ListAuthorizedPickups(w http.ResponseWriter, r *http.Request) {
	childID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	activeOnly := r.URL.Query().Get("all") != "true"
	pickups, err := h.roster.ListAuthorizedPickups(r.Context(), childID, activeOnly)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, pickups)
}

// DeactivateAuthorizedPickup withdraws a standing pickup
func (h *RosterHandler) DeactivateAuthorizedPickup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.roster.DeactivateAuthorizedPickup(r.Context(), id); err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
