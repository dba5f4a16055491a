package handlers

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"kidcheck/internal/service"
)

// CustodyHandler serves check-in, check-out and emergency release
type CustodyHandler struct {
	custody  *service.CustodyService
	override *service.OverrideService
	ledger   *service.CapacityLedger
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// NewCustodyHandler creates a new custody handler
func NewCustodyHandler(svc *service.Services, loc *time.Location, logger *zap.Logger) *CustodyHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &CustodyHandler{
		custody:  svc.Custody,
		override: svc.Override,
		ledger:   svc.Ledger,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

type checkInBody struct {
	ChildID   int64  `json:"child_id"`
	EventName string `json:"event_name"`
	Classroom string `json:"classroom"`
}

// CheckIn admits a child into custody
func (h *CustodyHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var body checkInBody
	if !decodeJSON(w, r, &body) {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	rec, err := h.custody.CheckIn(r.Context(), service.CheckInRequest{
		ChildID:   body.ChildID,
		EventName: body.EventName,
		Classroom: body.Classroom,
		Actor:     actor,
	}, h.now())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, CustodyView{CustodyRecord: rec, QRPayload: h.custody.QRPayload(rec)})
}

type checkOutBody struct {
	QRPayload   string `json:"qr_payload"`
	RecordID    int64  `json:"record_id"`
	CandidateID string `json:"candidate_id"`
	PIN         string `json:"pin"`
}

// CheckOut releases a child to a selected candidate
func (h *CustodyHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	var body checkOutBody
	if !decodeJSON(w, r, &body) {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	rec, err := h.custody.CheckOut(r.Context(), service.CheckOutRequest{
		Ref:         service.CustodyRef{QRPayload: body.QRPayload, RecordID: body.RecordID},
		CandidateID: body.CandidateID,
		PIN:         body.PIN,
		Actor:       actor,
	}, h.now())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

type scanBody struct {
	QRPayload string `json:"qr_payload"`
}

// Scan resolves a label QR payload to its open record and pickup candidates
func (h *CustodyHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var body scanBody
	if !decodeJSON(w, r, &body) {
		return
	}
	h.lookup(w, r, service.CustodyRef{QRPayload: body.QRPayload})
}

// Candidates lists who may collect the child held by the record in the path
func (h *CustodyHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	h.lookup(w, r, service.CustodyRef{RecordID: id})
}

func (h *CustodyHandler) lookup(w http.ResponseWriter, r *http.Request, ref service.CustodyRef) {
	rec, candidates, err := h.custody.Candidates(r.Context(), ref, h.now())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, LookupView{Record: rec, Candidates: candidateViews(candidates)})
}

// ByLabel finds an open record from its printed label number
func (h *CustodyHandler) ByLabel(w http.ResponseWriter, r *http.Request) {
	label, err := strconv.Atoi(r.PathValue("label"))
	if err != nil || label <= 0 {
		respondWithStatus(w, http.StatusBadRequest, CodeBadRequest, "Invalid label number")
		return
	}
	rec, err := h.custody.FindByLabel(r.Context(), r.URL.Query().Get("date"), label, h.now())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// Attempts lists the checkout attempts made against a record
func (h *CustodyHandler) Attempts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	attempts, err := h.custody.Attempts(r.Context(), id)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, attempts)
}

// ListOpen lists children currently in custody, optionally for one classroom
func (h *CustodyHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := h.custody.ListOpen(r.Context(), q.Get("date"), q.Get("classroom"), h.now())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// History lists every custody record of a child, newest first
func (h *CustodyHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	records, err := h.custody.History(r.Context(), id)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// Occupancy reports headcounts for every classroom on a date
func (h *CustodyHandler) Occupancy(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = service.EventDate(h.now(), h.loc)
	}
	occ, err := h.ledger.List(r.Context(), date)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, occ)
}

type overrideBody struct {
	Reason               string `json:"reason"`
	PickupPersonName     string `json:"pickup_person_name"`
	PickupPersonDocument string `json:"pickup_person_document"`
}

// Override performs an emergency release of the record in the path
func (h *CustodyHandler) Override(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body overrideBody
	if !decodeJSON(w, r, &body) {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	res, err := h.override.Release(r.Context(), service.OverrideRequest{
		CustodyRecordID:      id,
		Actor:                actor,
		Reason:               body.Reason,
		PickupPersonName:     body.PickupPersonName,
		PickupPersonDocument: body.PickupPersonDocument,
	}, h.now())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// GetOverride returns the override documenting a record's release
func (h *CustodyHandler) GetOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.override.Get(r.Context(), id)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	if o == nil {
		respondWithStatus(w, http.StatusNotFound, CodeNotFound, "override not found")
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		respondWithStatus(w, http.StatusBadRequest, CodeBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}
