package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"kidcheck/internal/database"
	"kidcheck/internal/service"
	"kidcheck/internal/validation"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrAlreadyCheckedIn, http.StatusConflict, CodeAlreadyCheckedIn},
	{service.ErrClassroomFull, http.StatusConflict, CodeClassroomFull},
	{service.ErrGrantExpiredOrUsed, http.StatusConflict, CodeGrantExpiredUsed},
	{service.ErrAlreadyLinked, http.StatusConflict, CodeConflict},
	{service.ErrInvalidGrantState, http.StatusConflict, CodeInvalidState},
	{database.ErrConflict, http.StatusConflict, CodeConflict},
	{service.ErrInactiveClassroom, http.StatusUnprocessableEntity, CodeInactiveClassroom},
	{service.ErrUnknownOrAlreadyClosed, http.StatusNotFound, CodeUnknownOrClosed},
	{service.ErrCustodyNotFound, http.StatusNotFound, CodeNotFound},
	{service.ErrClassroomNotFound, http.StatusNotFound, CodeNotFound},
	{service.ErrChildNotFound, http.StatusNotFound, CodeNotFound},
	{service.ErrGuardianNotFound, http.StatusNotFound, CodeNotFound},
	{service.ErrGrantNotFound, http.StatusNotFound, CodeNotFound},
	{service.ErrAuthorizedPickupNotFound, http.StatusNotFound, CodeNotFound},
	{service.ErrNotAuthorized, http.StatusForbidden, CodeNotAuthorized},
	{service.ErrOverrideForbidden, http.StatusForbidden, CodeForbidden},
	{service.ErrInvalidPIN, http.StatusUnauthorized, CodeInvalidPIN},
	{service.ErrTooManyAttempts, http.StatusTooManyRequests, CodeTooManyAttempts},
}

// respondWithError maps err to a status and JSON body. Unexpected errors are
// logged and hidden behind a generic message.
func respondWithError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var ve validation.ValidationError
	if errors.As(err, &ve) {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: ve.Message, Code: CodeValidation, Field: ve.Field})
		return
	}

	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			msg := e.err.Error()
			respondJSON(w, e.status, ErrorResponse{Error: msg, Code: e.code})
			return
		}
	}

	logger.Error("request failed", zap.Error(err))
	respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ErrInternalServerError, Code: CodeInternal})
}

func respondWithStatus(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON reads a bounded JSON body into dst and answers 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondWithStatus(w, http.StatusBadRequest, CodeBadRequest, ErrInvalidJSON)
		return false
	}
	return true
}
