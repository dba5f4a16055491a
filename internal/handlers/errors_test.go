package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"kidcheck/internal/database"
	"kidcheck/internal/service"
	"kidcheck/internal/validation"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestRespondWithErrorMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "classroom full", err: service.ErrClassroomFull, wantStatus: http.StatusConflict, wantCode: CodeClassroomFull},
		{name: "already checked in", err: service.ErrAlreadyCheckedIn, wantStatus: http.StatusConflict, wantCode: CodeAlreadyCheckedIn},
		{name: "inactive classroom", err: service.ErrInactiveClassroom, wantStatus: http.StatusUnprocessableEntity, wantCode: CodeInactiveClassroom},
		{name: "unknown or closed", err: service.ErrUnknownOrAlreadyClosed, wantStatus: http.StatusNotFound, wantCode: CodeUnknownOrClosed},
		{name: "not authorized", err: service.ErrNotAuthorized, wantStatus: http.StatusForbidden, wantCode: CodeNotAuthorized},
		{name: "invalid pin", err: service.ErrInvalidPIN, wantStatus: http.StatusUnauthorized, wantCode: CodeInvalidPIN},
		{name: "grant used", err: service.ErrGrantExpiredOrUsed, wantStatus: http.StatusConflict, wantCode: CodeGrantExpiredUsed},
		{name: "override forbidden", err: service.ErrOverrideForbidden, wantStatus: http.StatusForbidden, wantCode: CodeForbidden},
		{name: "too many attempts", err: service.ErrTooManyAttempts, wantStatus: http.StatusTooManyRequests, wantCode: CodeTooManyAttempts},
		{name: "wrapped not found", err: fmt.Errorf("lookup: %w", service.ErrChildNotFound), wantStatus: http.StatusNotFound, wantCode: CodeNotFound},
		{name: "conflict", err: database.ErrConflict, wantStatus: http.StatusConflict, wantCode: CodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondWithError(rec, zap.NewNop(), tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := decodeError(t, rec); got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestRespondWithErrorValidation(t *testing.T) {
	rec := httptest.NewRecorder()
	respondWithError(rec, zap.NewNop(), validation.ValidationError{Field: "event_name", Message: "event name is required"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Field != "event_name" || body.Code != CodeValidation {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestRespondWithErrorHidesAndLogsUnexpected(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	rec := httptest.NewRecorder()

	respondWithError(rec, zap.New(core), errors.New("boom: connection reset"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Errorf("internal error leaked to client: %q", rec.Body.String())
	}
	if logs.Len() != 1 {
		t.Fatalf("expected one log entry, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["error"]; !strings.Contains(fmt.Sprint(got), "boom") {
		t.Errorf("expected logged error to include cause, got %v", got)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"child_id":1,"bogus":true}`))
	rec := httptest.NewRecorder()

	var body checkInBody
	if decodeJSON(rec, req, &body) {
		t.Fatal("expected decode to fail")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}
