package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "certify/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "internal_error" {
			t.Fatalf("expected error code internal_error, got %q", body["error"])
		}
		if _, ok := body["error_description"]; ok {
			t.Fatalf("expected error_description to be omitted for internal errors")
		}
	})

	t.Run("bad request includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid input"))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "bad_request" {
			t.Fatalf("expected error code bad_request, got %q", body["error"])
		}
		if body["error_description"] != "invalid input" {
			t.Fatalf("expected error_description to be returned for bad request")
		}
	})

	t.Run("uncoded error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("boom"))
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})

	t.Run("unavailable keeps its code", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, fmt.Errorf("lookup: %w", dErrors.New(dErrors.CodeUnavailable, "ledger unavailable")))
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"unavailable"`) {
			t.Fatalf("expected unavailable code, got %s", w.Body.String())
		}
	})
}

func TestStatusFor(t *testing.T) {
	cases := map[dErrors.Code]int{
		dErrors.CodeValidation:       http.StatusBadRequest,
		dErrors.CodeUnauthorized:     http.StatusUnauthorized,
		dErrors.CodeForbidden:        http.StatusForbidden,
		dErrors.CodeIssuerNotActive:  http.StatusForbidden,
		dErrors.CodeNotFound:         http.StatusNotFound,
		dErrors.CodeAlreadyExists:    http.StatusConflict,
		dErrors.CodeNoOpTransition:   http.StatusConflict,
		dErrors.CodeTerminalState:    http.StatusConflict,
		dErrors.CodeNonTransferable:  http.StatusConflict,
		dErrors.CodeAlreadyRecipient: http.StatusConflict,
		dErrors.CodeTimeout:          http.StatusGatewayTimeout,
		dErrors.CodeUnavailable:      http.StatusServiceUnavailable,
		dErrors.CodeInternal:         http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := StatusFor(code); got != want {
			t.Errorf("StatusFor(%s) = %d, want %d", code, got, want)
		}
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	var v struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(req, &v)
	if !dErrors.HasCode(err, dErrors.CodeBadRequest) {
		t.Fatalf("expected bad_request, got %v", err)
	}
}
