package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_Handle(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   ErrorType
	}{
		{"validation", NewValidationError("bad page"), http.StatusBadRequest, ErrorTypeValidation},
		{"not found", NewNotFoundError("topic"), http.StatusNotFound, ErrorTypeNotFound},
		{"conflict", NewConflictError("topic exists"), http.StatusConflict, ErrorTypeConflict},
		{"unauthorized", NewUnauthorizedError(""), http.StatusUnauthorized, ErrorTypeUnauthorized},
		{"store", NewStoreError("list_topics", fmt.Errorf("boom")), http.StatusInternalServerError, ErrorTypeStore},
		{"unavailable", NewUnavailableError("graph store"), http.StatusServiceUnavailable, ErrorTypeUnavailable},
		{"wrapped", fmt.Errorf("context: %w", NewNotFoundError("session")), http.StatusNotFound, ErrorTypeNotFound},
		{"foreign", fmt.Errorf("plain"), http.StatusInternalServerError, ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewErrorHandler(zap.NewNop(), false, "1.0.0")
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/topics", nil)

			h.Handle(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeErrorResponse(t, rec)
			assert.True(t, body.Error)
			assert.Equal(t, string(tt.wantType), body.Type)
			assert.Equal(t, "1.0.0", body.Version)
		})
	}
}

func TestErrorHandler_HidesForeignMessagesOutsideDebug(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := httptest.NewRecorder()
	NewErrorHandler(zap.NewNop(), false, "").Handle(rec, req, fmt.Errorf("secret detail"))
	assert.Equal(t, "An internal error occurred", decodeErrorResponse(t, rec).Message)

	rec = httptest.NewRecorder()
	NewErrorHandler(zap.NewNop(), true, "").Handle(rec, req, fmt.Errorf("secret detail"))
	assert.Equal(t, "secret detail", decodeErrorResponse(t, rec).Message)
}

func TestErrorHandler_Recoverer(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false, "")
	panicky := h.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	panicky.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(ErrorTypeInternal), decodeErrorResponse(t, rec).Type)
}

func TestPredicates(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewConflictError("dup"))
	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.True(t, IsStore(NewUnavailableError("graph store")))
	assert.True(t, IsStore(NewStoreError("op", nil)))
	assert.False(t, IsStore(NewValidationError("x")))
}
