package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensehub/internal/domain"
)

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{domain.CodeValidationError, http.StatusBadRequest},
		{domain.CodeInvalidInstanceIdentifier, http.StatusBadRequest},
		{domain.CodeInvalidLicenseKey, http.StatusUnauthorized},
		{domain.CodeInvalidAPIKey, http.StatusUnauthorized},
		{domain.CodeForbidden, http.StatusForbidden},
		{domain.CodeLicenseNotFound, http.StatusNotFound},
		{domain.CodeDuplicateActive, http.StatusConflict},
		{domain.CodeSeatLimitExceeded, http.StatusUnprocessableEntity},
		{domain.CodeLicenseExpired, http.StatusUnprocessableEntity},
		{domain.CodeInvalidLicenseStatus, http.StatusUnprocessableEntity},
		{domain.CodeRateLimitExceeded, http.StatusTooManyRequests},
		{domain.CodeInternalError, http.StatusInternalServerError},
		{"SOMETHING_UNKNOWN", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, StatusForCode(tt.code))
		})
	}
}

func TestFromErrorKeepsDomainCode(t *testing.T) {
	apiErr := FromError(domain.ErrSeatLimitExceeded)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, domain.CodeSeatLimitExceeded, apiErr.Code)
	assert.Equal(t, domain.ErrSeatLimitExceeded.Message, apiErr.Message)
}

func TestFromErrorHidesInternals(t *testing.T) {
	apiErr := FromError(errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, domain.CodeInternalError, apiErr.Code)
	assert.NotContains(t, apiErr.Message, "pq:")
}

func TestEnvelopeBodyShape(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	err := render.Render(w, r, Envelope(FromError(domain.ErrLicenseNotFound)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, domain.CodeLicenseNotFound, body.Error.Code)
	assert.Equal(t, "License not found", body.Error.Message)
}
