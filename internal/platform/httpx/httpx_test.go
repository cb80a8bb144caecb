package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleItem struct {
	Name string `json:"name" validate:"required"`
}

type sampleRequest struct {
	Name  string       `json:"name" validate:"required,min=2"`
	Email string       `json:"email" validate:"required,email"`
	Items []sampleItem `json:"items" validate:"min=1,dive"`
}

func TestValidatorMessages(t *testing.T) {
	v := NewValidator()

	err := v.Struct(sampleRequest{Name: "A", Email: "nope"})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, verr.Messages, "name must be at least 2 characters")
	assert.Contains(t, verr.Messages, "Invalid email address")
	assert.Contains(t, verr.Messages, "At least one item is required")
}

func TestValidatorNestedField(t *testing.T) {
	v := NewValidator()

	err := v.Struct(sampleRequest{Name: "Ann", Email: "ann@example.com", Items: []sampleItem{{}}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"items[0].name is required"}, verr.Messages)
}

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("quote: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: cannot move", ErrConflict), http.StatusConflict},
		{ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("%w: postgres down", ErrDependency), http.StatusServiceUnavailable},
		{NewValidationError("bad"), http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, tc.status, StatusFor(tc.err))
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("%w: dial tcp 10.0.0.4:5432", ErrDependency))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.NotContains(t, body.Detail, "10.0.0.4")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	var target sampleRequest
	err := DecodeJSON(req, &target)
	assert.ErrorIs(t, err, ErrValidation)
}
