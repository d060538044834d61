package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:   http.StatusBadRequest,
		KindRateLimited:  http.StatusTooManyRequests,
		KindUnauthorized: http.StatusUnauthorized,
		KindForbidden:    http.StatusForbidden,
		KindNotFound:     http.StatusNotFound,
		KindUpstream:     http.StatusBadGateway,
		KindInternal:     http.StatusInternalServerError,
	}
	for kind, status := range cases {
		t.Run(kind.String(), func(t *testing.T) {
			assert.Equal(t, status, New(kind, "x").HTTPStatus())
		})
	}
}

func TestKindOfUnwrapsChains(t *testing.T) {
	err := fmt.Errorf("handler: %w", Forbidden("admin role required"))
	assert.Equal(t, KindForbidden, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestWriteShowsValidationMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, Validation("Full name is required"), "Something went wrong")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Full name is required", body["error"])
}

func TestWriteHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, errors.New("pq: connection refused"), "Please call the office")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Contains(t, rec.Body.String(), "Please call the office")
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("stripe down")
	err := Wrap(KindUpstream, "checkout failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "stripe down")
}
