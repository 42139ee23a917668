package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrInvalidInput, http.StatusBadRequest},
		{fmt.Errorf("loading: %w", ErrInvalidConfig), http.StatusBadRequest},
		{ErrRebuildInProgress, http.StatusConflict},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrNotReady, http.StatusServiceUnavailable},
		{ErrTimeout, http.StatusServiceUnavailable},
		{ErrInternal, http.StatusInternalServerError},
		{errors.New("anything"), http.StatusInternalServerError},
		{New(ErrInvalidConfig, http.StatusServiceUnavailable, "caching is disabled"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatusCode(tt.err), tt.err.Error())
	}
}

func TestAppError(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "limit %d is negative", -1)
	assert.Equal(t, "invalid input: limit -1 is negative", err.Error())
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrInvalidInput)
}
