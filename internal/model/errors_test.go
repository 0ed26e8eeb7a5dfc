package model

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
		status   int
	}{
		{&ValidationError{Message: "bad"}, ErrValidation, http.StatusBadRequest},
		{&MissingCredentialError{Provider: ProviderOpenAI}, ErrMissingCredential, http.StatusUnauthorized},
		{&ModelNotLoadedError{}, ErrModelNotLoaded, http.StatusConflict},
		{&NotFoundError{ID: "c1"}, ErrNotFound, http.StatusNotFound},
		{&QuotaExceededError{Limit: 10, Total: 20}, ErrQuotaExceeded, http.StatusRequestEntityTooLarge},
		{&BusyError{}, ErrBusy, http.StatusConflict},
		{&PreconditionError{Message: "no provider"}, ErrPrecondition, http.StatusPreconditionFailed},
		{&NetworkError{Op: "save", Cause: errors.New("refused")}, ErrNetwork, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T", tt.err), func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))

			var httpErr HTTPError
			assert.True(t, errors.As(tt.err, &httpErr))
			assert.Equal(t, tt.status, httpErr.StatusCode())
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestNetworkErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := &NetworkError{Op: "save", Cause: cause}
	assert.True(t, errors.Is(err, cause))
}

func TestProviderErrorStatus(t *testing.T) {
	err := &ProviderError{Status: 429, Message: "rate limited"}

	var httpErr HTTPError
	assert.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode())
}
