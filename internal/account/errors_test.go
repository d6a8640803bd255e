package account

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{ErrMissingFields, http.StatusBadRequest, CodeMissingFields},
		{ErrPasswordTooLong, http.StatusBadRequest, CodePasswordTooLong},
		{ErrAccountDisabled, http.StatusForbidden, CodeAccountDisabled},
		{ErrAccountExists, http.StatusBadRequest, CodeUserExists},
		{ErrExternalAccountExists, http.StatusBadRequest, CodeExternalAccountExists},
		{ErrUserNotFound, http.StatusUnauthorized, CodeUserNotFound},
		{ErrWrongPassword, http.StatusUnauthorized, CodeWrongPassword},
		{ErrExternalOnlyAccount, http.StatusBadRequest, CodeExternalOnlyAccount},
		{ErrNoPasswordSet, http.StatusBadRequest, CodeNoPasswordSet},
		{ErrEmailNotVerified, http.StatusForbidden, CodeEmailNotVerified},
		{ErrExternalAuthFailed, http.StatusBadRequest, CodeExternalAuthFailed},
		{ErrTokenIssue, http.StatusInternalServerError, CodeJWTError},
		{ErrProfileNotFound, http.StatusNotFound, CodeProfileNotFound},
		{ErrPersistence, http.StatusInternalServerError, CodeDatabaseError},
		{fmt.Errorf("wrapped: %w", ErrAccountExists), http.StatusBadRequest, CodeUserExists},
		{errors.New("boom"), http.StatusInternalServerError, CodeDatabaseError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code, msg := Describe(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestDescribeDoesNotLeakDetail(t *testing.T) {
	_, _, msg := Describe(fmt.Errorf("pq: connection refused to 10.0.0.1: %w", ErrPersistence))
	assert.Equal(t, "Database error", msg)

	_, _, userMsg := Describe(ErrUserNotFound)
	_, _, pwMsg := Describe(ErrWrongPassword)
	assert.Equal(t, userMsg, pwMsg)
}
