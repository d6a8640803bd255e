package account

import (
	"errors"
	"fmt"
	"net/http"
)

// Caller-visible outcomes of the account flows.
var (
	ErrMissingFields         = errors.New("missing required fields")
	ErrPasswordTooLong       = errors.New("password exceeds 72 bytes")
	ErrAccountExists         = errors.New("account already exists")
	ErrExternalAccountExists = errors.New("account registered through external sign-in")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrUserNotFound          = fmt.Errorf("%w: no active account", ErrInvalidCredentials)
	ErrWrongPassword         = fmt.Errorf("%w: password mismatch", ErrInvalidCredentials)
	ErrExternalOnlyAccount   = errors.New("account uses external sign-in only")
	ErrNoPasswordSet         = errors.New("no password set for account")
	ErrExternalAuthFailed    = errors.New("external authentication failed")
	ErrEmailNotVerified      = errors.New("email not verified by identity provider")
	ErrAccountDisabled       = errors.New("account is disabled")
	ErrPersistence           = errors.New("database error")
	ErrTokenIssue            = errors.New("token signing failed")
	ErrProfileNotFound       = errors.New("user profile not found")
)

// Stable error codes returned to callers.
const (
	CodeMissingFields         = "MISSING_FIELDS"
	CodeUserExists            = "USER_EXISTS"
	CodeUserNotFound          = "USER_NOT_FOUND"
	CodeWrongPassword         = "WRONG_PASSWORD"
	CodeDatabaseError         = "DATABASE_ERROR"
	CodeJWTError              = "JWT_ERROR"
	CodeExternalOnlyAccount   = "EXTERNAL_ONLY_ACCOUNT"
	CodeNoPasswordSet         = "NO_PASSWORD_SET"
	CodeExternalAccountExists = "EXTERNAL_ACCOUNT_EXISTS"
	CodeExternalAuthFailed    = "EXTERNAL_AUTH_FAILED"
	CodeEmailNotVerified      = "EMAIL_NOT_VERIFIED"
	CodeProfileNotFound       = "PROFILE_NOT_FOUND"
	CodePasswordTooLong       = "PASSWORD_TOO_LONG"
	CodeAccountDisabled       = "ACCOUNT_DISABLED"
)

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// Order matters: the refined invalid-credential errors precede their parent.
var errorTable = []errorMapping{
	{ErrMissingFields, http.StatusBadRequest, CodeMissingFields, "Missing required fields"},
	{ErrPasswordTooLong, http.StatusBadRequest, CodePasswordTooLong, "Password must be at most 72 bytes"},
	{ErrAccountExists, http.StatusBadRequest, CodeUserExists, "Email already exists"},
	{ErrExternalAccountExists, http.StatusBadRequest, CodeExternalAccountExists, "Email already registered with external sign-in; use external login"},
	{ErrUserNotFound, http.StatusUnauthorized, CodeUserNotFound, "Invalid email or password"},
	{ErrWrongPassword, http.StatusUnauthorized, CodeWrongPassword, "Invalid email or password"},
	{ErrInvalidCredentials, http.StatusUnauthorized, CodeWrongPassword, "Invalid email or password"},
	{ErrExternalOnlyAccount, http.StatusBadRequest, CodeExternalOnlyAccount, "This account uses external sign-in; use external login"},
	{ErrNoPasswordSet, http.StatusBadRequest, CodeNoPasswordSet, "No password set for this account"},
	{ErrEmailNotVerified, http.StatusForbidden, CodeEmailNotVerified, "Email not verified by identity provider"},
	{ErrAccountDisabled, http.StatusForbidden, CodeAccountDisabled, "Account is disabled"},
	{ErrExternalAuthFailed, http.StatusBadRequest, CodeExternalAuthFailed, "External authentication failed"},
	{ErrTokenIssue, http.StatusInternalServerError, CodeJWTError, "Failed to issue token"},
	{ErrProfileNotFound, http.StatusNotFound, CodeProfileNotFound, "User profile not found"},
	{ErrPersistence, http.StatusInternalServerError, CodeDatabaseError, "Database error"},
}

// Describe maps an error from the service to an HTTP status, code and public message.
// Unknown errors are reported as database errors without leaking detail.
func Describe(err error) (status int, code string, message string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code, m.message
		}
	}
	return http.StatusInternalServerError, CodeDatabaseError, "Database error"
}
