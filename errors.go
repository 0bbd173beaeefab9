package userflow

import (
	"github.com/goliatone/go-errors"
)

// Symbolic validation codes returned to the boundary layer. The core never
// renders human readable error text.
const (
	CodeUserAlreadyExist = "USER_ALREADY_EXIST"
	CodeUserDoesNotExist = "USER_DOES_NOT_EXIST"
	CodeInvalidPassword  = "INVALID_PASSWORD"
	CodeDisabledAccount  = "DISABLED_ACCOUNT"
	CodePasswordMismatch = "PASSWORD_MISMATCH"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeTimezoneNotValid = "TIMEZONE_NOT_VALID"
	CodeLocaleNotValid   = "LOCALE_NOT_VALID"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeInvalidEmail     = "INVALID_EMAIL"
	CodeInvalidPhone     = "INVALID_PHONE"
	CodeRequired         = "REQUIRED"
	CodePasswordTooShort = "PASSWORD_TOO_SHORT"
	CodePasswordTooLong  = "PASSWORD_TOO_LONG"
)

// ErrNoEmptyString rejects empty passwords before they reach bcrypt
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode("EMPTY_PASSWORD")

// ErrMismatchedHashAndPassword is the uniform bad-credentials error
var ErrMismatchedHashAndPassword = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(CodeInvalidPassword)

// ErrUserDisabled blocks every login surface for inactive accounts
var ErrUserDisabled = errors.New("account is disabled", errors.CategoryAuth).
	WithTextCode(CodeDisabledAccount)

// ErrTokenExpired means the token aged out of its purpose window
var ErrTokenExpired = errors.New("token has expired", errors.CategoryAuth).
	WithTextCode(CodeTokenExpired)

// ErrTokenInvalid covers signature mismatch, malformed structure, and
// cross-purpose replay attempts
var ErrTokenInvalid = errors.New("token is invalid", errors.CategoryAuth).
	WithTextCode(CodeInvalidToken)

// ErrNotConfigured is returned when a datastore kind was not registered.
// This is a deployment configuration problem, never a request time one.
var ErrNotConfigured = errors.New("datastore kind is not configured", errors.CategoryOperation).
	WithTextCode("NOT_CONFIGURED")

// ErrConflict surfaces storage constraint violations (e.g. two concurrent
// registrations racing on the same email) as a recoverable conflict
var ErrConflict = errors.New("storage constraint violation", errors.CategoryConflict).
	WithTextCode("CONFLICT")

// ErrI18nUnresolved is returned by I18n when the session has no
// locale/timezone and guessing is disabled
var ErrI18nUnresolved = errors.New("no i18n info in session", errors.CategoryOperation).
	WithTextCode("I18N_UNRESOLVED")

// ErrNotAuthenticated is returned when an operation requires a session user
var ErrNotAuthenticated = errors.New("no authenticated user in session", errors.CategoryAuth).
	WithTextCode("NOT_AUTHENTICATED")

// NewValidationError wraps a field keyed error set into a rich error so
// operations keep a single error return. Use FieldErrors to unwrap.
func NewValidationError(fields ErrorSet) error {
	return errors.New("validation failed", errors.CategoryValidation).
		WithTextCode("VALIDATION_FAILED").
		WithMetadata(map[string]any{"fields": fields})
}

// FieldErrors extracts the field keyed error set from a validation error.
func FieldErrors(err error) (ErrorSet, bool) {
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return nil, false
	}

	fields, ok := rich.Metadata["fields"].(ErrorSet)
	return fields, ok
}

// IsValidationError reports whether err carries a field keyed error set.
func IsValidationError(err error) bool {
	_, ok := FieldErrors(err)
	return ok
}

// IsNotConfigured reports whether err came from touching a datastore kind
// that the deployment did not enable.
func IsNotConfigured(err error) bool {
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return false
	}
	return rich.TextCode == "NOT_CONFIGURED"
}

// IsConflict reports whether err is a persistence conflict.
func IsConflict(err error) bool {
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return false
	}
	return rich.Category == errors.CategoryConflict
}
