package userflow

import (
	"context"
	stderrors "errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// Password length bounds. The upper bound tracks bcrypt's 72 byte input
// limit; anything longer would be silently truncated by the hash.
const (
	passwordMinLen = 8
	passwordMaxLen = 72
)

// Operation inputs. The boundary layer decodes its transport envelope into
// these; the pipeline below turns them into validated values or a field
// keyed error set.

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type RegisterStartInput struct {
	Email string `json:"email"`
}

// TokenInput covers the decode-only confirm steps.
type TokenInput struct {
	Token string `json:"token"`
}

type RegisterFinishInput struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Locale          string `json:"locale,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
	Phone           string `json:"phone_number,omitempty"`

	// Login requests an automatic session after the account is created.
	Login    bool `json:"login,omitempty"`
	Remember bool `json:"remember,omitempty"`
}

type RestoreStartInput struct {
	Email string `json:"email"`
}

type RestoreFinishInput struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`

	Login    bool `json:"login,omitempty"`
	Remember bool `json:"remember,omitempty"`
}

type SetI18nInput struct {
	Locale   string `json:"locale,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// checkEmail validates presence and shape. Reports whether the value is
// usable for dependent checks.
func checkEmail(errs ErrorSet, field, email string) bool {
	if email == "" {
		errs.Add(field, CodeRequired)
		return false
	}
	if err := validation.Validate(email, is.Email); err != nil {
		errs.Add(field, CodeInvalidEmail)
		return false
	}
	return true
}

func checkPassword(errs ErrorSet, field, password string) {
	switch {
	case password == "":
		errs.Add(field, CodeRequired)
	case len(password) < passwordMinLen:
		errs.Add(field, CodePasswordTooShort)
	case len(password) > passwordMaxLen:
		errs.Add(field, CodePasswordTooLong)
	}
}

// checkPasswordPair validates the password and its confirmation. The
// mismatch check only fires when both values are present, so a missing
// confirmation reports REQUIRED rather than a misleading mismatch.
func checkPasswordPair(errs ErrorSet, password, confirm string) {
	checkPassword(errs, "password", password)
	if confirm == "" {
		errs.Add("confirm_password", CodeRequired)
		return
	}
	if password != "" && password != confirm {
		errs.Add("confirm_password", CodePasswordMismatch)
	}
}

// checkPhone validates an optional E.164 phone number.
func checkPhone(errs ErrorSet, field, phone string) {
	if phone == "" {
		return
	}
	parsed, err := phonenumbers.Parse(phone, "")
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		errs.Add(field, CodeInvalidPhone)
	}
}

// checkToken verifies a purpose bound token and returns its payload. Token
// failures are field scoped to "token" and never fatal.
func (f *Flow) checkToken(errs ErrorSet, purpose TokenPurpose, raw string, maxAge time.Duration) (string, bool) {
	if raw == "" {
		errs.Add("token", CodeRequired)
		return "", false
	}

	payload, err := f.tokens.Verify(purpose, raw, maxAge)
	if err != nil {
		if stderrors.Is(err, ErrTokenExpired) {
			errs.Add("token", CodeTokenExpired)
		} else {
			errs.Add("token", CodeInvalidToken)
		}
		return "", false
	}
	return payload, true
}

// validateLogin resolves the account and checks the credentials. The
// password check runs only when the account resolved, and the active check
// only when the password matched, mirroring how the failure codes layer.
func (f *Flow) validateLogin(ctx context.Context, ds Datastore, in LoginInput) (*User, error) {
	errs := ErrorSet{}

	emailOK := checkEmail(errs, "email", in.Email)
	if in.Password == "" {
		errs.Add("password", CodeRequired)
	}

	var user *User
	if emailOK {
		var err error
		user, err = ds.FindUser(ctx, Filter{"email": in.Email})
		if err != nil {
			return nil, err
		}
		if user == nil {
			errs.Add("email", CodeUserDoesNotExist)
		}
	}

	if user != nil && in.Password != "" {
		if err := f.creds.VerifyPassword(in.Password, user.PasswordHash); err != nil {
			errs.Add("password", CodeInvalidPassword)
		} else if !user.IsActive() {
			errs.Add(FieldNone, CodeDisabledAccount)
		}
	}

	return user, errs.Err()
}

// validateRegisterStart requires a well formed, unused email.
func (f *Flow) validateRegisterStart(ctx context.Context, ds Datastore, in RegisterStartInput) error {
	errs := ErrorSet{}

	if checkEmail(errs, "email", in.Email) {
		user, err := ds.FindUser(ctx, Filter{"email": in.Email})
		if err != nil {
			return err
		}
		if user != nil {
			errs.Add("email", CodeUserAlreadyExist)
		}
	}

	return errs.Err()
}

// validateRegisterFinish verifies the confirmation token and the password
// pair. The email comes out of the token, never out of client input.
func (f *Flow) validateRegisterFinish(in RegisterFinishInput) (string, error) {
	errs := ErrorSet{}

	email, _ := f.checkToken(errs, PurposeRegisterConfirm, in.Token, f.config.RegisterConfirmAge)
	checkPasswordPair(errs, in.Password, in.ConfirmPassword)
	checkPhone(errs, "phone_number", in.Phone)

	if in.Locale != "" && !f.validLocale(in.Locale) {
		errs.Add("locale", CodeLocaleNotValid)
	}
	if in.Timezone != "" && !f.validTimezone(in.Timezone) {
		errs.Add("timezone", CodeTimezoneNotValid)
	}

	return email, errs.Err()
}

// validateRestoreStart requires the email to belong to an existing account.
func (f *Flow) validateRestoreStart(ctx context.Context, ds Datastore, in RestoreStartInput) (*User, error) {
	errs := ErrorSet{}

	var user *User
	if checkEmail(errs, "email", in.Email) {
		var err error
		user, err = ds.FindUser(ctx, Filter{"email": in.Email})
		if err != nil {
			return nil, err
		}
		if user == nil {
			errs.Add("email", CodeUserDoesNotExist)
		}
	}

	return user, errs.Err()
}

// validateRestoreToken decodes a restore token and resolves its account.
// Shared by RestoreConfirm and RestoreFinish; the account may legitimately
// disappear between start and finish, which reports USER_DOES_NOT_EXIST.
func (f *Flow) validateRestoreToken(ctx context.Context, ds Datastore, errs ErrorSet, token string) (*User, string, error) {
	email, ok := f.checkToken(errs, PurposeRestoreConfirm, token, f.config.RestoreConfirmAge)
	if !ok {
		return nil, "", nil
	}

	user, err := ds.FindUser(ctx, Filter{"email": email})
	if err != nil {
		return nil, email, err
	}
	if user == nil {
		errs.Add("email", CodeUserDoesNotExist)
	}
	return user, email, nil
}

// validateSetI18n requires at least one of locale/timezone and checks both
// against their whitelists.
func (f *Flow) validateSetI18n(in SetI18nInput) error {
	errs := ErrorSet{}

	if in.Locale == "" && in.Timezone == "" {
		errs.Add(FieldNone, CodeInsufficientData)
		return errs.Err()
	}

	if in.Locale != "" && !f.validLocale(in.Locale) {
		errs.Add("locale", CodeLocaleNotValid)
	}
	if in.Timezone != "" && !f.validTimezone(in.Timezone) {
		errs.Add("timezone", CodeTimezoneNotValid)
	}

	return errs.Err()
}
