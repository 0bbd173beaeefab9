package userflow

import (
	"context"
	"fmt"

	"github.com/goliatone/hashid/pkg/hashid"
)

// RegisterStart checks the email is unused, mints a confirmation token over
// it, and hands the confirmation URL to the mailer. No account row exists
// until RegisterFinish: abandoned registrations leave no persisted trace.
func (f *Flow) RegisterStart(ctx context.Context, in RegisterStartInput) error {
	ds := f.store.Fork()

	if err := f.validateRegisterStart(ctx, ds, in); err != nil {
		return err
	}

	token, err := f.tokens.Issue(PurposeRegisterConfirm, in.Email)
	if err != nil {
		return err
	}

	confirmURL := fmt.Sprintf(f.config.RegisterConfirmURL, token)
	if err := f.mailer.Send(ctx, MailTemplateRegisterStart, in.Email, map[string]any{
		"confirm_url": confirmURL,
	}); err != nil {
		return err
	}

	f.emit(ctx, ActivityEventRegisterStart, nil, map[string]any{"email": in.Email})
	return nil
}

// RegisterConfirm is the decode-only step: it verifies the token and
// returns the email it was minted over, so a front end can pre-fill the
// finish form before collecting a password.
func (f *Flow) RegisterConfirm(ctx context.Context, in TokenInput) (string, error) {
	errs := ErrorSet{}
	email, _ := f.checkToken(errs, PurposeRegisterConfirm, in.Token, f.config.RegisterConfirmAge)
	if err := errs.Err(); err != nil {
		return "", err
	}
	return email, nil
}

// RegisterFinish creates the account. The email comes from the token, never
// from client input; a different address in the payload cannot redirect the
// registration. Pending provider associations stashed in the session are
// bound to the new account after it commits.
//
// A concurrent registration racing on the same email loses at commit with
// ErrConflict.
func (f *Flow) RegisterFinish(ctx context.Context, sess SessionState, req RequestInfo, in RegisterFinishInput) (*LoginResult, error) {
	email, err := f.validateRegisterFinish(in)
	if err != nil {
		return nil, err
	}

	locale, timezone := f.resolveSignupI18n(ctx, sess, req, in.Locale, in.Timezone)

	user := &User{
		Email:    email,
		Phone:    in.Phone,
		Active:   true,
		Locale:   locale,
		Timezone: timezone,
	}

	if f.config.DeterministicIDs {
		if id, err := hashid.NewUUID(email); err == nil {
			user.ID = id
		}
	}

	if user.PasswordHash, err = f.creds.HashPassword(in.Password); err != nil {
		return nil, err
	}
	if user.AuthID, err = f.creds.GenerateAuthID(user); err != nil {
		return nil, err
	}

	// Create, not Put: with deterministic IDs a repeat registration carries
	// the existing account's ID, and an upsert would overwrite its
	// credentials instead of conflicting.
	ds := f.store.Fork()
	ds.Create(user)
	if err := ds.Commit(ctx); err != nil {
		return nil, err
	}

	if err := f.bindPendingAssociations(ctx, ds, sess, user); err != nil {
		return nil, err
	}

	result := &LoginResult{User: user}
	if in.Login {
		if result.AuthToken, err = f.loginUser(ctx, ds, sess, req, user); err != nil {
			return nil, err
		}
	}

	f.emit(ctx, ActivityEventRegisterFinish, user, map[string]any{"email": email})
	return result, nil
}

// resolveSignupI18n settles the new account's locale and timezone. Explicit
// values were validated already; absent ones fall back to the session's
// resolved state, re-checked against the whitelists so an anonymous guess
// never smuggles an unsupported value into a fresh account.
func (f *Flow) resolveSignupI18n(ctx context.Context, sess SessionState, req RequestInfo, locale, timezone string) (string, string) {
	if locale != "" && timezone != "" {
		return locale, timezone
	}

	info, err := f.I18n(ctx, sess, req, true)
	if err != nil {
		info = I18nInfo{}
	}

	if locale == "" {
		locale = f.config.DefaultLocale
		if f.validLocale(info.Locale) {
			locale = info.Locale
		}
	}
	if timezone == "" {
		timezone = f.config.DefaultTimezone
		if f.validTimezone(info.Timezone) {
			timezone = info.Timezone
		}
	}

	return locale, timezone
}

// bindPendingAssociations attaches stashed provider identities to the user.
// Runs after the user row committed so the foreign key resolves; the stash
// is dropped either way so stale pairings cannot replay later.
func (f *Flow) bindPendingAssociations(ctx context.Context, ds Datastore, sess SessionState, user *User) error {
	stash := pendingAssociations(sess)
	clearAssociations(sess)

	if len(stash) == 0 || !ds.Configured(KindProviderUser) {
		return nil
	}

	bound := false
	for provider, providerUserID := range stash {
		record, err := ds.FindProviderUser(ctx, Filter{
			"provider":         provider,
			"provider_user_id": providerUserID,
		})
		if err != nil {
			return err
		}
		if record == nil {
			continue
		}

		id := user.ID
		record.UserID = &id
		ds.Put(record)
		bound = true

		f.emit(ctx, ActivityEventProviderAssociate, user, map[string]any{
			"provider":         provider,
			"provider_user_id": providerUserID,
		})
	}

	if !bound {
		return nil
	}
	return ds.Commit(ctx)
}
