package userflow

import (
	"context"
	"fmt"
)

// RestoreStart begins a password reset for an existing account: mints a
// restore token over the email and hands the confirmation URL to the
// mailer. Nothing about the account changes until RestoreFinish.
func (f *Flow) RestoreStart(ctx context.Context, in RestoreStartInput) error {
	ds := f.store.Fork()

	user, err := f.validateRestoreStart(ctx, ds, in)
	if err != nil {
		return err
	}

	token, err := f.tokens.Issue(PurposeRestoreConfirm, in.Email)
	if err != nil {
		return err
	}

	confirmURL := fmt.Sprintf(f.config.RestoreConfirmURL, token)
	if err := f.mailer.Send(ctx, MailTemplateRestoreStart, in.Email, map[string]any{
		"confirm_url": confirmURL,
	}); err != nil {
		return err
	}

	f.emit(ctx, ActivityEventRestoreStart, user, map[string]any{"email": in.Email})
	return nil
}

// RestoreConfirm verifies the restore token and returns the email, checking
// the account still exists.
func (f *Flow) RestoreConfirm(ctx context.Context, in TokenInput) (string, error) {
	ds := f.store.Fork()
	errs := ErrorSet{}

	_, email, err := f.validateRestoreToken(ctx, ds, errs, in.Token)
	if err != nil {
		return "", err
	}
	if err := errs.Err(); err != nil {
		return "", err
	}
	return email, nil
}

// RestoreFinish re-hashes the password and rotates auth_id. The rotation is
// the session invalidation: every session and auth token bound to the old
// auth_id stops resolving the moment this commits. A compromised session
// must not survive a deliberate password reset.
func (f *Flow) RestoreFinish(ctx context.Context, sess SessionState, req RequestInfo, in RestoreFinishInput) (*LoginResult, error) {
	ds := f.store.Fork()
	errs := ErrorSet{}

	user, _, err := f.validateRestoreToken(ctx, ds, errs, in.Token)
	if err != nil {
		return nil, err
	}
	checkPasswordPair(errs, in.Password, in.ConfirmPassword)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	if user.PasswordHash, err = f.creds.HashPassword(in.Password); err != nil {
		return nil, err
	}
	if user.AuthID, err = f.creds.GenerateAuthID(user); err != nil {
		return nil, err
	}

	ds.Put(user)
	if err := ds.Commit(ctx); err != nil {
		return nil, err
	}

	result := &LoginResult{User: user}
	if in.Login {
		if result.AuthToken, err = f.loginUser(ctx, ds, sess, req, user); err != nil {
			return nil, err
		}
	}

	f.emit(ctx, ActivityEventRestoreFinish, user, nil)
	return result, nil
}
