package userflow

import (
	"context"
	"fmt"

	"github.com/goliatone/go-errors"
)

// ProviderGoal declares what a federated handshake is trying to achieve.
type ProviderGoal string

const (
	// GoalLogin resolves the external identity into an existing account.
	GoalLogin ProviderGoal = "LOGIN"
	// GoalRegister resolves or defers into the registration flow.
	GoalRegister ProviderGoal = "REGISTER"
	// GoalAssociate binds the external identity to the session's user.
	GoalAssociate ProviderGoal = "ASSOCIATE"
)

// ProviderResult is the verified outcome of an external OAuth/OpenID
// handshake. The wire protocol is entirely the collaborator's concern; by
// the time this struct exists the identity is authenticated.
type ProviderResult struct {
	Provider       string         `json:"provider"`
	ProviderUserID string         `json:"provider_user_id"`
	Email          string         `json:"email,omitempty"`
	EmailVerified  bool           `json:"email_verified,omitempty"`
	Name           string         `json:"name,omitempty"`
	AvatarURL      string         `json:"avatar_url,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
}

// ProviderOutcome tells the boundary layer where the handshake landed.
type ProviderOutcome string

const (
	// OutcomeLoggedIn means a session was established.
	OutcomeLoggedIn ProviderOutcome = "logged_in"
	// OutcomeAssociated means the identity is now bound to the user.
	OutcomeAssociated ProviderOutcome = "associated"
	// OutcomeInactive means the resolved account is disabled.
	OutcomeInactive ProviderOutcome = "inactive"
	// OutcomeNotFound means a LOGIN goal matched no account.
	OutcomeNotFound ProviderOutcome = "not_found"
	// OutcomeConfirmEmail means registration continues at the confirm URL.
	OutcomeConfirmEmail ProviderOutcome = "confirm_email"
	// OutcomeRegisterStart means registration continues by collecting an
	// email, since the provider supplied no verified one.
	OutcomeRegisterStart ProviderOutcome = "register_start"
)

// ProviderLoginResult is the outcome of ProviderLogin.
type ProviderLoginResult struct {
	Outcome   ProviderOutcome `json:"outcome"`
	User      *User           `json:"user,omitempty"`
	AuthToken string          `json:"auth_token,omitempty"`

	// ConfirmURL carries the registration confirmation link when the
	// outcome is confirm_email.
	ConfirmURL string `json:"confirm_url,omitempty"`
}

var errUnknownGoal = errors.New("unknown provider goal", errors.CategoryBadInput).
	WithTextCode("UNKNOWN_GOAL")

// ProviderLogin consumes a verified handshake result. The provider profile
// row is created on first contact and refreshed on every subsequent one.
//
// Lookup precedence for LOGIN and REGISTER: a bound identity logs its user
// in directly; otherwise a verified provider email matching an existing
// account binds and logs in; otherwise LOGIN reports not_found and REGISTER
// stashes the pairing in the session and defers to the register flow, which
// binds it once the account commits. An unverified provider email is never
// trusted for the match: that would let anyone with a sloppy provider
// account take over a local one.
func (f *Flow) ProviderLogin(ctx context.Context, sess SessionState, req RequestInfo, goal ProviderGoal, result ProviderResult) (*ProviderLoginResult, error) {
	switch goal {
	case GoalLogin, GoalRegister, GoalAssociate:
	default:
		return nil, errUnknownGoal.Clone().
			WithMetadata(map[string]any{"goal": string(goal)})
	}

	ds := f.store.Fork()
	if !ds.Configured(KindProviderUser) {
		return nil, notConfigured(KindProviderUser)
	}

	record, err := ds.FindProviderUser(ctx, Filter{
		"provider":         result.Provider,
		"provider_user_id": result.ProviderUserID,
	})
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = &ProviderUser{
			Provider:       result.Provider,
			ProviderUserID: result.ProviderUserID,
		}
	}
	record.Refresh(result)
	ds.Put(record)

	if goal == GoalAssociate {
		return f.associateProvider(ctx, ds, sess, record, result)
	}

	if record.Associated() {
		user, err := ds.FindUser(ctx, Filter{"id": *record.UserID})
		if err != nil {
			return nil, err
		}
		if user != nil {
			return f.finishProviderLogin(ctx, ds, sess, req, user, result)
		}
		// The bound account vanished; fall through and treat the
		// identity as unbound.
		record.UserID = nil
	}

	if result.Email != "" && result.EmailVerified {
		user, err := ds.FindUser(ctx, Filter{"email": result.Email})
		if err != nil {
			return nil, err
		}
		if user != nil {
			id := user.ID
			record.UserID = &id
			ds.Put(record)
			return f.finishProviderLogin(ctx, ds, sess, req, user, result)
		}
	}

	if err := ds.Commit(ctx); err != nil {
		return nil, err
	}

	if goal == GoalLogin {
		return &ProviderLoginResult{Outcome: OutcomeNotFound}, nil
	}

	// REGISTER: remember the pairing so RegisterFinish can bind it.
	stashAssociation(sess, result.Provider, result.ProviderUserID)

	if result.Email != "" && result.EmailVerified {
		token, err := f.tokens.Issue(PurposeRegisterConfirm, result.Email)
		if err != nil {
			return nil, err
		}
		return &ProviderLoginResult{
			Outcome:    OutcomeConfirmEmail,
			ConfirmURL: fmt.Sprintf(f.config.RegisterConfirmURL, token),
		}, nil
	}

	return &ProviderLoginResult{Outcome: OutcomeRegisterStart}, nil
}

// associateProvider binds the identity to the authenticated user.
// Idempotent for the same pairing; a pairing already bound to another
// account is a conflict, never a silent re-bind.
func (f *Flow) associateProvider(ctx context.Context, ds Datastore, sess SessionState, record *ProviderUser, result ProviderResult) (*ProviderLoginResult, error) {
	user, err := f.CurrentUser(ctx, sess)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	if record.Associated() && *record.UserID != user.ID {
		return nil, ErrConflict.Clone().
			WithMetadata(map[string]any{
				"provider":         record.Provider,
				"provider_user_id": record.ProviderUserID,
			})
	}

	id := user.ID
	record.UserID = &id
	ds.Put(record)
	if err := ds.Commit(ctx); err != nil {
		return nil, err
	}

	f.emit(ctx, ActivityEventProviderAssociate, user, map[string]any{
		"provider":         result.Provider,
		"provider_user_id": result.ProviderUserID,
	})

	return &ProviderLoginResult{Outcome: OutcomeAssociated, User: user}, nil
}

// finishProviderLogin commits the profile refresh and establishes the
// session unless the account is disabled.
func (f *Flow) finishProviderLogin(ctx context.Context, ds Datastore, sess SessionState, req RequestInfo, user *User, result ProviderResult) (*ProviderLoginResult, error) {
	if err := ds.Commit(ctx); err != nil {
		return nil, err
	}

	if !user.IsActive() {
		return &ProviderLoginResult{Outcome: OutcomeInactive, User: user}, nil
	}

	token, err := f.loginUser(ctx, ds, sess, req, user)
	if err != nil {
		return nil, err
	}

	f.emit(ctx, ActivityEventProviderLogin, user, map[string]any{
		"provider": result.Provider,
	})

	return &ProviderLoginResult{
		Outcome:   OutcomeLoggedIn,
		User:      user,
		AuthToken: token,
	}, nil
}
