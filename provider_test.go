package userflow_test

import (
	"context"
	"testing"

	userflow "github.com/goliatone/go-userflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func githubResult(id, email string, verified bool) userflow.ProviderResult {
	return userflow.ProviderResult{
		Provider:       "github",
		ProviderUserID: id,
		Email:          email,
		EmailVerified:  verified,
		Name:           "Test User",
		AvatarURL:      "https://example.com/avatar.png",
	}
}

func TestProviderLoginUnknownGoal(t *testing.T) {
	flow, _ := newTestFlow(t)

	_, err := flow.ProviderLogin(context.Background(), userflow.NewMemorySession(),
		userflow.RequestInfo{}, "DESTROY", githubResult("gh-1", "", false))
	assert.Error(t, err)
}

func TestProviderLoginNotFound(t *testing.T) {
	flow, _ := newTestFlow(t)
	ctx := context.Background()

	result, err := flow.ProviderLogin(ctx, userflow.NewMemorySession(), userflow.RequestInfo{},
		userflow.GoalLogin, githubResult("gh-1", "", false))
	require.NoError(t, err)
	assert.Equal(t, userflow.OutcomeNotFound, result.Outcome)
}

func TestProviderLoginBoundIdentity(t *testing.T) {
	flow, backend := newTestFlow(t)
	ctx := context.Background()
	user := registerUser(t, flow, "user@example.com", "Secret123")

	id := user.ID
	ds := backend.Session(userflow.StoreConfig{ProviderUsers: true})
	ds.Put(&userflow.ProviderUser{Provider: "github", ProviderUserID: "gh-1", UserID: &id})
	require.NoError(t, ds.Commit(ctx))

	sess := userflow.NewMemorySession()
	result, err := flow.ProviderLogin(ctx, sess, userflow.RequestInfo{},
		userflow.GoalLogin, githubResult("gh-1", "", false))
	require.NoError(t, err)
	assert.Equal(t, userflow.OutcomeLoggedIn, result.Outcome)
	assert.NotEmpty(t, result.AuthToken)
	require.NotNil(t, result.User)
	assert.Equal(t, user.ID, result.User.ID)

	current, err := flow.CurrentUser(ctx, sess)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, user.ID, current.ID)
}

func TestProviderLoginVerifiedEmailMatch(t *testing.T) {
	flow, backend := newTestFlow(t)
	ctx := context.Background()
	user := registerUser(t, flow, "user@example.com", "Secret123")

	result, err := flow.ProviderLogin(ctx, userflow.NewMemorySession(), userflow.RequestInfo{},
		userflow.GoalLogin, githubResult("gh-1", "user@example.com", true))
	require.NoError(t, err)
	assert.Equal(t, userflow.OutcomeLoggedIn, result.Outcome)

	// The email match also bound the identity.
	ds := backend.Session(userflow.StoreConfig{ProviderUsers: true})
	record, err := ds.FindProviderUser(ctx, userflow.Filter{"provider": "github", "provider_user_id": "gh-1"})
	require.NoError(t, err)
	require.NotNil(t, record)
	require.NotNil(t, record.UserID)
	assert.Equal(t, user.ID, *record.UserID)
}

func TestProviderLoginUnverifiedEmailNotTrusted(t *testing.T) {
	flow, _ := newTestFlow(t)
	ctx := context.Background()
	registerUser(t, flow, "user@example.com", "Secret123")

	result, err := flow.ProviderLogin(ctx, userflow.NewMemorySession(), userflow.RequestInfo{},
		userflow.GoalLogin, githubResult("gh-1", "user@example.com", false))
	require.NoError(t, err)
	assert.Equal(t, userflow.OutcomeNotFound, result.Outcome,
		"an unverified provider email must not resolve into a local account")
}

func TestProviderLoginInactiveAccount(t *testing.T) {
	flow, backend := newTestFlow(t)
	ctx := context.Background()
	user := registerUser(t, flow, "user@example.com", "Secret123")

	user.Active = false
	id := user.ID
	ds := backend.Session(userflow.StoreConfig{ProviderUsers: true})
	ds.Put(user)
	ds.Put(&userflow.ProviderUser{Provider: "github", ProviderUserID: "gh-1", UserID: &id})
	require.NoError(t, ds.Commit(ctx))

	sess := userflow.NewMemorySession()
	result, err := flow.ProviderLogin(ctx, sess, userflow.RequestInfo{},
		userflow.GoalLogin, githubResult("gh-1", "", false))
	require.NoError(t, err)
	assert.Equal(t, userflow.OutcomeInactive, result.Outcome)

	current, err := flow.CurrentUser(ctx, sess)
	require.NoError(t, err)
	assert.Nil(t, current, "a disabled account never gets a session")
}

func TestProviderRegisterWithVerifiedEmail(t *testing.T) {
	flow, _ := newTestFlow(t)
	ctx := context.Background()

	sess := userflow.NewMemorySession()
	result, err := flow.ProviderLogin(ctx, sess, userflow.RequestInfo{},
		userflow.GoalRegister, githubResult("gh-1", "new@example.com", true))
	require.NoError(t, err)
	assert.Equal(t, userflow.OutcomeConfirmEmail, result.Outcome)
	require.NotEmpty(t, result.ConfirmURL)

	// Finish the registration through the minted confirm URL; the stashed
	// pairing binds to the new account.
	token := confirmToken(t, capturedMail{Data: map[string]any{"confirm_url": result.ConfirmURL}})
	finish, err := flow.RegisterFinish(ctx, sess, userflow.RequestInfo{}, userflow.RegisterFinishInput{
		Token:           token,
		Password:        "Secret123",
		ConfirmPassword: "Secret123",
	})
	require.NoError(t, err)

	login, err := flow.ProviderLogin(ctx, userflow.NewMemorySession(), userflow.RequestInfo{},
		userflow.GoalLogin, githubResult("gh-1", "new@example.com", true))
	require.NoError(t, err)
	assert.Equal(t, userflow.OutcomeLoggedIn, login.Outcome)
	assert.Equal(t, finish.User.ID, login.User.ID)
}

func TestProviderRegisterWithoutEmail(t *testing.T) {
	flow, _ := newTestFlow(t)
	ctx := context.Background()

	sess := userflow.NewMemorySession()
	result, err := flow.ProviderLogin(ctx, sess, userflow.RequestInfo{},
		userflow.GoalRegister, githubResult("gh-1", "", false))
	require.NoError(t, err)
	assert.Equal(t, userflow.OutcomeRegisterStart, result.Outcome)

	// The pairing waits in the session and shows up in Status.
	status, err := flow.Status(ctx, sess, userflow.RequestInfo{})
	require.NoError(t, err)
	require.Contains(t, status.Providers, "github")
	assert.Equal(t, "gh-1", status.Providers["github"].ProviderUserID)
}

func TestProviderAssociate(t *testing.T) {
	flow, _ := newTestFlow(t)
	ctx := context.Background()
	registerUser(t, flow, "user@example.com", "Secret123")
	registerUser(t, flow, "other@example.com", "Secret123")

	t.Run("requires a session user", func(t *testing.T) {
		_, err := flow.ProviderLogin(ctx, userflow.NewMemorySession(), userflow.RequestInfo{},
			userflow.GoalAssociate, githubResult("gh-1", "", false))
		assert.ErrorIs(t, err, userflow.ErrNotAuthenticated)
	})

	sess := userflow.NewMemorySession()
	login, err := flow.Login(ctx, sess, userflow.RequestInfo{}, userflow.LoginInput{
		Email:    "user@example.com",
		Password: "Secret123",
	})
	require.NoError(t, err)

	t.Run("binds to the current user", func(t *testing.T) {
		result, err := flow.ProviderLogin(ctx, sess, userflow.RequestInfo{},
			userflow.GoalAssociate, githubResult("gh-1", "", false))
		require.NoError(t, err)
		assert.Equal(t, userflow.OutcomeAssociated, result.Outcome)
		assert.Equal(t, login.User.ID, result.User.ID)
	})

	t.Run("re-associating the same pairing is a no-op", func(t *testing.T) {
		result, err := flow.ProviderLogin(ctx, sess, userflow.RequestInfo{},
			userflow.GoalAssociate, githubResult("gh-1", "", false))
		require.NoError(t, err)
		assert.Equal(t, userflow.OutcomeAssociated, result.Outcome)
	})

	t.Run("stealing another user's pairing conflicts", func(t *testing.T) {
		other := userflow.NewMemorySession()
		_, err := flow.Login(ctx, other, userflow.RequestInfo{}, userflow.LoginInput{
			Email:    "other@example.com",
			Password: "Secret123",
		})
		require.NoError(t, err)

		_, err = flow.ProviderLogin(ctx, other, userflow.RequestInfo{},
			userflow.GoalAssociate, githubResult("gh-1", "", false))
		assert.True(t, userflow.IsConflict(err), "got %v", err)
	})
}

func TestProviderProfileRefresh(t *testing.T) {
	flow, backend := newTestFlow(t)
	ctx := context.Background()

	first := githubResult("gh-1", "", false)
	_, err := flow.ProviderLogin(ctx, userflow.NewMemorySession(), userflow.RequestInfo{}, userflow.GoalLogin, first)
	require.NoError(t, err)

	second := githubResult("gh-1", "", false)
	second.Name = "Renamed User"
	second.AvatarURL = "https://example.com/new.png"
	_, err = flow.ProviderLogin(ctx, userflow.NewMemorySession(), userflow.RequestInfo{}, userflow.GoalLogin, second)
	require.NoError(t, err)

	ds := backend.Session(userflow.StoreConfig{ProviderUsers: true})
	record, err := ds.FindProviderUser(ctx, userflow.Filter{"provider": "github", "provider_user_id": "gh-1"})
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "Renamed User", record.Name)
	assert.Equal(t, "https://example.com/new.png", record.AvatarURL)

	records, err := ds.FindProviderUsers(ctx, userflow.Filter{"provider": "github"})
	require.NoError(t, err)
	assert.Len(t, records, 1, "repeat handshakes refresh, never duplicate")
}

func TestLoginClearsProviderStash(t *testing.T) {
	flow, _ := newTestFlow(t)
	ctx := context.Background()
	registerUser(t, flow, "user@example.com", "Secret123")

	sess := userflow.NewMemorySession()
	_, err := flow.ProviderLogin(ctx, sess, userflow.RequestInfo{},
		userflow.GoalRegister, githubResult("gh-1", "", false))
	require.NoError(t, err)

	_, err = flow.Login(ctx, sess, userflow.RequestInfo{}, userflow.LoginInput{
		Email:    "user@example.com",
		Password: "Secret123",
	})
	require.NoError(t, err)

	status, err := flow.Status(ctx, sess, userflow.RequestInfo{})
	require.NoError(t, err)
	assert.Empty(t, status.Providers, "a completed login drops the pending stash")
}
