package userflow_test

import (
	"context"
	"testing"

	userflow "github.com/goliatone/go-userflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoles(t *testing.T) {
	flow, _ := newTestFlow(t)
	ctx := context.Background()
	user := registerUser(t, flow, "user@example.com", "Secret123")

	has, err := flow.HasRole(ctx, user, "admin")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, flow.GrantRole(ctx, user, "admin"))
	require.NoError(t, flow.GrantRole(ctx, user, "editor"))

	// Granting twice is a no-op, not a duplicate.
	require.NoError(t, flow.GrantRole(ctx, user, "admin"))

	has, err = flow.HasRole(ctx, user, "admin")
	require.NoError(t, err)
	assert.True(t, has)

	names, err := flow.RoleNames(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "editor"}, names)

	require.NoError(t, flow.RevokeRole(ctx, user, "admin"))
	require.NoError(t, flow.RevokeRole(ctx, user, "admin"))

	names, err = flow.RoleNames(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []string{"editor"}, names)
}

func TestRolesNotConfigured(t *testing.T) {
	backend := userflow.NewMemoryBackend()
	flow, err := userflow.New(backend.Session(userflow.StoreConfig{}), testConfig())
	require.NoError(t, err)

	ctx := context.Background()
	user := registerUser(t, flow, "user@example.com", "Secret123")

	err = flow.GrantRole(ctx, user, "admin")
	assert.True(t, userflow.IsNotConfigured(err), "got %v", err)
}
