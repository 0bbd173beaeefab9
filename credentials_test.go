package userflow_test

import (
	"testing"

	userflow "github.com/goliatone/go-userflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	creds := userflow.NewCredentials(bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "valid password",
			password: "securePassword123!",
		},
		{
			name:     "empty password",
			password: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := creds.HashPassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotEmpty(t, hash)
			assert.NotEqual(t, tt.password, hash)

			assert.NoError(t, creds.VerifyPassword(tt.password, hash))
		})
	}
}

func TestVerifyPasswordRejectsAnyEdit(t *testing.T) {
	creds := userflow.NewCredentials(bcrypt.MinCost)

	password := "correct horse battery staple"
	hash, err := creds.HashPassword(password)
	require.NoError(t, err)

	for _, wrong := range []string{
		"Correct horse battery staple",
		"correct horse battery stapl",
		"correct horse battery staple ",
		"completely different",
	} {
		err := creds.VerifyPassword(wrong, hash)
		assert.ErrorIs(t, err, userflow.ErrMismatchedHashAndPassword, "password=%q", wrong)
	}
}

func TestHashPasswordSalted(t *testing.T) {
	creds := userflow.NewCredentials(bcrypt.MinCost)

	first, err := creds.HashPassword("Secret123")
	require.NoError(t, err)
	second, err := creds.HashPassword("Secret123")
	require.NoError(t, err)

	// Same input, different salt, different hash; both verify.
	assert.NotEqual(t, first, second)
	assert.NoError(t, creds.VerifyPassword("Secret123", first))
	assert.NoError(t, creds.VerifyPassword("Secret123", second))
}

func TestGenerateAuthID(t *testing.T) {
	creds := userflow.NewCredentials(bcrypt.MinCost)

	hash, err := creds.HashPassword("Secret123")
	require.NoError(t, err)

	user := &userflow.User{PasswordHash: hash}

	first, err := creds.GenerateAuthID(user)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := creds.GenerateAuthID(user)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "auth ids must rotate on every generation")

	_, err = creds.GenerateAuthID(&userflow.User{})
	assert.Error(t, err, "auth id requires a password hash")
}

func TestRandomPasswordHash(t *testing.T) {
	creds := userflow.NewCredentials(bcrypt.MinCost)

	hash := creds.RandomPasswordHash()
	require.NotEmpty(t, hash)

	// Nothing should verify against a throwaway hash.
	assert.Error(t, creds.VerifyPassword("", hash))
	assert.Error(t, creds.VerifyPassword("guess", hash))
}
