package userflow_test

import (
	"testing"

	userflow "github.com/goliatone/go-userflow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestUserIsActive(t *testing.T) {
	var missing *userflow.User
	assert.False(t, missing.IsActive())
	assert.False(t, (&userflow.User{}).IsActive())
	assert.True(t, (&userflow.User{Active: true}).IsActive())
}

func TestProviderUserAssociated(t *testing.T) {
	var missing *userflow.ProviderUser
	assert.False(t, missing.Associated())
	assert.False(t, (&userflow.ProviderUser{}).Associated())

	nilID := uuid.Nil
	assert.False(t, (&userflow.ProviderUser{UserID: &nilID}).Associated())

	id := uuid.New()
	assert.True(t, (&userflow.ProviderUser{UserID: &id}).Associated())
}

func TestProviderUserRefresh(t *testing.T) {
	record := &userflow.ProviderUser{
		Provider:       "github",
		ProviderUserID: "gh-1",
		Name:           "Old Name",
	}

	record.Refresh(userflow.ProviderResult{
		Provider:       "github",
		ProviderUserID: "gh-1",
		Email:          "new@example.com",
		Name:           "New Name",
		AvatarURL:      "https://example.com/new.png",
		Attributes:     map[string]any{"company": "Example"},
	})

	assert.Equal(t, "new@example.com", record.Email)
	assert.Equal(t, "New Name", record.Name)
	assert.Equal(t, "https://example.com/new.png", record.AvatarURL)
	assert.Equal(t, map[string]any{"company": "Example"}, record.Attributes)

	// Identity fields are never touched by a refresh.
	assert.Equal(t, "github", record.Provider)
	assert.Equal(t, "gh-1", record.ProviderUserID)
}
