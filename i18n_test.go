package userflow_test

import (
	"context"
	"testing"

	userflow "github.com/goliatone/go-userflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticGeo struct {
	info userflow.GeoInfo
}

func (g staticGeo) Lookup(context.Context, string) (userflow.GeoInfo, error) {
	return g.info, nil
}

func TestI18nGuessing(t *testing.T) {
	tests := []struct {
		name         string
		geo          userflow.GeoInfo
		req          userflow.RequestInfo
		wantLocale   string
		wantTimezone string
	}{
		{
			name:         "no hints falls back to defaults",
			wantLocale:   "en",
			wantTimezone: "UTC",
		},
		{
			name:         "accept language exact match",
			req:          userflow.RequestInfo{AcceptLanguages: []string{"ru"}},
			wantLocale:   "ru",
			wantTimezone: "UTC",
		},
		{
			name:         "accept language primary subtag match",
			req:          userflow.RequestInfo{AcceptLanguages: []string{"ru-RU", "en-US"}},
			wantLocale:   "ru",
			wantTimezone: "UTC",
		},
		{
			name:         "unsupported language falls through",
			req:          userflow.RequestInfo{AcceptLanguages: []string{"fr-FR"}},
			wantLocale:   "en",
			wantTimezone: "UTC",
		},
		{
			name:         "geo timezone wins",
			geo:          userflow.GeoInfo{Country: "RU", Timezone: "Europe/Moscow"},
			req:          userflow.RequestInfo{RemoteAddr: "203.0.113.7"},
			wantLocale:   "en",
			wantTimezone: "Europe/Moscow",
		},
		{
			name:         "browser offset maps to Etc zone",
			req:          userflow.RequestInfo{RemoteAddr: "203.0.113.7", BrowserTZOffsetMinutes: 180},
			wantLocale:   "en",
			wantTimezone: "Etc/GMT-3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow, _ := newTestFlow(t, userflow.WithGeoResolver(staticGeo{info: tt.geo}))
			sess := userflow.NewMemorySession()

			info, err := flow.I18n(context.Background(), sess, tt.req, true)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLocale, info.Locale)
			assert.Equal(t, tt.wantTimezone, info.Timezone)
		})
	}
}

func TestI18nBrowserOffsetMatchesWhitelistedZone(t *testing.T) {
	cfg := testConfig()
	cfg.Timezones = []string{"UTC", "Asia/Kolkata"}

	backend := userflow.NewMemoryBackend()
	flow, err := userflow.New(backend.Session(userflow.StoreConfig{}), cfg)
	require.NoError(t, err)

	// +330 is a half hour offset no Etc/GMT zone covers; the whitelist
	// scan resolves it to the real zone.
	info, err := flow.I18n(context.Background(), userflow.NewMemorySession(),
		userflow.RequestInfo{BrowserTZOffsetMinutes: 330}, true)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", info.Timezone)
}

func TestI18nUnresolvedWithoutGuessing(t *testing.T) {
	flow, _ := newTestFlow(t)
	sess := userflow.NewMemorySession()

	_, err := flow.I18n(context.Background(), sess, userflow.RequestInfo{}, false)
	assert.ErrorIs(t, err, userflow.ErrI18nUnresolved)
}

func TestSetI18nExplicitWinsOverGuess(t *testing.T) {
	flow, _ := newTestFlow(t)
	ctx := context.Background()
	sess := userflow.NewMemorySession()

	// Guess first.
	info, err := flow.I18n(ctx, sess, userflow.RequestInfo{AcceptLanguages: []string{"ru"}}, true)
	require.NoError(t, err)
	assert.Equal(t, "ru", info.Locale)

	// Explicit choice overrides and sticks; later guessing never touches it.
	require.NoError(t, flow.SetI18n(ctx, sess, userflow.SetI18nInput{Locale: "en"}))

	info, err = flow.I18n(ctx, sess, userflow.RequestInfo{AcceptLanguages: []string{"ru"}}, true)
	require.NoError(t, err)
	assert.Equal(t, "en", info.Locale)
}

func TestSetI18nValidation(t *testing.T) {
	flow, _ := newTestFlow(t)
	ctx := context.Background()

	t.Run("unsupported locale leaves state unchanged", func(t *testing.T) {
		sess := userflow.NewMemorySession()
		require.NoError(t, flow.SetI18n(ctx, sess, userflow.SetI18nInput{Locale: "ru", Timezone: "UTC"}))

		err := flow.SetI18n(ctx, sess, userflow.SetI18nInput{Locale: "xx"})
		assert.Contains(t, fieldCodes(t, err, "locale"), userflow.CodeLocaleNotValid)

		info, err := flow.I18n(ctx, sess, userflow.RequestInfo{}, false)
		require.NoError(t, err)
		assert.Equal(t, "ru", info.Locale)
	})

	t.Run("unsupported timezone", func(t *testing.T) {
		err := flow.SetI18n(ctx, userflow.NewMemorySession(), userflow.SetI18nInput{Timezone: "Mars/Olympus"})
		assert.Contains(t, fieldCodes(t, err, "timezone"), userflow.CodeTimezoneNotValid)
	})

	t.Run("nothing to set", func(t *testing.T) {
		err := flow.SetI18n(ctx, userflow.NewMemorySession(), userflow.SetI18nInput{})
		assert.Contains(t, fieldCodes(t, err, userflow.FieldNone), userflow.CodeInsufficientData)
	})
}

func TestSetI18nPersistsForAuthenticatedUser(t *testing.T) {
	flow, backend := newTestFlow(t)
	ctx := context.Background()
	registerUser(t, flow, "user@example.com", "Secret123")

	sess := userflow.NewMemorySession()
	_, err := flow.Login(ctx, sess, userflow.RequestInfo{}, userflow.LoginInput{
		Email:    "user@example.com",
		Password: "Secret123",
	})
	require.NoError(t, err)

	require.NoError(t, flow.SetI18n(ctx, sess, userflow.SetI18nInput{Locale: "ru", Timezone: "Europe/Moscow"}))

	user, err := backend.Session(userflow.StoreConfig{}).
		FindUser(ctx, userflow.Filter{"email": "user@example.com"})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "ru", user.Locale)
	assert.Equal(t, "Europe/Moscow", user.Timezone)
}

func TestTimezoneWhitelist(t *testing.T) {
	cfg := testConfig()
	cfg.Timezones = []string{"UTC", "Europe/Moscow"}

	backend := userflow.NewMemoryBackend()
	flow, err := userflow.New(backend.Session(userflow.StoreConfig{}), cfg)
	require.NoError(t, err)

	ctx := context.Background()

	// A real tz database zone outside the whitelist is rejected.
	err = flow.SetI18n(ctx, userflow.NewMemorySession(), userflow.SetI18nInput{Timezone: "America/New_York"})
	assert.Contains(t, fieldCodes(t, err, "timezone"), userflow.CodeTimezoneNotValid)

	assert.NoError(t, flow.SetI18n(ctx, userflow.NewMemorySession(), userflow.SetI18nInput{Timezone: "Europe/Moscow"}))
	assert.Equal(t, []string{"UTC", "Europe/Moscow"}, flow.TimezoneChoices())
}
