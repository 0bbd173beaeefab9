package userflow

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// Config holds the process wide options the flows need. Load it once at
// startup; Validate failures are fatal configuration errors, never request
// time ones.
type Config struct {
	// SecretKey signs every token the codec issues. Rotating it invalidates
	// all outstanding tokens; that is documented behavior, not a bug.
	SecretKey string `env:"USERFLOW_SECRET_KEY"`

	// PasswordCost is the bcrypt work factor. Production deployments want
	// the default or higher; tests want bcrypt.MinCost.
	PasswordCost int `env:"USERFLOW_PASSWORD_COST" envDefault:"12"`

	Locales         []string `env:"USERFLOW_LOCALES" envDefault:"en"`
	DefaultLocale   string   `env:"USERFLOW_DEFAULT_LOCALE"`
	DefaultTimezone string   `env:"USERFLOW_DEFAULT_TIMEZONE" envDefault:"UTC"`

	// Timezones, when set, is the accepted whitelist. When empty any zone
	// resolvable through the tz database is accepted.
	Timezones []string `env:"USERFLOW_TIMEZONES"`

	RegisterConfirmSalt string        `env:"USERFLOW_REGISTER_CONFIRM_SALT" envDefault:"register-confirm"`
	RegisterConfirmAge  time.Duration `env:"USERFLOW_REGISTER_CONFIRM_AGE" envDefault:"336h"`
	RestoreConfirmSalt  string        `env:"USERFLOW_RESTORE_CONFIRM_SALT" envDefault:"restore-confirm"`
	RestoreConfirmAge   time.Duration `env:"USERFLOW_RESTORE_CONFIRM_AGE" envDefault:"336h"`
	AuthTokenSalt       string        `env:"USERFLOW_AUTH_TOKEN_SALT" envDefault:"auth-token"`
	AuthTokenAge        time.Duration `env:"USERFLOW_AUTH_TOKEN_AGE" envDefault:"720h"`

	// URL templates for confirmation links embedded in outbound email. The
	// single %s verb receives the token.
	RegisterConfirmURL string `env:"USERFLOW_REGISTER_CONFIRM_URL" envDefault:"/register_confirm/%s"`
	RestoreConfirmURL  string `env:"USERFLOW_RESTORE_CONFIRM_URL" envDefault:"/restore_confirm/%s"`

	// DeterministicIDs derives user IDs from the email via hashid instead
	// of random UUIDs.
	DeterministicIDs bool `env:"USERFLOW_DETERMINISTIC_IDS"`
}

// LoadConfig reads configuration from the environment and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to parse userflow environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required settings and fills derivable defaults.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("secret key is required", errors.CategoryOperation).
			WithTextCode("MISSING_SECRET_KEY")
	}

	if c.PasswordCost == 0 {
		c.PasswordCost = bcrypt.DefaultCost
	}
	if c.PasswordCost < bcrypt.MinCost || c.PasswordCost > bcrypt.MaxCost {
		return errors.New("password cost outside bcrypt bounds", errors.CategoryOperation).
			WithTextCode("INVALID_PASSWORD_COST").
			WithMetadata(map[string]any{"cost": c.PasswordCost})
	}

	if len(c.Locales) == 0 {
		c.Locales = []string{"en"}
	}
	if c.DefaultLocale == "" {
		c.DefaultLocale = c.Locales[0]
	}
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = "UTC"
	}

	if c.RegisterConfirmAge <= 0 {
		c.RegisterConfirmAge = 14 * 24 * time.Hour
	}
	if c.RestoreConfirmAge <= 0 {
		c.RestoreConfirmAge = 14 * 24 * time.Hour
	}
	if c.AuthTokenAge <= 0 {
		c.AuthTokenAge = 30 * 24 * time.Hour
	}

	return nil
}

func (c *Config) tokenSalts() map[TokenPurpose]string {
	return map[TokenPurpose]string{
		PurposeRegisterConfirm: c.RegisterConfirmSalt,
		PurposeRestoreConfirm:  c.RestoreConfirmSalt,
		PurposeAuthToken:       c.AuthTokenSalt,
	}
}
