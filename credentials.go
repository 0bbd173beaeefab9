package userflow

import (
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Credentials handles password hashing and auth id generation. The cost is
// configurable because it trades request latency against brute force
// resistance; keep it high in production and at bcrypt.MinCost in tests.
type Credentials struct {
	cost int
}

// NewCredentials creates a Credentials manager with the given bcrypt cost.
func NewCredentials(cost int) *Credentials {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Credentials{cost: cost}
}

// HashPassword will generate a password hash
func (c *Credentials) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}
	return string(h), nil
}

// VerifyPassword will validate the given cleartext password against the
// stored hash. Comparison runs in constant time.
func (c *Credentials) VerifyPassword(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if stderrors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return errors.Wrap(err, errors.CategoryAuth, "failed to compare password hash")
	}
	return nil
}

// GenerateAuthID derives a fresh opaque session handle for the user, seeded
// from the internal id, the current password hash, and the current time,
// run through a one way digest. It must never depend on the id alone
// (predictable) nor on time alone (replayable across users). Calling this
// on password change is mandatory: overwriting the old value is the
// session invalidation mechanism.
func (c *Credentials) GenerateAuthID(user *User) (string, error) {
	if user == nil || user.PasswordHash == "" {
		return "", errors.New("auth id requires a user with a password hash", errors.CategoryOperation).
			WithTextCode("MISSING_PASSWORD_HASH")
	}

	seed := fmt.Sprintf("%s%s%s", user.ID.String(), user.PasswordHash,
		time.Now().UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:]), nil
}

// RandomPasswordHash is a throwaway hash for accounts created without a
// password (e.g. provider signups pending email confirmation).
func (c *Credentials) RandomPasswordHash() string {
	h, err := c.HashPassword(uuid.NewString())
	if err != nil {
		return c.RandomPasswordHash()
	}
	return h
}
