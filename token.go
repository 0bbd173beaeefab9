package userflow

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenPurpose names the context a token is valid for. A token minted for
// one purpose never verifies under another: each purpose signs with its own
// salt-derived key.
type TokenPurpose string

const (
	PurposeRegisterConfirm TokenPurpose = "register_confirm"
	PurposeRestoreConfirm  TokenPurpose = "restore_confirm"
	PurposeAuthToken       TokenPurpose = "auth_token"
)

// TokenCodec issues and verifies signed, named, time limited tokens over an
// opaque string payload. Tokens carry their issue time; age is enforced at
// verification so each purpose can apply its own window.
type TokenCodec struct {
	secret []byte
	salts  map[TokenPurpose]string
	logger Logger
}

// TokenCodecOption configures the codec.
type TokenCodecOption func(*TokenCodec)

// WithTokenLogger overrides the codec logger.
func WithTokenLogger(logger Logger) TokenCodecOption {
	return func(tc *TokenCodec) {
		if logger != nil {
			tc.logger = logger
		}
	}
}

// WithPurposeSalt registers or overrides the salt for a purpose.
func WithPurposeSalt(purpose TokenPurpose, salt string) TokenCodecOption {
	return func(tc *TokenCodec) {
		tc.salts[purpose] = salt
	}
}

// NewTokenCodec creates a codec signing with the process wide secret.
func NewTokenCodec(secret []byte, salts map[TokenPurpose]string, opts ...TokenCodecOption) *TokenCodec {
	tc := &TokenCodec{
		secret: secret,
		salts:  map[TokenPurpose]string{},
		logger: defLogger{},
	}

	for purpose, salt := range salts {
		tc.salts[purpose] = salt
	}

	for _, opt := range opts {
		if opt != nil {
			opt(tc)
		}
	}

	return tc
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Payload string `json:"pld"`
}

// signingKey derives the per purpose key: HMAC-SHA256 of the purpose salt
// keyed by the process secret. Same secret, different salt, different key.
func (tc *TokenCodec) signingKey(purpose TokenPurpose) []byte {
	salt, ok := tc.salts[purpose]
	if !ok {
		salt = string(purpose)
	}

	mac := hmac.New(sha256.New, tc.secret)
	mac.Write([]byte(salt))
	return mac.Sum(nil)
}

// Issue mints a signed token over payload for the given purpose.
func (tc *TokenCodec) Issue(purpose TokenPurpose, payload string) (string, error) {
	now := time.Now()
	claims := &tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  string(purpose),
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
		Payload: payload,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tc.signingKey(purpose))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign token")
	}

	return signed, nil
}

// Verify checks the signature and shape of a token under the given purpose
// and returns its payload. Signature or structure problems yield
// ErrTokenInvalid regardless of token age; a valid token older than maxAge
// yields ErrTokenExpired.
func (tc *TokenCodec) Verify(purpose TokenPurpose, raw string, maxAge time.Duration) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			tc.logger.Error("token codec: unexpected signing method %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tc.signingKey(purpose), nil
	}, jwt.WithSubject(string(purpose)))

	if err != nil {
		return "", ErrTokenInvalid
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return "", ErrTokenInvalid
	}

	if claims.IssuedAt == nil {
		return "", ErrTokenInvalid
	}

	if time.Since(claims.IssuedAt.Time) > maxAge {
		return "", ErrTokenExpired
	}

	return claims.Payload, nil
}
