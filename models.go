package userflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the identity record. ID is the stable internal key used by
// relations; AuthID is the opaque, rotatable external session handle.
// Regenerating AuthID invalidates every outstanding session without
// touching relational references.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AuthID        string     `bun:"auth_id,notnull,unique" json:"-"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone         string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Active        bool       `bun:"is_active" json:"is_active,omitempty"`
	Locale        string     `bun:"locale" json:"locale,omitempty"`
	Timezone      string     `bun:"timezone" json:"timezone,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool {
	return u != nil && u.Active
}

// Role is a (user, name) grant. It has no lifecycle of its own; grants are
// created and deleted through explicit operations.
type Role struct {
	bun.BaseModel `bun:"table:user_roles,alias:rol"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID `bun:"user_id,notnull" json:"user_id,omitempty"`
	Name          string    `bun:"name,notnull" json:"name,omitempty"`
}

// ProviderUser is a federated identity from a third party provider. UserID
// stays nil until the identity is associated with a local account; the
// association is set exactly once per pairing and re-running it with the
// same pairing is a no-op.
type ProviderUser struct {
	bun.BaseModel  `bun:"table:provider_users,alias:pvu"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Provider       string         `bun:"provider,notnull" json:"provider,omitempty"`
	ProviderUserID string         `bun:"provider_user_id,notnull" json:"provider_user_id,omitempty"`
	UserID         *uuid.UUID     `bun:"user_id,nullzero" json:"user_id,omitempty"`
	Email          string         `bun:"email" json:"email,omitempty"`
	Name           string         `bun:"name" json:"name,omitempty"`
	AvatarURL      string         `bun:"avatar_url" json:"avatar_url,omitempty"`
	Attributes     map[string]any `bun:"attributes" json:"attributes,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Refresh copies the provider supplied profile attributes onto the record.
// Runs on every federated login so the local copy never goes stale.
func (p *ProviderUser) Refresh(result ProviderResult) {
	p.Email = result.Email
	p.Name = result.Name
	p.AvatarURL = result.AvatarURL
	p.Attributes = result.Attributes
}

// Associated reports whether the identity is bound to a local user.
func (p *ProviderUser) Associated() bool {
	return p != nil && p.UserID != nil && *p.UserID != uuid.Nil
}

// LoginRecord is the append-only audit row written on every successful
// login when the login_record kind is configured.
type LoginRecord struct {
	bun.BaseModel `bun:"table:login_records,alias:lrec"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID      `bun:"user_id,notnull" json:"user_id,omitempty"`
	Time          time.Time      `bun:"time,notnull" json:"time,omitempty"`
	RemoteAddr    string         `bun:"remote_addr" json:"remote_addr,omitempty"`
	GeoInfo       map[string]any `bun:"geo_info" json:"geo_info,omitempty"`
	UAInfo        map[string]any `bun:"ua_info" json:"ua_info,omitempty"`
}
