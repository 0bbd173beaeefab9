package userflow

import (
	"context"
)

// Kind names an entity family the datastore can manage.
type Kind string

const (
	KindUser         Kind = "user"
	KindRole         Kind = "role"
	KindProviderUser Kind = "provider_user"
	KindLoginRecord  Kind = "login_record"
)

// Filter is a set of equality constraints applied to a find. Keys use the
// storage column names (id, email, auth_id, provider, provider_user_id,
// user_id, name, is_active).
type Filter map[string]any

// StoreConfig enables the optional entity kinds. Users are always managed;
// roles, provider users, and login records are capabilities a deployment
// opts into. Touching a disabled kind yields ErrNotConfigured.
type StoreConfig struct {
	Roles         bool
	ProviderUsers bool
	LoginRecords  bool
}

// Enabled reports whether the kind is available under this configuration.
func (c StoreConfig) Enabled(kind Kind) bool {
	switch kind {
	case KindUser:
		return true
	case KindRole:
		return c.Roles
	case KindProviderUser:
		return c.ProviderUsers
	case KindLoginRecord:
		return c.LoginRecords
	default:
		return false
	}
}

// Datastore is the uniform repository surface the flows build on. Every
// find is a fresh lookup; nothing is cached, since stale reads on the
// authentication path are a security bug. Writes are staged with Put,
// Create, and Delete and flushed atomically by Commit; a uniqueness
// violation during commit surfaces as ErrConflict.
//
// Put upserts: a staged entity whose ID matches a stored row updates that
// row. Create insists on an insert: commit conflicts when any constraint
// is taken, the primary key included, so a pre-assigned ID can never turn
// a new entity into a silent overwrite of an existing row.
//
// Finds return (nil, nil) when nothing matches, and ErrNotConfigured when
// the kind is disabled in the StoreConfig.
//
// A Datastore value is a unit of work and is not safe for concurrent use.
// Fork opens a fresh session over the same underlying storage; callers that
// share a Flow across goroutines get one fork per operation.
type Datastore interface {
	Fork() Datastore

	Configured(kind Kind) bool

	FindUser(ctx context.Context, filter Filter) (*User, error)
	FindUsers(ctx context.Context, filter Filter) ([]*User, error)

	FindRole(ctx context.Context, filter Filter) (*Role, error)
	FindRoles(ctx context.Context, filter Filter) ([]*Role, error)

	FindProviderUser(ctx context.Context, filter Filter) (*ProviderUser, error)
	FindProviderUsers(ctx context.Context, filter Filter) ([]*ProviderUser, error)

	FindLoginRecords(ctx context.Context, filter Filter) ([]*LoginRecord, error)

	Put(entity any)
	Create(entity any)
	Delete(entity any)
	Commit(ctx context.Context) error
}

func notConfigured(kind Kind) error {
	return ErrNotConfigured.Clone().
		WithMetadata(map[string]any{"kind": string(kind)})
}

type stagedOp int

const (
	opPut stagedOp = iota
	opCreate
	opDelete
)

type staged struct {
	op     stagedOp
	entity any
}

func kindOf(entity any) Kind {
	switch entity.(type) {
	case *User:
		return KindUser
	case *Role:
		return KindRole
	case *ProviderUser:
		return KindProviderUser
	case *LoginRecord:
		return KindLoginRecord
	default:
		return ""
	}
}
