package userflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend is a mutex guarded in-memory storage engine enforcing the
// same uniqueness constraints a SQL deployment would: user email, user
// auth_id, and (provider, provider_user_id). Useful for tests and small
// embedded deployments.
type MemoryBackend struct {
	mu            sync.Mutex
	users         map[uuid.UUID]*User
	roles         map[uuid.UUID]*Role
	providerUsers map[uuid.UUID]*ProviderUser
	loginRecords  map[uuid.UUID]*LoginRecord
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		users:         map[uuid.UUID]*User{},
		roles:         map[uuid.UUID]*Role{},
		providerUsers: map[uuid.UUID]*ProviderUser{},
		loginRecords:  map[uuid.UUID]*LoginRecord{},
	}
}

// Session opens a unit of work over the backend.
func (b *MemoryBackend) Session(config StoreConfig) *MemoryDatastore {
	return &MemoryDatastore{backend: b, config: config}
}

// MemoryDatastore is a staging session over a MemoryBackend. Finds always
// read the live backend; Put and Delete stage changes that Commit applies
// atomically. A session is not safe for concurrent use; Fork one per unit
// of work.
type MemoryDatastore struct {
	backend *MemoryBackend
	config  StoreConfig
	staged  []staged
}

var _ Datastore = (*MemoryDatastore)(nil)

// Fork returns a fresh session over the same backend.
func (d *MemoryDatastore) Fork() Datastore {
	return d.backend.Session(d.config)
}

// Configured implements Datastore.
func (d *MemoryDatastore) Configured(kind Kind) bool {
	return d.config.Enabled(kind)
}

// FindUser returns the first user matching the filter, or nil.
func (d *MemoryDatastore) FindUser(ctx context.Context, filter Filter) (*User, error) {
	users, err := d.FindUsers(ctx, filter)
	if err != nil || len(users) == 0 {
		return nil, err
	}
	return users[0], nil
}

// FindUsers returns every user matching the filter.
func (d *MemoryDatastore) FindUsers(_ context.Context, filter Filter) ([]*User, error) {
	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()

	var out []*User
	for _, u := range d.backend.users {
		if matchUser(u, filter) {
			out = append(out, u)
		}
	}
	return out, nil
}

// FindRole returns the first role matching the filter, or nil.
func (d *MemoryDatastore) FindRole(ctx context.Context, filter Filter) (*Role, error) {
	roles, err := d.FindRoles(ctx, filter)
	if err != nil || len(roles) == 0 {
		return nil, err
	}
	return roles[0], nil
}

// FindRoles returns every role matching the filter.
func (d *MemoryDatastore) FindRoles(_ context.Context, filter Filter) ([]*Role, error) {
	if !d.config.Roles {
		return nil, notConfigured(KindRole)
	}

	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()

	var out []*Role
	for _, r := range d.backend.roles {
		if matchRole(r, filter) {
			out = append(out, r)
		}
	}
	return out, nil
}

// FindProviderUser returns the first provider user matching the filter, or nil.
func (d *MemoryDatastore) FindProviderUser(ctx context.Context, filter Filter) (*ProviderUser, error) {
	records, err := d.FindProviderUsers(ctx, filter)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// FindProviderUsers returns every provider user matching the filter.
func (d *MemoryDatastore) FindProviderUsers(_ context.Context, filter Filter) ([]*ProviderUser, error) {
	if !d.config.ProviderUsers {
		return nil, notConfigured(KindProviderUser)
	}

	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()

	var out []*ProviderUser
	for _, p := range d.backend.providerUsers {
		if matchProviderUser(p, filter) {
			out = append(out, p)
		}
	}
	return out, nil
}

// FindLoginRecords returns every login record matching the filter.
func (d *MemoryDatastore) FindLoginRecords(_ context.Context, filter Filter) ([]*LoginRecord, error) {
	if !d.config.LoginRecords {
		return nil, notConfigured(KindLoginRecord)
	}

	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()

	var out []*LoginRecord
	for _, r := range d.backend.loginRecords {
		if matchLoginRecord(r, filter) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Put stages an entity for persistence.
func (d *MemoryDatastore) Put(entity any) {
	d.staged = append(d.staged, staged{op: opPut, entity: entity})
}

// Create stages an entity that must not already exist. Commit never treats
// a stored row with the same ID as "this row being updated": every
// constraint, the primary key included, has to be free.
func (d *MemoryDatastore) Create(entity any) {
	d.staged = append(d.staged, staged{op: opCreate, entity: entity})
}

// Delete stages an entity for removal.
func (d *MemoryDatastore) Delete(entity any) {
	d.staged = append(d.staged, staged{op: opDelete, entity: entity})
}

// Commit applies staged changes atomically. Constraints are validated
// before anything is written, so a failing batch leaves the backend
// untouched and returns ErrConflict.
func (d *MemoryDatastore) Commit(_ context.Context) error {
	batch := d.staged
	d.staged = nil

	if len(batch) == 0 {
		return nil
	}

	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()

	if err := d.checkBatch(batch); err != nil {
		return err
	}

	now := time.Now()
	for _, s := range batch {
		switch s.op {
		case opPut, opCreate:
			d.backend.apply(s.entity, now)
		case opDelete:
			d.backend.remove(s.entity)
		}
	}

	return nil
}

// checkBatch validates every staged write against the live backend and
// against the rest of the batch. Restaging the same row twice in one batch
// is fine; two distinct rows claiming the same unique value is a conflict.
func (d *MemoryDatastore) checkBatch(batch []staged) error {
	seenRows := map[any]bool{}
	seenEmails := map[string]bool{}
	seenAuthIDs := map[string]bool{}
	seenPairings := map[string]bool{}

	for _, s := range batch {
		if s.op == opDelete {
			continue
		}
		if kind := kindOf(s.entity); !d.config.Enabled(kind) {
			return notConfigured(kind)
		}
		if seenRows[s.entity] {
			continue
		}
		seenRows[s.entity] = true

		if err := d.backend.checkConstraints(s.entity, s.op == opCreate); err != nil {
			return err
		}

		switch e := s.entity.(type) {
		case *User:
			email := strings.ToLower(e.Email)
			if seenEmails[email] {
				return conflict("users.email", e.Email)
			}
			seenEmails[email] = true
			if e.AuthID != "" {
				if seenAuthIDs[e.AuthID] {
					return conflict("users.auth_id", e.AuthID)
				}
				seenAuthIDs[e.AuthID] = true
			}
		case *ProviderUser:
			pairing := e.Provider + "\x00" + e.ProviderUserID
			if seenPairings[pairing] {
				return conflict("provider_users.provider_user_id", e.ProviderUserID)
			}
			seenPairings[pairing] = true
		}
	}
	return nil
}

// checkConstraints checks one entity against stored rows. For updates a
// stored row with the same ID is the entity itself and is skipped; for
// creates nothing is skipped, so a pre-assigned ID colliding with an
// existing row conflicts instead of passing as "self".
func (b *MemoryBackend) checkConstraints(entity any, isCreate bool) error {
	switch e := entity.(type) {
	case *User:
		if isCreate && e.ID != uuid.Nil {
			if _, taken := b.users[e.ID]; taken {
				return conflict("users.id", e.ID)
			}
		}
		for id, u := range b.users {
			if !isCreate && e.ID != uuid.Nil && id == e.ID {
				continue
			}
			if strings.EqualFold(u.Email, e.Email) {
				return conflict("users.email", e.Email)
			}
			if u.AuthID != "" && u.AuthID == e.AuthID {
				return conflict("users.auth_id", e.AuthID)
			}
		}
	case *ProviderUser:
		if isCreate && e.ID != uuid.Nil {
			if _, taken := b.providerUsers[e.ID]; taken {
				return conflict("provider_users.id", e.ID)
			}
		}
		for id, p := range b.providerUsers {
			if !isCreate && e.ID != uuid.Nil && id == e.ID {
				continue
			}
			if p.Provider == e.Provider && p.ProviderUserID == e.ProviderUserID {
				return conflict("provider_users.provider_user_id", e.ProviderUserID)
			}
		}
	}
	return nil
}

func conflict(constraint string, value any) error {
	return ErrConflict.Clone().
		WithMetadata(map[string]any{"constraint": constraint, "value": value})
}

func (b *MemoryBackend) apply(entity any, now time.Time) {
	switch e := entity.(type) {
	case *User:
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt == nil {
			created := now
			e.CreatedAt = &created
		}
		updated := now
		e.UpdatedAt = &updated
		b.users[e.ID] = e
	case *Role:
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		b.roles[e.ID] = e
	case *ProviderUser:
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt == nil {
			created := now
			e.CreatedAt = &created
		}
		updated := now
		e.UpdatedAt = &updated
		b.providerUsers[e.ID] = e
	case *LoginRecord:
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		b.loginRecords[e.ID] = e
	}
}

func (b *MemoryBackend) remove(entity any) {
	switch e := entity.(type) {
	case *User:
		delete(b.users, e.ID)
	case *Role:
		delete(b.roles, e.ID)
	case *ProviderUser:
		delete(b.providerUsers, e.ID)
	case *LoginRecord:
		delete(b.loginRecords, e.ID)
	}
}

func matchUser(u *User, f Filter) bool {
	for key, want := range f {
		switch key {
		case "id":
			if id, ok := asUUID(want); !ok || u.ID != id {
				return false
			}
		case "auth_id":
			if s, ok := want.(string); !ok || u.AuthID != s {
				return false
			}
		case "email":
			if s, ok := want.(string); !ok || !strings.EqualFold(u.Email, s) {
				return false
			}
		case "is_active":
			if b, ok := want.(bool); !ok || u.Active != b {
				return false
			}
		case "locale":
			if s, ok := want.(string); !ok || u.Locale != s {
				return false
			}
		case "timezone":
			if s, ok := want.(string); !ok || u.Timezone != s {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func matchRole(r *Role, f Filter) bool {
	for key, want := range f {
		switch key {
		case "id":
			if id, ok := asUUID(want); !ok || r.ID != id {
				return false
			}
		case "user_id":
			if id, ok := asUUID(want); !ok || r.UserID != id {
				return false
			}
		case "name":
			if s, ok := want.(string); !ok || r.Name != s {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func matchProviderUser(p *ProviderUser, f Filter) bool {
	for key, want := range f {
		switch key {
		case "id":
			if id, ok := asUUID(want); !ok || p.ID != id {
				return false
			}
		case "provider":
			if s, ok := want.(string); !ok || p.Provider != s {
				return false
			}
		case "provider_user_id":
			if s, ok := want.(string); !ok || p.ProviderUserID != s {
				return false
			}
		case "user_id":
			id, ok := asUUID(want)
			if !ok || p.UserID == nil || *p.UserID != id {
				return false
			}
		case "email":
			if s, ok := want.(string); !ok || !strings.EqualFold(p.Email, s) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func matchLoginRecord(r *LoginRecord, f Filter) bool {
	for key, want := range f {
		switch key {
		case "id":
			if id, ok := asUUID(want); !ok || r.ID != id {
				return false
			}
		case "user_id":
			if id, ok := asUUID(want); !ok || r.UserID != id {
				return false
			}
		case "remote_addr":
			if s, ok := want.(string); !ok || r.RemoteAddr != s {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func asUUID(v any) (uuid.UUID, bool) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, true
	case *uuid.UUID:
		if id == nil {
			return uuid.Nil, false
		}
		return *id, true
	case string:
		parsed, err := uuid.Parse(id)
		if err != nil {
			return uuid.Nil, false
		}
		return parsed, true
	default:
		return uuid.Nil, false
	}
}
