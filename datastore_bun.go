package userflow

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

// Column whitelists keep filters from reaching the query builder with
// arbitrary identifiers. A filter key outside the whitelist matches nothing.
var (
	userColumns = map[string]string{
		"id":        "id",
		"auth_id":   "auth_id",
		"email":     "email",
		"is_active": "is_active",
		"locale":    "locale",
		"timezone":  "timezone",
	}
	roleColumns = map[string]string{
		"id":      "id",
		"user_id": "user_id",
		"name":    "name",
	}
	providerUserColumns = map[string]string{
		"id":               "id",
		"provider":         "provider",
		"provider_user_id": "provider_user_id",
		"user_id":          "user_id",
		"email":            "email",
	}
	loginRecordColumns = map[string]string{
		"id":          "id",
		"user_id":     "user_id",
		"remote_addr": "remote_addr",
	}
)

// BunDatastore persists entities through bun against Postgres or SQLite.
// Like every Datastore it is a unit of work: writes stage in memory and
// Commit flushes them inside a single transaction.
type BunDatastore struct {
	db     *bun.DB
	config StoreConfig
	logger Logger
	staged []staged
}

var _ Datastore = (*BunDatastore)(nil)

// BunOption configures a BunDatastore.
type BunOption func(*BunDatastore)

// WithBunLogger sets the store logger.
func WithBunLogger(logger Logger) BunOption {
	return func(d *BunDatastore) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewBunDatastore creates a datastore session over the given database.
func NewBunDatastore(db *bun.DB, config StoreConfig, opts ...BunOption) *BunDatastore {
	d := &BunDatastore{
		db:     db,
		config: config,
		logger: &defLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fork returns a fresh session over the same database.
func (d *BunDatastore) Fork() Datastore {
	return &BunDatastore{db: d.db, config: d.config, logger: d.logger}
}

// Configured implements Datastore.
func (d *BunDatastore) Configured(kind Kind) bool {
	return d.config.Enabled(kind)
}

func applyFilter(q *bun.SelectQuery, filter Filter, columns map[string]string) (*bun.SelectQuery, bool) {
	for key, value := range filter {
		col, ok := columns[key]
		if !ok {
			return nil, false
		}
		q = q.Where(fmt.Sprintf("?TableAlias.%s = ?", col), value)
	}
	return q, true
}

// FindUser returns the first user matching the filter, or nil.
func (d *BunDatastore) FindUser(ctx context.Context, filter Filter) (*User, error) {
	user := new(User)
	q, ok := applyFilter(d.db.NewSelect().Model(user), filter, userColumns)
	if !ok {
		return nil, nil
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to find user")
	}
	return user, nil
}

// FindUsers returns every user matching the filter.
func (d *BunDatastore) FindUsers(ctx context.Context, filter Filter) ([]*User, error) {
	var users []*User
	q, ok := applyFilter(d.db.NewSelect().Model(&users), filter, userColumns)
	if !ok {
		return nil, nil
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to find users")
	}
	return users, nil
}

// FindRole returns the first role matching the filter, or nil.
func (d *BunDatastore) FindRole(ctx context.Context, filter Filter) (*Role, error) {
	if !d.config.Roles {
		return nil, notConfigured(KindRole)
	}

	role := new(Role)
	q, ok := applyFilter(d.db.NewSelect().Model(role), filter, roleColumns)
	if !ok {
		return nil, nil
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to find role")
	}
	return role, nil
}

// FindRoles returns every role matching the filter.
func (d *BunDatastore) FindRoles(ctx context.Context, filter Filter) ([]*Role, error) {
	if !d.config.Roles {
		return nil, notConfigured(KindRole)
	}

	var roles []*Role
	q, ok := applyFilter(d.db.NewSelect().Model(&roles), filter, roleColumns)
	if !ok {
		return nil, nil
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to find roles")
	}
	return roles, nil
}

// FindProviderUser returns the first provider user matching the filter, or nil.
func (d *BunDatastore) FindProviderUser(ctx context.Context, filter Filter) (*ProviderUser, error) {
	if !d.config.ProviderUsers {
		return nil, notConfigured(KindProviderUser)
	}

	record := new(ProviderUser)
	q, ok := applyFilter(d.db.NewSelect().Model(record), filter, providerUserColumns)
	if !ok {
		return nil, nil
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to find provider user")
	}
	return record, nil
}

// FindProviderUsers returns every provider user matching the filter.
func (d *BunDatastore) FindProviderUsers(ctx context.Context, filter Filter) ([]*ProviderUser, error) {
	if !d.config.ProviderUsers {
		return nil, notConfigured(KindProviderUser)
	}

	var records []*ProviderUser
	q, ok := applyFilter(d.db.NewSelect().Model(&records), filter, providerUserColumns)
	if !ok {
		return nil, nil
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to find provider users")
	}
	return records, nil
}

// FindLoginRecords returns every login record matching the filter.
func (d *BunDatastore) FindLoginRecords(ctx context.Context, filter Filter) ([]*LoginRecord, error) {
	if !d.config.LoginRecords {
		return nil, notConfigured(KindLoginRecord)
	}

	var records []*LoginRecord
	q, ok := applyFilter(d.db.NewSelect().Model(&records), filter, loginRecordColumns)
	if !ok {
		return nil, nil
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to find login records")
	}
	return records, nil
}

// Put stages an entity for persistence.
func (d *BunDatastore) Put(entity any) {
	d.staged = append(d.staged, staged{op: opPut, entity: entity})
}

// Create stages an entity that must not already exist. Commit runs a plain
// INSERT for it, so a pre-assigned ID colliding with a stored row hits the
// primary key constraint and surfaces as ErrConflict instead of updating
// the victim row.
func (d *BunDatastore) Create(entity any) {
	d.staged = append(d.staged, staged{op: opCreate, entity: entity})
}

// Delete stages an entity for removal.
func (d *BunDatastore) Delete(entity any) {
	d.staged = append(d.staged, staged{op: opDelete, entity: entity})
}

// Commit flushes staged changes in one transaction. Unique index violations
// surface as ErrConflict.
func (d *BunDatastore) Commit(ctx context.Context) error {
	batch := d.staged
	d.staged = nil

	if len(batch) == 0 {
		return nil
	}

	for _, s := range batch {
		if kind := kindOf(s.entity); !d.config.Enabled(kind) {
			return notConfigured(kind)
		}
	}

	err := d.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now()
		for _, s := range batch {
			switch s.op {
			case opPut:
				if err := upsert(ctx, tx, s.entity, now); err != nil {
					return err
				}
			case opCreate:
				stampEntity(s.entity, now)
				if _, err := tx.NewInsert().Model(s.entity).Exec(ctx); err != nil {
					return err
				}
			case opDelete:
				if _, err := tx.NewDelete().Model(s.entity).WherePK().Exec(ctx); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}

	if isUniqueViolation(err) {
		d.logger.Debug("commit hit unique violation: %v", err)
		return ErrConflict.Clone().
			WithMetadata(map[string]any{"cause": err.Error()})
	}
	return errors.Wrap(err, errors.CategoryInternal, "failed to commit datastore batch")
}

func upsert(ctx context.Context, tx bun.Tx, entity any, now time.Time) error {
	isNew := stampEntity(entity, now)
	if isNew {
		_, err := tx.NewInsert().Model(entity).Exec(ctx)
		return err
	}

	res, err := tx.NewUpdate().Model(entity).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		_, err := tx.NewInsert().Model(entity).Exec(ctx)
		return err
	}
	return nil
}

// stampEntity assigns an ID when missing and maintains timestamps. It
// reports whether the entity is new to this store.
func stampEntity(entity any, now time.Time) bool {
	isNew := false
	switch e := entity.(type) {
	case *User:
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
			isNew = true
		}
		if e.CreatedAt == nil {
			created := now
			e.CreatedAt = &created
		}
		updated := now
		e.UpdatedAt = &updated
	case *Role:
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
			isNew = true
		}
	case *ProviderUser:
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
			isNew = true
		}
		if e.CreatedAt == nil {
			created := now
			e.CreatedAt = &created
		}
		updated := now
		e.UpdatedAt = &updated
	case *LoginRecord:
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
			isNew = true
		}
	}
	return isNew
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// sqlite via sqliteshim has no typed error surface worth importing.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
