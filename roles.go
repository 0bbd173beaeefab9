package userflow

import (
	"context"
	"sort"
)

// GrantRole gives the user a role. Idempotent: granting an already held
// role is a no-op. Requires the role kind to be configured.
func (f *Flow) GrantRole(ctx context.Context, user *User, name string) error {
	ds := f.store.Fork()

	existing, err := ds.FindRole(ctx, Filter{"user_id": user.ID, "name": name})
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	ds.Put(&Role{UserID: user.ID, Name: name})
	return ds.Commit(ctx)
}

// RevokeRole removes a role from the user. Revoking a role the user does
// not hold is a no-op.
func (f *Flow) RevokeRole(ctx context.Context, user *User, name string) error {
	ds := f.store.Fork()

	role, err := ds.FindRole(ctx, Filter{"user_id": user.ID, "name": name})
	if err != nil {
		return err
	}
	if role == nil {
		return nil
	}

	ds.Delete(role)
	return ds.Commit(ctx)
}

// HasRole reports whether the user holds the named role.
func (f *Flow) HasRole(ctx context.Context, user *User, name string) (bool, error) {
	role, err := f.store.Fork().FindRole(ctx, Filter{"user_id": user.ID, "name": name})
	if err != nil {
		return false, err
	}
	return role != nil, nil
}

// RoleNames lists the user's role names in stable order.
func (f *Flow) RoleNames(ctx context.Context, user *User) ([]string, error) {
	roles, err := f.store.Fork().FindRoles(ctx, Filter{"user_id": user.ID})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	sort.Strings(names)
	return names, nil
}
