// Package rolegate maps a session role to the catalog operations it may perform.
package rolegate

import (
	"fmt"
	"sort"

	"librarydesk/internal/entity"
)

type Permission string

const (
	View   Permission = "view"
	Add    Permission = "add"
	Update Permission = "update"
	Delete Permission = "delete"
	Borrow Permission = "borrow"
)

// Set is an immutable permission set.
type Set map[Permission]struct{}

func newSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// List returns the permissions in a stable order.
func (s Set) List() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// table is the only place that decides who may do what.
var table = map[entity.Role][]Permission{
	entity.RoleAdmin: {View, Add, Update, Delete, Borrow},
	entity.RoleUser:  {View, Borrow},
}

// Permissions returns the permission set of role. Unknown roles get an error, never a set.
func Permissions(role entity.Role) (Set, error) {
	perms, ok := table[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownRole, role)
	}
	return newSet(perms...), nil
}

// Allows reports whether role holds perm. Unknown roles hold nothing.
func Allows(role entity.Role, perm Permission) bool {
	set, err := Permissions(role)
	if err != nil {
		return false
	}
	return set.Has(perm)
}

// Require returns an error wrapping entity.ErrAuthorization when role lacks perm.
func Require(role entity.Role, perm Permission) error {
	set, err := Permissions(role)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", perm, entity.ErrAuthorization, err)
	}
	if !set.Has(perm) {
		return fmt.Errorf("%s requires a role with %q permission: %w", role, perm, entity.ErrAuthorization)
	}
	return nil
}
