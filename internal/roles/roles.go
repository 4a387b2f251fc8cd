// Package roles is the closed set of roles a user can hold and the
// permissions each of them grants. Role names coming from requests or the
// database are parsed here and never trusted as free-form strings.
package roles

import (
	"fmt"
	"sort"
	"strings"
)

type Role string

const (
	User       Role = "USER"
	Admin      Role = "ADMIN"
	SuperAdmin Role = "SUPER_ADMIN"
)

// All lists the roles in ascending order of privilege.
var All = []Role{User, Admin, SuperAdmin}

type Permission string

const (
	ProfileRead   Permission = "profile:read"
	UsersRead     Permission = "users:read"
	UsersWrite    Permission = "users:write"
	InvitesWrite  Permission = "invites:write"
	GroupsRead    Permission = "groups:read"
	GroupsWrite   Permission = "groups:write"
	AuditRead     Permission = "audit:read"
	SessionsWrite Permission = "sessions:write"
	SettingsRead  Permission = "settings:read"
	SettingsWrite Permission = "settings:write"
	RolesWrite    Permission = "roles:write"
)

var userPerms = []Permission{ProfileRead}

var adminPerms = append(append([]Permission{}, userPerms...),
	UsersRead, UsersWrite, InvitesWrite, GroupsRead, GroupsWrite,
	AuditRead, SessionsWrite, SettingsRead,
)

var superAdminPerms = append(append([]Permission{}, adminPerms...),
	RolesWrite, SettingsWrite,
)

var grants = map[Role][]Permission{
	User:       userPerms,
	Admin:      adminPerms,
	SuperAdmin: superAdminPerms,
}

// Parse accepts a role name in any case and rejects anything outside the
// enumeration.
func Parse(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := grants[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := grants[r]
	return ok
}

func (r Role) Permissions() []Permission {
	return grants[r]
}

func (r Role) IsAdmin() bool {
	return r == Admin || r == SuperAdmin
}

// Set is the role set of one user at the time of the request.
type Set []Role

// FromStrings drops unknown names; rows written by older code must not
// widen anybody's rights.
func FromStrings(names []string) Set {
	out := make(Set, 0, len(names))
	for _, n := range names {
		if r, err := Parse(n); err == nil {
			out = append(out, r)
		}
	}
	return out
}

func (s Set) Has(r Role) bool {
	for _, x := range s {
		if x == r {
			return true
		}
	}
	return false
}

func (s Set) HasAny(rs ...Role) bool {
	for _, r := range rs {
		if s.Has(r) {
			return true
		}
	}
	return false
}

func (s Set) IsAdmin() bool {
	return s.HasAny(Admin, SuperAdmin)
}

func (s Set) Can(p Permission) bool {
	for _, r := range s {
		for _, g := range grants[r] {
			if g == p {
				return true
			}
		}
	}
	return false
}

// Permissions returns the sorted union of the permissions of every role.
func (s Set) Permissions() []Permission {
	seen := map[Permission]struct{}{}
	for _, r := range s {
		for _, p := range grants[r] {
			seen[p] = struct{}{}
		}
	}
	out := make([]Permission, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
