package role

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the variants of a Role
type Kind int

const (
	KindNone Kind = iota
	KindBuiltin
	KindGroup
	KindPermission
)

func (k Kind) String() string {
	switch k {
	case KindBuiltin:
		return "builtin"
	case KindGroup:
		return "group"
	case KindPermission:
		return "perm"
	}
	return "none"
}

// Built-in role names backed by user attributes
const (
	IsActive    = "is_active"
	IsStaff     = "is_staff"
	IsSuperuser = "is_superuser"
)

// Role is a requirement a user must satisfy: a built-in role name,
// a group membership or a permission codename.
type Role struct {
	Kind    Kind
	Name    string
	GroupID uint
}

// Builtin returns a built-in role
func Builtin(name string) Role {
	return Role{Kind: KindBuiltin, Name: name}
}

// Group returns a group membership role
func Group(id uint) Role {
	return Role{Kind: KindGroup, GroupID: id}
}

// Permission returns a permission role
func Permission(codename string) Role {
	return Role{Kind: KindPermission, Name: codename}
}

// IsZero reports whether no role is set
func (r Role) IsZero() bool {
	return r.Kind == KindNone
}

// String returns the canonical token for the role
func (r Role) String() string {
	switch r.Kind {
	case KindBuiltin:
		return "builtin:" + r.Name
	case KindGroup:
		return "group:" + strconv.FormatUint(uint64(r.GroupID), 10)
	case KindPermission:
		return "perm:" + r.Name
	}
	return ""
}

// Parse reads a role token. Tokens may be prefixed ("builtin:", "group:",
// "perm:") or bare, in which case a number is a group id, a dotted name is a
// permission codename and anything else is a built-in role. An empty token
// yields the zero Role.
func Parse(token string) (Role, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Role{}, nil
	}

	if prefix, rest, ok := strings.Cut(token, ":"); ok {
		if rest == "" {
			return Role{}, fmt.Errorf("role %q has an empty value", token)
		}
		switch prefix {
		case "builtin":
			return Builtin(rest), nil
		case "group":
			id, err := strconv.ParseUint(rest, 10, 64)
			if err != nil || id == 0 {
				return Role{}, fmt.Errorf("role %q has an invalid group id", token)
			}
			return Group(uint(id)), nil
		case "perm", "permission":
			return Permission(rest), nil
		default:
			return Role{}, fmt.Errorf("role %q has an unknown kind %q", token, prefix)
		}
	}

	if id, err := strconv.ParseUint(token, 10, 64); err == nil {
		if id == 0 {
			return Role{}, fmt.Errorf("role %q has an invalid group id", token)
		}
		return Group(uint(id)), nil
	}
	if strings.Contains(token, ".") {
		return Permission(token), nil
	}
	return Builtin(token), nil
}

// MustParse is like Parse but panics on error
func MustParse(token string) Role {
	r, err := Parse(token)
	if err != nil {
		panic(err)
	}
	return r
}
