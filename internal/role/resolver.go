package role

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
)

// Resolver answers role questions for the workflow engine
type Resolver interface {
	// Satisfies reports whether the user fulfils the role
	Satisfies(ctx context.Context, r Role, user *model.User) bool
	// UsersSatisfying returns the active users of the source fulfilling the
	// role. Callers inside a transaction pass the transaction as the source.
	UsersSatisfying(ctx context.Context, users UserSource, r Role) ([]model.User, error)
}

// UserSource lists the users known to the system
type UserSource interface {
	ListUsers(ctx context.Context) ([]model.User, error)
}

const rbacModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj
`

// CasbinResolver resolves roles against a casbin RBAC model. Users are linked
// to their groups and built-in roles; permissions are policies granted to a
// user or a group. A user's group links and grants are relinked from the user
// record on every permission check, so changes made after Sync are honoured.
type CasbinResolver struct {
	mu       sync.Mutex
	enforcer *casbin.SyncedEnforcer
	users    UserSource
	logger   *zap.Logger
}

// NewCasbinResolver creates a resolver over the given user source
func NewCasbinResolver(users UserSource, logger *zap.Logger) (*CasbinResolver, error) {
	if users == nil {
		return nil, fmt.Errorf("user source cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m, err := casbinmodel.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to build rbac model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}

	return &CasbinResolver{
		enforcer: enforcer,
		users:    users,
		logger:   logger,
	}, nil
}

func userSubject(id uint) string {
	return "user:" + strconv.FormatUint(uint64(id), 10)
}

// Sync rebuilds the role links from the current user list
func (r *CasbinResolver) Sync(ctx context.Context) error {
	users, err := r.users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.enforcer.ClearPolicy()
	if err := r.enforcer.BuildRoleLinks(); err != nil {
		return fmt.Errorf("failed to reset role links: %w", err)
	}
	for i := range users {
		if err := r.link(&users[i]); err != nil {
			return err
		}
	}

	r.logger.Debug("role links synchronized", zap.Int("users", len(users)))
	return nil
}

// link replaces the user's group links and permission grants with the ones
// carried by the user record. The grants of each listed group are replaced
// as well. Built-in links are kept. Callers hold r.mu.
func (r *CasbinResolver) link(user *model.User) error {
	sub := userSubject(user.ID)

	linked, err := r.enforcer.GetRolesForUser(sub)
	if err != nil {
		return fmt.Errorf("failed to read links of %s: %w", sub, err)
	}
	for _, name := range linked {
		if !strings.HasPrefix(name, KindGroup.String()+":") {
			continue
		}
		if _, err := r.enforcer.RemoveGroupingPolicy(sub, name); err != nil {
			return fmt.Errorf("failed to unlink %s from %s: %w", sub, name, err)
		}
	}
	if _, err := r.enforcer.RemoveFilteredPolicy(0, sub); err != nil {
		return fmt.Errorf("failed to revoke grants of %s: %w", sub, err)
	}

	for _, g := range user.Groups {
		group := Group(g.ID).String()
		if _, err := r.enforcer.AddGroupingPolicy(sub, group); err != nil {
			return fmt.Errorf("failed to link %s to group %d: %w", sub, g.ID, err)
		}
		if _, err := r.enforcer.RemoveFilteredPolicy(0, group); err != nil {
			return fmt.Errorf("failed to revoke grants of %s: %w", group, err)
		}
		if err := r.grant(group, g.Permissions); err != nil {
			return err
		}
	}
	return r.grant(sub, user.Permissions)
}

func (r *CasbinResolver) grant(sub string, codenames []string) error {
	for _, codename := range codenames {
		if _, err := r.enforcer.AddPolicy(sub, Permission(codename).String()); err != nil {
			return fmt.Errorf("failed to grant %s to %s: %w", codename, sub, err)
		}
	}
	return nil
}

// AssignBuiltin links a user to a built-in role not backed by a user attribute
func (r *CasbinResolver) AssignBuiltin(userID uint, name string) error {
	_, err := r.enforcer.AddGroupingPolicy(userSubject(userID), Builtin(name).String())
	return err
}

// Satisfies implements Resolver
func (r *CasbinResolver) Satisfies(_ context.Context, role Role, user *model.User) bool {
	if user == nil || role.IsZero() {
		return false
	}

	switch role.Kind {
	case KindBuiltin:
		switch role.Name {
		case IsActive:
			return user.IsActive
		case IsStaff:
			return user.IsStaff
		case IsSuperuser:
			return user.IsSuperuser
		}
		return r.hasLink(user, role)
	case KindGroup:
		for _, g := range user.Groups {
			if g.ID == role.GroupID {
				return true
			}
		}
		return r.hasLink(user, role)
	case KindPermission:
		if user.IsSuperuser && user.IsActive {
			return true
		}
		ok, err := r.enforce(user, role)
		if err != nil {
			r.logger.Warn("permission check failed",
				zap.Uint("user_id", user.ID),
				zap.String("role", role.String()),
				zap.Error(err))
			return false
		}
		return ok
	}
	return false
}

func (r *CasbinResolver) enforce(user *model.User, role Role) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.link(user); err != nil {
		return false, err
	}
	return r.enforcer.Enforce(userSubject(user.ID), role.String())
}

func (r *CasbinResolver) hasLink(user *model.User, role Role) bool {
	ok, err := r.enforcer.HasRoleForUser(userSubject(user.ID), role.String())
	if err != nil {
		r.logger.Warn("role lookup failed",
			zap.Uint("user_id", user.ID),
			zap.String("role", role.String()),
			zap.Error(err))
		return false
	}
	return ok
}

// UsersSatisfying implements Resolver
func (r *CasbinResolver) UsersSatisfying(ctx context.Context, source UserSource, role Role) ([]model.User, error) {
	if role.IsZero() {
		return nil, nil
	}
	if source == nil {
		source = r.users
	}
	users, err := source.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var out []model.User
	for i := range users {
		if !users[i].IsActive {
			continue
		}
		if r.Satisfies(ctx, role, &users[i]) {
			out = append(out, users[i])
		}
	}
	return out, nil
}

// SatisfiesAny reports whether the user fulfils at least one of the role tokens.
// Tokens that fail to parse are logged and ignored.
func SatisfiesAny(ctx context.Context, resolver Resolver, tokens []string, user *model.User, logger *zap.Logger) bool {
	for _, token := range tokens {
		r, err := Parse(token)
		if err != nil {
			if logger != nil {
				logger.Warn("ignoring invalid role token", zap.String("token", token), zap.Error(err))
			}
			continue
		}
		if resolver.Satisfies(ctx, r, user) {
			return true
		}
	}
	return false
}
