// Package authz models staff roles as a closed set with explicit
// capability predicates. The ledger consumes it only at the
// approve/reject boundary.
package authz

import (
	"fmt"
	"strings"
)

// Role is a staff role. The set is closed: anything outside it carries
// no capabilities.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleApprover   Role = "approver"
	RoleSuperAdmin Role = "superadmin"
)

// CanApprove reports whether the role may settle pending transactions.
// Owners record entries; only approvers and superadmins settle them.
func (r Role) CanApprove() bool {
	return r == RoleApprover || r == RoleSuperAdmin
}

// Capability names an action an actor may be allowed to perform.
type Capability string

const (
	// CapApprove is the capability to approve or reject a pending
	// transaction.
	CapApprove Capability = "approve"
)

// Authorizer answers capability checks for actors.
type Authorizer interface {
	// CheckRole reports whether the actor holds the capability.
	CheckRole(actorID string, cap Capability) bool
}

// StaticAuthorizer resolves capabilities from a fixed actor→role map.
// Actors absent from the map hold no capabilities.
type StaticAuthorizer struct {
	roles map[string]Role
}

// NewStaticAuthorizer creates an authorizer over the given role map.
func NewStaticAuthorizer(roles map[string]Role) *StaticAuthorizer {
	cp := make(map[string]Role, len(roles))
	for actor, role := range roles {
		cp[actor] = role
	}
	return &StaticAuthorizer{roles: cp}
}

// CheckRole implements Authorizer.
func (a *StaticAuthorizer) CheckRole(actorID string, cap Capability) bool {
	role, ok := a.roles[actorID]
	if !ok {
		return false
	}
	switch cap {
	case CapApprove:
		return role.CanApprove()
	}
	return false
}

var _ Authorizer = (*StaticAuthorizer)(nil)

// ParseRoles parses "actor:role,actor:role" pairs, the format used in
// the LEDGER_ROLES environment variable.
func ParseRoles(raw string) (map[string]Role, error) {
	roles := make(map[string]Role)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		actor, role, ok := strings.Cut(pair, ":")
		if !ok || actor == "" {
			return nil, fmt.Errorf("ParseRoles: malformed pair %q", pair)
		}
		switch r := Role(strings.ToLower(role)); r {
		case RoleOwner, RoleApprover, RoleSuperAdmin:
			roles[actor] = r
		default:
			return nil, fmt.Errorf("ParseRoles: unknown role %q for actor %q", role, actor)
		}
	}
	return roles, nil
}
