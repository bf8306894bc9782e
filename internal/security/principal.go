package security

// Permission is a bitmask of actions a principal may perform on a resource.
type Permission int

const (
	PermissionRead Permission = 1 << iota
	PermissionWrite
	PermissionExecute
	// PermissionOwner restricts the grant to the principal's own records. A
	// grant without the owner bit may act on behalf of other users.
	PermissionOwner
)

// NilUserId identifies the system user backing worker-originated sessions.
const NilUserId = "00000000-0000-0000-0000-000000000000"

// Principal is the authenticated identity a request runs as. It is always
// passed explicitly; there is no ambient session state.
type Principal struct {
	UserId string
	Grants map[string]Permission
	Claims map[string]string
}

// HasPermission reports whether the principal's grant for the resource
// includes every bit of perm.
func (p *Principal) HasPermission(resource string, perm Permission) bool {
	if p == nil {
		return false
	}
	return p.Grants[resource]&perm == perm
}

// OwnerOnly reports whether the principal may only act on its own records for
// the given resource.
func (p *Principal) OwnerOnly(resource string) bool {
	return p.HasPermission(resource, PermissionOwner)
}

// Claim returns the named identity claim, or "" when absent.
func (p *Principal) Claim(name string) string {
	if p == nil {
		return ""
	}
	return p.Claims[name]
}

// System returns the all-grant principal the worker runs as when no explicit
// session is supplied.
func System() *Principal {
	return &Principal{
		UserId: NilUserId,
		Grants: map[string]Permission{
			"*": PermissionRead | PermissionWrite | PermissionExecute,
		},
	}
}

// ForUser returns an owner-scoped principal for a regular user session.
func ForUser(userId string, claims map[string]string) *Principal {
	if claims == nil {
		claims = map[string]string{}
	}
	return &Principal{
		UserId: userId,
		Grants: map[string]Permission{
			"purchase": PermissionRead | PermissionWrite | PermissionOwner,
			"wallet":   PermissionRead | PermissionOwner,
		},
		Claims: claims,
	}
}
