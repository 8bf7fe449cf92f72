package auth

import "strings"

// Role is the coarse-grained role carried in verified token claims.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleEmployee || r == RoleManager
}

// ParseRole normalizes a raw role string.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// Identity is a verified caller identity extracted from a bearer credential.
type Identity struct {
	SubjectID string
	Role      Role
}

// IdentityFromClaims maps verified claims to an identity.
func IdentityFromClaims(claims *Claims) Identity {
	return Identity{SubjectID: claims.Subject, Role: claims.Role}
}

// Action names an operation gated by the authorization check.
type Action string

const (
	// ActionSubmitLeave requires an authenticated employee.
	ActionSubmitLeave Action = "leave.submit"
	// ActionResolveLeave is gated by task-token possession alone; the token
	// is the credential and caller identity is not re-checked.
	ActionResolveLeave Action = "leave.resolve"
	// ActionReadLeave permits the owning employee, the snapshotted approver,
	// or any manager to read a request.
	ActionReadLeave Action = "leave.read"
)

// Authorize decides whether the identity may perform the action. A nil
// identity represents an unauthenticated caller and maps to a deny, never a
// panic.
func Authorize(identity *Identity, action Action) error {
	switch action {
	case ActionSubmitLeave:
		if identity == nil || identity.Role != RoleEmployee {
			return ErrForbidden
		}
		return nil
	case ActionResolveLeave:
		// Capability trust: possession of a valid unconsumed task token is
		// necessary and sufficient. The workflow engine enforces it.
		return nil
	case ActionReadLeave:
		if identity == nil {
			return ErrForbidden
		}
		return nil
	default:
		return ErrForbidden
	}
}
