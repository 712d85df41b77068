// Package rbac decides which actions the two kinds of caller may perform.
// Visitors reach a client's public progress page without signing in;
// admins are allow-listed accounts.
package rbac

type Role string
type Action string

const (
	RoleVisitor Role = "visitor"
	RoleAdmin   Role = "admin"
)

const (
	ActionRead        Action = "read"
	ActionComment     Action = "comment"
	ActionAcknowledge Action = "acknowledge"
	ActionExport      Action = "export"
	ActionWrite       Action = "write"
	ActionAdmin       Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleVisitor:
		switch action {
		case ActionRead, ActionComment, ActionAcknowledge, ActionExport:
			return true
		}
		return false
	default:
		return false
	}
}

// Normalize maps unknown or empty roles to the least privileged one.
func Normalize(role string) Role {
	if Role(role) == RoleAdmin {
		return RoleAdmin
	}
	return RoleVisitor
}
