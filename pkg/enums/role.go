package enums

// Role is the actor role carried in access tokens.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	// RoleSystem is used by background workers; it never appears in tokens.
	RoleSystem Role = "system"
)

var tokenRoles = set[Role]{RoleCustomer, RoleAdmin}

func (r Role) String() string { return string(r) }

// IsValid reports whether the role may appear in an access token.
func (r Role) IsValid() bool { return tokenRoles.has(r) }

// IsStaff reports whether the role may operate on any order.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleSystem
}
