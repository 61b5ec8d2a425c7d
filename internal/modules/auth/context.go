// Package auth carries the caller identity from the HTTP layer into services.
// Sessions are issued elsewhere; this package only describes who is calling.
package auth

type Role string

const (
	RoleHomeowner  Role = "homeowner"
	RoleBroker     Role = "broker"
	RoleContractor Role = "contractor"
	RoleAffiliate  Role = "affiliate"
	RoleAdmin      Role = "admin"
)

// Context is produced once per request and passed explicitly to every service call.
type Context struct {
	UserID string
	Role   Role
}

func (c Context) Authenticated() bool { return c.UserID != "" }

func (c Context) IsAdmin() bool { return c.Role == RoleAdmin }

func (c Context) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// Purchaser reports whether the caller buys leads (contractors and affiliates).
func (c Context) Purchaser() bool { return c.HasRole(RoleContractor, RoleAffiliate) }
