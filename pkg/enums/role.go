package enums

import "strings"

// Role is the coarse capability carried in access tokens.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

var roles = []Role{RoleCustomer, RoleStaff, RoleAdmin}

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool {
	_, err := parse("role", string(r), roles)
	return err == nil
}

// IsStaff reports whether the role may redeem vouchers.
func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}

// ParseRole is case and whitespace insensitive.
func ParseRole(value string) (Role, error) {
	return parse("role", strings.ToLower(strings.TrimSpace(value)), roles)
}
