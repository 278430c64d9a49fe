package enums

import "fmt"

// UserRole mirrors the backend account role.
type UserRole string

const (
	UserRoleSuperAdmin UserRole = "superadmin"
	UserRoleSubAdmin   UserRole = "subadmin"
	UserRoleCustomer   UserRole = "customer"
)

var validUserRoles = []UserRole{
	UserRoleSuperAdmin,
	UserRoleSubAdmin,
	UserRoleCustomer,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the role belongs to the shop's admin side.
func (r UserRole) IsStaff() bool {
	return r == UserRoleSuperAdmin || r == UserRoleSubAdmin
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
