package models

import "fmt"

// Role is the closed set of profile roles.
type Role string

const (
	RoleCustomer       Role = "CUSTOMER"
	RoleProductManager Role = "PRODUCT_MANAGER"
	RoleSalesManager   Role = "SALES_MANAGER"
)

// Permission names an action guarded by role.
type Permission int

const (
	PermShop Permission = iota
	PermManageDeliveries
	PermManageRefunds
	PermViewSales
)

// ParseRole validates a stored role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleProductManager, RoleSalesManager:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Allows reports whether the role may perform p.
func (r Role) Allows(p Permission) bool {
	switch r {
	case RoleCustomer:
		return p == PermShop
	case RoleProductManager:
		return p == PermShop || p == PermManageDeliveries
	case RoleSalesManager:
		return p == PermShop || p == PermManageRefunds || p == PermViewSales
	default:
		return false
	}
}
