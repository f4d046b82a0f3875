package auth

import (
	"fmt"
	"strings"
)

// Role is the staff role carried by an account and its tokens.
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleDoctor       Role = "DOCTOR"
	RoleNurse        Role = "NURSE"
	RoleReceptionist Role = "RECEPTIONIST"
)

// AllRoles lists every role in display order.
var AllRoles = []Role{RoleAdmin, RoleDoctor, RoleNurse, RoleReceptionist}

// ClinicalRoles may read clinical notes.
var ClinicalRoles = []Role{RoleAdmin, RoleDoctor, RoleNurse}

// ParseRole parses a role label case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleNurse, RoleReceptionist:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// HasRole reports whether r is a member of allowed.
func HasRole(r Role, allowed []Role) bool {
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}
