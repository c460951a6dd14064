package auth

import "fmt"

// Role is the account role stored on a profile and carried in the session.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleDoctor         Role = "doctor"
	RoleHospitalDoctor Role = "hospital_doctor"
	RoleOnlineDoctor   Role = "online_doctor"
	RoleNurse          Role = "nurse"
	RolePharmacist     Role = "pharmacist"
	RolePatient        Role = "patient"
)

// AllRoles lists every known role in display order.
var AllRoles = []Role{
	RoleAdmin, RoleDoctor, RoleHospitalDoctor, RoleOnlineDoctor,
	RoleNurse, RolePharmacist, RolePatient,
}

// StaffRoles are the roles an admin may assign when creating staff accounts.
var StaffRoles = []Role{
	RoleDoctor, RoleHospitalDoctor, RoleOnlineDoctor, RoleNurse, RolePharmacist,
}

// ParseRole validates s against the known roles.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// IsStaff reports whether r works inside the hospital (everyone but patients).
func (r Role) IsStaff() bool {
	return r.Valid() && r != RolePatient
}

// IsDoctor covers the generic, hospital and online doctor roles.
func (r Role) IsDoctor() bool {
	return r == RoleDoctor || r == RoleHospitalDoctor || r == RoleOnlineDoctor
}

// IsAssignableStaff reports whether r may be granted through staff creation.
func (r Role) IsAssignableStaff() bool {
	for _, s := range StaffRoles {
		if r == s {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }
