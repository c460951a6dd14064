package dashboard

import "github.com/ehr/wardwatch/internal/platform/auth"

// Screen is one entry of the client routing table.
type Screen struct {
	Path  string      `json:"path"`
	Title string      `json:"title"`
	Roles []auth.Role `json:"-"`
}

var (
	hospitalDoctors = []auth.Role{auth.RoleDoctor, auth.RoleHospitalDoctor}
	allDoctors      = []auth.Role{auth.RoleDoctor, auth.RoleHospitalDoctor, auth.RoleOnlineDoctor}
)

// Screens is the full path table in navigation order.
var Screens = []Screen{
	{Path: "/admin", Title: "Dashboard", Roles: []auth.Role{auth.RoleAdmin}},
	{Path: "/admin/staff", Title: "Staff", Roles: []auth.Role{auth.RoleAdmin}},
	{Path: "/admin/patients", Title: "Patients", Roles: []auth.Role{auth.RoleAdmin}},
	{Path: "/admin/alerts", Title: "Alerts", Roles: []auth.Role{auth.RoleAdmin}},
	{Path: "/admin/doctor-requests", Title: "Doctor change requests", Roles: []auth.Role{auth.RoleAdmin}},
	{Path: "/admin/settings", Title: "Settings", Roles: []auth.Role{auth.RoleAdmin}},

	{Path: "/hospital-doctor", Title: "Dashboard", Roles: hospitalDoctors},
	{Path: "/online-doctor", Title: "Dashboard", Roles: []auth.Role{auth.RoleOnlineDoctor}},
	{Path: "/doctor/patients", Title: "My patients", Roles: hospitalDoctors},
	{Path: "/doctor/alerts", Title: "Alerts", Roles: hospitalDoctors},
	{Path: "/doctor/calls", Title: "Consultations", Roles: []auth.Role{auth.RoleOnlineDoctor}},
	{Path: "/doctor/messages", Title: "Messages", Roles: allDoctors},

	{Path: "/nurse", Title: "Dashboard", Roles: []auth.Role{auth.RoleNurse}},
	{Path: "/nurse/add-patient", Title: "Admit patient", Roles: []auth.Role{auth.RoleNurse}},

	{Path: "/pharmacist", Title: "Dashboard", Roles: []auth.Role{auth.RolePharmacist}},

	{Path: "/patient", Title: "Dashboard", Roles: []auth.Role{auth.RolePatient}},
	{Path: "/patient/vitals", Title: "Vitals", Roles: []auth.Role{auth.RolePatient}},
	{Path: "/patient/appointments", Title: "Appointments", Roles: []auth.Role{auth.RolePatient}},
	{Path: "/patient/book", Title: "Book appointment", Roles: []auth.Role{auth.RolePatient}},
	{Path: "/patient/doctors", Title: "Doctors", Roles: []auth.Role{auth.RolePatient}},
	{Path: "/patient/teleconsultation", Title: "Teleconsultation", Roles: []auth.Role{auth.RolePatient}},
	{Path: "/patient/messages", Title: "Messages", Roles: []auth.Role{auth.RolePatient}},
	{Path: "/patient/contact", Title: "Contact", Roles: []auth.Role{auth.RolePatient}},
}

var homes = map[auth.Role]string{
	auth.RoleAdmin:          "/admin",
	auth.RoleDoctor:         "/hospital-doctor",
	auth.RoleHospitalDoctor: "/hospital-doctor",
	auth.RoleOnlineDoctor:   "/online-doctor",
	auth.RoleNurse:          "/nurse",
	auth.RolePharmacist:     "/pharmacist",
	auth.RolePatient:        "/patient",
}

// HomePath is where a role lands after sign-in; "/" for unknown roles.
func HomePath(r auth.Role) string {
	if p, ok := homes[r]; ok {
		return p
	}
	return "/"
}

// ScreensFor returns the screens listed for r. Membership is exact, so an
// admin sees the admin screens only.
func ScreensFor(r auth.Role) []Screen {
	out := []Screen{}
	for _, s := range Screens {
		for _, role := range s.Roles {
			if role == r {
				out = append(out, s)
				break
			}
		}
	}
	return out
}
