package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/ehr/wardwatch/internal/platform/auth"
)

// ErrForbidden is returned when a session may not join a channel.
var ErrForbidden = errors.New("forbidden")

// PatientResolver answers whether a profile owns a patient record.
type PatientResolver interface {
	OwnsPatient(ctx context.Context, profileID, patientID string) (bool, error)
}

// Tables lists the tables published on the change feed.
var Tables = map[string]bool{
	"profiles":        true,
	"patients":        true,
	"vitals":          true,
	"alerts":          true,
	"messages":        true,
	"appointments":    true,
	"consultations":   true,
	"prescriptions":   true,
	"pharmacy_orders": true,

	"doctor_change_requests": true,
}

// patientColumns maps the tables a patient may watch to the column that
// must be filtered to one of their own patient records.
var patientColumns = map[string]string{
	"patients":      "id",
	"vitals":        "patient_id",
	"alerts":        "patient_id",
	"appointments":  "patient_id",
	"consultations": "patient_id",
	"prescriptions": "patient_id",

	"doctor_change_requests": "patient_id",
}

// Policy authorizes channel joins.
//
//   - admins may join any published table unfiltered;
//   - everyone else must scope messages to their own profile via
//     receiver_id or sender_id;
//   - staff may join every other table;
//   - patients may only watch rows of patient records they own, and their
//     own profile row.
type Policy struct {
	Patients PatientResolver
}

func forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Authorize returns nil when s may join sub.
func (p Policy) Authorize(ctx context.Context, s auth.Session, sub Subscription) error {
	if !Tables[sub.Table] {
		return forbidden("table %q is not published", sub.Table)
	}
	if s.Role == auth.RoleAdmin {
		return nil
	}

	if sub.Table == "messages" {
		f := sub.Filter
		if (f.Column == "receiver_id" || f.Column == "sender_id") && f.Value == s.ProfileID {
			return nil
		}
		return forbidden("messages must be filtered on receiver_id or sender_id of your own profile")
	}

	if s.Role.IsStaff() {
		return nil
	}
	if s.Role != auth.RolePatient {
		return forbidden("unknown role %q", s.Role)
	}

	if sub.Table == "profiles" {
		if sub.Filter == Eq("id", s.ProfileID) {
			return nil
		}
		return forbidden("patients may only watch their own profile")
	}

	column, ok := patientColumns[sub.Table]
	if !ok {
		return forbidden("patients may not watch %s", sub.Table)
	}
	if sub.Filter.Column != column {
		return forbidden("%s must be filtered on %s", sub.Table, column)
	}
	if p.Patients == nil {
		return forbidden("patient ownership cannot be verified")
	}
	owns, err := p.Patients.OwnsPatient(ctx, s.ProfileID, sub.Filter.Value)
	if err != nil {
		return fmt.Errorf("resolve patient ownership: %w", err)
	}
	if !owns {
		return forbidden("patient %s does not belong to this account", sub.Filter.Value)
	}
	return nil
}
