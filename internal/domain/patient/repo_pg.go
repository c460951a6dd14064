package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/wardwatch/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, profile_id, full_name, assigned_doctor_id, room_number, blood_type, allergies,
	date_of_birth, emergency_contact, emergency_phone, admission_date, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.ProfileID, &p.FullName, &p.AssignedDoctorID, &p.RoomNumber, &p.BloodType, &p.Allergies,
		&p.DateOfBirth, &p.EmergencyContact, &p.EmergencyPhone, &p.AdmissionDate, &p.CreatedAt, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	if p.Allergies == nil {
		p.Allergies = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, profile_id, full_name, assigned_doctor_id, room_number, blood_type, allergies,
			date_of_birth, emergency_contact, emergency_phone, admission_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		p.ID, p.ProfileID, p.FullName, p.AssignedDoctorID, p.RoomNumber, p.BloodType, p.Allergies,
		p.DateOfBirth, p.EmergencyContact, p.EmergencyPhone, p.AdmissionDate,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) GetByProfileID(ctx context.Context, profileID uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE profile_id = $1 ORDER BY created_at DESC LIMIT 1`, profileID))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET
			full_name = $2, assigned_doctor_id = $3, room_number = $4, blood_type = $5, allergies = $6,
			date_of_birth = $7, emergency_contact = $8, emergency_phone = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FullName, p.AssignedDoctorID, p.RoomNumber, p.BloodType, p.Allergies,
		p.DateOfBirth, p.EmergencyContact, p.EmergencyPhone,
	).Scan(&p.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	var conds []string
	var args []any
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		conds = append(conds, fmt.Sprintf("assigned_doctor_id = $%d", len(args)))
	}
	if f.Roomed != nil {
		if *f.Roomed {
			conds = append(conds, "room_number IS NOT NULL AND room_number <> ''")
		} else {
			conds = append(conds, "(room_number IS NULL OR room_number = '')")
		}
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conds = append(conds, fmt.Sprintf("full_name ILIKE $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM patients%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		patientCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}
