package careteam

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/wardwatch/internal/platform/db"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// -- Directory --

type directoryRepoPG struct {
	pool *pgxpool.Pool
}

func NewDirectoryRepo(pool *pgxpool.Pool) DirectoryRepository {
	return &directoryRepoPG{pool: pool}
}

func (r *directoryRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const doctorCols = `d.id, d.profile_id, p.full_name, d.doctor_type, d.consultation_price, d.specializations,
	d.hospital_affiliation, d.license_number, d.is_verified, d.availability, d.created_at, d.updated_at`

const doctorFrom = ` FROM doctor_profiles d JOIN profiles p ON p.id = d.profile_id`

func scanDoctor(row pgx.Row) (*DoctorProfile, error) {
	var d DoctorProfile
	err := row.Scan(&d.ID, &d.ProfileID, &d.FullName, &d.DoctorType, &d.ConsultationPrice, &d.Specializations,
		&d.HospitalAffiliation, &d.LicenseNumber, &d.IsVerified, &d.Availability, &d.CreatedAt, &d.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *directoryRepoPG) Upsert(ctx context.Context, d *DoctorProfile) error {
	if d.Specializations == nil {
		d.Specializations = []string{}
	}
	if d.Availability == nil {
		d.Availability = map[string]any{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_profiles (profile_id, doctor_type, consultation_price, specializations,
			hospital_affiliation, license_number, availability)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (profile_id) DO UPDATE SET
			doctor_type = EXCLUDED.doctor_type, consultation_price = EXCLUDED.consultation_price,
			specializations = EXCLUDED.specializations, hospital_affiliation = EXCLUDED.hospital_affiliation,
			license_number = EXCLUDED.license_number, availability = EXCLUDED.availability, updated_at = NOW()`,
		d.ProfileID, d.DoctorType, d.ConsultationPrice, d.Specializations,
		d.HospitalAffiliation, d.LicenseNumber, d.Availability,
	)
	if err != nil {
		return fmt.Errorf("upsert doctor profile: %w", err)
	}
	stored, err := r.GetByProfileID(ctx, d.ProfileID)
	if err != nil {
		return err
	}
	*d = *stored
	return nil
}

func (r *directoryRepoPG) GetByProfileID(ctx context.Context, profileID uuid.UUID) (*DoctorProfile, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+doctorFrom+` WHERE d.profile_id = $1`, profileID))
}

func (r *directoryRepoPG) SetVerified(ctx context.Context, profileID uuid.UUID, verified bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE doctor_profiles SET is_verified = $2, updated_at = NOW() WHERE profile_id = $1`, profileID, verified)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *directoryRepoPG) List(ctx context.Context, f DirectoryFilter, limit, offset int) ([]*DoctorProfile, int, error) {
	var w whereBuilder
	if f.VerifiedOnly {
		w.add("d.is_verified = $%d", true)
	}
	if f.Specialization != "" {
		w.add("d.specializations @> ARRAY[$%d]::text[]", f.Specialization)
	}
	where := w.String()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+doctorFrom+where, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count doctor profiles: %w", err)
	}
	args := append(w.args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s%s%s ORDER BY p.full_name ASC, d.id ASC LIMIT $%d OFFSET $%d`,
		doctorCols, doctorFrom, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*DoctorProfile
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// -- Change requests --

type requestRepoPG struct {
	pool *pgxpool.Pool
}

func NewRequestRepo(pool *pgxpool.Pool) RequestRepository {
	return &requestRepoPG{pool: pool}
}

func (r *requestRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const requestCols = `id, patient_id, current_doctor_id, requested_doctor_id, reason, status,
	reviewed_by, reviewed_at, created_at`

func scanRequest(row pgx.Row) (*ChangeRequest, error) {
	var c ChangeRequest
	err := row.Scan(&c.ID, &c.PatientID, &c.CurrentDoctorID, &c.RequestedDoctorID, &c.Reason, &c.Status,
		&c.ReviewedBy, &c.ReviewedAt, &c.CreatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *requestRepoPG) Create(ctx context.Context, c *ChangeRequest) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_change_requests (id, patient_id, current_doctor_id, requested_doctor_id, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		c.ID, c.PatientID, c.CurrentDoctorID, c.RequestedDoctorID, c.Reason, c.Status,
	).Scan(&c.CreatedAt)
	if isUniqueViolation(err) {
		return ErrPendingRequest
	}
	return err
}

func (r *requestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ChangeRequest, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx, `SELECT `+requestCols+` FROM doctor_change_requests WHERE id = $1`, id))
}

func (r *requestRepoPG) Review(ctx context.Context, c *ChangeRequest) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor_change_requests SET
			status = $2, requested_doctor_id = $3, reviewed_by = $4, reviewed_at = $5
		WHERE id = $1 AND status = 'pending'`,
		c.ID, c.Status, c.RequestedDoctorID, c.ReviewedBy, c.ReviewedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *requestRepoPG) List(ctx context.Context, f RequestFilter, limit, offset int) ([]*ChangeRequest, int, error) {
	var w whereBuilder
	if f.PatientID != nil {
		w.add("patient_id = $%d", *f.PatientID)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	where := w.String()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor_change_requests`+where, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count doctor change requests: %w", err)
	}
	args := append(w.args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM doctor_change_requests%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		requestCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*ChangeRequest
	for rows.Next() {
		c, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// -- Records --

type recordRepoPG struct {
	pool *pgxpool.Pool
}

func NewRecordRepo(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const recordCols = `id, patient_id, doctor_id, record_type, title, content, is_inpatient, attachments,
	created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.DoctorID, &rec.RecordType, &rec.Title, &rec.Content,
		&rec.IsInpatient, &rec.Attachments, &rec.CreatedAt, &rec.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	if rec.Attachments == nil {
		rec.Attachments = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO emr_records (id, patient_id, doctor_id, record_type, title, content, is_inpatient, attachments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		rec.ID, rec.PatientID, rec.DoctorID, rec.RecordType, rec.Title, rec.Content, rec.IsInpatient, rec.Attachments,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

func (r *recordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM emr_records WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count emr records: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordCols+` FROM emr_records WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}
