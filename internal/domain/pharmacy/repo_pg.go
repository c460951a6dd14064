package pharmacy

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/wardwatch/internal/platform/db"
)

// -- Prescription --

type prescriptionRepoPG struct {
	pool *pgxpool.Pool
}

func NewPrescriptionRepo(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const rxCols = `id, patient_id, doctor_id, consultation_id, medications, diagnosis, instructions, status,
	valid_until, created_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.DoctorID, &p.ConsultationID, &p.Medications, &p.Diagnosis,
		&p.Instructions, &p.Status, &p.ValidUntil, &p.CreatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescriptions (id, patient_id, doctor_id, consultation_id, medications, diagnosis, instructions,
			status, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		p.ID, p.PatientID, p.DoctorID, p.ConsultationID, p.Medications, p.Diagnosis, p.Instructions,
		p.Status, p.ValidUntil,
	).Scan(&p.CreatedAt)
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	// FOR UPDATE serializes concurrent dispenses inside a transaction.
	q := `SELECT ` + rxCols + ` FROM prescriptions WHERE id = $1`
	if db.TxFromContext(ctx) != nil {
		q += ` FOR UPDATE`
	}
	return scanPrescription(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *prescriptionRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status PrescriptionStatus) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE prescriptions SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *prescriptionRepoPG) List(ctx context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error) {
	var conds []string
	var args []any
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		conds = append(conds, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescriptions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count prescriptions: %w", err)
	}
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM prescriptions%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		rxCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// -- PharmacyOrder --

type orderRepoPG struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const orderCols = `id, prescription_id, pharmacist_id, status, notes, dispensed_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*PharmacyOrder, error) {
	var o PharmacyOrder
	err := row.Scan(&o.ID, &o.PrescriptionID, &o.PharmacistID, &o.Status, &o.Notes, &o.DispensedAt,
		&o.CreatedAt, &o.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepoPG) Create(ctx context.Context, o *PharmacyOrder) error {
	o.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pharmacy_orders (id, prescription_id, pharmacist_id, status, notes, dispensed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		o.ID, o.PrescriptionID, o.PharmacistID, o.Status, o.Notes, o.DispensedAt,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PharmacyOrder, error) {
	return scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM pharmacy_orders WHERE id = $1`, id))
}

func (r *orderRepoPG) GetByPrescription(ctx context.Context, prescriptionID uuid.UUID) (*PharmacyOrder, error) {
	return scanOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM pharmacy_orders WHERE prescription_id = $1`, prescriptionID))
}

func (r *orderRepoPG) Update(ctx context.Context, o *PharmacyOrder) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE pharmacy_orders SET pharmacist_id = $2, status = $3, notes = $4, dispensed_at = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		o.ID, o.PharmacistID, o.Status, o.Notes, o.DispensedAt,
	).Scan(&o.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

func (r *orderRepoPG) List(ctx context.Context, status OrderStatus, limit, offset int) ([]*PharmacyOrder, int, error) {
	where := ""
	var args []any
	if status != "" {
		where = " WHERE status = $1"
		args = append(args, status)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM pharmacy_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count pharmacy orders: %w", err)
	}
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM pharmacy_orders%s ORDER BY created_at ASC LIMIT $%d OFFSET $%d`,
		orderCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*PharmacyOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}
