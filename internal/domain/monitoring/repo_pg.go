package monitoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/wardwatch/internal/platform/db"
)

const foreignKeyViolation = "23503"

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func mapInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return ErrUnknownPatient
	}
	return err
}

const vitalCols = `id, patient_id, heart_rate, blood_pressure_systolic, blood_pressure_diastolic,
	oxygen_saturation, temperature, respiratory_rate, device_id, is_alert, recorded_at`

func scanVital(row pgx.Row) (Vital, error) {
	var v Vital
	err := row.Scan(&v.ID, &v.PatientID, &v.HeartRate, &v.BloodPressureSystolic, &v.BloodPressureDiastolic,
		&v.OxygenSaturation, &v.Temperature, &v.RespiratoryRate, &v.DeviceID, &v.IsAlert, &v.RecordedAt)
	return v, err
}

func (r *repoPG) CreateVital(ctx context.Context, v *Vital) error {
	v.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO vitals (id, patient_id, heart_rate, blood_pressure_systolic, blood_pressure_diastolic,
			oxygen_saturation, temperature, respiratory_rate, device_id, is_alert, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		v.ID, v.PatientID, v.HeartRate, v.BloodPressureSystolic, v.BloodPressureDiastolic,
		v.OxygenSaturation, v.Temperature, v.RespiratoryRate, v.DeviceID, v.IsAlert, v.RecordedAt)
	return mapInsertErr(err)
}

func (r *repoPG) ListVitals(ctx context.Context, patientID uuid.UUID, limit int) ([]Vital, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+vitalCols+` FROM vitals WHERE patient_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT $2`,
		patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Vital
	for rows.Next() {
		v, err := scanVital(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const alertCols = `id, patient_id, vital_id, alert_type, severity, message, is_acknowledged,
	acknowledged_by, acknowledged_at, created_at`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.PatientID, &a.VitalID, &a.AlertType, &a.Severity, &a.Message, &a.IsAcknowledged,
		&a.AcknowledgedBy, &a.AcknowledgedAt, &a.CreatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) CreateAlert(ctx context.Context, a *Alert) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO alerts (id, patient_id, vital_id, alert_type, severity, message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		a.ID, a.PatientID, a.VitalID, a.AlertType, a.Severity, a.Message,
	).Scan(&a.CreatedAt)
	return mapInsertErr(err)
}

func (r *repoPG) GetAlert(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return scanAlert(r.conn(ctx).QueryRow(ctx, `SELECT `+alertCols+` FROM alerts WHERE id = $1`, id))
}

func alertWhere(f AlertFilter) (string, []any) {
	var conds []string
	var args []any
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.Unacknowledged {
		conds = append(conds, "NOT is_acknowledged")
	}
	if f.Severity != "" {
		args = append(args, f.Severity)
		conds = append(conds, fmt.Sprintf("severity = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repoPG) ListAlerts(ctx context.Context, f AlertFilter, limit, offset int) ([]Alert, int, error) {
	where, args := alertWhere(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM alerts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM alerts%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		alertCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

func (r *repoPG) SummarizeAlerts(ctx context.Context, f AlertFilter) (AlertSummary, error) {
	where, args := alertWhere(f)
	var s AlertSummary
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE NOT is_acknowledged),
			COUNT(*) FILTER (WHERE severity = 'critical'),
			COUNT(*) FILTER (WHERE severity = 'critical' AND NOT is_acknowledged)
		FROM alerts`+where, args...,
	).Scan(&s.Total, &s.Unacknowledged, &s.Critical, &s.PendingCritical)
	return s, err
}

func (r *repoPG) AcknowledgeAlert(ctx context.Context, id, by uuid.UUID, at time.Time) (*Alert, bool, error) {
	a, err := scanAlert(r.conn(ctx).QueryRow(ctx, `
		UPDATE alerts SET is_acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = $3
		WHERE id = $1 AND NOT is_acknowledged
		RETURNING `+alertCols, id, by, at))
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	// Either missing or already acknowledged.
	a, err = r.GetAlert(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return a, false, nil
}
