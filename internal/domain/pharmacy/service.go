package pharmacy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/wardwatch/internal/platform/db"
)

type Service struct {
	prescriptions PrescriptionRepository
	orders        OrderRepository
	tx            db.TxBeginner
	now           func() time.Time
}

func NewService(rx PrescriptionRepository, orders OrderRepository, tx db.TxBeginner) *Service {
	return &Service{prescriptions: rx, orders: orders, tx: tx, now: time.Now}
}

// -- Prescription --

// Prescribe stores an active prescription and queues its pending pharmacy
// order in the same transaction.
func (s *Service) Prescribe(ctx context.Context, doctorID uuid.UUID, req PrescribeRequest) (*Prescription, error) {
	if req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if len(req.Medications) == 0 {
		return nil, fmt.Errorf("at least one medication is required")
	}
	for i := range req.Medications {
		if err := req.Medications[i].normalize(); err != nil {
			return nil, err
		}
	}
	p := &Prescription{
		PatientID:      req.PatientID,
		DoctorID:       doctorID,
		ConsultationID: req.ConsultationID,
		Medications:    req.Medications,
		Diagnosis:      req.Diagnosis,
		Instructions:   req.Instructions,
		Status:         PrescriptionActive,
	}
	if req.ValidUntil != nil && *req.ValidUntil != "" {
		t, err := time.Parse("2006-01-02", *req.ValidUntil)
		if err != nil {
			return nil, fmt.Errorf("valid_until must be a YYYY-MM-DD date")
		}
		p.ValidUntil = &t
		if p.Expired(s.now()) {
			return nil, fmt.Errorf("valid_until is in the past")
		}
	}

	err := db.WithTx(ctx, s.tx, func(ctx context.Context) error {
		if err := s.prescriptions.Create(ctx, p); err != nil {
			return err
		}
		return s.orders.Create(ctx, &PharmacyOrder{PrescriptionID: p.ID, Status: OrderPending})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) ListPrescriptions(ctx context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("invalid status %q", f.Status)
	}
	return s.prescriptions.List(ctx, f, limit, offset)
}

// CancelPrescription withdraws an active prescription.
func (s *Service) CancelPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	var out *Prescription
	err := db.WithTx(ctx, s.tx, func(ctx context.Context) error {
		p, err := s.prescriptions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != PrescriptionActive {
			return fmt.Errorf("%w: prescription is %s", ErrInvalidTransition, p.Status)
		}
		if err := s.prescriptions.UpdateStatus(ctx, id, PrescriptionCancelled); err != nil {
			return err
		}
		p.Status = PrescriptionCancelled
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Dispense fills an active prescription: its pharmacy order, created if
// missing, and the prescription itself both become dispensed in one
// transaction.
func (s *Service) Dispense(ctx context.Context, id, pharmacistID uuid.UUID, req DispenseRequest) (*DispenseResult, error) {
	var res DispenseResult
	err := db.WithTx(ctx, s.tx, func(ctx context.Context) error {
		p, err := s.prescriptions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != PrescriptionActive {
			return fmt.Errorf("%w: prescription is %s", ErrInvalidTransition, p.Status)
		}
		if p.Expired(s.now()) {
			return ErrExpired
		}

		now := s.now().UTC()
		o, err := s.orders.GetByPrescription(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			o = &PharmacyOrder{PrescriptionID: id, PharmacistID: &pharmacistID, Status: OrderDispensed, Notes: req.Notes, DispensedAt: &now}
			if err := s.orders.Create(ctx, o); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if o.Status == OrderDispensed {
				return fmt.Errorf("%w: order already dispensed", ErrInvalidTransition)
			}
			o.Status = OrderDispensed
			o.PharmacistID = &pharmacistID
			o.DispensedAt = &now
			if req.Notes != nil {
				o.Notes = req.Notes
			}
			if err := s.orders.Update(ctx, o); err != nil {
				return err
			}
		}

		if err := s.prescriptions.UpdateStatus(ctx, id, PrescriptionDispensed); err != nil {
			return err
		}
		p.Status = PrescriptionDispensed
		res = DispenseResult{Prescription: p, Order: o}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// -- PharmacyOrder --

func (s *Service) ListOrders(ctx context.Context, status OrderStatus, limit, offset int) ([]*PharmacyOrder, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("invalid status %q", status)
	}
	return s.orders.List(ctx, status, limit, offset)
}

// AdvanceOrder moves an order one step along pending, processing, ready,
// dispensed. Reaching dispensed goes through Dispense so the prescription
// follows.
func (s *Service) AdvanceOrder(ctx context.Context, id, pharmacistID uuid.UUID, req OrderStatusRequest) (*PharmacyOrder, error) {
	if !req.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q", req.Status)
	}
	var out *PharmacyOrder
	err := db.WithTx(ctx, s.tx, func(ctx context.Context) error {
		o, err := s.orders.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if o.Status.Next() != req.Status {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, req.Status)
		}
		if req.Status == OrderDispensed {
			res, err := s.Dispense(ctx, o.PrescriptionID, pharmacistID, DispenseRequest{Notes: req.Notes})
			if err != nil {
				return err
			}
			out = res.Order
			return nil
		}
		o.Status = req.Status
		o.PharmacistID = &pharmacistID
		if req.Notes != nil {
			o.Notes = req.Notes
		}
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
