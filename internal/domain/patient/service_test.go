package patient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/wardwatch/internal/domain/identity"
	"github.com/ehr/wardwatch/internal/platform/auth"
	"github.com/ehr/wardwatch/internal/platform/db"
)

type mockRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByProfileID(_ context.Context, profileID uuid.UUID) (*Patient, error) {
	for _, p := range m.patients {
		if p.ProfileID != nil && *p.ProfileID == profileID {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return ErrNotFound
	}
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		if f.DoctorID != nil && (p.AssignedDoctorID == nil || *p.AssignedDoctorID != *f.DoctorID) {
			continue
		}
		if f.Roomed != nil && p.Roomed() != *f.Roomed {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

type mockAccounts struct {
	profiles map[uuid.UUID]*identity.Profile
	failWith error
	created  []identity.AccountRequest
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{profiles: make(map[uuid.UUID]*identity.Profile)}
}

func (m *mockAccounts) add(role auth.Role) uuid.UUID {
	p := &identity.Profile{ID: uuid.New(), Role: role, FullName: string(role)}
	m.profiles[p.ID] = p
	return p.ID
}

func (m *mockAccounts) CreateAccount(_ context.Context, req identity.AccountRequest) (*identity.Profile, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.created = append(m.created, req)
	p := &identity.Profile{ID: uuid.New(), UserID: uuid.New(), Email: req.Email, FullName: req.FullName, Role: req.Role}
	m.profiles[p.ID] = p
	return p, nil
}

func (m *mockAccounts) GetProfile(_ context.Context, id uuid.UUID) (*identity.Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return p, nil
}

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeBeginner struct{}

func (fakeBeginner) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func newTestService() (*Service, *mockRepo, *mockAccounts) {
	repo := newMockRepo()
	accounts := newMockAccounts()
	return NewService(repo, fakeBeginner{}, accounts), repo, accounts
}

func strp(s string) *string { return &s }

func TestAdmit_CreatesAccountWithTemporaryPassword(t *testing.T) {
	svc, repo, accounts := newTestService()

	res, err := svc.Admit(context.Background(), AdmitRequest{
		FullName:    " Rui Costa ",
		Email:       "rui@example.com",
		BloodType:   strp("O-"),
		Allergies:   []string{"penicillin", " ", "latex "},
		DateOfBirth: strp("1980-02-29"),
		RoomNumber:  strp("12B"),
	})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if res.TemporaryPassword == "" {
		t.Fatal("expected a generated password")
	}
	if len(accounts.created) != 1 || accounts.created[0].Role != auth.RolePatient {
		t.Fatalf("expected one patient account, got %+v", accounts.created)
	}
	if accounts.created[0].Password != res.TemporaryPassword {
		t.Error("account should use the returned temporary password")
	}
	p := repo.patients[res.Patient.ID]
	if p == nil || p.ProfileID == nil {
		t.Fatal("expected stored patient linked to profile")
	}
	if p.FullName != "Rui Costa" {
		t.Errorf("expected trimmed name, got %q", p.FullName)
	}
	if len(p.Allergies) != 2 || p.Allergies[1] != "latex" {
		t.Errorf("unexpected allergies %v", p.Allergies)
	}
	if p.DateOfBirth == nil || p.DateOfBirth.Day() != 29 {
		t.Errorf("unexpected date of birth %v", p.DateOfBirth)
	}
	if p.AdmissionDate == nil {
		t.Error("expected admission date")
	}
}

func TestAdmit_WithoutEmailSkipsAccount(t *testing.T) {
	svc, _, accounts := newTestService()

	res, err := svc.Admit(context.Background(), AdmitRequest{FullName: "Walk In"})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if res.Patient.ProfileID != nil || res.TemporaryPassword != "" {
		t.Errorf("expected no account, got %+v", res)
	}
	if len(accounts.created) != 0 {
		t.Error("no account should be created")
	}
}

func TestAdmit_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	cases := map[string]AdmitRequest{
		"no name":    {FullName: "  "},
		"blood type": {FullName: "A", BloodType: strp("C+")},
		"dob":        {FullName: "A", DateOfBirth: strp("02/03/1990")},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Admit(context.Background(), req); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestAdmit_AccountFailureStoresNothing(t *testing.T) {
	svc, repo, accounts := newTestService()
	accounts.failWith = identity.ErrEmailTaken

	_, err := svc.Admit(context.Background(), AdmitRequest{FullName: "Dup", Email: "dup@example.com"})
	if !errors.Is(err, identity.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if len(repo.patients) != 0 {
		t.Error("patient must not be stored when the account fails")
	}
}

type admission struct {
	patientID uuid.UUID
	doctorID  *uuid.UUID
	reason    string
	inTx      bool
}

type fakeRecorder struct {
	got      []admission
	failWith error
}

func (f *fakeRecorder) RecordAdmission(ctx context.Context, patientID uuid.UUID, doctorID *uuid.UUID, reason string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.got = append(f.got, admission{patientID, doctorID, reason, db.TxFromContext(ctx) != nil})
	return nil
}

func TestAdmit_WritesAdmissionRecordInTransaction(t *testing.T) {
	svc, _, accounts := newTestService()
	rec := &fakeRecorder{}
	svc.RecordAdmissionsWith(rec)
	doc := accounts.add(auth.RoleHospitalDoctor)

	res, err := svc.Admit(context.Background(), AdmitRequest{
		FullName:         "Ana Lima",
		AssignedDoctorID: &doc,
		AdmissionReason:  "chest pain",
	})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if len(rec.got) != 1 {
		t.Fatalf("expected one admission record, got %d", len(rec.got))
	}
	got := rec.got[0]
	if got.patientID != res.Patient.ID || got.doctorID == nil || *got.doctorID != doc {
		t.Errorf("unexpected admission %+v", got)
	}
	if got.reason != "chest pain" {
		t.Errorf("reason = %q", got.reason)
	}
	if !got.inTx {
		t.Error("admission record must be written inside the admitting transaction")
	}
}

func TestAdmit_RecorderFailureFailsAdmission(t *testing.T) {
	svc, _, _ := newTestService()
	boom := errors.New("emr unavailable")
	svc.RecordAdmissionsWith(&fakeRecorder{failWith: boom})

	if _, err := svc.Admit(context.Background(), AdmitRequest{FullName: "Ana Lima"}); !errors.Is(err, boom) {
		t.Fatalf("expected recorder error, got %v", err)
	}
}

func TestAssignDoctor(t *testing.T) {
	svc, _, accounts := newTestService()
	ctx := context.Background()
	doc := accounts.add(auth.RoleHospitalDoctor)
	nurse := accounts.add(auth.RoleNurse)

	res, err := svc.Admit(ctx, AdmitRequest{FullName: "P"})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	p, err := svc.AssignDoctor(ctx, res.Patient.ID, &doc)
	if err != nil {
		t.Fatalf("AssignDoctor: %v", err)
	}
	if p.AssignedDoctorID == nil || *p.AssignedDoctorID != doc {
		t.Error("doctor not assigned")
	}

	if _, err := svc.AssignDoctor(ctx, res.Patient.ID, &nurse); !errors.Is(err, ErrNotDoctor) {
		t.Fatalf("expected ErrNotDoctor for nurse, got %v", err)
	}
	missing := uuid.New()
	if _, err := svc.AssignDoctor(ctx, res.Patient.ID, &missing); !errors.Is(err, ErrNotDoctor) {
		t.Fatalf("expected ErrNotDoctor for unknown profile, got %v", err)
	}

	p, err = svc.AssignDoctor(ctx, res.Patient.ID, nil)
	if err != nil || p.AssignedDoctorID != nil {
		t.Fatalf("expected doctor cleared, got %v %v", p, err)
	}
}

func TestUpdate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	res, _ := svc.Admit(ctx, AdmitRequest{FullName: "P"})

	allergies := []string{"nuts"}
	p, err := svc.Update(ctx, res.Patient.ID, Update{BloodType: strp("AB+"), Allergies: &allergies, RoomNumber: strp("3")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if *p.BloodType != "AB+" || !p.Roomed() || len(p.Allergies) != 1 {
		t.Errorf("unexpected patient %+v", p)
	}
	if _, err := svc.Update(ctx, res.Patient.ID, Update{BloodType: strp("Z")}); err == nil {
		t.Error("expected invalid blood type error")
	}
	if _, err := svc.Update(ctx, uuid.New(), Update{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOwnsPatientAndAuthorize(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	res, err := svc.Admit(ctx, AdmitRequest{FullName: "Own", Email: "own@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	owner := *res.ProfileID
	id := res.Patient.ID

	if ok, err := svc.OwnsPatient(ctx, owner, id.String()); err != nil || !ok {
		t.Fatalf("expected owner, got %v %v", ok, err)
	}
	if ok, _ := svc.OwnsPatient(ctx, uuid.NewString(), id.String()); ok {
		t.Error("stranger must not own the record")
	}
	if ok, err := svc.OwnsPatient(ctx, owner, "not-a-uuid"); ok || err != nil {
		t.Errorf("malformed id should be a plain no, got %v %v", ok, err)
	}
	if ok, err := svc.OwnsPatient(ctx, owner, uuid.NewString()); ok || err != nil {
		t.Errorf("missing record should be a plain no, got %v %v", ok, err)
	}

	if err := svc.Authorize(ctx, auth.Session{Role: auth.RoleNurse}, id); err != nil {
		t.Errorf("staff should be authorized: %v", err)
	}
	if err := svc.Authorize(ctx, auth.Session{Role: auth.RolePatient, ProfileID: owner}, id); err != nil {
		t.Errorf("owner should be authorized: %v", err)
	}
	err = svc.Authorize(ctx, auth.Session{Role: auth.RolePatient, ProfileID: uuid.NewString()}, id)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestList_Filters(t *testing.T) {
	svc, _, accounts := newTestService()
	ctx := context.Background()
	doc := accounts.add(auth.RoleDoctor)
	_, _ = svc.Admit(ctx, AdmitRequest{FullName: "A", AssignedDoctorID: &doc, RoomNumber: strp("1")})
	_, _ = svc.Admit(ctx, AdmitRequest{FullName: "B"})

	items, total, err := svc.List(ctx, ListFilter{DoctorID: &doc}, 20, 0)
	if err != nil || total != 1 || items[0].FullName != "A" {
		t.Fatalf("doctor filter: %v %d %v", items, total, err)
	}
	unroomed := false
	items, _, _ = svc.List(ctx, ListFilter{Roomed: &unroomed}, 20, 0)
	if len(items) != 1 || items[0].FullName != "B" {
		t.Fatalf("roomed filter: %v", items)
	}
}
