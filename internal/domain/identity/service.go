package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/wardwatch/internal/platform/auth"
	"github.com/ehr/wardwatch/internal/platform/db"
)

type Service struct {
	repo   Repository
	tx     db.TxBeginner
	tokens *auth.Tokens
}

func NewService(repo Repository, tx db.TxBeginner, tokens *auth.Tokens) *Service {
	return &Service{repo: repo, tx: tx, tokens: tokens}
}

// CreateAccount creates the login and profile in one transaction.
func (s *Service) CreateAccount(ctx context.Context, req AccountRequest) (*Profile, error) {
	req.normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	var profile *Profile
	err = db.WithTx(ctx, s.tx, func(ctx context.Context) error {
		u := &User{Email: req.Email, PasswordHash: hash}
		if err := s.repo.CreateUser(ctx, u); err != nil {
			return err
		}
		p := &Profile{
			UserID:         u.ID,
			Email:          req.Email,
			FullName:       req.FullName,
			Phone:          req.Phone,
			Role:           req.Role,
			Department:     req.Department,
			Specialization: req.Specialization,
		}
		if err := s.repo.CreateProfile(ctx, p); err != nil {
			return err
		}
		profile = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// SignUp registers a patient account and signs it in.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*TokenResponse, error) {
	p, err := s.CreateAccount(ctx, AccountRequest{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
		Role:     auth.RolePatient,
	})
	if err != nil {
		return nil, err
	}
	return s.issue(p)
}

func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*TokenResponse, error) {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if err := auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}
	p, err := s.repo.GetProfileByUserID(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return s.issue(p)
}

// SignOut revokes the presented token until it expires.
func (s *Service) SignOut(claims *auth.Claims) {
	if claims != nil {
		s.tokens.Revoke(claims)
	}
}

func (s *Service) issue(p *Profile) (*TokenResponse, error) {
	token, exp, err := s.tokens.Issue(p.Session())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
		ExpiresAt:   exp,
		Profile:     p,
	}, nil
}

func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.repo.GetProfile(ctx, id)
}

func (s *Service) UpdateMe(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*Profile, error) {
	p, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.FullName != nil {
		name := strings.TrimSpace(*upd.FullName)
		if name == "" {
			return nil, fmt.Errorf("full_name cannot be empty")
		}
		p.FullName = name
	}
	if upd.Phone != nil {
		p.Phone = upd.Phone
	}
	if upd.AvatarURL != nil {
		p.AvatarURL = upd.AvatarURL
	}
	if err := s.repo.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateStaff creates an account for one of the assignable staff roles.
func (s *Service) CreateStaff(ctx context.Context, req AccountRequest) (*Profile, error) {
	if !req.Role.IsAssignableStaff() {
		return nil, fmt.Errorf("role %q cannot be assigned to staff", req.Role)
	}
	return s.CreateAccount(ctx, req)
}

// UpdateProfile applies an admin edit.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, upd AdminProfileUpdate) (*Profile, error) {
	p, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return nil, fmt.Errorf("invalid role %q", *upd.Role)
		}
		p.Role = *upd.Role
	}
	if upd.FullName != nil {
		if strings.TrimSpace(*upd.FullName) == "" {
			return nil, fmt.Errorf("full_name cannot be empty")
		}
		p.FullName = strings.TrimSpace(*upd.FullName)
	}
	if upd.Department != nil {
		p.Department = upd.Department
	}
	if upd.Specialization != nil {
		p.Specialization = upd.Specialization
	}
	if err := s.repo.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListProfiles(ctx context.Context, f ProfileFilter, limit, offset int) ([]*Profile, int, error) {
	for _, r := range f.Roles {
		if !r.Valid() {
			return nil, 0, fmt.Errorf("invalid role %q", r)
		}
	}
	return s.repo.ListProfiles(ctx, f, limit, offset)
}

// DoctorRoles are the roles listed by the doctor directory.
var DoctorRoles = []auth.Role{auth.RoleDoctor, auth.RoleHospitalDoctor, auth.RoleOnlineDoctor}
