package identity

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/wardwatch/internal/platform/auth"
)

// User maps to the users table: login credentials only.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Profile maps to the profiles table.
type Profile struct {
	ID             uuid.UUID `db:"id" json:"id"`
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	Email          string    `db:"email" json:"email"`
	FullName       string    `db:"full_name" json:"full_name"`
	Phone          *string   `db:"phone" json:"phone"`
	AvatarURL      *string   `db:"avatar_url" json:"avatar_url"`
	Role           auth.Role `db:"role" json:"role"`
	Department     *string   `db:"department" json:"department"`
	Specialization *string   `db:"specialization" json:"specialization"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Session is the auth session for this profile.
func (p *Profile) Session() auth.Session {
	return auth.Session{UserID: p.UserID.String(), ProfileID: p.ID.String(), Role: p.Role, Email: p.Email}
}

type SignUpRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone,omitempty"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AccountRequest creates a login plus profile with an explicit role. It
// backs sign-up, staff creation and patient admission.
type AccountRequest struct {
	Email          string    `json:"email"`
	Password       string    `json:"password"`
	FullName       string    `json:"full_name"`
	Phone          *string   `json:"phone,omitempty"`
	Role           auth.Role `json:"role"`
	Department     *string   `json:"department,omitempty"`
	Specialization *string   `json:"specialization,omitempty"`
}

func (r *AccountRequest) normalize() {
	r.Email = normalizeEmail(r.Email)
	r.FullName = strings.TrimSpace(r.FullName)
}

func (r *AccountRequest) Validate() error {
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if r.FullName == "" {
		return fmt.Errorf("full_name is required")
	}
	if len(r.FullName) > 100 {
		return fmt.Errorf("full_name must be at most 100 characters")
	}
	if !r.Role.Valid() {
		return fmt.Errorf("invalid role %q", r.Role)
	}
	if len(r.Password) < auth.MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters", auth.MinPasswordLen)
	}
	return nil
}

// ProfileUpdate is the self-service edit of PUT /profiles/me.
type ProfileUpdate struct {
	FullName  *string `json:"full_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// AdminProfileUpdate is the admin edit of PUT /profiles/:id.
type AdminProfileUpdate struct {
	FullName       *string    `json:"full_name,omitempty"`
	Role           *auth.Role `json:"role,omitempty"`
	Department     *string    `json:"department,omitempty"`
	Specialization *string    `json:"specialization,omitempty"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	Profile     *Profile  `json:"profile"`
}

// ProfileFilter narrows profile listings; empty Roles means all.
type ProfileFilter struct {
	Roles []auth.Role
}

var (
	ErrNotFound           = errors.New("profile not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validateEmail(s string) error {
	if s == "" {
		return fmt.Errorf("email is required")
	}
	if len(s) > 255 {
		return fmt.Errorf("email must be at most 255 characters")
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return fmt.Errorf("invalid email address")
	}
	return nil
}
