package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/wardwatch/internal/platform/auth"
)

type Service struct {
	src      Sources
	builders map[auth.Role]Builder
	now      func() time.Time
}

func NewService(src Sources) *Service {
	return &Service{src: src, builders: Builders, now: time.Now}
}

// Build assembles the dashboard for the session's role.
func (s *Service) Build(ctx context.Context, sess auth.Session) (*Dashboard, error) {
	build, ok := s.builders[sess.Role]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownRole, sess.Role)
	}
	me, err := uuid.Parse(sess.ProfileID)
	if err != nil {
		return nil, ErrNoProfile
	}
	now := s.now()
	d := &Dashboard{Role: sess.Role, Home: HomePath(sess.Role), GeneratedAt: now}
	if err := build(ctx, s.src, me, now, d); err != nil {
		return nil, fmt.Errorf("build %s dashboard: %w", sess.Role, err)
	}
	return d, nil
}
