package insight

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type Service struct {
	completer Completer
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewService returns a service that answers ErrDisabled when completer is
// nil.
func NewService(completer Completer, timeout time.Duration, logger zerolog.Logger) *Service {
	return &Service{completer: completer, timeout: timeout, logger: logger}
}

func (s *Service) Enabled() bool { return s.completer != nil }

// Analyze sends req upstream, bounded by the service timeout.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.completer == nil {
		return nil, ErrDisabled
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	system, user := Prompts(req)
	start := time.Now()
	content, err := s.completer.Complete(ctx, system, user)
	if err != nil {
		s.logger.Warn().Err(err).Str("type", string(req.Type)).Dur("elapsed", time.Since(start)).Msg("insight request failed")
		return nil, err
	}
	res := ParseReply(content)
	return &res, nil
}
