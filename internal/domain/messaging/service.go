package messaging

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Send(ctx context.Context, from uuid.UUID, req SendRequest) (*Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLen {
		return nil, fmt.Errorf("content exceeds %d characters", MaxContentLen)
	}
	if req.ReceiverID == uuid.Nil {
		return nil, fmt.Errorf("receiver_id is required")
	}
	if req.ReceiverID == from {
		return nil, ErrSelfMessage
	}
	m := &Message{SenderID: from, ReceiverID: req.ReceiverID, Content: content}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) Inbox(ctx context.Context, me uuid.UUID, limit, offset int) ([]Message, int, error) {
	return s.repo.ListInbox(ctx, me, limit, offset)
}

func (s *Service) Conversation(ctx context.Context, me, with uuid.UUID, limit, offset int) ([]Message, int, error) {
	return s.repo.ListConversation(ctx, me, with, limit, offset)
}

// MarkRead flips one message to read. Only its receiver may do so; marking
// an already read message returns it unchanged.
func (s *Service) MarkRead(ctx context.Context, id, me uuid.UUID) (*Message, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.ReceiverID != me {
		return nil, ErrNotRecipient
	}
	if m.IsRead {
		return m, nil
	}
	return s.repo.MarkRead(ctx, id)
}

// MarkConversationRead marks every message from sender to me read.
func (s *Service) MarkConversationRead(ctx context.Context, me, sender uuid.UUID) (*ReadResult, error) {
	n, err := s.repo.MarkConversationRead(ctx, me, sender)
	if err != nil {
		return nil, err
	}
	return &ReadResult{Updated: n}, nil
}

func (s *Service) UnreadCount(ctx context.Context, me uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, me)
}
