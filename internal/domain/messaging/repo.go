package messaging

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, m *Message) error
	Get(ctx context.Context, id uuid.UUID) (*Message, error)
	// ListInbox returns messages received by receiver, newest first.
	ListInbox(ctx context.Context, receiver uuid.UUID, limit, offset int) ([]Message, int, error)
	// ListConversation returns messages exchanged between a and b, newest first.
	ListConversation(ctx context.Context, a, b uuid.UUID, limit, offset int) ([]Message, int, error)
	MarkRead(ctx context.Context, id uuid.UUID) (*Message, error)
	MarkConversationRead(ctx context.Context, receiver, sender uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, receiver uuid.UUID) (int, error)
}
