package messaging

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message maps to the messages table.
type Message struct {
	ID         uuid.UUID `db:"id" json:"id"`
	SenderID   uuid.UUID `db:"sender_id" json:"sender_id"`
	ReceiverID uuid.UUID `db:"receiver_id" json:"receiver_id"`
	Content    string    `db:"content" json:"content"`
	IsRead     bool      `db:"is_read" json:"is_read"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// SendRequest is the body of POST /messages.
type SendRequest struct {
	ReceiverID uuid.UUID `json:"receiver_id"`
	Content    string    `json:"content"`
}

// MaxContentLen bounds a single message body.
const MaxContentLen = 4000

var (
	ErrNotFound        = errors.New("message not found")
	ErrNotRecipient    = errors.New("only the receiver can mark a message read")
	ErrSelfMessage     = errors.New("cannot send a message to yourself")
	ErrUnknownReceiver = errors.New("receiver not found")
)

// Unread is the body of GET /messages/unread.
type Unread struct {
	Count int `json:"count"`
}

// ReadResult reports how many messages a bulk mark-read changed.
type ReadResult struct {
	Updated int64 `json:"updated"`
}
