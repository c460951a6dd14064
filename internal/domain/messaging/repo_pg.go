package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/wardwatch/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const messageCols = `id, sender_id, receiver_id, content, is_read, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.IsRead, &m.CreatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repoPG) Create(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING is_read, created_at`,
		m.ID, m.SenderID, m.ReceiverID, m.Content,
	).Scan(&m.IsRead, &m.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrUnknownReceiver
	}
	return err
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Message, error) {
	return scanMessage(r.conn(ctx).QueryRow(ctx, `SELECT `+messageCols+` FROM messages WHERE id = $1`, id))
}

func (r *repoPG) list(ctx context.Context, where string, args []any, limit, offset int) ([]Message, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM messages WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		messageCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *m)
	}
	return out, total, rows.Err()
}

func (r *repoPG) ListInbox(ctx context.Context, receiver uuid.UUID, limit, offset int) ([]Message, int, error) {
	return r.list(ctx, "receiver_id = $1", []any{receiver}, limit, offset)
}

func (r *repoPG) ListConversation(ctx context.Context, a, b uuid.UUID, limit, offset int) ([]Message, int, error) {
	return r.list(ctx,
		"((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))",
		[]any{a, b}, limit, offset)
}

func (r *repoPG) MarkRead(ctx context.Context, id uuid.UUID) (*Message, error) {
	return scanMessage(r.conn(ctx).QueryRow(ctx,
		`UPDATE messages SET is_read = TRUE WHERE id = $1 RETURNING `+messageCols, id))
}

func (r *repoPG) MarkConversationRead(ctx context.Context, receiver, sender uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE messages SET is_read = TRUE WHERE receiver_id = $1 AND sender_id = $2 AND NOT is_read`,
		receiver, sender)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) CountUnread(ctx context.Context, receiver uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND NOT is_read`, receiver).Scan(&n)
	return n, err
}
