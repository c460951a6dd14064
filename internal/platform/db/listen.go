package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ChangeChannel is the NOTIFY channel written by the row-change triggers.
const ChangeChannel = "table_changes"

type notifyConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Release()
}

type poolNotifyConn struct{ c *pgxpool.Conn }

func (p poolNotifyConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.c.Exec(ctx, sql, args...)
}

func (p poolNotifyConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return p.c.Conn().WaitForNotification(ctx)
}

func (p poolNotifyConn) Release() { p.c.Release() }

// Listener holds a dedicated connection in LISTEN mode and hands every
// notification payload to a handler. Lost connections are re-established
// with exponential backoff; OnResume runs after each successful re-LISTEN
// because notifications sent while disconnected are gone.
type Listener struct {
	connect func(ctx context.Context) (notifyConn, error)
	channel string
	logger  zerolog.Logger

	// OnResume is called after the listener recovers from a lost connection.
	OnResume func()
	// InitialBackoff and MaxBackoff bound the reconnect delay.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// NewListener creates a Listener on channel using connections from pool.
func NewListener(pool *pgxpool.Pool, channel string, logger zerolog.Logger) *Listener {
	return &Listener{
		connect: func(ctx context.Context) (notifyConn, error) {
			c, err := pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return poolNotifyConn{c}, nil
		},
		channel:        channel,
		logger:         logger,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

// Run blocks until ctx is cancelled, calling handle for each payload in the
// order the server delivered them.
func (l *Listener) Run(ctx context.Context, handle func(ctx context.Context, payload string)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.InitialBackoff
	b.MaxInterval = l.MaxBackoff
	b.Reset()

	resumed := false
	for {
		err := l.session(ctx, handle, func() {
			b.Reset()
			if resumed && l.OnResume != nil {
				l.OnResume()
			}
			resumed = true
		})
		if ctx.Err() != nil {
			return nil
		}

		wait := b.NextBackOff()
		l.logger.Warn().Err(err).Str("channel", l.channel).Dur("retry_in", wait).Msg("listener disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (l *Listener) session(ctx context.Context, handle func(ctx context.Context, payload string), listening func()) error {
	conn, err := l.connect(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer func() {
		cleanup, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(cleanup, "UNLISTEN *")
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.logger.Info().Str("channel", l.channel).Msg("listening for changes")
	listening()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		handle(ctx, n.Payload)
	}
}
