package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/wardwatch/internal/platform/realtime"
)

// ErrDisposed is returned by operations on a disposed view.
var ErrDisposed = errors.New("view disposed")

// Subscriber opens channel subscriptions. *Client implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, ch Channel, handler func(realtime.Change), opts ...SubscribeOption) (*Subscription, error)
}

type ViewConfig[T, D any] struct {
	Channel  Channel
	Key      func(T) string
	Time     func(T) time.Time
	Capacity int

	// Fetch returns the authoritative snapshot.
	Fetch func(ctx context.Context) ([]T, error)
	// Derive computes the aggregate from the rows, newest first.
	Derive func(rows []T) D
	// OnChange runs under the view lock after every change of rows or
	// aggregate. It must not call back into the View.
	OnChange func(rows []T, derived D)
	// OnError runs when the subscription ended on the server side. The
	// view is unmounted by then and may be mounted again.
	OnError func(err error)

	Logger zerolog.Logger
}

// View is a screen's live copy of one table: a snapshot kept current by
// the change feed, plus the aggregate derived from it.
//
// Mutations are serialized under one lock and applied in delivery order.
// Fetch results carry the generation they were started under and are
// dropped if the view was re-fetched or disposed in the meantime.
type View[T, D any] struct {
	cfg    ViewConfig[T, D]
	logger zerolog.Logger

	mu       sync.Mutex
	rows     *Collection[T]
	derived  D
	gen      uint64
	loaded   bool
	buffer   []realtime.Change
	sub      *Subscription
	mounted  bool
	disposed bool
	err      error

	ctx    context.Context
	cancel context.CancelFunc
}

func NewView[T, D any](cfg ViewConfig[T, D]) *View[T, D] {
	v := &View[T, D]{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("channel", cfg.Channel.Name).Logger(),
		rows:   NewCollection(cfg.Key, cfg.Time, cfg.Capacity),
	}
	v.derived = v.derive(nil)
	return v
}

func (v *View[T, D]) derive(rows []T) D {
	if v.cfg.Derive == nil {
		var zero D
		return zero
	}
	return v.cfg.Derive(rows)
}

// Mount subscribes, fetches the initial snapshot and then replays every
// change that arrived while the fetch was in flight. The subscribe and the
// fetch stop when either ctx is cancelled or the view is disposed. A failed
// mount closes the subscription, is returned, and may be retried.
func (v *View[T, D]) Mount(ctx context.Context, s Subscriber) error {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return ErrDisposed
	}
	if v.mounted {
		v.mu.Unlock()
		return errors.New("view already mounted")
	}
	v.mounted = true
	v.ctx, v.cancel = context.WithCancel(context.WithoutCancel(ctx))
	v.gen++
	v.loaded = false
	v.buffer = nil
	gen := v.gen
	viewCtx := v.ctx
	v.mu.Unlock()

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	defer context.AfterFunc(viewCtx, stop)()

	sub, err := s.Subscribe(ctx, v.cfg.Channel, v.handle, OnReconnect(v.reconnected), OnError(v.lost))
	if err != nil {
		if v.isDisposed() {
			return ErrDisposed
		}
		v.unmount(err)
		return fmt.Errorf("subscribe %s: %w", v.cfg.Channel.Name, err)
	}

	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		_ = sub.Close()
		return ErrDisposed
	}
	v.sub = sub
	v.mu.Unlock()

	rows, err := v.cfg.Fetch(ctx)
	if err != nil {
		if v.isDisposed() {
			return ErrDisposed
		}
		v.unmount(err)
		_ = sub.Close()
		return fmt.Errorf("fetch %s: %w", v.cfg.Channel.Name, err)
	}
	if !v.applySnapshot(gen, rows) && v.isDisposed() {
		return ErrDisposed
	}
	return nil
}

func (v *View[T, D]) isDisposed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.disposed
}

// unmount records err and returns the view to its unmounted state.
func (v *View[T, D]) unmount(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = err
	v.sub = nil
	v.mounted = false
	v.buffer = nil
	if v.cancel != nil {
		v.cancel()
	}
	v.ctx, v.cancel = nil, nil
}

// lost runs when the client dropped the subscription. The rows stay
// readable but nothing updates them until the next Mount.
func (v *View[T, D]) lost(err error) {
	if v.isDisposed() {
		return
	}
	v.logger.Error().Err(err).Msg("subscription lost")
	v.unmount(err)
	v.mu.Lock()
	onError := v.cfg.OnError
	v.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

// HandleLoss replaces the OnError function of the view's config.
func (v *View[T, D]) HandleLoss(fn func(err error)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cfg.OnError = fn
}

// applySnapshot installs rows when gen is still current. Reports whether it
// did.
func (v *View[T, D]) applySnapshot(gen uint64, rows []T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed || gen != v.gen {
		return false
	}
	v.rows.Reset(rows)
	stale := v.replayLocked()
	v.err = nil
	v.publishLocked()
	if stale {
		go v.Refresh()
	}
	return true
}

// replayLocked applies buffered changes and switches to live application.
// Reports whether a buffered change only carried keys, in which case the
// snapshot may predate it and has to be read again.
func (v *View[T, D]) replayLocked() bool {
	stale := false
	for _, ch := range v.buffer {
		if ch.KeysOnly() {
			stale = true
			continue
		}
		if _, err := v.rows.Apply(ch); err != nil {
			v.logger.Warn().Err(err).Msg("dropping undecodable change")
		}
	}
	v.buffer = nil
	v.loaded = true
	return stale
}

func (v *View[T, D]) publishLocked() {
	rows := v.rows.Rows()
	v.derived = v.derive(rows)
	if v.cfg.OnChange != nil {
		v.cfg.OnChange(rows, v.derived)
	}
}

func (v *View[T, D]) handle(ch realtime.Change) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	if !v.loaded {
		v.buffer = append(v.buffer, ch)
		return
	}
	if ch.KeysOnly() {
		v.logger.Debug().Str("table", ch.Table).Msg("change without row data, re-fetching")
		go v.Refresh()
		return
	}
	changed, err := v.rows.Apply(ch)
	if err != nil {
		v.logger.Warn().Err(err).Msg("dropping undecodable change")
		return
	}
	if changed {
		v.publishLocked()
	}
}

func (v *View[T, D]) reconnected() {
	go v.Refresh()
}

// Refresh re-fetches the snapshot. Changes arriving meanwhile are buffered
// and replayed on top of it. A failed fetch keeps the current rows and is
// returned.
func (v *View[T, D]) Refresh() error {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return ErrDisposed
	}
	if v.ctx == nil {
		v.mu.Unlock()
		return errors.New("view not mounted")
	}
	v.gen++
	gen := v.gen
	v.loaded = false
	ctx := v.ctx
	v.mu.Unlock()

	rows, err := v.cfg.Fetch(ctx)
	if err != nil {
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.disposed {
			return ErrDisposed
		}
		if gen != v.gen {
			return nil
		}
		v.err = err
		_ = v.replayLocked()
		v.publishLocked()
		v.logger.Error().Err(err).Msg("re-fetch failed")
		return fmt.Errorf("fetch %s: %w", v.cfg.Channel.Name, err)
	}
	if !v.applySnapshot(gen, rows) {
		v.logger.Debug().Uint64("generation", gen).Msg("dropping stale snapshot")
	}
	return nil
}

// Modify applies fn to the rows unless the view was disposed. fn reports
// whether it changed anything.
func (v *View[T, D]) Modify(fn func(c *Collection[T]) bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return false
	}
	if fn(v.rows) {
		v.publishLocked()
		return true
	}
	return false
}

// Dispose closes the subscription and cancels in-flight fetches. Nothing
// mutates the view afterwards.
func (v *View[T, D]) Dispose() error {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return nil
	}
	v.disposed = true
	v.gen++
	v.buffer = nil
	sub := v.sub
	v.sub = nil
	if v.cancel != nil {
		v.cancel()
	}
	v.mu.Unlock()

	if sub != nil {
		return sub.Close()
	}
	return nil
}

func (v *View[T, D]) Rows() []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rows.Rows()
}

func (v *View[T, D]) Get(id string) (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rows.Get(id)
}

func (v *View[T, D]) Derived() D {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.derived
}

// Err returns the last fetch error, cleared by the next successful fetch.
func (v *View[T, D]) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

func (v *View[T, D]) Generation() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gen
}
