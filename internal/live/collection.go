package live

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ehr/wardwatch/internal/platform/realtime"
)

// Collection is an id-keyed row set kept newest-first by row timestamp.
// Rows with equal timestamps keep the order in which they were first held.
// It is not safe for concurrent use; View serializes access.
type Collection[T any] struct {
	key      func(T) string
	ts       func(T) time.Time
	capacity int
	rows     []T
}

// NewCollection creates an empty collection. capacity <= 0 means unbounded.
func NewCollection[T any](key func(T) string, ts func(T) time.Time, capacity int) *Collection[T] {
	return &Collection[T]{key: key, ts: ts, capacity: capacity}
}

func (c *Collection[T]) Len() int { return len(c.rows) }

// Rows returns a copy of the held rows, newest first.
func (c *Collection[T]) Rows() []T {
	out := make([]T, len(c.rows))
	copy(out, c.rows)
	return out
}

// Get returns the row with the given id.
func (c *Collection[T]) Get(id string) (T, bool) {
	if i := c.index(id); i >= 0 {
		return c.rows[i], true
	}
	var zero T
	return zero, false
}

func (c *Collection[T]) index(id string) int {
	for i, r := range c.rows {
		if c.key(r) == id {
			return i
		}
	}
	return -1
}

// position is the index at which row belongs: after every row that is not
// older than it.
func (c *Collection[T]) position(row T) int {
	at := c.ts(row)
	return sort.Search(len(c.rows), func(i int) bool {
		return c.ts(c.rows[i]).Before(at)
	})
}

func (c *Collection[T]) insertAt(i int, row T) {
	var zero T
	c.rows = append(c.rows, zero)
	copy(c.rows[i+1:], c.rows[i:])
	c.rows[i] = row
}

func (c *Collection[T]) removeAt(i int) {
	copy(c.rows[i:], c.rows[i+1:])
	var zero T
	c.rows[len(c.rows)-1] = zero
	c.rows = c.rows[:len(c.rows)-1]
}

// Insert places row at its sorted position. It is a no-op when the id is
// already held or when the row is older than everything a full collection
// keeps. Reports whether the collection changed.
func (c *Collection[T]) Insert(row T) bool {
	if c.index(c.key(row)) >= 0 {
		return false
	}
	i := c.position(row)
	if c.capacity > 0 && i >= c.capacity {
		return false
	}
	c.insertAt(i, row)
	if c.capacity > 0 && len(c.rows) > c.capacity {
		c.rows = c.rows[:c.capacity]
	}
	return true
}

// Update replaces the held row with the same id, moving it if its timestamp
// changed. Rows that are not held are ignored.
func (c *Collection[T]) Update(row T) bool {
	i := c.index(c.key(row))
	if i < 0 {
		return false
	}
	if c.ts(c.rows[i]).Equal(c.ts(row)) {
		c.rows[i] = row
		return true
	}
	c.removeAt(i)
	c.insertAt(c.position(row), row)
	return true
}

// Delete removes the row with id if held.
func (c *Collection[T]) Delete(id string) bool {
	i := c.index(id)
	if i < 0 {
		return false
	}
	c.removeAt(i)
	return true
}

// Reset replaces the contents with an authoritative snapshot. Duplicate ids
// keep their first occurrence.
func (c *Collection[T]) Reset(rows []T) {
	seen := make(map[string]struct{}, len(rows))
	next := make([]T, 0, len(rows))
	for _, r := range rows {
		k := c.key(r)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		next = append(next, r)
	}
	sort.SliceStable(next, func(i, j int) bool {
		return c.ts(next[i]).After(c.ts(next[j]))
	})
	if c.capacity > 0 && len(next) > c.capacity {
		next = next[:c.capacity]
	}
	c.rows = next
}

// Apply merges one change event. Reports whether the collection changed.
func (c *Collection[T]) Apply(ch realtime.Change) (bool, error) {
	var row T
	if err := json.Unmarshal(ch.Row(), &row); err != nil {
		return false, fmt.Errorf("decode %s row: %w", ch.Table, err)
	}
	switch ch.Event {
	case realtime.EventInsert:
		return c.Insert(row), nil
	case realtime.EventUpdate:
		return c.Update(row), nil
	case realtime.EventDelete:
		return c.Delete(c.key(row)), nil
	default:
		return false, fmt.Errorf("unknown event %q", ch.Event)
	}
}
