package live

import (
	"encoding/json"
	"math/rand"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/ehr/wardwatch/internal/platform/realtime"
)

type row struct {
	ID    string    `json:"id"`
	At    time.Time `json:"at"`
	Value int       `json:"value"`
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(m int) time.Time { return base.Add(time.Duration(m) * time.Minute) }

func newRows(capacity int) *Collection[row] {
	return NewCollection(func(r row) string { return r.ID }, func(r row) time.Time { return r.At }, capacity)
}

func ids(rows []row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func change(t *testing.T, ev realtime.Event, r row) realtime.Change {
	t.Helper()
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	ch := realtime.Change{Event: ev, Table: "rows"}
	if ev == realtime.EventDelete {
		ch.OldRow = data
	} else {
		ch.NewRow = data
	}
	return ch
}

func TestCollection_InsertIsIdempotent(t *testing.T) {
	c := newRows(0)
	ch := change(t, realtime.EventInsert, row{ID: "a", At: at(1)})

	if changed, err := c.Apply(ch); err != nil || !changed {
		t.Fatalf("first insert: changed=%v err=%v", changed, err)
	}
	once := c.Rows()

	if changed, err := c.Apply(ch); err != nil || changed {
		t.Fatalf("duplicate insert: changed=%v err=%v", changed, err)
	}
	if !reflect.DeepEqual(once, c.Rows()) {
		t.Errorf("duplicate insert changed rows: %v -> %v", once, c.Rows())
	}
}

func TestCollection_UpdateAndDeleteOfUnknownRowAreNoops(t *testing.T) {
	c := newRows(0)
	c.Insert(row{ID: "held", At: at(1)})

	if changed, _ := c.Apply(change(t, realtime.EventUpdate, row{ID: "x", At: at(2), Value: 9})); changed {
		t.Error("update of an unknown row should be a no-op")
	}
	if changed, _ := c.Apply(change(t, realtime.EventDelete, row{ID: "x"})); changed {
		t.Error("delete of an unknown row should be a no-op")
	}
	if got := ids(c.Rows()); !reflect.DeepEqual(got, []string{"held"}) {
		t.Errorf("rows = %v", got)
	}
}

func TestCollection_NewestFirstRegardlessOfDeliveryOrder(t *testing.T) {
	c := newRows(0)
	for _, r := range []row{{ID: "b", At: at(2)}, {ID: "d", At: at(4)}, {ID: "a", At: at(1)}, {ID: "c", At: at(3)}} {
		c.Insert(r)
	}
	if got := ids(c.Rows()); !reflect.DeepEqual(got, []string{"d", "c", "b", "a"}) {
		t.Errorf("rows = %v", got)
	}
}

func TestCollection_TiesKeepHeldRowFirst(t *testing.T) {
	c := newRows(0)
	c.Insert(row{ID: "first", At: at(1)})
	c.Insert(row{ID: "second", At: at(1)})
	if got := ids(c.Rows()); !reflect.DeepEqual(got, []string{"first", "second"}) {
		t.Errorf("rows = %v", got)
	}
}

func TestCollection_Capacity(t *testing.T) {
	c := newRows(3)
	for i := 1; i <= 5; i++ {
		c.Insert(row{ID: string(rune('a' + i - 1)), At: at(i)})
	}
	if got := ids(c.Rows()); !reflect.DeepEqual(got, []string{"e", "d", "c"}) {
		t.Fatalf("rows = %v", got)
	}
	if c.Insert(row{ID: "old", At: at(0)}) {
		t.Error("row older than a full collection should not be inserted")
	}
	if c.Len() != 3 {
		t.Errorf("len = %d", c.Len())
	}
}

func TestCollection_UpdateRepositions(t *testing.T) {
	c := newRows(0)
	c.Reset([]row{{ID: "a", At: at(1)}, {ID: "b", At: at(2)}, {ID: "c", At: at(3)}})

	if !c.Update(row{ID: "b", At: at(2), Value: 7}) {
		t.Fatal("expected update")
	}
	if r, _ := c.Get("b"); r.Value != 7 {
		t.Errorf("value = %d", r.Value)
	}
	c.Update(row{ID: "a", At: at(9)})
	if got := ids(c.Rows()); !reflect.DeepEqual(got, []string{"a", "c", "b"}) {
		t.Errorf("rows = %v", got)
	}
}

func TestCollection_ResetSortsAndDedupes(t *testing.T) {
	c := newRows(2)
	c.Insert(row{ID: "stale", At: at(100)})
	c.Reset([]row{{ID: "a", At: at(1)}, {ID: "b", At: at(3)}, {ID: "a", At: at(5)}, {ID: "c", At: at(2)}})
	if got := ids(c.Rows()); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("rows = %v", got)
	}
}

func TestCollection_ApplyErrors(t *testing.T) {
	c := newRows(0)
	if _, err := c.Apply(realtime.Change{Event: realtime.EventInsert, Table: "rows", NewRow: json.RawMessage(`"nope"`)}); err == nil {
		t.Error("expected decode error")
	}
	if _, err := c.Apply(realtime.Change{Event: "truncate", Table: "rows", NewRow: json.RawMessage(`{}`)}); err == nil {
		t.Error("expected unknown event error")
	}
}

// Incremental application must converge to the same state as scanning the
// final table, whatever the event sequence.
func TestCollection_IncrementalMatchesFromScratch(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		c := newRows(0)
		table := map[string]row{}

		for step := 0; step < 200; step++ {
			id := string(rune('a' + rng.Intn(12)))
			r := row{ID: id, At: at(rng.Intn(30)), Value: rng.Intn(100)}
			var ev realtime.Event
			switch rng.Intn(3) {
			case 0:
				ev = realtime.EventInsert
				if old, ok := table[id]; ok {
					r = old
				}
				table[id] = r
			case 1:
				ev = realtime.EventUpdate
				if old, ok := table[id]; ok {
					r.At = old.At
					table[id] = r
				}
			case 2:
				ev = realtime.EventDelete
				delete(table, id)
			}
			if _, err := c.Apply(change(t, ev, r)); err != nil {
				t.Fatal(err)
			}
		}

		var want []row
		for _, r := range table {
			want = append(want, r)
		}
		sort.Slice(want, func(i, j int) bool {
			if !want[i].At.Equal(want[j].At) {
				return want[i].At.After(want[j].At)
			}
			return want[i].ID < want[j].ID
		})
		got := c.Rows()
		if len(got) != len(want) {
			t.Fatalf("round %d: len %d, want %d", round, len(got), len(want))
		}
		gotSum, wantSum := 0, 0
		for i := range got {
			if !got[i].At.Equal(want[i].At) {
				t.Fatalf("round %d: position %d at %v, want %v", round, i, got[i].At, want[i].At)
			}
			gotSum += got[i].Value
			wantSum += want[i].Value
		}
		if gotSum != wantSum {
			t.Fatalf("round %d: aggregate %d, want %d", round, gotSum, wantSum)
		}
	}
}
