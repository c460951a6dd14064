package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ehr/wardwatch/internal/platform/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func newTestClient(id string, buffer int) *Client {
	return NewClient(id, auth.Session{ProfileID: "prof-" + id, Role: auth.RoleNurse}, buffer)
}

func alertChange(event Event, id string, severity string) Change {
	row := json.RawMessage(`{"id":"` + id + `","severity":"` + severity + `","patient_id":"pat-1"}`)
	ch := Change{Event: event, Table: "alerts"}
	if event == EventDelete {
		ch.OldRow = row
	} else {
		ch.NewRow = row
	}
	return ch
}

func readFrame(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data, ok := <-c.Send():
		if !ok {
			t.Fatal("send channel closed")
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return msg
	default:
		t.Fatal("expected a queued frame")
	}
	return Message{}
}

func expectNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send():
		t.Fatalf("unexpected frame %s", data)
	default:
	}
}

func TestHub_RegisterAndJoin(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	client := newTestClient("c1", 8)
	hub.Register(client)

	sub, _ := NewSubscription("alerts", "alerts", "", nil)
	if err := hub.Join(client, sub); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if hub.ClientCount() != 1 || hub.SubscriptionCount() != 1 || hub.TableCount("alerts") != 1 {
		t.Fatalf("unexpected counts: clients=%d subs=%d table=%d",
			hub.ClientCount(), hub.SubscriptionCount(), hub.TableCount("alerts"))
	}
	if err := hub.Join(client, sub); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("expected ErrAlreadyJoined, got %v", err)
	}
}

func TestHub_JoinRequiresRegistration(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	sub, _ := NewSubscription("alerts", "alerts", "", nil)
	if err := hub.Join(newTestClient("c1", 1), sub); err == nil {
		t.Fatal("expected error joining with an unregistered client")
	}
}

func TestHub_BroadcastRouting(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	all := newTestClient("all", 8)
	inserts := newTestClient("inserts", 8)
	filtered := newTestClient("filtered", 8)
	vitals := newTestClient("vitals", 8)
	for _, c := range []*Client{all, inserts, filtered, vitals} {
		hub.Register(c)
	}

	join := func(c *Client, channel, table, filter string, events ...Event) {
		t.Helper()
		sub, err := NewSubscription(channel, table, filter, events)
		if err != nil {
			t.Fatalf("NewSubscription: %v", err)
		}
		if err := hub.Join(c, sub); err != nil {
			t.Fatalf("Join: %v", err)
		}
	}
	join(all, "all-alerts", "alerts", "", "*")
	join(inserts, "new-alerts", "alerts", "", EventInsert)
	join(filtered, "critical", "alerts", "severity=eq.critical")
	join(vitals, "vitals", "vitals", "")

	if n := hub.Broadcast(alertChange(EventInsert, "a1", "critical")); n != 3 {
		t.Errorf("expected 3 deliveries, got %d", n)
	}
	if msg := readFrame(t, all); msg.Type != TypeChange || msg.Channel != "all-alerts" || msg.Payload.Event != EventInsert {
		t.Errorf("unexpected frame: %+v", msg)
	}
	readFrame(t, inserts)
	if msg := readFrame(t, filtered); msg.Channel != "critical" {
		t.Errorf("expected frame on critical channel, got %q", msg.Channel)
	}
	expectNoFrame(t, vitals)

	if n := hub.Broadcast(alertChange(EventUpdate, "a2", "low")); n != 1 {
		t.Errorf("expected only the wildcard channel to receive a low update, got %d", n)
	}
	readFrame(t, all)
	expectNoFrame(t, inserts)
	expectNoFrame(t, filtered)

	// Deletes are matched against the old row.
	if n := hub.Broadcast(alertChange(EventDelete, "a1", "critical")); n != 2 {
		t.Errorf("expected 2 deliveries for delete, got %d", n)
	}
}

func TestHub_MultipleChannelsSameTable(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	c := newTestClient("c1", 8)
	hub.Register(c)
	a, _ := NewSubscription("board", "alerts", "", nil)
	b, _ := NewSubscription("badge", "alerts", "", nil)
	_ = hub.Join(c, a)
	_ = hub.Join(c, b)

	if n := hub.Broadcast(alertChange(EventInsert, "a1", "high")); n != 2 {
		t.Fatalf("expected one frame per channel, got %d", n)
	}

	if err := hub.Leave(c, "board"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if hub.TableCount("alerts") != 1 {
		t.Errorf("client still has a channel on alerts, table count = %d", hub.TableCount("alerts"))
	}
	if err := hub.Leave(c, "badge"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if hub.TableCount("alerts") != 0 {
		t.Errorf("expected table index to be empty, got %d", hub.TableCount("alerts"))
	}
	if err := hub.Leave(c, "badge"); !errors.Is(err, ErrNotJoined) {
		t.Errorf("expected ErrNotJoined, got %v", err)
	}
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	c := newTestClient("c1", 1)
	hub.Register(c)
	sub, _ := NewSubscription("alerts", "alerts", "", nil)
	_ = hub.Join(c, sub)

	hub.Unregister(c)
	hub.Unregister(c)

	if _, ok := <-c.Send(); ok {
		t.Fatal("expected send channel to be closed")
	}
	if hub.ClientCount() != 0 || hub.TableCount("alerts") != 0 || hub.SubscriptionCount() != 0 {
		t.Error("expected hub to forget the client")
	}
	if n := hub.Broadcast(alertChange(EventInsert, "a1", "low")); n != 0 {
		t.Errorf("expected no deliveries, got %d", n)
	}
}

func TestHub_OverflowFlagsClient(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	hub := NewHub(zerolog.Nop(), metrics)
	c := newTestClient("slow", 1)
	hub.Register(c)
	sub, _ := NewSubscription("alerts", "alerts", "", nil)
	_ = hub.Join(c, sub)

	hub.Broadcast(alertChange(EventInsert, "a1", "low"))
	hub.Broadcast(alertChange(EventInsert, "a2", "low"))

	select {
	case <-c.Overflowed():
	default:
		t.Fatal("expected client to be flagged as overflowed")
	}
	if got := testutil.ToFloat64(metrics.dropped); got != 1 {
		t.Errorf("expected 1 dropped frame, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.delivered); got != 1 {
		t.Errorf("expected 1 delivered frame, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.clients); got != 1 {
		t.Errorf("expected clients gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.subscriptions); got != 1 {
		t.Errorf("expected subscriptions gauge 1, got %v", got)
	}
}

func TestHub_BroadcastResync(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	a := newTestClient("a", 2)
	b := newTestClient("b", 2)
	hub.Register(a)
	hub.Register(b)

	hub.BroadcastResync()

	for _, c := range []*Client{a, b} {
		if msg := readFrame(t, c); msg.Type != TypeResync {
			t.Errorf("expected resync frame, got %+v", msg)
		}
	}
}

func TestHub_HandleNotification(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	hub := NewHub(zerolog.Nop(), metrics)
	c := newTestClient("c1", 4)
	hub.Register(c)
	sub, _ := NewSubscription("inbox", "messages", "receiver_id=eq.prof-c1", nil)
	_ = hub.Join(c, sub)

	hub.HandleNotification(context.Background(), `{"event":"insert","table":"messages","new_row":{"id":"m1","receiver_id":"prof-c1"}}`)
	hub.HandleNotification(context.Background(), `{"event":"insert","table":"messages","new_row":{"id":"m2","receiver_id":"someone-else"}}`)
	hub.HandleNotification(context.Background(), `not json`)

	msg := readFrame(t, c)
	if msg.Channel != "inbox" || string(msg.Payload.NewRow) != `{"id":"m1","receiver_id":"prof-c1"}` {
		t.Errorf("unexpected frame: %+v", msg)
	}
	expectNoFrame(t, c)
	if got := testutil.ToFloat64(metrics.invalid); got != 1 {
		t.Errorf("expected 1 invalid notification, got %v", got)
	}
}

func TestHub_ConcurrentJoinBroadcast(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newTestClient(string(rune('a'+i)), 64)
			hub.Register(c)
			sub, _ := NewSubscription("alerts", "alerts", "", nil)
			_ = hub.Join(c, sub)
			hub.Broadcast(alertChange(EventInsert, "x", "low"))
			hub.Unregister(c)
		}(i)
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected all clients gone, got %d", hub.ClientCount())
	}
}

func TestNewSubscription_Validation(t *testing.T) {
	if _, err := NewSubscription("", "alerts", "", nil); err == nil {
		t.Error("expected error for empty channel")
	}
	if _, err := NewSubscription("c", "", "", nil); err == nil {
		t.Error("expected error for empty table")
	}
	if _, err := NewSubscription("c", "alerts", "severity=like.x", nil); err == nil {
		t.Error("expected error for unsupported filter")
	}
	if _, err := NewSubscription("c", "alerts", "", []Event{"truncate"}); err == nil {
		t.Error("expected error for unknown event")
	}
}
