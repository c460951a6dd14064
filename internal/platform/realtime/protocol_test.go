package realtime

import (
	"errors"
	"testing"
)

func TestDecodeChange(t *testing.T) {
	payload := `{"event":"insert","table":"alerts","new_row":{"id":"a1","severity":"critical"},"old_row":null,"commit_timestamp":"2026-03-01T10:00:00.123456+00:00"}`
	ch, err := DecodeChange([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeChange: %v", err)
	}
	if ch.Event != EventInsert || ch.Table != "alerts" {
		t.Errorf("unexpected change: %+v", ch)
	}
	if ch.OldRow != nil {
		t.Errorf("expected null old_row to decode as nil, got %s", ch.OldRow)
	}
	if string(ch.Row()) != `{"id":"a1","severity":"critical"}` {
		t.Errorf("unexpected row: %s", ch.Row())
	}
	if ch.CommitTimestamp.IsZero() {
		t.Error("expected commit timestamp")
	}
}

func TestDecodeChange_DeleteUsesOldRow(t *testing.T) {
	ch, err := DecodeChange([]byte(`{"event":"delete","table":"messages","new_row":null,"old_row":{"id":"m1"}}`))
	if err != nil {
		t.Fatalf("DecodeChange: %v", err)
	}
	if string(ch.Row()) != `{"id":"m1"}` {
		t.Errorf("expected old row for delete, got %s", ch.Row())
	}
}

func TestDecodeChange_Truncated(t *testing.T) {
	ch, err := DecodeChange([]byte(`{"event":"update","table":"messages","new_row":{"id":"m1","receiver_id":"p1","is_read":true},"old_row":{"id":"m1"},"truncated":true}`))
	if err != nil {
		t.Fatalf("DecodeChange: %v", err)
	}
	if !ch.Truncated || !ch.KeysOnly() {
		t.Errorf("expected a keys-only change, got %+v", ch)
	}
	if !Eq("receiver_id", "p1").Match(ch.Row()) {
		t.Error("short columns kept in a truncated row must still match filters")
	}

	del, err := DecodeChange([]byte(`{"event":"delete","table":"messages","new_row":null,"old_row":{"id":"m1"},"truncated":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if del.KeysOnly() {
		t.Error("a delete only needs the key and can be applied")
	}
}

func TestDecodeChange_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{`},
		{"unknown event", `{"event":"truncate","table":"alerts","new_row":{}}`},
		{"missing table", `{"event":"insert","new_row":{"id":"x"}}`},
		{"insert without row", `{"event":"insert","table":"alerts","new_row":null}`},
		{"delete without row", `{"event":"delete","table":"alerts","new_row":{"id":"x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeChange([]byte(tt.payload)); !errors.Is(err, ErrMalformedChange) {
				t.Errorf("expected ErrMalformedChange, got %v", err)
			}
		})
	}
}

func TestParseEvent(t *testing.T) {
	for _, s := range []string{"insert", "update", "delete"} {
		if _, err := ParseEvent(s); err != nil {
			t.Errorf("ParseEvent(%q): %v", s, err)
		}
	}
	if _, err := ParseEvent("INSERT"); err == nil {
		t.Error("expected upper case event to be rejected")
	}
}
