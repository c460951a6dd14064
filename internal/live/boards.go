package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ehr/wardwatch/internal/domain/messaging"
	"github.com/ehr/wardwatch/internal/domain/monitoring"
	"github.com/ehr/wardwatch/internal/platform/realtime"
)

// ErrUnknownRow is returned by actions on a row the view does not hold.
var ErrUnknownRow = errors.New("row not in view")

// VitalsCapacity is how many readings a vitals monitor keeps.
const VitalsCapacity = 24

// ErrSnapshotMoving is returned when a paged snapshot keeps changing size
// while it is read.
var ErrSnapshotMoving = errors.New("snapshot changed while paging")

const (
	pageSize     = 100
	maxPageWalks = 3
)

// fetchAll walks every page of a listing; list returns one page and the size
// of the whole listing. When the total moves between pages rows have shifted
// under the offsets, so the walk starts over.
func fetchAll[T any](ctx context.Context, list func(ctx context.Context, limit, offset int) ([]T, int, error)) ([]T, error) {
	for walk := 1; ; walk++ {
		var rows []T
		total := -1
		shifted := false
		for {
			page, n, err := list(ctx, pageSize, len(rows))
			if err != nil {
				return nil, err
			}
			if total >= 0 && n != total {
				shifted = true
				break
			}
			total = n
			rows = append(rows, page...)
			if len(page) == 0 || len(rows) >= total {
				break
			}
		}
		if !shifted {
			return rows, nil
		}
		if walk == maxPageWalks {
			return nil, ErrSnapshotMoving
		}
	}
}

type AlertSource interface {
	ListAlerts(ctx context.Context, limit, offset int) ([]monitoring.Alert, int, error)
	AcknowledgeAlert(ctx context.Context, id string) (monitoring.Alert, error)
}

type MessageSource interface {
	ListInbox(ctx context.Context, limit, offset int) ([]messaging.Message, int, error)
	MarkMessageRead(ctx context.Context, id string) (messaging.Message, error)
}

type VitalSource interface {
	ListVitals(ctx context.Context, patientID string, limit int) ([]monitoring.Vital, error)
}

func alertKey(a monitoring.Alert) string { return a.ID.String() }
func alertTime(a monitoring.Alert) time.Time { return a.CreatedAt }
func messageKey(m messaging.Message) string { return m.ID.String() }
func messageTime(m messaging.Message) time.Time { return m.CreatedAt }
func vitalKey(v monitoring.Vital) string { return v.ID.String() }
func vitalTime(v monitoring.Vital) time.Time { return v.RecordedAt }

// AlertBoard is the live alert list with its summary and the acknowledge
// action.
type AlertBoard struct {
	*View[monitoring.Alert, monitoring.AlertSummary]
	src   AlertSource
	group singleflight.Group
}

func NewAlertBoard(src AlertSource, onChange func([]monitoring.Alert, monitoring.AlertSummary), logger zerolog.Logger) *AlertBoard {
	b := &AlertBoard{src: src}
	b.View = NewView(ViewConfig[monitoring.Alert, monitoring.AlertSummary]{
		Channel: Channel{Name: "alerts", Table: "alerts"},
		Key:     alertKey,
		Time:    alertTime,
		Fetch: func(ctx context.Context) ([]monitoring.Alert, error) {
			return fetchAll(ctx, src.ListAlerts)
		},
		Derive:   monitoring.SummarizeAlerts,
		OnChange: onChange,
		Logger:   logger,
	})
	return b
}

// Acknowledge marks the alert reviewed. Concurrent calls for the same id
// share one request, and an alert already acknowledged locally is left
// alone without contacting the server.
func (b *AlertBoard) Acknowledge(ctx context.Context, id string) error {
	row, ok := b.Get(id)
	if !ok {
		return fmt.Errorf("%w: alert %s", ErrUnknownRow, id)
	}
	if row.IsAcknowledged {
		return nil
	}

	_, err, _ := b.group.Do(id, func() (any, error) {
		if row, ok := b.Get(id); ok && row.IsAcknowledged {
			return nil, nil
		}
		updated, err := b.src.AcknowledgeAlert(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("acknowledge alert %s: %w", id, err)
		}
		b.Modify(func(c *Collection[monitoring.Alert]) bool { return c.Update(updated) })
		return nil, nil
	})
	return err
}

// Inbox is the live list of messages addressed to one profile.
type Inbox struct {
	*View[messaging.Message, messaging.Summary]
	me  uuid.UUID
	src MessageSource
}

func NewInbox(src MessageSource, me uuid.UUID, onChange func([]messaging.Message, messaging.Summary), logger zerolog.Logger) *Inbox {
	in := &Inbox{me: me, src: src}
	in.View = NewView(ViewConfig[messaging.Message, messaging.Summary]{
		Channel: Channel{
			Name:   "inbox:" + me.String(),
			Table:  "messages",
			Filter: realtime.Eq("receiver_id", me.String()),
			Events: []realtime.Event{realtime.EventInsert, realtime.EventUpdate},
		},
		Key:  messageKey,
		Time: messageTime,
		Fetch: func(ctx context.Context) ([]messaging.Message, error) {
			return fetchAll(ctx, src.ListInbox)
		},
		Derive:   func(rows []messaging.Message) messaging.Summary { return messaging.Summarize(rows, me) },
		OnChange: onChange,
		Logger:   logger,
	})
	return in
}

// Unread is the number of unread messages held.
func (in *Inbox) Unread() int { return in.Derived().Unread }

// MarkRead marks one held message read. Already read messages are a no-op.
func (in *Inbox) MarkRead(ctx context.Context, id string) error {
	row, ok := in.Get(id)
	if !ok {
		return fmt.Errorf("%w: message %s", ErrUnknownRow, id)
	}
	if row.IsRead {
		return nil
	}
	updated, err := in.src.MarkMessageRead(ctx, id)
	if err != nil {
		return fmt.Errorf("mark message %s read: %w", id, err)
	}
	in.Modify(func(c *Collection[messaging.Message]) bool { return c.Update(updated) })
	return nil
}

// VitalsMonitor follows the newest readings of one patient.
type VitalsMonitor struct {
	*View[monitoring.Vital, monitoring.VitalSummary]
	PatientID string
}

func NewVitalsMonitor(src VitalSource, patientID string, onChange func([]monitoring.Vital, monitoring.VitalSummary), logger zerolog.Logger) *VitalsMonitor {
	view := NewView(ViewConfig[monitoring.Vital, monitoring.VitalSummary]{
		Channel: Channel{
			Name:   "vitals:" + patientID,
			Table:  "vitals",
			Filter: realtime.Eq("patient_id", patientID),
			Events: []realtime.Event{realtime.EventInsert},
		},
		Key:      vitalKey,
		Time:     vitalTime,
		Capacity: VitalsCapacity,
		Fetch: func(ctx context.Context) ([]monitoring.Vital, error) {
			return src.ListVitals(ctx, patientID, VitalsCapacity)
		},
		Derive:   monitoring.SummarizeVitals,
		OnChange: onChange,
		Logger:   logger,
	})
	return &VitalsMonitor{View: view, PatientID: patientID}
}
