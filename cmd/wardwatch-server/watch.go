package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/wardwatch/internal/domain/messaging"
	"github.com/ehr/wardwatch/internal/domain/monitoring"
	"github.com/ehr/wardwatch/internal/live"
	"github.com/ehr/wardwatch/internal/platform/realtime"
)

type watchOptions struct {
	server   string
	email    string
	password string
	token    string
	board    string
	patient  string
	limit    int
}

func watchCmd() *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a live board (alerts, inbox or vitals) from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.password == "" {
				opts.password = os.Getenv("WARDWATCH_PASSWORD")
			}
			if opts.token == "" {
				opts.token = os.Getenv("WARDWATCH_TOKEN")
			}
			return runWatch(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.server, "server", "http://localhost:8000", "Base URL of the wardwatch server")
	f.StringVar(&opts.email, "email", "", "Account email used to sign in")
	f.StringVar(&opts.password, "password", "", "Account password (or WARDWATCH_PASSWORD)")
	f.StringVar(&opts.token, "token", "", "Use this access token instead of signing in (or WARDWATCH_TOKEN)")
	f.StringVar(&opts.board, "board", "alerts", "Board to follow: alerts, inbox or vitals")
	f.StringVar(&opts.patient, "patient", "", "Patient id for the vitals board")
	f.IntVar(&opts.limit, "limit", 10, "Rows printed per update")
	return cmd
}

func (o *watchOptions) validate() error {
	switch o.board {
	case "alerts", "inbox":
	case "vitals":
		if _, err := uuid.Parse(o.patient); err != nil {
			return fmt.Errorf("--patient must be a valid id for the vitals board")
		}
	default:
		return fmt.Errorf("unknown board %q", o.board)
	}
	if o.token == "" && (o.email == "" || o.password == "") {
		return errors.New("either --token or --email and --password are required")
	}
	if o.limit <= 0 {
		o.limit = 10
	}
	return nil
}

// realtimeURL maps the server base URL onto the websocket endpoint.
func realtimeURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + realtime.Path
	u.RawQuery = ""
	return u.String(), nil
}

func runWatch(ctx context.Context, out io.Writer, opts *watchOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}
	wsURL, err := realtimeURL(opts.server)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger("development", os.Stderr).Level(zerolog.WarnLevel)
	api := live.NewAPI(opts.server, opts.token, nil)
	me := uuid.Nil

	if opts.token == "" {
		res, err := api.SignIn(ctx, opts.email, opts.password)
		if err != nil {
			return fmt.Errorf("sign in: %w", err)
		}
		api = api.WithToken(res.AccessToken)
		opts.token = res.AccessToken
		if id, err := uuid.Parse(res.Profile.ID); err == nil {
			me = id
		}
		fmt.Fprintf(out, "signed in as %s (%s)\n", res.Profile.FullName, res.Profile.Role)
	}

	client, err := live.Dial(ctx, live.ClientConfig{URL: wsURL, Token: opts.token, Logger: logger})
	if err != nil {
		return fmt.Errorf("connect realtime: %w", err)
	}
	defer client.Close()

	type mountable interface {
		Mount(ctx context.Context, s live.Subscriber) error
		HandleLoss(fn func(err error))
		Dispose() error
	}

	var board mountable
	switch opts.board {
	case "alerts":
		board = live.NewAlertBoard(api, func(rows []monitoring.Alert, sum monitoring.AlertSummary) {
			fmt.Fprint(out, renderAlerts(rows, sum, time.Now(), opts.limit))
		}, logger)
	case "inbox":
		if me == uuid.Nil {
			return errors.New("the inbox board needs --email and --password to know the account")
		}
		board = live.NewInbox(api, me, func(rows []messaging.Message, sum messaging.Summary) {
			fmt.Fprint(out, renderInbox(rows, sum, time.Now(), opts.limit))
		}, logger)
	case "vitals":
		board = live.NewVitalsMonitor(api, opts.patient, func(rows []monitoring.Vital, sum monitoring.VitalSummary) {
			fmt.Fprint(out, renderVitals(rows, sum, time.Now(), opts.limit))
		}, logger)
	}

	lost := make(chan error, 1)
	board.HandleLoss(func(err error) {
		select {
		case lost <- err:
		default:
		}
	})
	if err := board.Mount(ctx, client); err != nil {
		return fmt.Errorf("mount %s board: %w", opts.board, err)
	}
	defer board.Dispose()

	select {
	case <-ctx.Done():
		return nil
	case err := <-lost:
		return fmt.Errorf("%s board stopped: %w", opts.board, err)
	}
}

func ago(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

func renderAlerts(rows []monitoring.Alert, sum monitoring.AlertSummary, now time.Time, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- alerts: %s total, %s pending, %s critical (%s pending)\n",
		humanize.Comma(int64(sum.Total)), humanize.Comma(int64(sum.Unacknowledged)),
		humanize.Comma(int64(sum.Critical)), humanize.Comma(int64(sum.PendingCritical)))
	for i, a := range rows {
		if i == limit {
			fmt.Fprintf(&b, "   ... %d more\n", len(rows)-limit)
			break
		}
		state := "pending"
		if a.IsAcknowledged {
			state = "acknowledged"
		}
		fmt.Fprintf(&b, "   [%s] %s  patient=%s  %s  %s\n",
			strings.ToUpper(string(a.Severity)), a.Message, a.PatientID, state, ago(a.CreatedAt, now))
	}
	return b.String()
}

func renderInbox(rows []messaging.Message, sum messaging.Summary, now time.Time, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- inbox: %s messages, %s unread\n",
		humanize.Comma(int64(sum.Total)), humanize.Comma(int64(sum.Unread)))
	for i, m := range rows {
		if i == limit {
			fmt.Fprintf(&b, "   ... %d more\n", len(rows)-limit)
			break
		}
		mark := " "
		if !m.IsRead {
			mark = "*"
		}
		fmt.Fprintf(&b, "  %s from=%s  %s  %s\n", mark, m.SenderID, m.Content, ago(m.CreatedAt, now))
	}
	return b.String()
}

func renderVitals(rows []monitoring.Vital, sum monitoring.VitalSummary, now time.Time, limit int) string {
	var b strings.Builder
	status := sum.Status
	if status == "" {
		status = monitoring.LevelNormal
	}
	fmt.Fprintf(&b, "-- vitals: %d readings, %d flagged, status %s\n", sum.Total, sum.Flagged, status)
	for _, r := range sum.Current {
		fmt.Fprintf(&b, "   %-24s %8s  %s\n", r.Metric, humanize.FtoaWithDigits(r.Value, 1), r.Level)
	}
	for i, v := range rows {
		if i == limit {
			break
		}
		flag := ""
		if v.IsAlert {
			flag = "  !"
		}
		fmt.Fprintf(&b, "   %s%s\n", ago(v.RecordedAt, now), flag)
	}
	return b.String()
}
