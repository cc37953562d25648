// Package analytics records product events and summarizes them for the
// metrics endpoint, the Telegram /stats command and the daily digest.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Manjussha/budgetguard/internal/db"
)

// Event names accepted by Track.
const (
	PageView        = "page_view"
	EstimateCreated = "estimate_created"
	EstimateFailed  = "estimate_failed"
	ImportSucceeded = "import_succeeded"
	ImportFailed    = "import_failed"
	SnippetCopied   = "snippet_copied"
	CheckoutStarted = "checkout_started"
	CheckoutPaid    = "checkout_paid"
	PackExported    = "pack_exported"
)

var allowed = map[string]bool{
	PageView:        true,
	EstimateCreated: true,
	EstimateFailed:  true,
	ImportSucceeded: true,
	ImportFailed:    true,
	SnippetCopied:   true,
	CheckoutStarted: true,
	CheckoutPaid:    true,
	PackExported:    true,
}

// Property limits.
const (
	MaxProps      = 16
	MaxPropLength = 200
)

// ErrUnknownEvent is returned by Track for names outside the allowed set.
var ErrUnknownEvent = errors.New("unknown event")

// Allowed reports whether name is a trackable event.
func Allowed(name string) bool { return allowed[name] }

// Event is one analytics record as submitted by callers.
type Event struct {
	Name      string            `json:"name"`
	SessionID string            `json:"session_id,omitempty"`
	Props     map[string]string `json:"props,omitempty"`
}

// Tracker writes and aggregates the events table.
type Tracker struct {
	database *db.DB
	now      func() time.Time
}

// New creates a Tracker.
func New(database *db.DB) *Tracker {
	return &Tracker{database: database, now: time.Now}
}

// Track stores e after capping its properties.
func (t *Tracker) Track(ctx context.Context, e Event) error {
	if !allowed[e.Name] {
		return fmt.Errorf("analytics.Track: %q: %w", e.Name, ErrUnknownEvent)
	}
	props, err := json.Marshal(capProps(e.Props))
	if err != nil {
		return fmt.Errorf("analytics.Track: props: %w", err)
	}
	var sessionID interface{}
	if e.SessionID != "" {
		sessionID = e.SessionID
	}
	now := t.now().UTC()
	_, err = t.database.ExecContext(ctx,
		`INSERT INTO events (id, name, session_id, props, day, created_at) VALUES (?,?,?,?,?,?)`,
		uuid.NewString(), e.Name, sessionID, string(props), now.Format("2006-01-02"), now,
	)
	if err != nil {
		return fmt.Errorf("analytics.Track: %w", err)
	}
	return nil
}

// capProps keeps the first MaxProps keys in sorted order and truncates values.
func capProps(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > MaxProps {
		keys = keys[:MaxProps]
	}
	for _, k := range keys {
		v := in[k]
		if utf8.RuneCountInString(v) > MaxPropLength {
			v = string([]rune(v)[:MaxPropLength])
		}
		out[k] = v
	}
	return out
}

// Report is an aggregate view of activity since a point in time.
type Report struct {
	Since            string         `json:"since"`
	Events           map[string]int `json:"events"`
	Sessions         int            `json:"sessions"`
	Decisions        map[string]int `json:"decisions"`
	CheckoutsStarted int            `json:"checkouts_started"`
	CheckoutsPaid    int            `json:"checkouts_paid"`
	Conversion       float64        `json:"conversion"`
	RevenueUSD       string         `json:"revenue_usd"`
}

// Summary aggregates events, sessions and checkouts created at or after since.
func (t *Tracker) Summary(ctx context.Context, since time.Time) (*Report, error) {
	since = since.UTC()
	rep := &Report{
		Since:     since.Format("2006-01-02"),
		Events:    map[string]int{},
		Decisions: map[string]int{"pass": 0, "warn": 0, "block": 0},
	}

	rows, err := t.database.QueryContext(ctx,
		`SELECT name, COUNT(*) FROM events WHERE created_at >= ? GROUP BY name`, since)
	if err != nil {
		return nil, fmt.Errorf("analytics.Summary: events: %w", err)
	}
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("analytics.Summary: events: %w", err)
		}
		rep.Events[name] = n
	}
	rows.Close()

	rows, err = t.database.QueryContext(ctx,
		`SELECT decision, COUNT(*) FROM sessions WHERE created_at >= ? GROUP BY decision`, since)
	if err != nil {
		return nil, fmt.Errorf("analytics.Summary: sessions: %w", err)
	}
	for rows.Next() {
		var decision string
		var n int
		if err := rows.Scan(&decision, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("analytics.Summary: sessions: %w", err)
		}
		rep.Decisions[decision] = n
		rep.Sessions += n
	}
	rows.Close()

	rows, err = t.database.QueryContext(ctx,
		`SELECT status, price_usd FROM checkouts WHERE created_at >= ?`, since)
	if err != nil {
		return nil, fmt.Errorf("analytics.Summary: checkouts: %w", err)
	}
	revenue := decimal.Zero
	for rows.Next() {
		var status, price string
		if err := rows.Scan(&status, &price); err != nil {
			rows.Close()
			return nil, fmt.Errorf("analytics.Summary: checkouts: %w", err)
		}
		rep.CheckoutsStarted++
		if status != db.CheckoutPaid {
			continue
		}
		rep.CheckoutsPaid++
		if p, err := decimal.NewFromString(price); err == nil {
			revenue = revenue.Add(p)
		}
	}
	rows.Close()

	rep.RevenueUSD = revenue.StringFixed(2)
	if rep.CheckoutsStarted > 0 {
		rep.Conversion = decimal.NewFromInt(int64(rep.CheckoutsPaid)).
			Div(decimal.NewFromInt(int64(rep.CheckoutsStarted))).
			Round(4).InexactFloat64()
	}
	return rep, nil
}

// Prune deletes events created before olderThan and returns how many went.
func (t *Tracker) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := t.database.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("analytics.Prune: %w", err)
	}
	return res.RowsAffected()
}
