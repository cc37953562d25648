package analytics

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manjussha/budgetguard/internal/db"
)

func newTracker(t *testing.T) (*Tracker, *db.DB) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "analytics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate())
	return New(database), database
}

func insertSession(t *testing.T, database *db.DB, id, decision string) {
	t.Helper()
	_, err := database.Exec(`INSERT INTO sessions (id, fingerprint, jobs, steps, minutes_per_run,
		cost_per_run_usd, monthly_runs, monthly_cost_usd, budget_usd, policy_mode, decision, created_at)
		VALUES (?, 'fp', 1, 1, 5, 0.04, 10, 0.4, 1, 'warn', ?, ?)`, id, decision, time.Now().UTC())
	require.NoError(t, err)
}

func insertCheckout(t *testing.T, database *db.DB, id, sessionID, status, price string) {
	t.Helper()
	now := time.Now().UTC()
	_, err := database.Exec(`INSERT INTO checkouts (id, session_id, status, price_usd, expires_at, created_at)
		VALUES (?,?,?,?,?,?)`, id, sessionID, status, price, now.Add(time.Hour), now)
	require.NoError(t, err)
}

func TestTrack_UnknownEvent(t *testing.T) {
	tr, _ := newTracker(t)
	err := tr.Track(context.Background(), Event{Name: "clicked_everything"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestTrack_CapsProps(t *testing.T) {
	tr, database := newTracker(t)
	props := map[string]string{"long": strings.Repeat("x", 500)}
	for i := 0; i < 30; i++ {
		props[string(rune('a'+i%26))+strings.Repeat("k", i/26)] = "v"
	}
	require.NoError(t, tr.Track(context.Background(), Event{Name: PageView, Props: props}))

	var raw string
	require.NoError(t, database.QueryRow(`SELECT props FROM events`).Scan(&raw))
	var stored map[string]string
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Len(t, stored, MaxProps)
	for _, v := range stored {
		assert.LessOrEqual(t, len(v), MaxPropLength)
	}
}

func TestTrack_NullSession(t *testing.T) {
	tr, database := newTracker(t)
	require.NoError(t, tr.Track(context.Background(), Event{Name: SnippetCopied}))

	var ev db.Event
	require.NoError(t, database.QueryRow(`SELECT name, session_id, day FROM events`).
		Scan(&ev.Name, &ev.SessionID, &ev.Day))
	assert.Equal(t, SnippetCopied, ev.Name)
	assert.False(t, ev.SessionID.Valid)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), ev.Day)
}

func TestSummary(t *testing.T) {
	tr, database := newTracker(t)
	ctx := context.Background()

	insertSession(t, database, "s1", "pass")
	insertSession(t, database, "s2", "block")
	insertSession(t, database, "s3", "block")
	insertCheckout(t, database, "c1", "s1", db.CheckoutPaid, "19.00")
	insertCheckout(t, database, "c2", "s2", db.CheckoutPaid, "19.50")
	insertCheckout(t, database, "c3", "s3", db.CheckoutPending, "19.00")

	require.NoError(t, tr.Track(ctx, Event{Name: EstimateCreated, SessionID: "s1"}))
	require.NoError(t, tr.Track(ctx, Event{Name: EstimateCreated, SessionID: "s2"}))
	require.NoError(t, tr.Track(ctx, Event{Name: PageView}))

	rep, err := tr.Summary(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Events[EstimateCreated])
	assert.Equal(t, 1, rep.Events[PageView])
	assert.Equal(t, 3, rep.Sessions)
	assert.Equal(t, map[string]int{"pass": 1, "warn": 0, "block": 2}, rep.Decisions)
	assert.Equal(t, 3, rep.CheckoutsStarted)
	assert.Equal(t, 2, rep.CheckoutsPaid)
	assert.Equal(t, 0.6667, rep.Conversion)
	assert.Equal(t, "38.50", rep.RevenueUSD)
}

func TestSummary_Empty(t *testing.T) {
	tr, _ := newTracker(t)
	rep, err := tr.Summary(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, rep.Sessions)
	assert.Zero(t, rep.Conversion)
	assert.Equal(t, "0.00", rep.RevenueUSD)
}

func TestPrune(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	tr.now = func() time.Time { return time.Now().Add(-100 * 24 * time.Hour) }
	require.NoError(t, tr.Track(ctx, Event{Name: PageView}))
	tr.now = time.Now
	require.NoError(t, tr.Track(ctx, Event{Name: PageView}))

	n, err := tr.Prune(ctx, time.Now().Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rep, err := tr.Summary(ctx, time.Now().Add(-365*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Events[PageView])
}
