package telegram

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manjussha/budgetguard/internal/analytics"
	"github.com/Manjussha/budgetguard/internal/db"
	"github.com/Manjussha/budgetguard/internal/estimator"
	"github.com/Manjussha/budgetguard/internal/sessions"
)

func newHandler(t *testing.T) (*CommandHandler, *db.DB) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "tg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate())
	return NewCommandHandler(database, analytics.New(database), sessions.New(database)), database
}

func TestReply_Recent(t *testing.T) {
	h, _ := newHandler(t)
	ctx := context.Background()
	assert.Equal(t, "No estimates yet.", h.Reply(ctx, "recent", ""))

	in, err := estimator.Sanitize(estimator.RawFields{
		WorkflowYAML: "jobs:\n  a:\n    runs-on: macos-latest\n    steps:\n      - run: x\n",
		MonthlyRuns:  100,
		BudgetUSD:    10,
		PolicyMode:   "block",
	})
	require.NoError(t, err)
	sess, err := h.sessions.Save(ctx, in, estimator.Estimate(in))
	require.NoError(t, err)

	out := h.Reply(ctx, "recent", "3")
	assert.Contains(t, out, "block $40.00/mo of $10.00 (100 runs)")
	assert.Contains(t, out, sess.ID)
}

func TestReply_Stats(t *testing.T) {
	h, _ := newHandler(t)
	ctx := context.Background()
	require.NoError(t, h.analytics.Track(ctx, analytics.Event{Name: analytics.PageView}))

	out := h.Reply(ctx, "stats", "30")
	assert.Contains(t, out, "Stats, last 30 day(s)")
	assert.Contains(t, out, "page_view: 1")
	assert.Contains(t, out, "Revenue: $0.00")
}

func TestReply_Digest(t *testing.T) {
	h, database := newHandler(t)
	ctx := context.Background()

	assert.Contains(t, h.Reply(ctx, "digest", ""), "is on")
	h.Reply(ctx, "digest", "off")
	assert.Equal(t, "0", database.GetSetting(db.SettingDigestEnabled, ""))
	h.Reply(ctx, "digest", "ON")
	assert.Equal(t, "1", database.GetSetting(db.SettingDigestEnabled, ""))

	h.HandleCallback(ctx, callbackDigestOff)
	assert.Equal(t, "0", database.GetSetting(db.SettingDigestEnabled, ""))
}

func TestReply_Unknown(t *testing.T) {
	h, _ := newHandler(t)
	assert.Contains(t, h.Reply(context.Background(), "launch", ""), "Unknown command")
	assert.Equal(t, helpText, h.Reply(context.Background(), "help", ""))
}

func TestNew_DisabledWithoutToken(t *testing.T) {
	b, err := New("", 1, nil)
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.NoError(t, b.Send("ignored"))
	assert.NoError(t, b.SendDigest("ignored"))
}
