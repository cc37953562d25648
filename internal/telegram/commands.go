package telegram

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Manjussha/budgetguard/internal/analytics"
	"github.com/Manjussha/budgetguard/internal/db"
	"github.com/Manjussha/budgetguard/internal/sessions"
)

// CommandHandler answers Telegram bot commands.
type CommandHandler struct {
	database  *db.DB
	analytics *analytics.Tracker
	sessions  *sessions.Store
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(database *db.DB, tracker *analytics.Tracker, store *sessions.Store) *CommandHandler {
	return &CommandHandler{database: database, analytics: tracker, sessions: store}
}

// Reply returns the response text for a command.
func (h *CommandHandler) Reply(ctx context.Context, command, args string) string {
	switch command {
	case "stats":
		return h.stats(ctx, args)
	case "recent":
		return h.recent(ctx, args)
	case "digest":
		return h.digest(args)
	case "help", "start":
		return helpText
	default:
		return "Unknown command. Use /help for a list of commands."
	}
}

// HandleCallback processes inline keyboard button presses and returns the
// toast text shown to the user.
func (h *CommandHandler) HandleCallback(ctx context.Context, data string) string {
	switch data {
	case callbackDigestOff:
		if err := h.database.SetSetting(db.SettingDigestEnabled, "0"); err != nil {
			log.Printf("telegram: pause digest: %v", err)
			return "Could not pause digest."
		}
		return "Digest paused. Use /digest on to resume."
	}
	return ""
}

func (h *CommandHandler) stats(ctx context.Context, args string) string {
	days := 7
	if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil && n > 0 && n <= 365 {
		days = n
	}
	rep, err := h.analytics.Summary(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		log.Printf("telegram: stats: %v", err)
		return "Error fetching stats."
	}
	return FormatReport(fmt.Sprintf("Stats, last %d day(s)", days), rep)
}

// FormatReport renders an analytics report as plain text.
func FormatReport(title string, rep *analytics.Report) string {
	var sb strings.Builder
	sb.WriteString(title + "\n\n")
	fmt.Fprintf(&sb, "Estimates: %d (pass %d, warn %d, block %d)\n",
		rep.Sessions, rep.Decisions["pass"], rep.Decisions["warn"], rep.Decisions["block"])
	fmt.Fprintf(&sb, "Checkouts: %d started, %d paid (%.1f%%)\n",
		rep.CheckoutsStarted, rep.CheckoutsPaid, rep.Conversion*100)
	fmt.Fprintf(&sb, "Revenue: $%s\n", rep.RevenueUSD)

	names := make([]string, 0, len(rep.Events))
	for name := range rep.Events {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		sb.WriteString("\nEvents\n")
	}
	for _, name := range names {
		fmt.Fprintf(&sb, "%s: %d\n", name, rep.Events[name])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (h *CommandHandler) recent(ctx context.Context, args string) string {
	limit := 5
	if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil && n > 0 && n <= 20 {
		limit = n
	}
	list, err := h.sessions.Recent(ctx, limit)
	if err != nil {
		log.Printf("telegram: recent: %v", err)
		return "Error fetching sessions."
	}
	if len(list) == 0 {
		return "No estimates yet."
	}
	var sb strings.Builder
	sb.WriteString("Recent estimates\n")
	for _, s := range list {
		fmt.Fprintf(&sb, "\n%s %s $%.2f/mo of $%.2f (%d runs)\n%s",
			decisionIcon(s.Decision), s.Decision, s.MonthlyCostUSD, s.BudgetUSD, s.MonthlyRuns, s.ID)
	}
	return sb.String()
}

func (h *CommandHandler) digest(args string) string {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on":
		if err := h.database.SetSetting(db.SettingDigestEnabled, "1"); err != nil {
			return "Error updating digest setting."
		}
		return "Daily digest enabled."
	case "off":
		if err := h.database.SetSetting(db.SettingDigestEnabled, "0"); err != nil {
			return "Error updating digest setting."
		}
		return "Daily digest paused."
	}
	if h.database.GetSetting(db.SettingDigestEnabled, "1") == "1" {
		return "Daily digest is on. Use /digest off to pause it."
	}
	return "Daily digest is off. Use /digest on to resume it."
}

const helpText = `BudgetGuard commands

/stats [days] - usage and revenue summary
/recent [n] - latest estimates
/digest [on|off] - daily digest
/help - this help`

func decisionIcon(decision string) string {
	switch decision {
	case "pass":
		return "🟢"
	case "warn":
		return "🟡"
	case "block":
		return "🔴"
	default:
		return "⚫"
	}
}
