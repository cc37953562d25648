// Package scheduler wraps robfig/cron to run periodic maintenance: checkout
// expiry, analytics retention, limiter cleanup and the daily digest.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Manjussha/budgetguard/internal/analytics"
	"github.com/Manjussha/budgetguard/internal/db"
	"github.com/Manjussha/budgetguard/internal/notify"
)

// Cron expressions, seconds first.
const (
	SpecExpireCheckouts = "0 * * * * *"
	SpecSweepLimiter    = "30 */5 * * * *"
	SpecPruneEvents     = "0 0 3 * * *"
	SpecDailyDigest     = "0 0 9 * * *"
)

// CheckoutExpirer expires unpaid checkouts.
type CheckoutExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// EventStore prunes and summarizes analytics events.
type EventStore interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
	Summary(ctx context.Context, since time.Time) (*analytics.Report, error)
}

// Notifier delivers the digest.
type Notifier interface {
	Send(event string, payload map[string]interface{})
}

// Sweeper drops idle rate limiter state.
type Sweeper interface {
	Sweep() int
}

// Deps are the collaborators the maintenance jobs act on. Nil fields skip
// the corresponding job.
type Deps struct {
	Checkouts     CheckoutExpirer
	Events        EventStore
	Notifier      Notifier
	Limiter       Sweeper
	RetentionDays int
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

// Engine manages the cron scheduler.
type Engine struct {
	cron     *cron.Cron
	database *db.DB
	deps     Deps
	entries  map[string]cron.EntryID
	specs    map[string]string
	now      func() time.Time
}

// New creates a new cron-based Engine.
func New(database *db.DB, deps Deps) *Engine {
	if deps.RetentionDays <= 0 {
		deps.RetentionDays = 90
	}
	return &Engine{
		cron:     cron.New(cron.WithSeconds()),
		database: database,
		deps:     deps,
		entries:  make(map[string]cron.EntryID),
		specs:    make(map[string]string),
		now:      time.Now,
	}
}

// Start registers the maintenance jobs and runs the cron engine until ctx ends.
func (e *Engine) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
		on   bool
	}{
		{"expire_checkouts", SpecExpireCheckouts, e.ExpireCheckouts, e.deps.Checkouts != nil},
		{"sweep_limiter", SpecSweepLimiter, e.SweepLimiter, e.deps.Limiter != nil},
		{"prune_events", SpecPruneEvents, e.PruneEvents, e.deps.Events != nil},
		{"daily_digest", SpecDailyDigest, e.SendDigest, e.deps.Events != nil && e.deps.Notifier != nil},
	}
	for _, j := range jobs {
		if !j.on {
			continue
		}
		if err := e.addJob(ctx, j.name, j.spec, j.run); err != nil {
			return fmt.Errorf("scheduler.Start: %w", err)
		}
	}
	e.cron.Start()
	go func() {
		<-ctx.Done()
		<-e.cron.Stop().Done()
	}()
	return nil
}

func (e *Engine) addJob(ctx context.Context, name, spec string, run func(context.Context) error) error {
	entryID, err := e.cron.AddFunc(spec, func() {
		if err := run(ctx); err != nil {
			log.Printf("scheduler: %s: %v", name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler.addJob %s: parse cron: %w", name, err)
	}
	e.entries[name] = entryID
	e.specs[name] = spec
	return nil
}

// Jobs lists registered jobs with their next run time.
func (e *Engine) Jobs() []JobInfo {
	out := make([]JobInfo, 0, len(e.entries))
	for _, name := range []string{"expire_checkouts", "sweep_limiter", "prune_events", "daily_digest"} {
		id, ok := e.entries[name]
		if !ok {
			continue
		}
		out = append(out, JobInfo{Name: name, Spec: e.specs[name], Next: e.cron.Entry(id).Next})
	}
	return out
}

// ExpireCheckouts marks stale pending checkouts expired.
func (e *Engine) ExpireCheckouts(ctx context.Context) error {
	n, err := e.deps.Checkouts.ExpireStale(ctx, e.now())
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("scheduler: expired %d checkout(s)", n)
	}
	return nil
}

// SweepLimiter drops idle rate limiter buckets.
func (e *Engine) SweepLimiter(ctx context.Context) error {
	e.deps.Limiter.Sweep()
	return nil
}

// PruneEvents deletes analytics events past the retention window.
func (e *Engine) PruneEvents(ctx context.Context) error {
	cutoff := e.now().AddDate(0, 0, -e.deps.RetentionDays)
	n, err := e.deps.Events.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	log.Printf("scheduler: pruned %d event(s) older than %s", n, cutoff.Format("2006-01-02"))
	return nil
}

// SendDigest sends yesterday's activity summary unless the digest is paused
// or already went out today.
func (e *Engine) SendDigest(ctx context.Context) error {
	now := e.now().UTC()
	if e.database.GetSetting(db.SettingDigestEnabled, "1") != "1" {
		return nil
	}
	today := now.Format("2006-01-02")
	if e.database.GetSetting(db.SettingLastDigestAt, "") == today {
		return nil
	}

	rep, err := e.deps.Events.Summary(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return err
	}
	e.deps.Notifier.Send(notify.EventDailyDigest, map[string]interface{}{
		"estimates":         rep.Sessions,
		"blocked":           rep.Decisions["block"],
		"checkouts_started": rep.CheckoutsStarted,
		"checkouts_paid":    rep.CheckoutsPaid,
		"revenue_usd":       rep.RevenueUSD,
	})
	return e.database.SetSetting(db.SettingLastDigestAt, today)
}
