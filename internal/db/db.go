// Package db provides the SQLite database wrapper and model types for budgetguard.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps *sql.DB and provides migration support.
type DB struct {
	*sql.DB
}

// New opens a SQLite connection with WAL mode and foreign keys enabled.
// Driver name is "sqlite" (modernc.org/sqlite, not mattn/go-sqlite3).
func New(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("db.New: open: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("db.New: ping: %w", err)
	}
	// One connection serializes writers from concurrent requests.
	sqlDB.SetMaxOpenConns(1)
	return &DB{sqlDB}, nil
}

// Settings keys seeded by Migrate.
const (
	// SettingDigestEnabled is "1" while the daily digest is sent, "0" when paused.
	SettingDigestEnabled = "digest_enabled"
	// SettingLastDigestAt holds the UTC date (YYYY-MM-DD) of the last digest.
	SettingLastDigestAt  = "last_digest_at"
)

// Migrate runs all CREATE TABLE IF NOT EXISTS migrations exactly once per schema version.
func (d *DB) Migrate() error {
	if _, err := d.Exec(ddlSettings); err != nil {
		return fmt.Errorf("db.Migrate: settings table: %w", err)
	}

	// INSERT OR IGNORE keeps values an operator has already changed.
	defaults := []struct{ k, v string }{
		{SettingDigestEnabled, "1"},
		{SettingLastDigestAt, ""},
	}
	for _, s := range defaults {
		if _, err := d.Exec(`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, s.k, s.v); err != nil {
			return fmt.Errorf("db.Migrate: seed setting %q: %w", s.k, err)
		}
	}

	var version int
	row := d.QueryRow(`SELECT value FROM settings WHERE key='schema_version' LIMIT 1`)
	_ = row.Scan(&version) // Row is missing on a fresh database (version=0).

	if version >= schemaVersion {
		return nil
	}

	tables := []string{
		ddlSessions,
		ddlEvents,
		ddlEventsIndex,
		ddlCheckouts,
		ddlWebhooks,
	}
	for _, ddl := range tables {
		if _, err := d.Exec(ddl); err != nil {
			return fmt.Errorf("db.Migrate: %w", err)
		}
	}

	_, err := d.Exec(`INSERT INTO settings (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, schemaVersion)
	if err != nil {
		return fmt.Errorf("db.Migrate: schema_version upsert: %w", err)
	}
	return nil
}

const schemaVersion = 1

// ── Model Types ──────────────────────────────────────────────────────────────

// Session is the stored summary of one estimate.
type Session struct {
	ID             string    `json:"id"`
	Fingerprint    string    `json:"fingerprint"`
	Jobs           int       `json:"jobs"`
	Steps          int       `json:"steps"`
	MinutesPerRun  float64   `json:"minutes_per_run"`
	CostPerRunUSD  float64   `json:"cost_per_run_usd"`
	MonthlyRuns    int       `json:"monthly_runs"`
	MonthlyCostUSD float64   `json:"monthly_cost_usd"`
	BudgetUSD      float64   `json:"budget_usd"`
	PolicyMode     string    `json:"policy_mode"`
	Decision       string    `json:"decision"`
	ResultJSON     string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Event is one analytics event.
type Event struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	SessionID sql.NullString `json:"session_id,omitempty"`
	Props     string         `json:"props"`
	Day       string         `json:"day"`
	CreatedAt time.Time      `json:"created_at"`
}

// Checkout statuses.
const (
	CheckoutPending = "pending"
	CheckoutPaid    = "paid"
	CheckoutExpired = "expired"
)

// Checkout is a simulated purchase of a session's policy pack.
type Checkout struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Status    string       `json:"status"`
	PriceUSD  string       `json:"price_usd"`
	ExpiresAt time.Time    `json:"expires_at"`
	PaidAt    sql.NullTime `json:"paid_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Webhook defines an outbound webhook subscription.
type Webhook struct {
	ID         int          `json:"id"`
	Name       string       `json:"name"`
	URL        string       `json:"url"`
	Events     string       `json:"events"`
	Enabled    bool         `json:"enabled"`
	LastStatus int          `json:"last_status"`
	LastFired  sql.NullTime `json:"last_fired,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ── DDL Statements ───────────────────────────────────────────────────────────

const ddlSettings = `CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);`

const ddlSessions = `CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	fingerprint      TEXT    NOT NULL,
	jobs             INTEGER NOT NULL,
	steps            INTEGER NOT NULL,
	minutes_per_run  REAL    NOT NULL,
	cost_per_run_usd REAL    NOT NULL,
	monthly_runs     INTEGER NOT NULL,
	monthly_cost_usd REAL    NOT NULL,
	budget_usd       REAL    NOT NULL,
	policy_mode      TEXT    NOT NULL,
	decision         TEXT    NOT NULL,
	result_json      TEXT    NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL
);`

const ddlEvents = `CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	session_id TEXT,
	props      TEXT NOT NULL DEFAULT '{}',
	day        TEXT NOT NULL,
	created_at DATETIME NOT NULL
);`

const ddlEventsIndex = `CREATE INDEX IF NOT EXISTS idx_events_day_name ON events (day, name);`

const ddlCheckouts = `CREATE TABLE IF NOT EXISTS checkouts (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	status     TEXT NOT NULL DEFAULT 'pending',
	price_usd  TEXT NOT NULL,
	expires_at DATETIME NOT NULL,
	paid_at    DATETIME,
	created_at DATETIME NOT NULL
);`

const ddlWebhooks = `CREATE TABLE IF NOT EXISTS webhooks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT    NOT NULL,
	url         TEXT    NOT NULL,
	events      TEXT    NOT NULL DEFAULT '',
	enabled     INTEGER NOT NULL DEFAULT 1,
	last_status INTEGER NOT NULL DEFAULT 0,
	last_fired  DATETIME,
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);`

// ── Helpers ───────────────────────────────────────────────────────────────────

// GetSetting retrieves a settings value by key, returning fallback if not found.
func (d *DB) GetSetting(key, fallback string) string {
	var v string
	if err := d.QueryRow(`SELECT value FROM settings WHERE key=?`, key).Scan(&v); err != nil {
		return fallback
	}
	return v
}

// SetSetting upserts a settings key-value pair.
func (d *DB) SetSetting(key, value string) error {
	_, err := d.Exec(
		`INSERT INTO settings (key, value) VALUES (?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("db.SetSetting: %w", err)
	}
	return nil
}
