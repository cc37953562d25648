// Package sessions persists estimate summaries so results can be shared,
// reloaded and exported later.
package sessions

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/Manjussha/budgetguard/internal/db"
	"github.com/Manjussha/budgetguard/internal/estimator"
)

// ErrNotFound is returned when no session has the requested id.
var ErrNotFound = errors.New("session not found")

// Store reads and writes the sessions table.
type Store struct {
	database *db.DB
}

// New creates a Store.
func New(database *db.DB) *Store {
	return &Store{database: database}
}

// Fingerprint identifies a workflow text without storing it.
func Fingerprint(workflow string) string {
	sum := blake2b.Sum256([]byte(workflow))
	return hex.EncodeToString(sum[:])
}

// Save records the summary of an estimate and returns the stored session.
func (s *Store) Save(ctx context.Context, in estimator.Input, res estimator.Result) (*db.Session, error) {
	body, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("sessions.Save: marshal result: %w", err)
	}
	sum := res.Summary
	sess := &db.Session{
		ID:             uuid.NewString(),
		Fingerprint:    Fingerprint(in.WorkflowYAML),
		Jobs:           sum.Jobs,
		Steps:          sum.Steps,
		MinutesPerRun:  sum.MinutesPerRun,
		CostPerRunUSD:  sum.CostPerRunUSD,
		MonthlyRuns:    sum.MonthlyRuns,
		MonthlyCostUSD: sum.MonthlyCostUSD,
		BudgetUSD:      sum.BudgetUSD,
		PolicyMode:     string(sum.PolicyMode),
		Decision:       string(sum.Decision),
		ResultJSON:     string(body),
		CreatedAt:      time.Now().UTC(),
	}
	_, err = s.database.ExecContext(ctx, `
		INSERT INTO sessions (id, fingerprint, jobs, steps, minutes_per_run, cost_per_run_usd,
		                      monthly_runs, monthly_cost_usd, budget_usd, policy_mode, decision,
		                      result_json, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sess.ID, sess.Fingerprint, sess.Jobs, sess.Steps, sess.MinutesPerRun, sess.CostPerRunUSD,
		sess.MonthlyRuns, sess.MonthlyCostUSD, sess.BudgetUSD, sess.PolicyMode, sess.Decision,
		sess.ResultJSON, sess.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("sessions.Save: %w", err)
	}
	return sess, nil
}

const selectColumns = `SELECT id, fingerprint, jobs, steps, minutes_per_run, cost_per_run_usd,
	       monthly_runs, monthly_cost_usd, budget_usd, policy_mode, decision,
	       result_json, created_at
	FROM sessions`

// Get fetches a session by id.
func (s *Store) Get(ctx context.Context, id string) (*db.Session, error) {
	row := s.database.QueryRowContext(ctx, selectColumns+` WHERE id=?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions.Get: %w", err)
	}
	return sess, nil
}

// Recent returns the newest sessions first.
func (s *Store) Recent(ctx context.Context, limit int) ([]db.Session, error) {
	rows, err := s.database.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sessions.Recent: %w", err)
	}
	defer rows.Close()

	var out []db.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sessions.Recent: %w", err)
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// Result decodes the full estimate stored with a session.
func Result(sess *db.Session) (estimator.Result, error) {
	var res estimator.Result
	if err := json.Unmarshal([]byte(sess.ResultJSON), &res); err != nil {
		return estimator.Result{}, fmt.Errorf("sessions.Result: %w", err)
	}
	return res, nil
}

func scanSession(row interface{ Scan(...interface{}) error }) (*db.Session, error) {
	var sess db.Session
	err := row.Scan(
		&sess.ID, &sess.Fingerprint, &sess.Jobs, &sess.Steps, &sess.MinutesPerRun, &sess.CostPerRunUSD,
		&sess.MonthlyRuns, &sess.MonthlyCostUSD, &sess.BudgetUSD, &sess.PolicyMode, &sess.Decision,
		&sess.ResultJSON, &sess.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
