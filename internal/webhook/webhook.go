// Package webhook fires outbound webhook events to registered URLs.
package webhook

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Manjussha/budgetguard/internal/db"
)

// ErrNotFound is returned when no webhook has the requested id.
var ErrNotFound = errors.New("webhook not found")

// Dispatcher fires webhooks stored in the database and those named in config.
type Dispatcher struct {
	database *db.DB
	static   []string
	client   *http.Client
	delays   []time.Duration
	wg       sync.WaitGroup
}

// New creates a Dispatcher with a default HTTP client. staticURLs receive
// every event.
func New(database *db.DB, staticURLs []string) *Dispatcher {
	return &Dispatcher{
		database: database,
		static:   staticURLs,
		client:   &http.Client{Timeout: 10 * time.Second},
		delays:   []time.Duration{0, 500 * time.Millisecond, time.Second},
	}
}

// Payload is the JSON body sent to webhook URLs.
type Payload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type target struct {
	id  int
	url string
}

// Fire sends an event to the configured URLs and all matching enabled
// webhooks. Each delivery is tried up to 3 times with backoff.
func (d *Dispatcher) Fire(event string, data interface{}) {
	body, err := json.Marshal(Payload{Event: event, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		log.Printf("webhook.Fire: marshal: %v", err)
		return
	}

	var targets []target
	for _, u := range d.static {
		targets = append(targets, target{url: u})
	}
	if d.database != nil {
		rows, err := d.database.Query(`SELECT id, url, events FROM webhooks WHERE enabled=1`)
		if err != nil {
			log.Printf("webhook.Fire: query: %v", err)
		} else {
			for rows.Next() {
				var t target
				var events string
				if err := rows.Scan(&t.id, &t.url, &events); err != nil {
					continue
				}
				if events != "" && !matchesEvent(events, event) {
					continue
				}
				targets = append(targets, t)
			}
			rows.Close()
		}
	}

	for _, t := range targets {
		d.wg.Add(1)
		go func(t target) {
			defer d.wg.Done()
			d.fireOne(t, body)
		}(t)
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) fireOne(t target, body []byte) {
	var lastStatus int
	for i, delay := range d.delays {
		if delay > 0 {
			time.Sleep(delay)
		}
		status, err := d.post(t.url, body)
		lastStatus = status
		if err == nil && status < 400 {
			break
		}
		log.Printf("webhook.fireOne: attempt %d to %s: status=%d err=%v", i+1, t.url, status, err)
	}
	if t.id == 0 || d.database == nil {
		return
	}
	_, _ = d.database.Exec(
		`UPDATE webhooks SET last_status=?, last_fired=? WHERE id=?`,
		lastStatus, time.Now().UTC(), t.id,
	)
}

func (d *Dispatcher) post(url string, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("webhook.post: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "budgetguard-webhook")
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook.post: do: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func matchesEvent(events, event string) bool {
	for _, e := range strings.Split(events, ",") {
		if strings.TrimSpace(e) == event {
			return true
		}
	}
	return false
}

// ── Subscriptions ────────────────────────────────────────────────────────────

// List returns all stored webhooks.
func (d *Dispatcher) List(ctx context.Context) ([]db.Webhook, error) {
	rows, err := d.database.QueryContext(ctx,
		`SELECT id, name, url, events, enabled, last_status, last_fired, created_at FROM webhooks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("webhook.List: %w", err)
	}
	defer rows.Close()

	list := []db.Webhook{}
	for rows.Next() {
		var w db.Webhook
		var created sql.NullTime
		if err := rows.Scan(&w.ID, &w.Name, &w.URL, &w.Events, &w.Enabled,
			&w.LastStatus, &w.LastFired, &created); err != nil {
			return nil, fmt.Errorf("webhook.List: %w", err)
		}
		w.CreatedAt = created.Time
		list = append(list, w)
	}
	return list, rows.Err()
}

// Create stores a subscription. events is a comma-separated filter; empty
// means every event.
func (d *Dispatcher) Create(ctx context.Context, name, rawURL, events string) (*db.Webhook, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("webhook.Create: invalid url %q", rawURL)
	}
	if strings.TrimSpace(name) == "" {
		name = u.Host
	}
	now := time.Now().UTC()
	res, err := d.database.ExecContext(ctx,
		`INSERT INTO webhooks (name, url, events, enabled, created_at) VALUES (?,?,?,1,?)`,
		name, rawURL, events, now)
	if err != nil {
		return nil, fmt.Errorf("webhook.Create: %w", err)
	}
	id, _ := res.LastInsertId()
	return &db.Webhook{ID: int(id), Name: name, URL: rawURL, Events: events, Enabled: true, CreatedAt: now}, nil
}

// Delete removes a subscription.
func (d *Dispatcher) Delete(ctx context.Context, id int) error {
	res, err := d.database.ExecContext(ctx, `DELETE FROM webhooks WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("webhook.Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TestWebhook fires a test payload to a single webhook by ID.
func (d *Dispatcher) TestWebhook(ctx context.Context, id int) error {
	var url string
	err := d.database.QueryRowContext(ctx, `SELECT url FROM webhooks WHERE id=?`, id).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("webhook.TestWebhook: %w", err)
	}
	body, _ := json.Marshal(Payload{
		Event:     "webhook.test",
		Timestamp: time.Now().UTC(),
		Data:      map[string]string{"message": "This is a test from BudgetGuard"},
	})
	status, err := d.post(url, body)
	if err != nil {
		return fmt.Errorf("webhook.TestWebhook: post: %w", err)
	}
	if status >= 400 {
		return fmt.Errorf("webhook.TestWebhook: server returned %d", status)
	}
	return nil
}
