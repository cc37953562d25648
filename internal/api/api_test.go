package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manjussha/budgetguard/internal/analytics"
	"github.com/Manjussha/budgetguard/internal/billing"
	"github.com/Manjussha/budgetguard/internal/config"
	"github.com/Manjussha/budgetguard/internal/db"
	"github.com/Manjussha/budgetguard/internal/importer"
	"github.com/Manjussha/budgetguard/internal/limiter"
	"github.com/Manjussha/budgetguard/internal/notify"
	"github.com/Manjussha/budgetguard/internal/sessions"
	"github.com/Manjussha/budgetguard/internal/webhook"
	"github.com/Manjussha/budgetguard/internal/ws"
)

const overBudgetWorkflow = `name: ci
on: [push]
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - run: make test
  mac:
    runs-on: macos-latest
    steps:
      - run: xcodebuild
`

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newServer(t *testing.T, perMinute int) http.Handler {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate())

	cfg := &config.Config{MaxBodyBytes: 4 << 10}
	bill, err := billing.New(database, "api-test-secret", "19.00", 30*time.Minute)
	require.NoError(t, err)

	mux := http.NewServeMux()
	SetupRoutes(mux, &Deps{
		DB:        database,
		Config:    cfg,
		Sessions:  sessions.New(database),
		Analytics: analytics.New(database),
		Importer:  importer.New(importer.Options{Timeout: 2 * time.Second}),
		Billing:   bill,
		Hub:       ws.NewHub(),
		Notify:    notify.New(nil, nil),
		Webhook:   webhook.New(database, nil),
		Version:   "test",
	}, limiter.New(perMinute))
	return mux
}

func call(t *testing.T, h http.Handler, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "192.0.2.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

type estimateData struct {
	SessionID string `json:"sessionId"`
	Summary   struct {
		Jobs           int     `json:"jobs"`
		Steps          int     `json:"steps"`
		MinutesPerRun  float64 `json:"minutesPerRun"`
		CostPerRunUSD  float64 `json:"costPerRunUsd"`
		MonthlyCostUSD float64 `json:"monthlyCostUsd"`
		Decision       string  `json:"decision"`
	} `json:"summary"`
	ByOS []struct {
		RunnerOS string `json:"runnerOs"`
	} `json:"byOs"`
	Assumptions []string `json:"assumptions"`
	Snippet     string   `json:"snippet"`
}

func createEstimate(t *testing.T, h http.Handler) estimateData {
	t.Helper()
	code, env := call(t, h, http.MethodPost, "/api/v1/estimate", map[string]interface{}{
		"workflowYaml": overBudgetWorkflow,
		"monthlyRuns":  "300",
		"budgetUsd":    50,
		"policyMode":   "Block",
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	var data estimateData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data
}

func TestEstimate(t *testing.T) {
	h := newServer(t, 100)
	data := createEstimate(t, h)

	assert.NotEmpty(t, data.SessionID)
	assert.Equal(t, 2, data.Summary.Jobs)
	assert.Equal(t, 3, data.Summary.Steps)
	assert.Equal(t, 11.5, data.Summary.MinutesPerRun)
	// linux 6.5*0.008=0.052, macos 5*0.08=0.4
	assert.Equal(t, 0.45, data.Summary.CostPerRunUSD)
	assert.Equal(t, 135.0, data.Summary.MonthlyCostUSD)
	assert.Equal(t, "block", data.Summary.Decision)
	require.Len(t, data.ByOS, 2)
	assert.Equal(t, "linux", data.ByOS[0].RunnerOS)
	assert.NotEmpty(t, data.Assumptions)
	assert.Contains(t, data.Snippet, "decision: block")

	code, env := call(t, h, http.MethodGet, "/api/v1/sessions/"+data.SessionID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"decision":"block"`)

	code, env = call(t, h, http.MethodGet, "/api/v1/sessions?limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	var list []db.Session
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, data.SessionID, list[0].ID)
}

func TestEstimate_ValidationErrors(t *testing.T) {
	h := newServer(t, 100)
	cases := []struct {
		body map[string]interface{}
		kind string
	}{
		{map[string]interface{}{"workflowYaml": "  ", "monthlyRuns": 1, "budgetUsd": 1, "policyMode": "warn"}, "invalid_workflow_yaml"},
		{map[string]interface{}{"workflowYaml": "jobs:", "monthlyRuns": 0, "budgetUsd": 1, "policyMode": "warn"}, "invalid_monthly_runs"},
		{map[string]interface{}{"workflowYaml": "jobs:", "monthlyRuns": 1, "budgetUsd": "abc", "policyMode": "warn"}, "invalid_budget_usd"},
		{map[string]interface{}{"workflowYaml": "jobs:", "monthlyRuns": 1, "budgetUsd": 1, "policyMode": "deny"}, "invalid_policy_mode"},
	}
	for _, tc := range cases {
		code, env := call(t, h, http.MethodPost, "/api/v1/estimate", tc.body)
		assert.Equal(t, http.StatusBadRequest, code, tc.kind)
		assert.False(t, env.Success)
		assert.Equal(t, tc.kind, env.Error)
	}

	code, env := call(t, h, http.MethodGet, "/api/v1/metrics?days=1", nil)
	require.Equal(t, http.StatusOK, code)
	var metrics struct {
		Summary analytics.Report `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &metrics))
	assert.Equal(t, 4, metrics.Summary.Events[analytics.EstimateFailed])
	assert.Zero(t, metrics.Summary.Sessions)
}

func TestEstimate_MalformedAndOversized(t *testing.T) {
	h := newServer(t, 100)

	code, env := call(t, h, http.MethodPost, "/api/v1/estimate", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_json", env.Error)

	big := map[string]interface{}{"workflowYaml": strings.Repeat("x", 8<<10), "monthlyRuns": 1, "budgetUsd": 1, "policyMode": "warn"}
	code, env = call(t, h, http.MethodPost, "/api/v1/estimate", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, "body_too_large", env.Error)
}

func TestEstimate_RateLimited(t *testing.T) {
	h := newServer(t, 1)
	createEstimate(t, h)

	code, env := call(t, h, http.MethodPost, "/api/v1/estimate", map[string]interface{}{})
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limited", env.Error)

	code, _ = call(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestSession_NotFound(t *testing.T) {
	h := newServer(t, 100)
	code, env := call(t, h, http.MethodGet, "/api/v1/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "session_not_found", env.Error)
}

func TestCheckoutAndExport(t *testing.T) {
	h := newServer(t, 100)
	sessionID := createEstimate(t, h).SessionID

	code, env := call(t, h, http.MethodPost, "/api/v1/checkout", map[string]string{"sessionId": "missing"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "session_not_found", env.Error)

	code, env = call(t, h, http.MethodPost, "/api/v1/checkout", map[string]string{"sessionId": sessionID})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var started struct {
		Checkout db.Checkout `json:"checkout"`
		PayURL   string      `json:"pay_url"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &started))
	checkoutID := started.Checkout.ID
	assert.Equal(t, "19.00", started.Checkout.PriceUSD)
	assert.Equal(t, "/api/v1/checkout/"+checkoutID+"/pay", started.PayURL)

	exportPath := "/api/v1/export/" + sessionID + "?checkout=" + checkoutID
	code, env = call(t, h, http.MethodGet, exportPath, nil)
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "payment_required", env.Error)

	code, env = call(t, h, http.MethodGet, started.PayURL, nil)
	require.Equal(t, http.StatusOK, code)
	var paid struct {
		Proof string `json:"proof"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &paid))
	assert.True(t, strings.HasPrefix(paid.Proof, "pp_"))

	confirmPath := "/api/v1/checkout/" + checkoutID + "/confirm"
	code, env = call(t, h, http.MethodPost, confirmPath, map[string]string{"proof": "pp_forged"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_proof", env.Error)

	code, env = call(t, h, http.MethodPost, confirmPath, map[string]string{"proof": paid.Proof})
	require.Equal(t, http.StatusOK, code, env.Error)
	code, _ = call(t, h, http.MethodPost, confirmPath, map[string]string{"proof": paid.Proof})
	require.Equal(t, http.StatusOK, code)

	code, env = call(t, h, http.MethodGet, exportPath, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var pack struct {
		SessionID string `json:"session_id"`
		Files     []struct {
			Path string `json:"path"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &pack))
	assert.Equal(t, sessionID, pack.SessionID)
	assert.Len(t, pack.Files, 4)

	code, env = call(t, h, http.MethodGet, "/api/v1/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	var metrics struct {
		Summary analytics.Report `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &metrics))
	assert.Equal(t, 1, metrics.Summary.CheckoutsPaid)
	assert.Equal(t, 1, metrics.Summary.Events[analytics.CheckoutPaid])
	assert.Equal(t, 1, metrics.Summary.Events[analytics.PackExported])
	assert.Equal(t, "19.00", metrics.Summary.RevenueUSD)
}

func TestCheckout_ConcurrentConfirmTracksOnce(t *testing.T) {
	h := newServer(t, 100)
	sessionID := createEstimate(t, h).SessionID

	code, env := call(t, h, http.MethodPost, "/api/v1/checkout", map[string]string{"sessionId": sessionID})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var started struct {
		Checkout db.Checkout `json:"checkout"`
		PayURL   string      `json:"pay_url"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &started))
	code, env = call(t, h, http.MethodGet, started.PayURL, nil)
	require.Equal(t, http.StatusOK, code)
	var paid struct {
		Proof string `json:"proof"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &paid))

	body, err := json.Marshal(map[string]string{"proof": paid.Proof})
	require.NoError(t, err)
	confirmPath := "/api/v1/checkout/" + started.Checkout.ID + "/confirm"

	const callers = 6
	codes := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, confirmPath, bytes.NewReader(body))
			req.RemoteAddr = "192.0.2.1:5555"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()
	for _, c := range codes {
		assert.Equal(t, http.StatusOK, c)
	}

	code, env = call(t, h, http.MethodGet, "/api/v1/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	var metrics struct {
		Summary analytics.Report `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &metrics))
	assert.Equal(t, 1, metrics.Summary.Events[analytics.CheckoutPaid])
}

func TestCheckout_Unknown(t *testing.T) {
	h := newServer(t, 100)
	code, env := call(t, h, http.MethodGet, "/api/v1/checkout/nope/pay", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "checkout_not_found", env.Error)
}

func TestImport(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ci.yml" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(overBudgetWorkflow))
	}))
	defer upstream.Close()
	h := newServer(t, 100)

	code, env := call(t, h, http.MethodPost, "/api/v1/import", map[string]string{"url": upstream.URL + "/ci.yml"})
	require.Equal(t, http.StatusOK, code, env.Error)
	var data struct {
		WorkflowYAML string `json:"workflowYaml"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, overBudgetWorkflow, data.WorkflowYAML)

	code, env = call(t, h, http.MethodPost, "/api/v1/import", map[string]string{"url": upstream.URL + "/missing.yml"})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "upstream_error", env.Error)

	code, env = call(t, h, http.MethodPost, "/api/v1/import", map[string]string{"url": "ftp://example.com/ci.yml"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bad_url", env.Error)
}

func TestEvents(t *testing.T) {
	h := newServer(t, 100)

	code, env := call(t, h, http.MethodPost, "/api/v1/events", map[string]interface{}{"name": "snippet_copied"})
	assert.Equal(t, http.StatusCreated, code, env.Error)

	code, env = call(t, h, http.MethodPost, "/api/v1/events", map[string]interface{}{"name": "drop_tables"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "unknown_event", env.Error)
}

func TestWebhooksCRUD(t *testing.T) {
	h := newServer(t, 100)

	code, env := call(t, h, http.MethodPost, "/api/v1/webhooks", map[string]string{"name": "ops", "url": "https://hooks.example.com/x"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var created db.Webhook
	require.NoError(t, json.Unmarshal(env.Data, &created))

	code, env = call(t, h, http.MethodGet, "/api/v1/webhooks", nil)
	require.Equal(t, http.StatusOK, code)
	var list []db.Webhook
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "ops", list[0].Name)

	path := "/api/v1/webhooks/" + jsonNumber(created.ID)
	code, _ = call(t, h, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = call(t, h, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSettings(t *testing.T) {
	h := newServer(t, 100)

	code, _ := call(t, h, http.MethodPut, "/api/v1/settings/"+db.SettingDigestEnabled, map[string]string{"value": "0"})
	assert.Equal(t, http.StatusOK, code)
	code, _ = call(t, h, http.MethodPut, "/api/v1/settings/"+db.SettingLastDigestAt, map[string]string{"value": "0"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, h, http.MethodPut, "/api/v1/settings/schema_version", map[string]string{"value": "0"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := call(t, h, http.MethodGet, "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, code)
	var settings map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &settings))
	assert.Equal(t, "0", settings[db.SettingDigestEnabled])
	assert.NotContains(t, string(env.Data), "schema_version")
}

func TestHealth(t *testing.T) {
	h := newServer(t, 100)
	code, env := call(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"status":"ok"`)
	assert.Contains(t, string(env.Data), `"version":"test"`)
}

func jsonNumber(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
