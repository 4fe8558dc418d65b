package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"despesas/internal/core"
	"despesas/internal/feed"
	"despesas/internal/metrics"
	"despesas/internal/services"
	"despesas/internal/storage/memory"
)

const testToken = "0123456789abcdef-token"

var fixedNow = time.Date(2024, time.February, 15, 10, 0, 0, 0, time.UTC)

func seedRecords() []core.Expense {
	return []core.Expense{
		{ID: "r1", Amount: core.Money{Cents: 1250}, Description: "Feira", Category: "Mercado",
			Date: core.NewDate(2024, 2, 10), UserID: "u1", UserName: "Claudio", CreatedAt: fixedNow},
		{ID: "r2", Amount: core.Money{Cents: 750}, Description: "Cinema", Category: "Lazer",
			Date: core.NewDate(2024, 2, 3), UserID: "u2", UserName: "Giovanna", CreatedAt: fixedNow},
		{ID: "r3", Amount: core.Money{Cents: 10000}, Description: "Compras do mês", Category: "Mercado",
			Date: core.NewDate(2024, 1, 20), UserID: "u1", UserName: "Claudio", CreatedAt: fixedNow},
	}
}

type testEnv struct {
	srv   *Server
	store *memory.Store
	hub   *feed.Hub
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	store := memory.NewSeeded(seedRecords())
	hub := feed.NewHub(store, nil)
	svc := services.NewExpenseService(store, nil, services.WithNotifier(hub))

	cfg := Config{
		APIToken:           testToken,
		RateLimitPerMinute: 600,
		Location:           time.UTC,
		Clock:              func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := NewServer(cfg, Deps{
		Expenses: svc,
		Feed:     hub,
		Metrics:  metrics.New(),
		Ready:    func(context.Context) error { return nil },
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		env.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
		assert.True(t, strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_"))
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "trace-42")
	env.srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, "trace-42", rr.Header().Get("X-Request-ID"))
}

func TestReadyReportsStoreFailure(t *testing.T) {
	store := memory.New()
	srv := NewServer(Config{}, Deps{
		Expenses: services.NewExpenseService(store, nil),
		Ready:    func(context.Context) error { return assert.AnError },
	})
	defer srv.Shutdown(context.Background())

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "not_ready")
}

func TestAPITokenRequired(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusForbidden},
		{name: "wrong", header: "Bearer nope", want: http.StatusForbidden},
		{name: "wrong scheme", header: "Basic " + testToken, want: http.StatusForbidden},
		{name: "valid", header: "Bearer " + testToken, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			env.srv.Handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestListExpenses(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/expenses", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var got []core.Expense
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, []string{"r1", "r2", "r3"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, int64(1250), got[0].Amount.Cents)
}

func TestCreateExpense(t *testing.T) {
	env := newTestEnv(t, nil)

	body := `{"amount":"42.10","description":"  Padaria\u0007 ","category":"Mercado","date":"2024-02-14","userId":"u3","userName":"Tailma"}`
	rr := env.do(t, http.MethodPost, "/api/expenses", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created createdResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "/api/expenses/"+created.ID, rr.Header().Get("Location"))

	got, err := env.store.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4210), got.Amount.Cents)
	assert.Equal(t, "Padaria", got.Description)
	assert.Equal(t, "Tailma", got.UserName)
}

func TestCreateExpenseRejectsUndecodableBody(t *testing.T) {
	env := newTestEnv(t, nil)

	for name, body := range map[string]string{
		"malformed":    `{"amount":`,
		"bad amount":   `{"amount":"abc"}`,
		"two docs":     `{} {}`,
		"empty object": ``,
	} {
		t.Run(name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/expenses", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}

	records, err := env.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestPatchExpense(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPatch, "/api/expenses/r2", `{"amount":"9.99","category":"Outros"}`)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	got, err := env.store.Get(context.Background(), "r2")
	require.NoError(t, err)
	assert.Equal(t, int64(999), got.Amount.Cents)
	assert.Equal(t, "Outros", got.Category)
	assert.Equal(t, "Cinema", got.Description)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPatch, "/api/expenses/nope", `{"amount":"1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPatch, "/api/expenses/r2", `{}`).Code)
}

func TestDeleteExpense(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/expenses/r1", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/expenses/r1", "").Code)

	records, err := env.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRateLimitOnMutations(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.RateLimitPerMinute = 6 })

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/expenses/r1", "").Code)

	rr := env.do(t, http.MethodDelete, "/api/expenses/r2", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// Reads are not limited.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/expenses", "").Code)
	}
}

type dashboardBody struct {
	Mode       core.ViewMode      `json:"mode"`
	Month      string             `json:"month"`
	Total      core.Money         `json:"total"`
	Categories []core.NamedAmount `json:"categories"`
	People     []core.NamedAmount `json:"people"`
	History    core.History       `json:"history"`
	Colors     map[string]string  `json:"colors"`
	Records    int                `json:"records"`
	Version    uint64             `json:"version"`
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var month dashboardBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &month))
	assert.Equal(t, core.CurrentMonth, month.Mode)
	assert.Equal(t, "2024-02", month.Month)
	assert.Equal(t, int64(2000), month.Total.Cents)
	assert.Equal(t, 2, month.Records)
	require.Len(t, month.History.Months, core.HistoryMonths)
	assert.Equal(t, "2023-03", month.History.Months[0].String())
	assert.Equal(t, "2024-02", month.History.Months[core.HistoryMonths-1].String())
	assert.NotEmpty(t, month.Colors["Mercado"])

	rr = env.do(t, http.MethodGet, "/api/dashboard?mode=all", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var all dashboardBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &all))
	assert.Equal(t, int64(12000), all.Total.Cents)
	require.NotEmpty(t, all.Categories)
	assert.Equal(t, "Mercado", all.Categories[0].Name)
	assert.Equal(t, int64(11250), all.Categories[0].Amount.Cents)

	before := env.srv.dashboard.Stats().Hits
	env.do(t, http.MethodGet, "/api/dashboard?mode=all", "")
	assert.Equal(t, before+1, env.srv.dashboard.Stats().Hits)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/dashboard?mode=weekly", "").Code)
}

func TestDashboardFollowsNewSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/dashboard", "")

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/expenses/r1", "").Code)
	env.hub.Refresh(context.Background())

	rr := env.do(t, http.MethodGet, "/api/dashboard", "")
	var got dashboardBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, int64(750), got.Total.Cents)
	assert.Equal(t, uint64(2), got.Version)
}

func TestExport(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="despesas-2024-02.csv"`, rr.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Date,Description,Person,Category,Amount", lines[0])
	assert.Equal(t, "2024-02-10,Feira,Claudio,Mercado,12.50", lines[1])

	rr = env.do(t, http.MethodGet, "/api/export?mode=all", "")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "despesas-todas.csv")
	assert.Len(t, strings.Split(strings.TrimSpace(rr.Body.String()), "\n"), 4)
}

func TestCatalog(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/catalog", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var got catalogResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Len(t, got.Users, 4)
	assert.Len(t, got.Categories, 15)
	assert.Equal(t, "#94a3b8", got.FallbackColor)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/expenses", "")

	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "despesas_http_requests_total")
}

func TestFeedWebsocket(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = env.hub.Run(ctx) }()

	ts := httptest.NewServer(env.srv.Handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/feed?collection=expenses&order=date_desc"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+testToken)

	_, resp, err = websocket.DefaultDialer.Dial(strings.Replace(url, "collection=expenses", "collection=incomes", 1), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg feed.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, feed.MessageSnapshot, msg.Type)
	assert.Len(t, msg.Records, 3)
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{name: "direct", remote: "203.0.113.7:5000", want: "203.0.113.7"},
		{name: "untrusted proxy ignores headers", remote: "203.0.113.7:5000", xff: "198.51.100.1", want: "203.0.113.7"},
		{name: "trusted proxy forwards", remote: "10.0.0.2:5000", xff: "198.51.100.1, 10.0.0.2", want: "198.51.100.1"},
		{name: "trusted proxy real ip", remote: "127.0.0.1:5000", xri: "198.51.100.9", want: "198.51.100.9"},
		{name: "garbage forwarded", remote: "127.0.0.1:5000", xff: "not-an-ip", want: "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, extractClientIP(req))
		})
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	m := &securityMetrics{}
	assert.True(t, detectSuspiciousRequest(httptest.NewRequest(http.MethodGet, "/.env", nil), m))
	assert.False(t, detectSuspiciousRequest(httptest.NewRequest(http.MethodGet, "/api/expenses", nil), m))
	assert.Equal(t, int64(1), m.snapshot()["suspicious_requests"])
}
