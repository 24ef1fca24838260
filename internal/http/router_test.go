package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/account/accounttest"
	"github.com/redmonkez12/todo-app/internal/auth"
	"github.com/redmonkez12/todo-app/internal/config"
	"github.com/redmonkez12/todo-app/internal/localcache"
	"github.com/redmonkez12/todo-app/internal/logging"
	"github.com/redmonkez12/todo-app/internal/metrics"
	"github.com/redmonkez12/todo-app/internal/ratelimit"
	"github.com/redmonkez12/todo-app/internal/rpc"
	"github.com/redmonkez12/todo-app/internal/todo"
)

func newTestRouter(t *testing.T, userRate rate.Limit, checks map[string]HealthCheck) *httptest.Server {
	t.Helper()

	cfg := &config.Config{Server: config.ServerConfig{Env: "prod", TrustedOrigins: []string{"https://app.test"}}}
	store := account.NewStore(accounttest.NewMemRepository(), accounttest.PlainHasher{}, nil, nil)
	paseto, err := auth.NewPasetoService(bytes.Repeat([]byte{9}, 32))
	if err != nil {
		t.Fatalf("NewPasetoService() error = %v", err)
	}

	guestDir := t.TempDir()
	caches := func(guestID string) *localcache.Cache {
		return localcache.New(localcache.NewFileStorage(filepath.Join(guestDir, guestID)))
	}

	service := auth.NewService(store, auth.NewMemoryRepository(), paseto, auth.NewGuestClaimer(store, caches, nil, nil), nil, time.Minute, time.Hour)
	limiter := ratelimit.NewUserLimiter(ratelimit.UserConfig{Rate: userRate, Burst: 1, CleanupInterval: time.Minute})
	t.Cleanup(limiter.Stop)

	reg := prometheus.NewRegistry()
	router := NewRouter(Deps{
		Config:         cfg,
		Logger:         logging.Discard(),
		Auth:           auth.NewHandler(service, nil, false, time.Minute, time.Hour),
		AuthMiddleware: auth.NewMiddleware(paseto),
		Guest:          auth.NewGuestHandler(caches, false, time.Hour),
		RPC:            rpc.NewHandler(store),
		UserLimiter:    limiter,
		Metrics:        metrics.NewCollector(reg),
		Gatherer:       reg,
		Checks:         checks,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestRouter_Health(t *testing.T) {
	srv := newTestRouter(t, rate.Inf, map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"redis":"unavailable"`) || !strings.Contains(string(body), `"database":"ok"`) {
		t.Errorf("body = %s", body)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestRouter_RPCRequiresAuth(t *testing.T) {
	srv := newTestRouter(t, rate.Inf, nil)

	resp, err := http.Post(srv.URL+"/rpc/todos.read", "application/json", strings.NewReader(`{"userId":"u"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRouter_EndToEnd(t *testing.T) {
	srv := newTestRouter(t, rate.Inf, nil)
	c := rpc.NewClient(srv.URL)
	ctx := context.Background()

	if _, err := c.Register(ctx, account.Credentials{Email: "x@y.com", Password: "abcdefgh"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := c.CreateTodo(ctx, todo.Draft{Title: "A", Description: "a", Priority: todo.PriorityMedium}); err != nil {
		t.Fatalf("CreateTodo() error = %v", err)
	}
	sess, err := c.Session(ctx)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if len(sess.TodoEntries) != 1 {
		t.Errorf("session entries = %d, want 1", len(sess.TodoEntries))
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `todo_http_responses_total{status_code="201"}`) {
		t.Errorf("metrics missing register response:\n%s", body)
	}
}

func TestRouter_UserRateLimit(t *testing.T) {
	srv := newTestRouter(t, rate.Every(time.Hour), nil)
	c := rpc.NewClient(srv.URL)
	ctx := context.Background()

	if _, err := c.Register(ctx, account.Credentials{Email: "x@y.com", Password: "abcdefgh"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := c.ReadTodos(ctx); err != nil {
		t.Fatalf("first ReadTodos() error = %v", err)
	}
	if _, err := c.ReadTodos(ctx); !errors.Is(err, rpc.ErrRateLimited) {
		t.Errorf("second ReadTodos() error = %v, want ErrRateLimited", err)
	}
}

func TestRouter_GuestEntriesIssueCookie(t *testing.T) {
	srv := newTestRouter(t, rate.Inf, nil)

	resp, err := http.Get(srv.URL + "/guest/entries")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	found := false
	for _, c := range resp.Cookies() {
		if c.Name == auth.GuestIDCookie && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("guest_id cookie not issued")
	}
}

func TestRouter_SwaggerOnlyInDevelopment(t *testing.T) {
	srv := newTestRouter(t, rate.Inf, nil)
	resp, err := http.Get(srv.URL + "/swagger/index.html")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 outside development", resp.StatusCode)
	}
}
