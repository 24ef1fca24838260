package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/account/accounttest"
	"github.com/redmonkez12/todo-app/internal/auth"
	appconfig "github.com/redmonkez12/todo-app/internal/config"
	httpServer "github.com/redmonkez12/todo-app/internal/http"
	"github.com/redmonkez12/todo-app/internal/logging"
	"github.com/redmonkez12/todo-app/internal/rpc"
	"github.com/redmonkez12/todo-app/internal/todo"
)

func TestParseDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2026-03-12", time.Date(2026, 3, 12, 23, 59, 0, 0, time.UTC), false},
		{"2026-03-12 08:30", time.Date(2026, 3, 12, 8, 30, 0, 0, time.UTC), false},
		{"2026-03-12T08:30:00Z", time.Date(2026, 3, 12, 8, 30, 0, 0, time.UTC), false},
		{"3d", now.AddDate(0, 0, 3), false},
		{"90m", now.Add(90 * time.Minute), false},
		{"next tuesday", time.Time{}, true},
		{"-2d", time.Time{}, true},
	}

	for _, tt := range tests {
		got, err := parseDue(tt.in, now)
		if tt.wantErr {
			if !errors.Is(err, errBadDue) {
				t.Errorf("parseDue(%q) error = %v, want errBadDue", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDue(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want.UnixMilli() {
			t.Errorf("parseDue(%q) = %v, want %v", tt.in, time.UnixMilli(got).UTC(), tt.want)
		}
	}
}

func TestParsePriority(t *testing.T) {
	if p, err := parsePriority(" HIGH "); err != nil || p != todo.PriorityHigh {
		t.Errorf("parsePriority(HIGH) = %q, %v", p, err)
	}
	if _, err := parsePriority("urgent"); err == nil {
		t.Error("parsePriority(urgent) should fail")
	}
}

func TestResolveID(t *testing.T) {
	list := []todo.Entry{{ID: "abc123"}, {ID: "abd456"}, {ID: "ab"}}

	tests := []struct {
		ref     string
		want    string
		wantErr error
	}{
		{"abc", "abc123", nil},
		{"ab", "ab", nil},
		{"abd456", "abd456", nil},
		{"a", "", errAmbiguous},
		{"zzz", "", errNoMatch},
	}
	for _, tt := range tests {
		got, err := resolveID(list, tt.ref)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("resolveID(%q) error = %v, want %v", tt.ref, err, tt.wantErr)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("resolveID(%q) = %q, %v; want %q", tt.ref, got, err, tt.want)
		}
	}
}

func TestPatchFromFlags(t *testing.T) {
	cmd := editCmd(func() *app { return nil })
	if err := cmd.ParseFlags([]string{"--title", "new", "--due", "none"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	p, err := patchFromFlags(cmd, time.Now())
	if err != nil {
		t.Fatalf("patchFromFlags() error = %v", err)
	}
	if p.Title == nil || *p.Title != "new" || !p.ClearDueDate {
		t.Errorf("patch = %+v", p)
	}
	if p.Description != nil || p.Priority != nil || p.Completed != nil {
		t.Errorf("unset flags leaked into patch: %+v", p)
	}
}

func TestDraftFromFlags(t *testing.T) {
	cmd := addCmd(func() *app { return nil })
	if err := cmd.ParseFlags([]string{"-p", "low", "--due", "1h"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	now := time.Now()
	d, err := draftFromFlags(cmd, []string{"title"}, now)
	if err != nil {
		t.Fatalf("draftFromFlags() error = %v", err)
	}
	if d.Title != "title" || d.Priority != todo.PriorityLow || d.DueDate == nil || *d.DueDate != now.Add(time.Hour).UnixMilli() {
		t.Errorf("draft = %+v", d)
	}
}

func newTestServer(t *testing.T) string {
	t.Helper()
	store := account.NewStore(accounttest.NewMemRepository(), accounttest.PlainHasher{}, nil, nil)
	paseto, err := auth.NewPasetoService(bytes.Repeat([]byte{5}, 32))
	if err != nil {
		t.Fatalf("NewPasetoService() error = %v", err)
	}
	service := auth.NewService(store, auth.NewMemoryRepository(), paseto, nil, nil, time.Minute, time.Hour)

	router := httpServer.NewRouter(httpServer.Deps{
		Config:         &appconfig.Config{Server: appconfig.ServerConfig{Env: "prod"}},
		Logger:         logging.Discard(),
		Auth:           auth.NewHandler(service, nil, false, time.Minute, time.Hour),
		AuthMiddleware: auth.NewMiddleware(paseto),
		RPC:            rpc.NewHandler(store),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv.URL
}

func newTestApp(t *testing.T, apiURL, home string) *app {
	t.Helper()
	a, err := newApp(&config{APIURL: apiURL, Home: home, Timeout: 5 * time.Second}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestApp_GuestEntriesMoveOnSignUp(t *testing.T) {
	apiURL := newTestServer(t)
	home := t.TempDir()
	ctx := context.Background()

	a := newTestApp(t, apiURL, home)
	repo, err := a.repository(ctx)
	if err != nil {
		t.Fatalf("repository() error = %v", err)
	}
	for _, title := range []string{"A", "B"} {
		if _, err := repo.Create(ctx, todo.Draft{Title: title, Description: title, Priority: todo.PriorityLow}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	sess, err := a.authenticate(ctx, account.Credentials{Email: "x@y.com", Password: "abcdefgh"}, true)
	if err != nil {
		t.Fatalf("authenticate() error = %v", err)
	}
	if sess.IsNewUser || len(sess.TodoEntries) != 2 {
		t.Errorf("session = %+v", sess)
	}
	if guest, _ := a.local.Read(ctx); len(guest) != 0 {
		t.Errorf("guest cache holds %d entries after sign-up", len(guest))
	}

	// a later run picks the stored session back up
	b := newTestApp(t, apiURL, home)
	if !b.loggedIn() || b.state.Session.IsNewUser {
		t.Fatalf("reloaded state = %+v", b.state)
	}
	remote, err := b.repository(ctx)
	if err != nil {
		t.Fatalf("repository() error = %v", err)
	}
	list, err := remote.List(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("List() = %+v, %v", list, err)
	}

	if err := b.logout(ctx); err != nil {
		t.Fatalf("logout() error = %v", err)
	}
	c := newTestApp(t, apiURL, home)
	if c.loggedIn() {
		t.Error("still logged in after logout")
	}
}

func TestApp_LoginExistingUserKeepsGuestEntries(t *testing.T) {
	apiURL := newTestServer(t)
	ctx := context.Background()

	first := newTestApp(t, apiURL, t.TempDir())
	if _, err := first.authenticate(ctx, account.Credentials{Email: "x@y.com", Password: "abcdefgh"}, true); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	a := newTestApp(t, apiURL, t.TempDir())
	local, _ := a.repository(ctx)
	if _, err := local.Create(ctx, todo.Draft{Title: "A", Description: "a", Priority: todo.PriorityLow}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	sess, err := a.authenticate(ctx, account.Credentials{Email: "x@y.com", Password: "abcdefgh"}, false)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if len(sess.TodoEntries) != 0 {
		t.Errorf("existing account received guest entries: %+v", sess.TodoEntries)
	}
	if guest, _ := a.local.Read(ctx); len(guest) != 1 {
		t.Errorf("guest cache holds %d entries, want 1", len(guest))
	}
}

func TestDescribe(t *testing.T) {
	if got := describe(account.ErrIncorrectPassword); got != "incorrect password" {
		t.Errorf("describe() = %q", got)
	}
	if got := describe(errors.New("boom")); got != "boom" {
		t.Errorf("describe() = %q", got)
	}
}
