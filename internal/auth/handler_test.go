package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/todo-app/internal/httputil"
	"github.com/redmonkez12/todo-app/internal/localcache"
	"github.com/redmonkez12/todo-app/internal/session"
	"github.com/redmonkez12/todo-app/internal/todo"
)

func newTestHandler(env *testEnv) *Handler {
	return NewHandler(env.service, nil, false, 15*time.Minute, 24*time.Hour)
}

func postJSON(h http.HandlerFunc, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestHandler_Register(t *testing.T) {
	env := newTestEnv(t)
	h := newTestHandler(env)

	rec := postJSON(h.Register, "/auth/register", `{"email":"x@y.com","password":"abcdefgh"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp AuthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Tokens == nil || resp.Tokens.AccessToken == "" || resp.Tokens.TokenType != "Bearer" {
		t.Errorf("tokens = %+v", resp.Tokens)
	}
	if !resp.Session.IsNewUser || resp.Session.TodoEntries == nil {
		t.Errorf("session = %+v", resp.Session)
	}

	rec = postJSON(h.Register, "/auth/register", `{"email":"x@y.com","password":"abcdefgh"}`)
	if rec.Code != http.StatusConflict || decodeError(t, rec).Code != httputil.CodeUserExists {
		t.Errorf("duplicate register status = %d", rec.Code)
	}
}

func TestHandler_RegisterValidation(t *testing.T) {
	h := newTestHandler(newTestEnv(t))

	tests := []struct {
		body string
		code string
	}{
		{`{"email":"","password":"abcdefgh"}`, httputil.CodeEmailRequired},
		{`{"email":"nope","password":"abcdefgh"}`, httputil.CodeInvalidEmailFormat},
		{`{"email":"x@y.com","password":"short"}`, httputil.CodePasswordTooShort},
		{`{not json`, httputil.CodeInvalidRequestBody},
	}
	for _, tt := range tests {
		rec := postJSON(h.Register, "/auth/register", tt.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.body, rec.Code)
			continue
		}
		if got := decodeError(t, rec).Code; got != tt.code {
			t.Errorf("%s: code = %s, want %s", tt.body, got, tt.code)
		}
	}
}

func TestHandler_LoginErrors(t *testing.T) {
	env := newTestEnv(t)
	h := newTestHandler(env)
	postJSON(h.Register, "/auth/register", `{"email":"x@y.com","password":"abcdefgh"}`)

	rec := postJSON(h.Login, "/auth/login", `{"email":"x@y.com","password":"wrong-password"}`)
	if rec.Code != http.StatusUnauthorized || decodeError(t, rec).Code != httputil.CodeIncorrectPassword {
		t.Errorf("wrong password: status = %d", rec.Code)
	}

	rec = postJSON(h.Login, "/auth/login", `{"email":"nobody@y.com","password":"abcdefgh"}`)
	if rec.Code != http.StatusUnauthorized || decodeError(t, rec).Code != httputil.CodeUserNotFound {
		t.Errorf("unknown user: status = %d", rec.Code)
	}
}

func TestHandler_LoginBrowserUsesCookies(t *testing.T) {
	env := newTestEnv(t)
	h := newTestHandler(env)
	postJSON(h.Register, "/auth/register", `{"email":"x@y.com","password":"abcdefgh"}`)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"x@y.com","password":"abcdefgh"}`))
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp AuthResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Tokens != nil {
		t.Error("browser login returned tokens in the body")
	}

	names := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		names[c.Name] = c.HttpOnly
	}
	if !names[AccessTokenCookie] || !names[RefreshTokenCookie] {
		t.Errorf("cookies = %v, want http-only auth cookies", names)
	}
}

func TestHandler_LoginClaimsGuestCookie(t *testing.T) {
	env := newTestEnv(t)
	h := newTestHandler(env)
	guestID := uuid.NewString()
	env.seedGuest(t, guestID, "A")

	rec := postJSON(h.Register, "/auth/register", `{"email":"x@y.com","password":"abcdefgh"}`, &http.Cookie{Name: GuestIDCookie, Value: guestID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp AuthResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Session.IsNewUser || len(resp.Session.TodoEntries) != 1 {
		t.Errorf("session = %+v, want reconciled with one entry", resp.Session)
	}

	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == GuestIDCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("guest cookie not cleared after claim")
	}
}

func TestHandler_RefreshAndLogout(t *testing.T) {
	env := newTestEnv(t)
	h := newTestHandler(env)

	rec := postJSON(h.Register, "/auth/register", `{"email":"x@y.com","password":"abcdefgh"}`)
	var resp AuthResponse
	json.NewDecoder(rec.Body).Decode(&resp)

	rec = postJSON(h.Refresh, "/auth/refresh", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("refresh without token status = %d, want 400", rec.Code)
	}

	rec = postJSON(h.Refresh, "/auth/refresh", `{"refresh_token":"`+resp.Tokens.RefreshToken+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var next AuthTokens
	json.NewDecoder(rec.Body).Decode(&next)

	rec = postJSON(h.Logout, "/auth/logout", `{"refresh_token":"`+next.RefreshToken+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}

	rec = postJSON(h.Refresh, "/auth/refresh", `{"refresh_token":"`+next.RefreshToken+`"}`)
	if rec.Code != http.StatusUnauthorized || decodeError(t, rec).Code != httputil.CodeInvalidRefreshToken {
		t.Errorf("refresh after logout status = %d", rec.Code)
	}
}

func TestHandler_Session(t *testing.T) {
	env := newTestEnv(t)
	h := newTestHandler(env)

	rec := postJSON(h.Register, "/auth/register", `{"email":"x@y.com","password":"abcdefgh"}`)
	var resp AuthResponse
	json.NewDecoder(rec.Body).Decode(&resp)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req = req.WithContext(WithUser(req.Context(), uuid.MustParse(resp.Session.ID), "x@y.com"))
	rec = httptest.NewRecorder()
	h.Session(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sess session.Session
	json.NewDecoder(rec.Body).Decode(&sess)
	if sess.ID != resp.Session.ID || !sess.IsNewUser {
		t.Errorf("session = %+v", sess)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req = req.WithContext(WithUser(context.Background(), uuid.New(), "gone@y.com"))
	rec = httptest.NewRecorder()
	h.Session(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", rec.Code)
	}
}

func TestMiddleware_RequireAuth(t *testing.T) {
	svc := newTestPaseto(t)
	m := NewMiddleware(svc)

	var gotID uuid.UUID
	protected := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = GetUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	id := uuid.New()
	valid, _ := svc.CreateToken(id, "x@y.com", time.Minute)
	expired, _ := svc.CreateToken(id, "x@y.com", -time.Minute)

	tests := []struct {
		name   string
		header string
		cookie string
		status int
		code   string
	}{
		{"bearer", "Bearer " + valid, "", http.StatusNoContent, ""},
		{"cookie", "", valid, http.StatusNoContent, ""},
		{"missing", "", "", http.StatusUnauthorized, httputil.CodeMissingAuth},
		{"bad scheme", "Basic abc", "", http.StatusUnauthorized, httputil.CodeInvalidAuthHeader},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized, httputil.CodeTokenExpired},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized, httputil.CodeInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID = uuid.Nil
			req := httptest.NewRequest(http.MethodPost, "/rpc/todos.read", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.code != "" {
				if got := decodeError(t, rec).Code; got != tt.code {
					t.Errorf("code = %s, want %s", got, tt.code)
				}
				return
			}
			if gotID != id {
				t.Errorf("user id in context = %s, want %s", gotID, id)
			}
		})
	}
}

func TestGuestHandler(t *testing.T) {
	env := newTestEnv(t)
	h := NewGuestHandler(env.caches, false, time.Hour)

	rec := httptest.NewRecorder()
	h.ListEntries(rec, httptest.NewRequest(http.MethodGet, "/guest/entries", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("first GET = %d %s", rec.Code, rec.Body.String())
	}
	var guestCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == GuestIDCookie {
			guestCookie = c
		}
	}
	if guestCookie == nil {
		t.Fatal("no guest cookie issued")
	}

	e, _ := todo.NewGuestEntry(todo.Draft{Title: "A", Description: "a", Priority: todo.PriorityLow}, time.Now())
	body, _ := json.Marshal([]todo.Entry{e})

	req := httptest.NewRequest(http.MethodPut, "/guest/entries", strings.NewReader(string(body)))
	req.AddCookie(guestCookie)
	rec = httptest.NewRecorder()
	h.ReplaceEntries(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/guest/entries", nil)
	req.AddCookie(guestCookie)
	rec = httptest.NewRecorder()
	h.ListEntries(rec, req)
	var got []todo.Entry
	json.NewDecoder(rec.Body).Decode(&got)
	if len(got) != 1 || got[0].ID != e.ID {
		t.Errorf("GET after PUT = %+v", got)
	}

	owned := e
	owned.UserID = uuid.NewString()
	body, _ = json.Marshal([]todo.Entry{owned})
	req = httptest.NewRequest(http.MethodPut, "/guest/entries", strings.NewReader(string(body)))
	req.AddCookie(guestCookie)
	rec = httptest.NewRecorder()
	h.ReplaceEntries(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("PUT of non-guest entry status = %d, want 400", rec.Code)
	}
}

func TestGuestHandler_Unavailable(t *testing.T) {
	h := NewGuestHandler(func(string) *localcache.Cache { return localcache.New(nil) }, false, time.Hour)
	rec := httptest.NewRecorder()
	h.ListEntries(rec, httptest.NewRequest(http.MethodGet, "/guest/entries", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
