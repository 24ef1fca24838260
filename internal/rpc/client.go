package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/auth"
	"github.com/redmonkez12/todo-app/internal/httputil"
	"github.com/redmonkez12/todo-app/internal/session"
	"github.com/redmonkez12/todo-app/internal/todo"
)

// TokenSaver persists a refreshed token pair
type TokenSaver func(accessToken, refreshToken string) error

// Client calls the auth endpoints and entry procedures of an API server.
// It satisfies entries.API and reconcile.AccountAPI.
type Client struct {
	baseURL string
	http    *http.Client
	saver   TokenSaver

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	userID       string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokens resumes a previously stored login
func WithTokens(accessToken, refreshToken string) Option {
	return func(c *Client) {
		c.accessToken = accessToken
		c.refreshToken = refreshToken
	}
}

func WithUserID(userID string) Option {
	return func(c *Client) { c.userID = userID }
}

func WithTokenSaver(saver TokenSaver) Option {
	return func(c *Client) { c.saver = saver }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tokens returns the current access and refresh tokens
func (c *Client) Tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) Register(ctx context.Context, creds account.Credentials) (session.Session, error) {
	return c.authenticate(ctx, "/auth/register", creds)
}

func (c *Client) Login(ctx context.Context, creds account.Credentials) (session.Session, error) {
	return c.authenticate(ctx, "/auth/login", creds)
}

func (c *Client) authenticate(ctx context.Context, path string, creds account.Credentials) (session.Session, error) {
	var resp auth.AuthResponse
	if err := c.send(ctx, http.MethodPost, path, auth.CredentialsRequest(creds), &resp, false); err != nil {
		return session.Session{}, err
	}
	if resp.Tokens == nil {
		return session.Session{}, errors.New("server returned no tokens")
	}
	if err := c.setTokens(resp.Tokens.AccessToken, resp.Tokens.RefreshToken); err != nil {
		return session.Session{}, err
	}

	c.mu.Lock()
	c.userID = resp.Session.ID
	c.mu.Unlock()
	return resp.Session, nil
}

// Refresh exchanges the refresh token for a new pair
func (c *Client) Refresh(ctx context.Context) error {
	_, refreshToken := c.Tokens()
	if refreshToken == "" {
		return ErrUnauthorized
	}

	var tokens auth.AuthTokens
	if err := c.send(ctx, http.MethodPost, "/auth/refresh", auth.RefreshRequest{RefreshToken: refreshToken}, &tokens, false); err != nil {
		return err
	}
	return c.setTokens(tokens.AccessToken, tokens.RefreshToken)
}

// Logout revokes the refresh token and forgets both tokens
func (c *Client) Logout(ctx context.Context) error {
	_, refreshToken := c.Tokens()
	err := c.send(ctx, http.MethodPost, "/auth/logout", auth.RefreshRequest{RefreshToken: refreshToken}, nil, false)

	c.mu.Lock()
	c.accessToken, c.refreshToken, c.userID = "", "", ""
	c.mu.Unlock()
	return err
}

// Session fetches the current session view
func (c *Client) Session(ctx context.Context) (session.Session, error) {
	var sess session.Session
	if err := c.call(ctx, http.MethodGet, "/auth/session", nil, &sess); err != nil {
		return session.Session{}, err
	}
	c.mu.Lock()
	c.userID = sess.ID
	c.mu.Unlock()
	return sess, nil
}

func (c *Client) CreateTodo(ctx context.Context, draft todo.Draft) (todo.Entry, error) {
	if draft.UserID == "" {
		draft.UserID = c.UserID()
	}
	var entry todo.Entry
	err := c.proc(ctx, ProcCreateTodo, inputFromDraft(draft), &entry)
	return entry, err
}

func (c *Client) ReadTodos(ctx context.Context) ([]todo.Entry, error) {
	var entries []todo.Entry
	if err := c.proc(ctx, ProcReadTodos, ReadRequest{UserID: c.UserID()}, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []todo.Entry{}
	}
	return entries, nil
}

func (c *Client) ReadTodo(ctx context.Context, id string) (todo.Entry, error) {
	var entry todo.Entry
	err := c.proc(ctx, ProcReadTodos, ReadRequest{UserID: c.UserID(), ID: id}, &entry)
	return entry, err
}

func (c *Client) UpdateTodo(ctx context.Context, id string, patch todo.Patch) (todo.Entry, error) {
	var entry todo.Entry
	err := c.proc(ctx, ProcUpdateTodo, updateFromPatch(id, patch), &entry)
	return entry, err
}

func (c *Client) DeleteTodo(ctx context.Context, id, userID string) error {
	return c.proc(ctx, ProcDeleteTodo, DeleteRequest{ID: id, UserID: userID}, nil)
}

func (c *Client) PopulateNewUser(ctx context.Context, userID string, drafts []todo.Draft) ([]todo.Entry, error) {
	req := PopulateRequest{UserID: userID, TodoEntries: make([]EntryInput, len(drafts))}
	for i, d := range drafts {
		req.TodoEntries[i] = inputFromDraft(d)
	}
	var inserted []todo.Entry
	if err := c.proc(ctx, ProcPopulateNewUser, req, &inserted); err != nil {
		return nil, err
	}
	return inserted, nil
}

func (c *Client) DisableNewUserFlag(ctx context.Context, userID string) error {
	return c.proc(ctx, ProcDisableNewUserFlag, UserRequest{UserID: userID}, nil)
}

func (c *Client) proc(ctx context.Context, name string, in, out any) error {
	return c.call(ctx, http.MethodPost, "/rpc/"+name, in, out)
}

// call sends an authenticated request, refreshing the access token once if it expired
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	err := c.send(ctx, method, path, in, out, true)
	if !errors.Is(err, ErrTokenExpired) {
		return err
	}
	if rerr := c.Refresh(ctx); rerr != nil {
		return fmt.Errorf("failed to refresh access token: %w", rerr)
	}
	return c.send(ctx, method, path, in, out, true)
}

func (c *Client) send(ctx context.Context, method, path string, in, out any, authed bool) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client", "todo-cli")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		accessToken, _ := c.Tokens()
		if accessToken == "" {
			return ErrUnauthorized
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) setTokens(accessToken, refreshToken string) error {
	c.mu.Lock()
	c.accessToken = accessToken
	c.refreshToken = refreshToken
	c.mu.Unlock()

	if c.saver != nil {
		if err := c.saver(accessToken, refreshToken); err != nil {
			return fmt.Errorf("failed to save tokens: %w", err)
		}
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body httputil.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Code = body.Code
		if body.Error != "" {
			apiErr.Message = body.Error
		}
	}
	return apiErr
}
