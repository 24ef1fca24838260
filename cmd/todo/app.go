package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/entries"
	"github.com/redmonkez12/todo-app/internal/localcache"
	"github.com/redmonkez12/todo-app/internal/logging"
	"github.com/redmonkez12/todo-app/internal/reconcile"
	"github.com/redmonkez12/todo-app/internal/rpc"
	"github.com/redmonkez12/todo-app/internal/session"
)

// app holds what every command needs: where state lives and how to reach the server
type app struct {
	cfg      *config
	out      io.Writer
	logger   *logging.Logger
	logFile  io.Closer
	sessions *session.FileStore
	local    *localcache.Cache
	client   *rpc.Client
	state    *session.State
}

func newApp(cfg *config, out io.Writer) (*app, error) {
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", cfg.Home, err)
	}

	logFile := &lumberjack.Logger{
		Filename:   cfg.logFile(),
		MaxSize:    5, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
	}

	a := &app{
		cfg:      cfg,
		out:      out,
		logger:   logging.New(logFile, cfg.Debug),
		logFile:  logFile,
		sessions: session.NewFileStore(cfg.Home),
		local:    localcache.New(localcache.NewFileStorage(cfg.guestDir())),
	}

	state, err := a.sessions.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	a.state = state

	opts := []rpc.Option{
		rpc.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		rpc.WithTokenSaver(a.saveTokens),
	}
	if state != nil {
		opts = append(opts,
			rpc.WithTokens(state.AccessToken, state.RefreshToken),
			rpc.WithUserID(state.Session.ID),
		)
	}
	a.client = rpc.NewClient(cfg.APIURL, opts...)
	return a, nil
}

func (a *app) Close() error {
	return a.logFile.Close()
}

func (a *app) loggedIn() bool {
	return a.state != nil
}

// saveTokens persists refreshed tokens. Before the first login there is no
// state to update; authenticate saves the whole state afterwards.
func (a *app) saveTokens(accessToken, refreshToken string) error {
	if a.state == nil {
		return nil
	}
	a.state.AccessToken = accessToken
	a.state.RefreshToken = refreshToken
	return a.sessions.SaveTokens(accessToken, refreshToken)
}

// authenticate logs in or signs up, stores the session and reconciles guest entries
func (a *app) authenticate(ctx context.Context, creds account.Credentials, signUp bool) (session.Session, error) {
	login := a.client.Login
	if signUp {
		login = a.client.Register
	}

	sess, err := login(ctx, creds)
	if err != nil {
		return session.Session{}, err
	}

	accessToken, refreshToken := a.client.Tokens()
	state := session.State{Session: sess, AccessToken: accessToken, RefreshToken: refreshToken}
	if err := a.sessions.Save(state); err != nil {
		return session.Session{}, err
	}
	a.state = &state
	a.logger.Info("logged in", "user_id", sess.ID, "new_user", sess.IsNewUser)

	return a.reconcile(ctx)
}

// reconcile migrates guest entries when the stored session is still flagged new.
// A failure leaves the flag set, so the next command retries.
func (a *app) reconcile(ctx context.Context) (session.Session, error) {
	sess := a.state.Session
	if !sess.IsNewUser {
		return sess, nil
	}

	rec := reconcile.New(a.client, a.local, a.logger, nil)
	next, err := rec.Run(ctx, sess)
	if err != nil {
		return sess, fmt.Errorf("failed to move guest entries to your account: %w", err)
	}
	if err := a.sessions.SaveSession(next); err != nil {
		return next, err
	}
	a.state.Session = next
	return next, nil
}

// repository returns the entry repository for the current mode, reconciling first
// when logged in
func (a *app) repository(ctx context.Context) (entries.Repository, error) {
	if !a.loggedIn() {
		return entries.Select(nil, a.local, nil, nil, a.logger), nil
	}
	if _, err := a.reconcile(ctx); err != nil {
		return nil, err
	}
	sess := a.state.Session
	return entries.Select(&sess, a.local, a.client, a.sessions, a.logger), nil
}

func (a *app) logout(ctx context.Context) error {
	if !a.loggedIn() {
		return nil
	}
	if err := a.client.Logout(ctx); err != nil {
		// the local session is dropped regardless
		a.logger.Warn("server logout failed", "error", err)
	}
	a.state = nil
	return a.sessions.Delete()
}

// describe turns an error into a message for the terminal
func describe(err error) string {
	switch {
	case errors.Is(err, account.ErrIncorrectPassword):
		return "incorrect password"
	case errors.Is(err, account.ErrUserNotFound):
		return "no account with that email"
	case errors.Is(err, account.ErrUserExists):
		return "an account with that email already exists"
	case errors.Is(err, rpc.ErrUnauthorized):
		return "your session has expired, run `todo login`"
	case errors.Is(err, rpc.ErrRateLimited):
		return "too many requests, try again shortly"
	case errors.Is(err, localcache.ErrUnavailable):
		return "local storage is unavailable"
	}
	return err.Error()
}
