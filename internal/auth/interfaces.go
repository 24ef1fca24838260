package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/session"
)

// TokenService creates and validates access tokens
type TokenService interface {
	CreateToken(userID uuid.UUID, email string, duration time.Duration) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// AccountStore is the part of account.Store the auth flow needs
type AccountStore interface {
	SignUp(ctx context.Context, creds account.Credentials) (session.Session, error)
	LogIn(ctx context.Context, creds account.Credentials) (session.Session, error)
	Session(ctx context.Context, userID string) (session.Session, error)
}
