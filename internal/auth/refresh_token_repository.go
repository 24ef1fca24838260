package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RefreshTokenRepository stores refresh tokens by hash. Implemented over
// Postgres (Repository) and Redis (RedisRepository).
type RefreshTokenRepository interface {
	StoreRefreshToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	// RotateRefreshToken revokes old and stores next in one step, failing with
	// ErrRefreshTokenNotFound if old was already revoked or never existed.
	RotateRefreshToken(ctx context.Context, old string, userID uuid.UUID, next string, expiresAt time.Time) error
	RevokeRefreshToken(ctx context.Context, token string) error
	RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error
	CleanupExpiredTokens(ctx context.Context) error
}
