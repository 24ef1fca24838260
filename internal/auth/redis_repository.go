package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps refresh tokens as Redis hashes that expire with the token
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func getTokenKey(tokenHash string) string {
	return fmt.Sprintf("refresh_token:%s", tokenHash)
}

func getUserTokensKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_tokens:%s", userID.String())
}

func (r *RedisRepository) StoreRefreshToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return errors.New("token expiration time is in the past")
	}

	pipe := r.client.TxPipeline()
	queueStore(ctx, pipe, userID, hashToken(token), expiresAt, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func queueStore(ctx context.Context, pipe redis.Pipeliner, userID uuid.UUID, tokenHash string, expiresAt time.Time, ttl time.Duration) {
	tokenKey := getTokenKey(tokenHash)
	userTokensKey := getUserTokensKey(userID)

	pipe.HSet(ctx, tokenKey, map[string]any{
		"user_id":    userID.String(),
		"expires_at": expiresAt.Unix(),
		"created_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, tokenKey, ttl)
	pipe.SAdd(ctx, userTokensKey, tokenHash)
	pipe.ExpireGT(ctx, userTokensKey, ttl)
	pipe.ExpireNX(ctx, userTokensKey, ttl)
}

func (r *RedisRepository) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	tokenHash := hashToken(token)

	data, err := r.client.HGetAll(ctx, getTokenKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrRefreshTokenNotFound
	}

	return parseRedisToken(tokenHash, data)
}

func parseRedisToken(tokenHash string, data map[string]string) (*RefreshToken, error) {
	userID, err := uuid.Parse(data["user_id"])
	if err != nil {
		return nil, ErrInvalidToken
	}
	expiresAt, err := strconv.ParseInt(data["expires_at"], 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	createdAt, _ := strconv.ParseInt(data["created_at"], 10, 64)

	rt := &RefreshToken{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: time.Unix(expiresAt, 0),
		CreatedAt: time.Unix(createdAt, 0),
	}
	if revokedAt, ok := data["revoked_at"]; ok {
		if sec, err := strconv.ParseInt(revokedAt, 10, 64); err == nil {
			t := time.Unix(sec, 0)
			rt.RevokedAt = &t
		}
	}
	return rt, nil
}

// revokeScript marks a live token revoked and reports whether it did
var revokeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return 0 end
if redis.call("HEXISTS", KEYS[1], "revoked_at") == 1 then return 0 end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[1])
return 1
`)

func (r *RedisRepository) revoke(ctx context.Context, tokenHash string) error {
	n, err := revokeScript.Run(ctx, r.client, []string{getTokenKey(tokenHash)}, time.Now().Unix()).Int()
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if n == 0 {
		return ErrRefreshTokenNotFound
	}
	return nil
}

// RotateRefreshToken relies on the revoke script being atomic, so only one of
// two concurrent rotations of the same token gets to store a successor
func (r *RedisRepository) RotateRefreshToken(ctx context.Context, old string, userID uuid.UUID, next string, expiresAt time.Time) error {
	if err := r.revoke(ctx, hashToken(old)); err != nil {
		return err
	}
	return r.StoreRefreshToken(ctx, userID, next, expiresAt)
}

func (r *RedisRepository) RevokeRefreshToken(ctx context.Context, token string) error {
	return r.revoke(ctx, hashToken(token))
}

func (r *RedisRepository) RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error {
	tokenHashes, err := r.client.SMembers(ctx, getUserTokensKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to get user tokens: %w", err)
	}

	for _, tokenHash := range tokenHashes {
		if err := r.revoke(ctx, tokenHash); err != nil && !errors.Is(err, ErrRefreshTokenNotFound) {
			return fmt.Errorf("failed to revoke all user tokens: %w", err)
		}
	}
	return nil
}

// CleanupExpiredTokens is a no-op: token keys expire on their own
func (r *RedisRepository) CleanupExpiredTokens(ctx context.Context) error {
	return nil
}
