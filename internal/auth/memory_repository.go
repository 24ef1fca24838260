package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps refresh tokens in process memory. Tokens do not survive
// a restart and are not shared between instances.
type MemoryRepository struct {
	mu     sync.Mutex
	tokens map[string]*RefreshToken // by token hash
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tokens: make(map[string]*RefreshToken), now: time.Now}
}

func (m *MemoryRepository) StoreRefreshToken(_ context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeLocked(userID, token, expiresAt)
	return nil
}

func (m *MemoryRepository) storeLocked(userID uuid.UUID, token string, expiresAt time.Time) {
	hash := hashToken(token)
	m.tokens[hash] = &RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: expiresAt,
		CreatedAt: m.now(),
	}
}

func (m *MemoryRepository) GetRefreshToken(_ context.Context, token string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.tokens[hashToken(token)]
	if !ok {
		return nil, ErrRefreshTokenNotFound
	}
	cp := *rt
	return &cp, nil
}

func (m *MemoryRepository) RotateRefreshToken(_ context.Context, old string, userID uuid.UUID, next string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.revokeLocked(old); err != nil {
		return err
	}
	m.storeLocked(userID, next, expiresAt)
	return nil
}

func (m *MemoryRepository) RevokeRefreshToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeLocked(token)
}

func (m *MemoryRepository) revokeLocked(token string) error {
	rt, ok := m.tokens[hashToken(token)]
	if !ok || rt.RevokedAt != nil {
		return ErrRefreshTokenNotFound
	}
	now := m.now()
	rt.RevokedAt = &now
	return nil
}

func (m *MemoryRepository) RevokeAllUserTokens(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, rt := range m.tokens {
		if rt.UserID == userID && rt.RevokedAt == nil {
			rt.RevokedAt = &now
		}
	}
	return nil
}

// CleanupExpiredTokens drops expired tokens. Revoked ones are kept until they
// expire so reuse can still be detected.
func (m *MemoryRepository) CleanupExpiredTokens(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for hash, rt := range m.tokens {
		if now.After(rt.ExpiresAt) {
			delete(m.tokens, hash)
		}
	}
	return nil
}

// Len returns the number of tokens held, including revoked ones
func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}
