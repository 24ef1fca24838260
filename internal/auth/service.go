package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/logging"
	"github.com/redmonkez12/todo-app/internal/session"
)

var (
	ErrEmailRequired      = errors.New("email is required")
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong    = errors.New("password must be at most 64 characters")
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 64
	maxEmailLength    = 254
)

// Result is what a successful register or login hands back
type Result struct {
	Session session.Session
	Tokens  *AuthTokens
	// GuestClaimed is set when a guest cache was migrated into the account
	GuestClaimed bool
}

// Service handles authentication on top of the account store
type Service struct {
	accounts             AccountStore
	authRepo             RefreshTokenRepository
	tokens               TokenService
	guests               *GuestClaimer
	logger               *logging.Logger
	accessTokenDuration  time.Duration
	refreshTokenDuration time.Duration
}

// NewService builds the auth service. guests may be nil, in which case
// server-hosted guest caches are never claimed.
func NewService(
	accounts AccountStore,
	authRepo RefreshTokenRepository,
	tokens TokenService,
	guests *GuestClaimer,
	logger *logging.Logger,
	accessTokenDuration time.Duration,
	refreshTokenDuration time.Duration,
) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		accounts:             accounts,
		authRepo:             authRepo,
		tokens:               tokens,
		guests:               guests,
		logger:               logger,
		accessTokenDuration:  accessTokenDuration,
		refreshTokenDuration: refreshTokenDuration,
	}
}

// ValidateCredentials checks email format and password length
func ValidateCredentials(creds account.Credentials) error {
	if creds.Email == "" {
		return ErrEmailRequired
	}
	if len(creds.Email) > maxEmailLength {
		return ErrInvalidEmailFormat
	}
	addr, err := mail.ParseAddress(creds.Email)
	if err != nil || addr.Address != creds.Email {
		return ErrInvalidEmailFormat
	}
	n := utf8.RuneCountInString(creds.Password)
	switch {
	case n == 0:
		return ErrPasswordRequired
	case n < MinPasswordLength:
		return ErrPasswordTooShort
	case n > MaxPasswordLength:
		return ErrPasswordTooLong
	}
	return nil
}

// Register creates the account, claims the guest cache if guestID is set and issues tokens
func (s *Service) Register(ctx context.Context, creds account.Credentials, guestID string) (*Result, error) {
	if err := ValidateCredentials(creds); err != nil {
		return nil, err
	}

	sess, err := s.accounts.SignUp(ctx, creds)
	if err != nil {
		return nil, err
	}

	return s.complete(ctx, sess, guestID)
}

// Login verifies the credentials, claims the guest cache if guestID is set and issues tokens
func (s *Service) Login(ctx context.Context, creds account.Credentials, guestID string) (*Result, error) {
	if err := ValidateCredentials(creds); err != nil {
		return nil, err
	}

	sess, err := s.accounts.LogIn(ctx, creds)
	if err != nil {
		return nil, err
	}

	return s.complete(ctx, sess, guestID)
}

func (s *Service) complete(ctx context.Context, sess session.Session, guestID string) (*Result, error) {
	result := &Result{Session: sess}

	if guestID != "" && sess.IsNewUser && s.guests != nil {
		claimed, err := s.guests.Claim(ctx, guestID, sess)
		if err != nil {
			// the session stays flagged so the client can retry the migration
			s.logger.Warn("failed to claim guest entries", "user_id", sess.ID, "error", err)
		} else {
			result.Session = claimed
			result.GuestClaimed = true
		}
	}

	tokens, err := s.generateTokens(ctx, sess.ID, sess.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}
	result.Tokens = tokens

	return result, nil
}

// RefreshAccessToken exchanges a live refresh token for a new pair. Presenting
// a revoked token revokes every token of its user.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	rt, err := s.authRepo.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	if rt.IsRevoked() {
		if err := s.authRepo.RevokeAllUserTokens(ctx, rt.UserID); err != nil {
			s.logger.Warn("failed to revoke tokens after reuse", "user_id", rt.UserID, "error", err)
		}
		return nil, ErrRefreshTokenRevoked
	}
	if rt.IsExpired() {
		return nil, ErrRefreshTokenExpired
	}

	sess, err := s.accounts.Session(ctx, rt.UserID.String())
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	accessToken, err := s.tokens.CreateToken(rt.UserID, sess.Email, s.accessTokenDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}
	next, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	err = s.authRepo.RotateRefreshToken(ctx, refreshToken, rt.UserID, next, time.Now().Add(s.refreshTokenDuration))
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			// lost a race with another refresh of the same token
			return nil, ErrRefreshTokenRevoked
		}
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return s.pair(accessToken, next), nil
}

func (s *Service) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	return s.authRepo.RevokeRefreshToken(ctx, refreshToken)
}

// Session returns a fresh session view for an authenticated user
func (s *Service) Session(ctx context.Context, userID string) (session.Session, error) {
	return s.accounts.Session(ctx, userID)
}

// CleanupExpiredTokens runs every interval until ctx is done
func (s *Service) CleanupExpiredTokens(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.authRepo.CleanupExpiredTokens(ctx); err != nil {
				s.logger.Warn("failed to clean up expired refresh tokens", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) generateTokens(ctx context.Context, userID, email string) (*AuthTokens, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	accessToken, err := s.tokens.CreateToken(uid, email, s.accessTokenDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	expiresAt := time.Now().Add(s.refreshTokenDuration)
	if err := s.authRepo.StoreRefreshToken(ctx, uid, refreshToken, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return s.pair(accessToken, refreshToken), nil
}

func (s *Service) pair(accessToken, refreshToken string) *AuthTokens {
	return &AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTokenDuration.Seconds()),
	}
}
