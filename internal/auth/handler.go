package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/httputil"
	"github.com/redmonkez12/todo-app/internal/logging"
	"github.com/redmonkez12/todo-app/internal/ratelimit"
	"github.com/redmonkez12/todo-app/internal/session"
)

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service         *Service
	rateLimiter     *ratelimit.Limiter
	isProduction    bool
	accessDuration  time.Duration
	refreshDuration time.Duration
}

// NewHandler builds the auth handler. A nil rateLimiter disables IP limits.
func NewHandler(service *Service, rateLimiter *ratelimit.Limiter, isProduction bool, accessDuration, refreshDuration time.Duration) *Handler {
	return &Handler{
		service:         service,
		rateLimiter:     rateLimiter,
		isProduction:    isProduction,
		accessDuration:  accessDuration,
		refreshDuration: refreshDuration,
	}
}

// CredentialsRequest is the register and login body
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest represents the token refresh request body
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// AuthResponse carries the session view. Tokens are omitted for cookie clients.
type AuthResponse struct {
	Session session.Session `json:"session"`
	Tokens  *AuthTokens     `json:"tokens,omitempty"`
}

// Register handles account creation
// @Summary      Register a new user
// @Description  Create an account with email and password. A guest_id cookie, when present, has its guest entries migrated into the new account.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body CredentialsRequest true "Registration credentials"
// @Success      201 {object} AuthResponse
// @Failure      400 {object} ErrorResponse "Invalid request or validation error"
// @Failure      409 {object} ErrorResponse "Email already registered"
// @Failure      429 {object} ErrorResponse "Too many requests"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.limited(w, r, logger, "register") {
		return
	}

	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	result, err := h.service.Register(r.Context(), account.Credentials(req), guestIDFrom(r))
	if err != nil {
		if errors.Is(err, account.ErrUserExists) {
			logger.Warn("registration failed: email already registered")
			respondError(w, "email already registered", httputil.CodeUserExists, http.StatusConflict)
			return
		}
		if h.credentialsError(w, logger, err) {
			return
		}
		logger.Error("registration failed: internal error", "error", err.Error())
		respondError(w, "failed to register user", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user registered successfully", "user_id", result.Session.ID)
	h.respondAuth(w, r, result, http.StatusCreated)
}

// Login handles user login
// @Summary      User login
// @Description  Authenticate and receive the session view with access and refresh tokens. A guest_id cookie, when present, is reconciled into a new account.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body CredentialsRequest true "Login credentials"
// @Success      200 {object} AuthResponse
// @Failure      400 {object} ErrorResponse "Invalid request body"
// @Failure      401 {object} ErrorResponse "Unknown user or incorrect password"
// @Failure      429 {object} ErrorResponse "Too many requests"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.limited(w, r, logger, "login") {
		return
	}

	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	result, err := h.service.Login(r.Context(), account.Credentials(req), guestIDFrom(r))
	if err != nil {
		switch {
		case errors.Is(err, account.ErrUserNotFound):
			logger.Warn("login failed: user not found")
			respondError(w, "no account with that email", httputil.CodeUserNotFound, http.StatusUnauthorized)
		case errors.Is(err, account.ErrIncorrectPassword):
			logger.Warn("login failed: incorrect password")
			respondError(w, "incorrect password", httputil.CodeIncorrectPassword, http.StatusUnauthorized)
		case h.credentialsError(w, logger, err):
		default:
			logger.Error("login failed: internal error", "error", err.Error())
			respondError(w, "failed to login", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user logged in successfully", "user_id", result.Session.ID, "new_user", result.Session.IsNewUser)
	h.respondAuth(w, r, result, http.StatusOK)
}

// Refresh handles access token refresh
// @Summary      Refresh access token
// @Description  Exchange a refresh token (body or cookie) for a new token pair. The presented token is revoked.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RefreshRequest false "Refresh token"
// @Success      200 {object} AuthTokens
// @Failure      400 {object} ErrorResponse "Refresh token missing"
// @Failure      401 {object} ErrorResponse "Invalid or expired refresh token"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	refreshToken := refreshTokenFrom(r)
	if refreshToken == "" {
		logger.Warn("refresh token missing from both body and cookie")
		respondError(w, "refresh token required", httputil.CodeRefreshTokenRequired, http.StatusBadRequest)
		return
	}

	tokens, err := h.service.RefreshAccessToken(r.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrRefreshTokenRevoked) || errors.Is(err, ErrRefreshTokenExpired) {
			logger.Warn("token refresh failed", "error", err.Error())
			respondError(w, "invalid or expired refresh token", httputil.CodeInvalidRefreshToken, http.StatusUnauthorized)
			return
		}
		logger.Error("token refresh failed: internal error", "error", err.Error())
		respondError(w, "failed to refresh token", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("access token refreshed")

	if ShouldUseCookies(r) {
		SetAuthCookies(w, tokens.AccessToken, tokens.RefreshToken, h.isProduction, h.accessDuration, h.refreshDuration)
		respondJSON(w, map[string]string{"message": "token refreshed successfully"}, http.StatusOK)
		return
	}
	respondJSON(w, tokens, http.StatusOK)
}

// Logout handles user logout
// @Summary      User logout
// @Description  Revoke the refresh token and clear auth cookies
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RefreshRequest false "Optional refresh token"
// @Success      200 {object} map[string]string
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if refreshToken := refreshTokenFrom(r); refreshToken != "" {
		if err := h.service.RevokeRefreshToken(r.Context(), refreshToken); err != nil && !errors.Is(err, ErrRefreshTokenNotFound) {
			logger.Warn("failed to revoke refresh token", "error", err)
		}
	}

	ClearAuthCookies(w)
	logger.Info("user logged out")
	respondJSON(w, map[string]string{"message": "logged out"}, http.StatusOK)
}

// Session returns the caller's current session view
// @Summary      Current session
// @Description  Fresh session view of the authenticated user, including entries and the new-user flag
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} session.Session
// @Failure      401 {object} ErrorResponse "Not authenticated"
// @Failure      404 {object} ErrorResponse "User no longer exists"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/session [get]
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	sess, err := h.service.Session(r.Context(), userID.String())
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			respondError(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("failed to load session", "error", err.Error())
		respondError(w, "failed to load session", httputil.CodeDatabaseError, http.StatusInternalServerError)
		return
	}

	respondJSON(w, sess, http.StatusOK)
}

func (h *Handler) respondAuth(w http.ResponseWriter, r *http.Request, result *Result, status int) {
	if result.GuestClaimed {
		ClearGuestCookie(w)
	}
	if ShouldUseCookies(r) {
		SetAuthCookies(w, result.Tokens.AccessToken, result.Tokens.RefreshToken, h.isProduction, h.accessDuration, h.refreshDuration)
		respondJSON(w, AuthResponse{Session: result.Session}, status)
		return
	}
	respondJSON(w, AuthResponse{Session: result.Session, Tokens: result.Tokens}, status)
}

// limited applies the IP limit for purpose and reports whether the request was rejected.
// Limiter failures are logged and let the request through.
func (h *Handler) limited(w http.ResponseWriter, r *http.Request, logger *logging.Logger, purpose string) bool {
	if h.rateLimiter == nil {
		return false
	}

	ip := getClientIP(r)
	exceeded, err := h.rateLimiter.CheckIPRateLimitWithPurpose(r.Context(), ip, purpose)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
		return false
	}
	if exceeded {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		respondError(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return true
	}

	if err := h.rateLimiter.RecordIPRequestWithPurpose(r.Context(), ip, purpose); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}
	return false
}

// credentialsError writes the response for a credential validation error
func (h *Handler) credentialsError(w http.ResponseWriter, logger *logging.Logger, err error) bool {
	var code string
	switch {
	case errors.Is(err, ErrEmailRequired):
		code = httputil.CodeEmailRequired
	case errors.Is(err, ErrInvalidEmailFormat):
		code = httputil.CodeInvalidEmailFormat
	case errors.Is(err, ErrPasswordRequired):
		code = httputil.CodePasswordRequired
	case errors.Is(err, ErrPasswordTooShort):
		code = httputil.CodePasswordTooShort
	case errors.Is(err, ErrPasswordTooLong):
		code = httputil.CodePasswordTooLong
	default:
		return false
	}
	logger.Warn("credentials rejected", "error", err.Error())
	respondError(w, err.Error(), code, http.StatusBadRequest)
	return true
}

func refreshTokenFrom(r *http.Request) string {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.RefreshToken != "" {
		return strings.TrimSpace(req.RefreshToken)
	}
	if token, err := GetRefreshTokenFromCookie(r); err == nil {
		return strings.TrimSpace(token)
	}
	return ""
}

func guestIDFrom(r *http.Request) string {
	id, _ := GetGuestIDFromCookie(r)
	return id
}

func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	httputil.RespondJSON(w, data, statusCode)
}

func respondError(w http.ResponseWriter, message string, code string, statusCode int) {
	httputil.RespondErrorWithCode(w, message, code, statusCode)
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
