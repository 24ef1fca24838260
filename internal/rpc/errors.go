package rpc

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/httputil"
	"github.com/redmonkez12/todo-app/internal/todo"
)

var (
	ErrForbidden      = errors.New("forbidden")
	ErrUnauthorized   = errors.New("not authenticated")
	ErrTokenExpired   = errors.New("access token expired")
	ErrRateLimited    = errors.New("rate limited")
	ErrBadCredentials = errors.New("invalid credentials")
)

// APIError is an error response from the server. It unwraps to the sentinel
// matching its code, so callers can use errors.Is across the wire.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

func (e *APIError) Unwrap() error {
	return sentinelFor(e.Code)
}

var codeSentinels = map[string]error{
	httputil.CodeUserNotFound:        account.ErrUserNotFound,
	httputil.CodeIncorrectPassword:   account.ErrIncorrectPassword,
	httputil.CodeUserExists:          account.ErrUserExists,
	httputil.CodeEntryNotFound:       account.ErrEntryNotFound,
	httputil.CodeAlreadyPopulated:    account.ErrAlreadyPopulated,
	httputil.CodeDatabaseError:       account.ErrDatabase,
	httputil.CodeValidationFailed:    todo.ErrValidation,
	httputil.CodeForbidden:           ErrForbidden,
	httputil.CodeTokenExpired:        ErrTokenExpired,
	httputil.CodeMissingAuth:         ErrUnauthorized,
	httputil.CodeInvalidToken:        ErrUnauthorized,
	httputil.CodeInvalidAuthHeader:   ErrUnauthorized,
	httputil.CodeInvalidTokenUserID:  ErrUnauthorized,
	httputil.CodeInvalidRefreshToken: ErrUnauthorized,
	httputil.CodeTooManyRequests:     ErrRateLimited,
	httputil.CodeEmailRequired:       ErrBadCredentials,
	httputil.CodeInvalidEmailFormat:  ErrBadCredentials,
	httputil.CodePasswordRequired:    ErrBadCredentials,
	httputil.CodePasswordTooShort:    ErrBadCredentials,
	httputil.CodePasswordTooLong:     ErrBadCredentials,
}

func sentinelFor(code string) error {
	return codeSentinels[code]
}

// statusFor maps a store error to its HTTP status and code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, todo.ErrValidation):
		return http.StatusBadRequest, httputil.CodeValidationFailed
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, httputil.CodeForbidden
	case errors.Is(err, account.ErrUserNotFound):
		return http.StatusNotFound, httputil.CodeUserNotFound
	case errors.Is(err, account.ErrEntryNotFound):
		return http.StatusNotFound, httputil.CodeEntryNotFound
	case errors.Is(err, account.ErrAlreadyPopulated):
		return http.StatusConflict, httputil.CodeAlreadyPopulated
	case errors.Is(err, account.ErrUserExists):
		return http.StatusConflict, httputil.CodeUserExists
	case errors.Is(err, account.ErrDatabase):
		return http.StatusInternalServerError, httputil.CodeDatabaseError
	default:
		return http.StatusInternalServerError, httputil.CodeInternalError
	}
}
