package httputil

// Machine-readable error codes returned in ErrorResponse.Code
const (
	// auth transport
	CodeInvalidAuthHeader  = "INVALID_AUTH_HEADER"
	CodeMissingAuth        = "MISSING_AUTH"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeInvalidTokenUserID = "INVALID_TOKEN_USER_ID"

	// credentials
	CodeEmailRequired      = "EMAIL_REQUIRED"
	CodeInvalidEmailFormat = "INVALID_EMAIL_FORMAT"
	CodePasswordRequired   = "PASSWORD_REQUIRED"
	CodePasswordTooShort   = "PASSWORD_TOO_SHORT"
	CodePasswordTooLong    = "PASSWORD_TOO_LONG"
	CodeIncorrectPassword  = "INCORRECT_PASSWORD"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeUserExists         = "USER_EXISTS"

	// refresh tokens
	CodeRefreshTokenRequired = "REFRESH_TOKEN_REQUIRED"
	CodeInvalidRefreshToken  = "INVALID_REFRESH_TOKEN"

	// entries
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeEntryNotFound    = "ENTRY_NOT_FOUND"
	CodeAlreadyPopulated = "ALREADY_POPULATED"
	CodeForbidden        = "FORBIDDEN"
	CodeGuestUnavailable = "GUEST_CACHE_UNAVAILABLE"

	// generic
	CodeInvalidRequestBody = "INVALID_REQUEST_BODY"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeDatabaseError      = "DATABASE_ERROR"
	CodeInternalError      = "INTERNAL_ERROR"
)
