package social

import "github.com/goliatone/go-errors"

const (
	TextCodeInvalidState      = "social_invalid_state"
	TextCodeStateExpired      = "social_state_expired"
	TextCodeTokenExchangeFail = "social_token_exchange_failed"
	TextCodeUserInfoFail      = "social_user_info_failed"
	TextCodeEmailNotVerified  = "social_email_not_verified"
	TextCodeInvalidKeys       = "social_invalid_state_keys"
	TextCodeInvalidIDToken    = "social_invalid_id_token"
)

// ErrInvalidState is returned when the OAuth state is invalid or tampered.
var ErrInvalidState = errors.New("invalid oauth state", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(errors.CodeBadRequest)

// ErrStateExpired is returned when the OAuth state has expired.
var ErrStateExpired = errors.New("oauth state expired", errors.CategoryBadInput).
	WithTextCode(TextCodeStateExpired).
	WithCode(errors.CodeBadRequest)

// ErrTokenExchangeFailed is returned when a provider token exchange fails.
var ErrTokenExchangeFailed = errors.New("token exchange failed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExchangeFail).
	WithCode(errors.CodeUnauthorized)

// ErrUserInfoFailed is returned when fetching user info fails.
var ErrUserInfoFailed = errors.New("failed to fetch user info", errors.CategoryAuth).
	WithTextCode(TextCodeUserInfoFail).
	WithCode(errors.CodeUnauthorized)

// ErrEmailNotVerified is returned when a provider email is not verified.
var ErrEmailNotVerified = errors.New("email not verified", errors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeForbidden)

// ErrInvalidStateKeys is returned when the state manager keys are unusable.
var ErrInvalidStateKeys = errors.New("state encryption key must be 16, 24 or 32 bytes and hmac key must be set", errors.CategoryInternal).
	WithTextCode(TextCodeInvalidKeys).
	WithCode(errors.CodeInternal)

// ErrInvalidIDToken is returned when a provider ID token fails verification.
var ErrInvalidIDToken = errors.New("invalid id token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidIDToken).
	WithCode(errors.CodeUnauthorized)

// userInfoError builds a fresh ErrUserInfoFailed carrying meta.
func userInfoError(meta map[string]any) *errors.Error {
	return errors.New(ErrUserInfoFailed.Message, ErrUserInfoFailed.Category).
		WithTextCode(TextCodeUserInfoFail).
		WithCode(errors.CodeUnauthorized).
		WithMetadata(meta)
}

// idTokenError builds a fresh ErrInvalidIDToken carrying the reason.
func idTokenError(reason string) *errors.Error {
	return errors.New(ErrInvalidIDToken.Message, ErrInvalidIDToken.Category).
		WithTextCode(TextCodeInvalidIDToken).
		WithCode(errors.CodeUnauthorized).
		WithMetadata(map[string]any{"reason": reason})
}
