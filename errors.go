package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidation         = "ACCOUNT_VALIDATION"
	TextCodeCreation           = "ACCOUNT_CREATION"
	TextCodeAuth               = "ACCOUNT_AUTH"
	TextCodeNotFound           = "ACCOUNT_NOT_FOUND"
	TextCodeConfirmationToken  = "CONFIRMATION_TOKEN"
	TextCodeConfiguration      = "CONFIGURATION"
	TextCodeInvalidTransition  = "INVALID_ACCOUNT_STATE_TRANSITION"
	TextCodeMismatchedPassword = "MISMATCHED_PASSWORD"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeMailDelivery       = "MAIL_DELIVERY"
	TextCodeSession            = "SESSION_INVALID"
)

// Messages returned to clients. They are part of the HTTP contract.
const (
	MsgIncorrectCredentials = "Incorrect Email or Password"
	MsgAccountNotFound      = "Not found"
	MsgConfirmationFailed   = "Email confirmation failed"
	MsgEmailConfirmed       = "Email has been confirmed successfully"
	MsgProviderFailed       = "Google authentication failed"
	MsgConfirmationSent     = "Please confirm your email, a confirmation link has been sent"
	MsgMailDeliveryFailed   = "Confirmation email could not be sent, please try again later"
	MsgSessionInvalid       = "Missing or invalid session token"
)

// reasonSeparator joins aggregated field and store messages.
const reasonSeparator = "|"

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned when a password does not match the stored hash
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodeMismatchedPassword).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountNotFound is returned by stores when no account matches
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// NewValidationError aggregates field messages in the given order
func NewValidationError(messages ...string) *goerrors.Error {
	return goerrors.New(strings.Join(messages, reasonSeparator), goerrors.CategoryValidation).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"reasons": messages})
}

// NewCreationError aggregates the reasons the store rejected an account
func NewCreationError(reasons ...string) *goerrors.Error {
	return goerrors.New(strings.Join(reasons, reasonSeparator), goerrors.CategoryConflict).
		WithTextCode(TextCodeCreation).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"reasons": reasons})
}

// NewAuthError never carries detail about which credential was wrong
func NewAuthError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithTextCode(TextCodeAuth).
		WithCode(goerrors.CodeBadRequest)
}

func NewNotFoundError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithTextCode(TextCodeNotFound).
		WithCode(goerrors.CodeBadRequest)
}

// NewTokenError covers invalid, expired and already consumed confirmation
// tokens alike.
func NewTokenError() *goerrors.Error {
	return goerrors.New(MsgConfirmationFailed, goerrors.CategoryBadInput).
		WithTextCode(TextCodeConfirmationToken).
		WithCode(goerrors.CodeBadRequest)
}

func NewConfigurationError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithTextCode(TextCodeConfiguration).
		WithCode(goerrors.CodeInternal)
}

// wrapMailError records the gateway failure in metadata and only exposes a
// generic message.
func wrapMailError(err error) *goerrors.Error {
	meta := map[string]any{}
	if err != nil {
		meta["cause"] = err.Error()
	}
	return goerrors.New(MsgMailDeliveryFailed, goerrors.CategoryOperation).
		WithTextCode(TextCodeMailDelivery).
		WithCode(goerrors.CodeInternal).
		WithMetadata(meta)
}

// NewSessionError reports a missing, expired or forged session token
func NewSessionError(reason string) *goerrors.Error {
	return goerrors.New(MsgSessionInvalid, goerrors.CategoryAuth).
		WithTextCode(TextCodeSession).
		WithCode(goerrors.CodeUnauthorized).
		WithMetadata(map[string]any{"reason": reason})
}

func IsValidationError(err error) bool    { return hasTextCode(err, TextCodeValidation) }
func IsCreationError(err error) bool      { return hasTextCode(err, TextCodeCreation) }
func IsAuthError(err error) bool          { return hasTextCode(err, TextCodeAuth) }
func IsNotFoundError(err error) bool      { return hasTextCode(err, TextCodeNotFound) }
func IsTokenError(err error) bool         { return hasTextCode(err, TextCodeConfirmationToken) }
func IsConfigurationError(err error) bool { return hasTextCode(err, TextCodeConfiguration) }
func IsMailDeliveryError(err error) bool  { return hasTextCode(err, TextCodeMailDelivery) }
func IsSessionError(err error) bool       { return hasTextCode(err, TextCodeSession) }

// IsMismatchedPassword reports a failed password comparison
func IsMismatchedPassword(err error) bool {
	return hasTextCode(err, TextCodeMismatchedPassword)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// ClientMessage returns the text that is safe to show the caller. Internal
// errors collapse to a generic message.
func ClientMessage(err error) (string, bool) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return "", false
	}
	switch richErr.TextCode {
	case TextCodeValidation, TextCodeCreation, TextCodeAuth,
		TextCodeNotFound, TextCodeConfirmationToken, TextCodeInvalidTransition,
		TextCodeMailDelivery, TextCodeSession:
		return richErr.Message, true
	}
	return "", false
}
