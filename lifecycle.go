package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

// AccountState is the lifecycle position of an account
type AccountState string

const (
	AccountStateUnregistered AccountState = "unregistered"
	AccountStateUnconfirmed  AccountState = "unconfirmed"
	AccountStateConfirmed    AccountState = "confirmed"
)

// ErrInvalidTransition is returned when a requested state change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// accountTransitions lists every allowed move. Federated sign up skips the
// unconfirmed state, nothing ever moves backwards.
var accountTransitions = map[AccountState]map[AccountState]struct{}{
	AccountStateUnregistered: {
		AccountStateUnconfirmed: {},
		AccountStateConfirmed:   {},
	},
	AccountStateUnconfirmed: {
		AccountStateConfirmed: {},
	},
}

// StateOf derives the lifecycle state of account. A nil account has not
// registered yet.
func StateOf(account *Account) AccountState {
	switch {
	case account == nil:
		return AccountStateUnregistered
	case account.EmailConfirmed:
		return AccountStateConfirmed
	default:
		return AccountStateUnconfirmed
	}
}

// CanTransition reports whether from -> to is allowed. Staying put is
// always allowed.
func CanTransition(from, to AccountState) bool {
	if from == to {
		return true
	}
	if allowed, ok := accountTransitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// checkTransition returns ErrInvalidTransition with context when the move
// is not in the table.
func checkTransition(account *Account, to AccountState) error {
	from := StateOf(account)
	if CanTransition(from, to) {
		return nil
	}
	return goerrors.New(ErrInvalidTransition.Message, goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidTransition).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"from": from,
			"to":   to,
		})
}

// CanIssuePasswordSession reports whether the password login path may hand
// out a session token in state.
func CanIssuePasswordSession(state AccountState) bool {
	return state == AccountStateConfirmed
}
