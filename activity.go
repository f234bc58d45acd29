package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAccountRegistered     ActivityEventType = "account.registered"
	ActivityEventAccountStateChanged   ActivityEventType = "account.state.changed"
	ActivityEventLoginSuccess          ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure          ActivityEventType = "auth.login.failure"
	ActivityEventConfirmationSent      ActivityEventType = "auth.confirmation.sent"
	ActivityEventConfirmationFailure   ActivityEventType = "auth.confirmation.failure"
	ActivityEventEmailConfirmed        ActivityEventType = "auth.confirmation.success"
	ActivityEventMailFailure           ActivityEventType = "auth.mail.failure"
	ActivityEventSocialLogin           ActivityEventType = "auth.social.login"
	ActivityEventSocialLoginFailure    ActivityEventType = "auth.social.failure"
	ActivityEventSocialChallengeIssued ActivityEventType = "auth.social.challenge"
)

// ActivityEvent captures audit-friendly information about an action.
// It never carries credentials.
type ActivityEvent struct {
	EventType  ActivityEventType
	AccountID  string
	Email      string
	FromState  AccountState
	ToState    AccountState
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// MultiActivitySink fans an event out to every sink, returning the first error.
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
