package auth_test

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"

	auth "github.com/goliatone/go-verified-auth"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// sentMail is one message handed to recordingMail
type sentMail struct {
	To      string
	Subject string
	Body    string
}

// recordingMail implements auth.MailGateway and keeps every message
type recordingMail struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (r *recordingMail) Send(ctx context.Context, toEmail, subject, htmlBody string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentMail{To: toEmail, Subject: subject, Body: htmlBody})
	return nil
}

func (r *recordingMail) Sent() []sentMail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMail(nil), r.sent...)
}

// confirmationParams extracts token and email from the link in a
// confirmation mail body.
func confirmationParams(t *testing.T, m sentMail) (token, email string) {
	t.Helper()

	idx := strings.Index(m.Body, "http")
	require.GreaterOrEqual(t, idx, 0, "no link in mail body: %s", m.Body)

	link, err := url.Parse(strings.TrimSpace(m.Body[idx:]))
	require.NoError(t, err)
	require.Equal(t, auth.ConfirmEmailPath, link.Path)

	return link.Query().Get("token"), link.Query().Get("email")
}

// clientText is what the HTTP layer would show for err
func clientText(t *testing.T, err error) string {
	t.Helper()
	msg, ok := auth.ClientMessage(err)
	require.True(t, ok, "no client message for %v", err)
	return msg
}

// MockOAuthProvider implements auth.OAuthProvider
type MockOAuthProvider struct {
	mock.Mock
	name string
}

func (m *MockOAuthProvider) Name() string {
	if m.name == "" {
		return "Google"
	}
	return m.name
}

func (m *MockOAuthProvider) AuthCodeURL(ctx context.Context, callbackURL string) (string, error) {
	args := m.Called(ctx, callbackURL)
	return args.String(0), args.Error(1)
}

func (m *MockOAuthProvider) Complete(ctx context.Context, code, state string) (*auth.OAuthIdentity, error) {
	args := m.Called(ctx, code, state)
	identity, _ := args.Get(0).(*auth.OAuthIdentity)
	return identity, args.Error(1)
}

// MockIdentityStore implements auth.IdentityStore
type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) CreateAccount(ctx context.Context, profile auth.AccountProfile, password string) (*auth.Account, error) {
	args := m.Called(ctx, profile, password)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *MockIdentityStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *MockIdentityStore) CheckPassword(ctx context.Context, account *auth.Account, password string) error {
	args := m.Called(ctx, account, password)
	return args.Error(0)
}

func (m *MockIdentityStore) GenerateConfirmationToken(ctx context.Context, account *auth.Account) (string, error) {
	args := m.Called(ctx, account)
	return args.String(0), args.Error(1)
}

func (m *MockIdentityStore) ConfirmEmail(ctx context.Context, account *auth.Account, token string) error {
	args := m.Called(ctx, account, token)
	return args.Error(0)
}

func (m *MockIdentityStore) RecordSignIn(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// recordingSink collects activity events
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) Types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// quietLogger discards everything
type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

// newTestStore opens a migrated in-memory database
func newTestStore(t *testing.T, opts ...auth.AccountStoreOption) *auth.AccountStore {
	t.Helper()

	client, err := auth.OpenPersistence(auth.PersistenceConfig{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.DB().Close() })

	require.NoError(t, auth.Migrate(context.Background(), client))

	opts = append([]auth.AccountStoreOption{
		auth.WithPasswordCost(4),
		auth.WithStoreLogger(quietLogger{}),
	}, opts...)

	return auth.NewAccountStoreFromDB(client.DB(), opts...)
}

var testLinks = auth.BaseURLLinkBuilder{Scheme: "https", Host: "auth.example.com"}
