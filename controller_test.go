package auth_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-verified-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store      *auth.AccountStore
	mail       *recordingMail
	sink       *recordingSink
	provider   *MockOAuthProvider
	controller *auth.Controller
}

func newHarness(t *testing.T, opts ...auth.ControllerOption) *harness {
	t.Helper()

	tokens, err := auth.NewTokenIssuer(testTokenConfig())
	require.NoError(t, err)

	h := &harness{
		store:    newTestStore(t),
		mail:     &recordingMail{},
		sink:     &recordingSink{},
		provider: &MockOAuthProvider{},
	}

	opts = append([]auth.ControllerOption{
		auth.WithOAuthProvider(h.provider),
		auth.WithActivitySink(h.sink),
		auth.WithControllerLogger(quietLogger{}),
	}, opts...)

	h.controller = auth.NewController(h.store, h.mail, tokens, opts...)
	return h
}

func adaRegistration() auth.RegistrationRequest {
	return auth.RegistrationRequest{
		PersonName:      "Ada",
		Email:           "ada@x.com",
		PhoneNumber:     "5551234",
		Password:        "Secret1!",
		ConfirmPassword: "Secret1!",
	}
}

func (h *harness) registerAda(t *testing.T) {
	t.Helper()
	_, err := h.controller.Register(context.Background(), adaRegistration())
	require.NoError(t, err)
}

// confirmAda runs one unconfirmed login and consumes the mailed token
func (h *harness) confirmAda(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	result, err := h.controller.Login(ctx, auth.LoginRequest{Email: "ada@x.com", Password: "Secret1!"}, testLinks)
	require.NoError(t, err)
	require.Equal(t, auth.LoginResultConfirmationRequired, result.Kind)

	sent := h.mail.Sent()
	token, email := confirmationParams(t, sent[len(sent)-1])

	_, err = h.controller.ConfirmEmail(ctx, token, email)
	require.NoError(t, err)
}

func TestController_RegisterIssuesSession(t *testing.T) {
	h := newHarness(t)

	resp, err := h.controller.Register(context.Background(), adaRegistration())
	require.NoError(t, err)

	assert.Equal(t, "ada@x.com", resp.Email)
	assert.Equal(t, "Ada", resp.PersonName)
	assert.NotEmpty(t, resp.Token)

	account, err := h.store.FindByEmail(context.Background(), "ada@x.com")
	require.NoError(t, err)
	assert.False(t, account.EmailConfirmed)
	assert.Equal(t, auth.AccountStateUnconfirmed, auth.StateOf(account))

	claims := parseSessionToken(t, resp.Token, time.Now())
	assert.Equal(t, account.ID.String(), claims.Subject)

	assert.Empty(t, h.mail.Sent(), "registration does not send mail")
	assert.Contains(t, h.sink.Types(), auth.ActivityEventAccountRegistered)
}

func TestController_RegisterMismatchedPasswordsCreatesNothing(t *testing.T) {
	h := newHarness(t)

	req := adaRegistration()
	req.ConfirmPassword = "Secret2!"

	_, err := h.controller.Register(context.Background(), req)
	require.Error(t, err)
	assert.True(t, auth.IsValidationError(err))
	assert.Contains(t, err.Error(), auth.MsgPasswordMismatch)

	_, err = h.store.FindByEmail(context.Background(), "ada@x.com")
	assert.True(t, auth.IsNotFoundError(err))
}

func TestController_RegisterAggregatesFieldErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.controller.Register(context.Background(), auth.RegistrationRequest{
		Email:       "not-an-email",
		PhoneNumber: "555-12",
	})
	require.Error(t, err)
	require.True(t, auth.IsValidationError(err))

	msg, _ := auth.ClientMessage(err)
	assert.Equal(t, strings.Join([]string{
		auth.MsgPersonNameBlank,
		auth.MsgEmailFormat,
		auth.MsgPhoneDigits,
		auth.MsgPasswordBlank,
		auth.MsgPasswordConfirmBlank,
	}, "|"), msg)
}

func TestController_RegisterDuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.registerAda(t)

	req := adaRegistration()
	req.Email = "ADA@X.com"

	_, err := h.controller.Register(context.Background(), req)
	require.Error(t, err)
	assert.True(t, auth.IsCreationError(err))
	assert.Contains(t, err.Error(), "is already taken")
}

func TestController_RegisterWeakPassword(t *testing.T) {
	h := newHarness(t)

	req := adaRegistration()
	req.Password, req.ConfirmPassword = "secret", "secret"

	_, err := h.controller.Register(context.Background(), req)
	require.Error(t, err)
	assert.True(t, auth.IsCreationError(err))
	assert.Contains(t, err.Error(), "uppercase")
}

func TestController_LoginUnconfirmedSendsOneConfirmation(t *testing.T) {
	h := newHarness(t)
	h.registerAda(t)

	result, err := h.controller.Login(context.Background(), auth.LoginRequest{
		Email:    "Ada@X.com",
		Password: "Secret1!",
	}, testLinks)
	require.NoError(t, err)

	assert.Equal(t, auth.LoginResultConfirmationRequired, result.Kind)
	assert.Nil(t, result.Session)
	assert.Equal(t, "https://auth.example.com"+auth.ConfirmationPendingPath, result.RedirectURL)
	assert.Equal(t, auth.MsgConfirmationSent, result.Message)

	sent := h.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ada@x.com", sent[0].To)
	assert.Equal(t, auth.ConfirmationMailSubject, sent[0].Subject)

	token, email := confirmationParams(t, sent[0])
	assert.NotEmpty(t, token)
	assert.Equal(t, "ada@x.com", email)
	assert.True(t, strings.HasPrefix(sent[0].Body, "Dear customer please confirm your email"))
}

func TestController_LoginNoEnumeration(t *testing.T) {
	h := newHarness(t)
	h.registerAda(t)
	ctx := context.Background()

	_, unknownErr := h.controller.Login(ctx, auth.LoginRequest{Email: "nobody@x.com", Password: "Secret1!"}, testLinks)
	_, wrongErr := h.controller.Login(ctx, auth.LoginRequest{Email: "ada@x.com", Password: "wrong"}, testLinks)

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.True(t, auth.IsAuthError(unknownErr))
	assert.True(t, auth.IsAuthError(wrongErr))
	assert.Equal(t, clientText(t, unknownErr), clientText(t, wrongErr))
	assert.Equal(t, auth.MsgIncorrectCredentials, clientText(t, unknownErr))

	assert.Empty(t, h.mail.Sent(), "a wrong password never triggers confirmation mail")
}

func TestController_LoginWrongPasswordAfterConfirmation(t *testing.T) {
	h := newHarness(t)
	h.registerAda(t)
	h.confirmAda(t)

	_, err := h.controller.Login(context.Background(), auth.LoginRequest{Email: "ada@x.com", Password: "wrong"}, testLinks)
	require.Error(t, err)
	assert.Equal(t, auth.MsgIncorrectCredentials, clientText(t, err))
}

func TestController_LoginConfirmedIssuesSession(t *testing.T) {
	h := newHarness(t)
	h.registerAda(t)
	h.confirmAda(t)

	result, err := h.controller.Login(context.Background(), auth.LoginRequest{Email: "ada@x.com", Password: "Secret1!"}, testLinks)
	require.NoError(t, err)
	require.Equal(t, auth.LoginResultToken, result.Kind)
	require.NotNil(t, result.Session)
	assert.Equal(t, "ada@x.com", result.Session.Email)
	assert.Contains(t, h.sink.Types(), auth.ActivityEventLoginSuccess)
}

func TestController_LoginValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.controller.Login(context.Background(), auth.LoginRequest{}, testLinks)
	require.Error(t, err)
	assert.True(t, auth.IsValidationError(err))
}

func TestController_LoginMailFailureFailsRequest(t *testing.T) {
	h := newHarness(t)
	h.registerAda(t)
	h.mail.err = errors.New("smtp: connection refused")

	result, err := h.controller.Login(context.Background(), auth.LoginRequest{Email: "ada@x.com", Password: "Secret1!"}, testLinks)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, auth.IsMailDeliveryError(err))
	assert.Equal(t, auth.MsgMailDeliveryFailed, clientText(t, err))
	assert.Contains(t, h.sink.Types(), auth.ActivityEventMailFailure)
}

func TestController_LoginMailTimeout(t *testing.T) {
	tokens, err := auth.NewTokenIssuer(testTokenConfig())
	require.NoError(t, err)

	store := newTestStore(t)
	slow := auth.MailGateway(slowMail{})

	c := auth.NewController(store, slow, tokens,
		auth.WithMailTimeout(20*time.Millisecond),
		auth.WithControllerLogger(quietLogger{}),
	)

	_, err = c.Register(context.Background(), adaRegistration())
	require.NoError(t, err)

	_, err = c.Login(context.Background(), auth.LoginRequest{Email: "ada@x.com", Password: "Secret1!"}, testLinks)
	require.Error(t, err)
	assert.True(t, auth.IsMailDeliveryError(err))
}

type slowMail struct{}

func (slowMail) Send(ctx context.Context, _, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestController_ConfirmEmailSingleUse(t *testing.T) {
	h := newHarness(t)
	h.registerAda(t)
	ctx := context.Background()

	_, err := h.controller.Login(ctx, auth.LoginRequest{Email: "ada@x.com", Password: "Secret1!"}, testLinks)
	require.NoError(t, err)

	token, email := confirmationParams(t, h.mail.Sent()[0])

	account, err := h.controller.ConfirmEmail(ctx, token, email)
	require.NoError(t, err)
	assert.True(t, account.EmailConfirmed)
	assert.NotNil(t, account.LoggedInAt)

	_, err = h.controller.ConfirmEmail(ctx, token, email)
	require.Error(t, err)
	assert.True(t, auth.IsTokenError(err))
	assert.Equal(t, auth.MsgConfirmationFailed, clientText(t, err))

	types := h.sink.Types()
	assert.Contains(t, types, auth.ActivityEventEmailConfirmed)
	assert.Contains(t, types, auth.ActivityEventConfirmationFailure)
}

func TestController_ConfirmEmailAcceptsEscapedToken(t *testing.T) {
	h := newHarness(t)
	h.registerAda(t)
	ctx := context.Background()

	_, err := h.controller.Login(ctx, auth.LoginRequest{Email: "ada@x.com", Password: "Secret1!"}, testLinks)
	require.NoError(t, err)

	token, email := confirmationParams(t, h.mail.Sent()[0])

	_, err = h.controller.ConfirmEmail(ctx, url.QueryEscape(token), email)
	require.NoError(t, err)
}

func TestController_ConfirmEmailUnknownAccount(t *testing.T) {
	h := newHarness(t)

	_, err := h.controller.ConfirmEmail(context.Background(), "token", "ghost@x.com")
	require.Error(t, err)
	assert.True(t, auth.IsNotFoundError(err))
	assert.Equal(t, auth.MsgAccountNotFound, clientText(t, err))
}

func TestController_ConfirmEmailRejectsTokenForOtherAccount(t *testing.T) {
	h := newHarness(t)
	h.registerAda(t)
	ctx := context.Background()

	grace := adaRegistration()
	grace.PersonName, grace.Email = "Grace", "grace@x.com"
	_, err := h.controller.Register(ctx, grace)
	require.NoError(t, err)

	_, err = h.controller.Login(ctx, auth.LoginRequest{Email: "ada@x.com", Password: "Secret1!"}, testLinks)
	require.NoError(t, err)
	adaToken, _ := confirmationParams(t, h.mail.Sent()[0])

	_, err = h.controller.ConfirmEmail(ctx, adaToken, "grace@x.com")
	require.Error(t, err)
	assert.True(t, auth.IsTokenError(err))

	account, err := h.store.FindByEmail(ctx, "grace@x.com")
	require.NoError(t, err)
	assert.False(t, account.EmailConfirmed)

	_, err = h.controller.ConfirmEmail(ctx, adaToken, "ada@x.com")
	assert.NoError(t, err, "a rejected attempt does not burn the token")
}

func TestController_ConfirmEmailGarbageToken(t *testing.T) {
	h := newHarness(t)
	h.registerAda(t)

	_, err := h.controller.ConfirmEmail(context.Background(), "%zz", "ada@x.com")
	require.Error(t, err)
	assert.True(t, auth.IsTokenError(err))

	_, err = h.controller.ConfirmEmail(context.Background(), "not-a-token", "ada@x.com")
	require.Error(t, err)
	assert.True(t, auth.IsTokenError(err))
}

func TestController_LoginFederatedReturnsChallenge(t *testing.T) {
	h := newHarness(t)

	h.provider.On("AuthCodeURL", mock.Anything, "https://auth.example.com/account/googlelogincallback").
		Return("https://accounts.example.com/auth?state=s1", nil).Once()

	result, err := h.controller.Login(context.Background(), auth.LoginRequest{Provider: "Google"}, testLinks)
	require.NoError(t, err)

	assert.Equal(t, auth.LoginResultRedirect, result.Kind)
	assert.Equal(t, "https://accounts.example.com/auth?state=s1", result.RedirectURL)
	assert.Nil(t, result.Session)
	h.provider.AssertExpectations(t)
}

func TestController_LoginUnknownProvider(t *testing.T) {
	h := newHarness(t)

	_, err := h.controller.Login(context.Background(), auth.LoginRequest{Provider: "Facebook"}, testLinks)
	require.Error(t, err)
	assert.True(t, auth.IsValidationError(err))
	assert.Equal(t, auth.MsgProviderNotSupported, clientText(t, err))
}

func TestController_OAuthCallbackCreatesConfirmedAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.provider.On("Complete", mock.Anything, "code-1", "state-1").
		Return(&auth.OAuthIdentity{Email: "Linus@X.com", Name: "Linus"}, nil).Once()

	resp, err := h.controller.OAuthCallback(ctx, "google", "code-1", "state-1")
	require.NoError(t, err)
	assert.Equal(t, "Linus@X.com", resp.Email)
	assert.Equal(t, "Linus", resp.PersonName)

	account, err := h.store.FindByEmail(ctx, "linus@x.com")
	require.NoError(t, err)
	assert.True(t, account.EmailConfirmed)
	assert.Equal(t, auth.AccountStateConfirmed, auth.StateOf(account))
	assert.False(t, account.HasPassword())

	assert.Empty(t, h.mail.Sent(), "federated sign up never sends confirmation mail")
	assert.Contains(t, h.sink.Types(), auth.ActivityEventSocialLogin)
	h.provider.AssertExpectations(t)
}

func TestController_OAuthCallbackExistingAccount(t *testing.T) {
	h := newHarness(t)
	h.registerAda(t)
	ctx := context.Background()

	h.provider.On("Complete", mock.Anything, "code-2", "state-2").
		Return(&auth.OAuthIdentity{Email: "ada@x.com", Name: "Ada Lovelace"}, nil).Once()

	before, err := h.store.FindByEmail(ctx, "ada@x.com")
	require.NoError(t, err)

	resp, err := h.controller.OAuthCallback(ctx, "Google", "code-2", "state-2")
	require.NoError(t, err)

	claims := parseSessionToken(t, resp.Token, time.Now())
	assert.Equal(t, before.ID.String(), claims.Subject)
	assert.Equal(t, "Ada", claims.Name, "existing profile is not overwritten")
}

func TestController_OAuthCallbackProviderFailure(t *testing.T) {
	h := newHarness(t)

	h.provider.On("Complete", mock.Anything, "bad", "state").
		Return(nil, errors.New("exchange failed")).Once()

	_, err := h.controller.OAuthCallback(context.Background(), "google", "bad", "state")
	require.Error(t, err)
	assert.True(t, auth.IsAuthError(err))
	assert.Equal(t, auth.MsgProviderFailed, clientText(t, err))
	assert.Contains(t, h.sink.Types(), auth.ActivityEventSocialLoginFailure)
}

func TestController_OAuthCallbackEmptyEmail(t *testing.T) {
	h := newHarness(t)

	h.provider.On("Complete", mock.Anything, "code", "state").
		Return(&auth.OAuthIdentity{Name: "No Mail"}, nil).Once()

	_, err := h.controller.OAuthCallback(context.Background(), "google", "code", "state")
	require.Error(t, err)
	assert.True(t, auth.IsAuthError(err))
}

func TestController_StoreFailureIsInternal(t *testing.T) {
	tokens, err := auth.NewTokenIssuer(testTokenConfig())
	require.NoError(t, err)

	store := &MockIdentityStore{}
	store.On("FindByEmail", mock.Anything, "ada@x.com").Return(nil, errors.New("disk on fire"))

	c := auth.NewController(store, &recordingMail{}, tokens, auth.WithControllerLogger(quietLogger{}))

	_, err = c.Login(context.Background(), auth.LoginRequest{Email: "ada@x.com", Password: "Secret1!"}, testLinks)
	require.Error(t, err)
	assert.False(t, auth.IsAuthError(err))

	_, ok := auth.ClientMessage(err)
	assert.False(t, ok, "internal errors have no client message")
}

func TestController_LoginUnknownEmailStillComparesPassword(t *testing.T) {
	tokens, err := auth.NewTokenIssuer(testTokenConfig())
	require.NoError(t, err)

	store := &MockIdentityStore{}
	store.On("FindByEmail", mock.Anything, "nobody@x.com").Return(nil, auth.ErrAccountNotFound)
	store.On("CheckPassword", mock.Anything, (*auth.Account)(nil), "Secret1!").Return(auth.ErrMismatchedHashAndPassword).Once()

	c := auth.NewController(store, &recordingMail{}, tokens, auth.WithControllerLogger(quietLogger{}))

	_, err = c.Login(context.Background(), auth.LoginRequest{Email: "nobody@x.com", Password: "Secret1!"}, testLinks)
	require.Error(t, err)
	assert.True(t, auth.IsAuthError(err))
	store.AssertExpectations(t)
}

func TestController_RecordSignInFailureDoesNotBlockSession(t *testing.T) {
	tokens, err := auth.NewTokenIssuer(testTokenConfig())
	require.NoError(t, err)

	account := &auth.Account{ID: uuid.New(), Email: "ada@x.com", EmailConfirmed: true, PasswordHash: "x"}

	store := &MockIdentityStore{}
	store.On("FindByEmail", mock.Anything, "ada@x.com").Return(account, nil)
	store.On("CheckPassword", mock.Anything, account, "Secret1!").Return(nil)
	store.On("RecordSignIn", mock.Anything, account).Return(errors.New("write failed"))

	c := auth.NewController(store, &recordingMail{}, tokens, auth.WithControllerLogger(quietLogger{}))

	result, err := c.Login(context.Background(), auth.LoginRequest{Email: "ada@x.com", Password: "Secret1!"}, testLinks)
	require.NoError(t, err)
	assert.Equal(t, auth.LoginResultToken, result.Kind)
	store.AssertExpectations(t)
}

func TestController_ConcurrentRegistrationSingleWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := adaRegistration()
			req.PersonName = fmt.Sprintf("Ada %d", i)

			_, err := h.controller.Register(ctx, req)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case auth.IsCreationError(err):
				rejected++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, rejected)
}

func TestController_Providers(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []string{"Google"}, h.controller.Providers())
	assert.Equal(t, "/account/googlelogincallback", auth.OAuthCallbackPath("Google"))
}
