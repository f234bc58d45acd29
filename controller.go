package auth

import (
	"context"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultMailTimeout bounds a single confirmation email dispatch
const DefaultMailTimeout = 10 * time.Second

// LoginResultKind tags the variant held by a LoginResult
type LoginResultKind int

const (
	// LoginResultToken carries a session token
	LoginResultToken LoginResultKind = iota + 1
	// LoginResultRedirect is a challenge: send the client to RedirectURL
	LoginResultRedirect
	// LoginResultConfirmationRequired means a confirmation email went out
	// and no session was issued
	LoginResultConfirmationRequired
)

func (k LoginResultKind) String() string {
	switch k {
	case LoginResultToken:
		return "token"
	case LoginResultRedirect:
		return "redirect"
	case LoginResultConfirmationRequired:
		return "confirmation_required"
	default:
		return "unknown"
	}
}

// LoginResult is the outcome of a login attempt that did not fail
type LoginResult struct {
	Kind        LoginResultKind
	Session     *AuthenticationResponse
	RedirectURL string
	Message     string
}

// Controller drives the account lifecycle: registration, login, email
// confirmation and federated sign in.
type Controller struct {
	store       IdentityStore
	mail        MailGateway
	tokens      *TokenIssuer
	providers   map[string]OAuthProvider
	activity    ActivitySink
	logger      Logger
	mailTimeout time.Duration
	phoneRegion string
	now         func() time.Time
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithOAuthProvider registers a federated login provider under its name
func WithOAuthProvider(provider OAuthProvider) ControllerOption {
	return func(c *Controller) {
		if provider == nil {
			return
		}
		c.providers[strings.ToLower(provider.Name())] = provider
	}
}

func WithActivitySink(sink ActivitySink) ControllerOption {
	return func(c *Controller) {
		c.activity = normalizeActivitySink(sink)
	}
}

func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMailTimeout bounds confirmation email dispatch. Zero disables the bound.
func WithMailTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d >= 0 {
			c.mailTimeout = d
		}
	}
}

// WithPhoneRegion enables region aware phone number validation
func WithPhoneRegion(region string) ControllerOption {
	return func(c *Controller) {
		c.phoneRegion = strings.TrimSpace(region)
	}
}

func WithControllerClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController wires the lifecycle controller to its collaborators
func NewController(store IdentityStore, mail MailGateway, tokens *TokenIssuer, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:       store,
		mail:        mail,
		tokens:      tokens,
		providers:   make(map[string]OAuthProvider),
		activity:    noopActivitySink{},
		logger:      defLogger{},
		mailTimeout: DefaultMailTimeout,
		now:         time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// Register creates an unconfirmed account and signs it in right away.
// Confirmation is only enforced on later password logins.
func (c *Controller) Register(ctx context.Context, req RegistrationRequest) (*AuthenticationResponse, error) {
	if err := req.ValidateForRegion(c.phoneRegion); err != nil {
		return nil, err
	}
	req = req.Normalize()

	account, err := c.store.CreateAccount(ctx, AccountProfile{
		Email:       req.Email,
		PersonName:  req.PersonName,
		PhoneNumber: req.PhoneNumber,
	}, req.Password)
	if err != nil {
		if IsCreationError(err) {
			c.logger.Info("registration rejected: %v", err)
			return nil, err
		}
		return nil, c.internal(err, "failed to create account")
	}

	c.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		AccountID: account.ID.String(),
		Email:     account.Email,
		FromState: AccountStateUnregistered,
		ToState:   StateOf(account),
	})

	return c.signIn(ctx, account)
}

// Login authenticates with a password, or starts a federated login when the
// request names a provider. Unknown email and wrong password fail with the
// same AuthError text.
func (c *Controller) Login(ctx context.Context, req LoginRequest, links LinkBuilder) (*LoginResult, error) {
	if req.IsFederated() {
		return c.BeginOAuth(ctx, req.Provider, links)
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	account, err := c.store.FindByEmail(ctx, req.Email)
	if err != nil {
		if IsNotFoundError(err) {
			_ = c.store.CheckPassword(ctx, nil, req.Password)
			return nil, c.loginFailed(ctx, nil, req.Email, "unknown_email")
		}
		return nil, c.internal(err, "failed to look up account")
	}

	if err := c.store.CheckPassword(ctx, account, req.Password); err != nil {
		if IsMismatchedPassword(err) {
			return nil, c.loginFailed(ctx, account, req.Email, "invalid_password")
		}
		return nil, c.internal(err, "failed to verify password")
	}

	if !CanIssuePasswordSession(StateOf(account)) {
		if _, err := c.sendConfirmation(ctx, account, links); err != nil {
			return nil, err
		}
		return &LoginResult{
			Kind:        LoginResultConfirmationRequired,
			RedirectURL: links.Link(ConfirmationPendingPath, nil),
			Message:     MsgConfirmationSent,
		}, nil
	}

	session, err := c.signIn(ctx, account)
	if err != nil {
		return nil, err
	}

	c.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		AccountID: account.ID.String(),
		Email:     account.Email,
		Metadata:  map[string]any{"method": "password"},
	})

	return &LoginResult{Kind: LoginResultToken, Session: session}, nil
}

// BeginOAuth returns the redirect challenge for provider. The provider will
// call back on OAuthCallbackPath(provider).
func (c *Controller) BeginOAuth(ctx context.Context, providerName string, links LinkBuilder) (*LoginResult, error) {
	provider, ok := c.provider(providerName)
	if !ok {
		return nil, NewValidationError(MsgProviderNotSupported)
	}

	callbackURL := links.Link(OAuthCallbackPath(provider.Name()), nil)

	redirectURL, err := provider.AuthCodeURL(ctx, callbackURL)
	if err != nil {
		c.logger.Error("failed to build %s authorization url: %v", provider.Name(), err)
		return nil, NewAuthError(MsgProviderFailed)
	}

	c.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventSocialChallengeIssued,
		Metadata:  map[string]any{"provider": provider.Name()},
	})

	return &LoginResult{Kind: LoginResultRedirect, RedirectURL: redirectURL}, nil
}

// OAuthCallback completes a federated login. New identities are created
// already confirmed and never receive a confirmation email.
func (c *Controller) OAuthCallback(ctx context.Context, providerName, code, state string) (*AuthenticationResponse, error) {
	provider, ok := c.provider(providerName)
	if !ok {
		return nil, NewAuthError(MsgProviderFailed)
	}

	identity, err := provider.Complete(ctx, code, state)
	if err != nil || identity == nil || strings.TrimSpace(identity.Email) == "" {
		if err != nil {
			c.logger.Warn("%s handshake failed: %v", provider.Name(), err)
		}
		c.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventSocialLoginFailure,
			Metadata:  map[string]any{"provider": provider.Name()},
		})
		return nil, NewAuthError(MsgProviderFailed)
	}

	account, err := c.store.FindByEmail(ctx, identity.Email)
	switch {
	case err == nil:
	case IsNotFoundError(err):
		account, err = c.store.CreateAccount(ctx, AccountProfile{
			Email:          identity.Email,
			PersonName:     identity.Name,
			EmailConfirmed: true,
		}, "")
		if err != nil {
			if IsCreationError(err) {
				return nil, err
			}
			return nil, c.internal(err, "failed to create federated account")
		}
		c.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventAccountRegistered,
			AccountID: account.ID.String(),
			Email:     account.Email,
			FromState: AccountStateUnregistered,
			ToState:   AccountStateConfirmed,
			Metadata:  map[string]any{"provider": provider.Name()},
		})
	default:
		return nil, c.internal(err, "failed to look up account")
	}

	session, err := c.signIn(ctx, account)
	if err != nil {
		return nil, err
	}

	c.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventSocialLogin,
		AccountID: account.ID.String(),
		Email:     account.Email,
		Metadata:  map[string]any{"provider": provider.Name()},
	})

	return session, nil
}

// ConfirmEmail consumes a confirmation token for email and signs the account
// in. Invalid, expired and reused tokens are reported as one TokenError.
func (c *Controller) ConfirmEmail(ctx context.Context, token, email string) (*Account, error) {
	account, err := c.store.FindByEmail(ctx, email)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, NewNotFoundError(MsgAccountNotFound)
		}
		return nil, c.internal(err, "failed to look up account")
	}

	decoded, err := url.QueryUnescape(token)
	if err != nil {
		return nil, c.confirmationFailed(ctx, account)
	}

	from := StateOf(account)
	if err := c.store.ConfirmEmail(ctx, account, decoded); err != nil {
		if IsTokenError(err) {
			return nil, c.confirmationFailed(ctx, account)
		}
		return nil, c.internal(err, "failed to confirm email")
	}
	account.EmailConfirmed = true

	if err := c.store.RecordSignIn(ctx, account); err != nil {
		c.logger.Warn("failed to record sign in for account %s: %v", account.ID, err)
	}

	c.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventEmailConfirmed,
		AccountID: account.ID.String(),
		Email:     account.Email,
	})
	if from != AccountStateConfirmed {
		c.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventAccountStateChanged,
			AccountID: account.ID.String(),
			FromState: from,
			ToState:   AccountStateConfirmed,
		})
	}

	return account, nil
}

// Providers lists the registered federated provider names
func (c *Controller) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// OAuthCallbackPath is where provider redirects back to, e.g.
// /account/googlelogincallback.
func OAuthCallbackPath(provider string) string {
	return "/account/" + strings.ToLower(provider) + "logincallback"
}

func (c *Controller) provider(name string) (OAuthProvider, bool) {
	p, ok := c.providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

func (c *Controller) signIn(ctx context.Context, account *Account) (*AuthenticationResponse, error) {
	if err := c.store.RecordSignIn(ctx, account); err != nil {
		c.logger.Warn("failed to record sign in for account %s: %v", account.ID, err)
	}

	session, err := c.tokens.CreateSessionToken(account)
	if err != nil {
		return nil, c.internal(err, "failed to issue session token")
	}
	return session, nil
}

func (c *Controller) loginFailed(ctx context.Context, account *Account, email, reason string) error {
	event := ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Email:     NormalizeEmail(email),
		Metadata:  map[string]any{"reason": reason},
	}
	if account != nil {
		event.AccountID = account.ID.String()
	}
	c.recordActivity(ctx, event)
	return NewAuthError(MsgIncorrectCredentials)
}

func (c *Controller) confirmationFailed(ctx context.Context, account *Account) error {
	c.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventConfirmationFailure,
		AccountID: account.ID.String(),
		Email:     account.Email,
	})
	return NewTokenError()
}

func (c *Controller) internal(err error, message string) error {
	c.logger.Error("%s: %v", message, err)
	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}

func (c *Controller) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = c.now()
	}

	sink := normalizeActivitySink(c.activity)
	if err := sink.Record(ctx, event); err != nil {
		c.logger.Warn("activity sink error: %v", err)
	}
}
