package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const (
	msgUnexpectedError   = "An unexpected error occurred"
	msgTooManyLogins     = "Too many login attempts, please try again later"
	headerForwardedProto = "X-Forwarded-Proto"
)

// ProblemDetails is the failure body for every endpoint
type ProblemDetails struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type AccountControllerRoutes struct {
	Register            string
	Login               string
	ConfirmEmail        string
	ConfirmationPending string
	Session             string
	Health              string
}

// SessionInfo describes the session a bearer token belongs to
type SessionInfo struct {
	AccountID  string    `json:"account_id"`
	Email      string    `json:"email"`
	PersonName string    `json:"person_name"`
	TokenID    string    `json:"token_id"`
	Expiration time.Time `json:"expiration"`
}

type AccountControllerOption func(*AccountController) *AccountController

// AccountController exposes the lifecycle controller over JSON HTTP
type AccountController struct {
	Debug          bool
	Logger         Logger
	Lifecycle      *Controller
	Routes         *AccountControllerRoutes
	Links          LinkBuilder
	LoginRateLimit int
}

func WithAccountControllerDebug(debug bool) AccountControllerOption {
	return func(ac *AccountController) *AccountController {
		ac.Debug = debug
		return ac
	}
}

func WithAccountControllerLogger(logger Logger) AccountControllerOption {
	return func(ac *AccountController) *AccountController {
		if logger != nil {
			ac.Logger = logger
		}
		return ac
	}
}

// WithPublicLinks pins the scheme and host used in generated links instead
// of deriving them from each request.
func WithPublicLinks(links LinkBuilder) AccountControllerOption {
	return func(ac *AccountController) *AccountController {
		ac.Links = links
		return ac
	}
}

// WithLoginRateLimit caps login attempts per client IP per minute. Zero
// disables the limiter.
func WithLoginRateLimit(max int) AccountControllerOption {
	return func(ac *AccountController) *AccountController {
		ac.LoginRateLimit = max
		return ac
	}
}

func NewAccountController(lifecycle *Controller, opts ...AccountControllerOption) *AccountController {
	ac := &AccountController{
		Logger:    defLogger{},
		Lifecycle: lifecycle,
		Routes: &AccountControllerRoutes{
			Register:            "/account/register",
			Login:               "/account/login",
			ConfirmEmail:        ConfirmEmailPath,
			ConfirmationPending: ConfirmationPendingPath,
			Session:             "/account/session",
			Health:              "/healthz",
		},
	}

	for _, opt := range opts {
		ac = opt(ac)
	}

	if ac.Lifecycle == nil {
		panic("Missing lifecycle Controller in account controller...")
	}

	return ac
}

// RegisterAccountRoutes mounts every account endpoint on app
func RegisterAccountRoutes[T any](app router.Router[T], ac *AccountController) {
	app.Post(ac.Routes.Register, ac.Register).
		SetName("register.post")

	app.Post(ac.Routes.Login, ac.Login).
		SetName("login.post")

	app.Get(ac.Routes.ConfirmEmail, ac.ConfirmEmail).
		SetName("confirm-email.get")
	app.Post(ac.Routes.ConfirmEmail, ac.ConfirmEmail).
		SetName("confirm-email.post")

	app.Get(ac.Routes.ConfirmationPending, ac.ConfirmationPending).
		SetName("confirmation-pending.get")

	if ac.Lifecycle.tokens != nil {
		app.Get(ac.Routes.Session, ac.Session, RequireSession(SessionConfig{
			Validator: ac.Lifecycle.tokens,
		})).SetName("session.get")
	}

	for _, name := range ac.Lifecycle.Providers() {
		app.Get(OAuthCallbackPath(name), ac.OAuthCallback(name)).
			SetName(name + "-callback.get")
	}

	app.Get(ac.Routes.Health, func(ctx router.Context) error {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}).SetName("health.get")
}

// UseLoginLimiter caps POST requests to the login route per client IP on
// the fiber app backing the router. It does nothing when the limit is zero.
func UseLoginLimiter(app fiber.Router, ac *AccountController) {
	if ac.LoginRateLimit <= 0 {
		return
	}

	app.Use(ac.Routes.Login, limiter.New(limiter.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Method() != fiber.MethodPost
		},
		Max:        ac.LoginRateLimit,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			status := fiber.StatusTooManyRequests
			return c.Status(status).JSON(newProblem(status, msgTooManyLogins))
		},
	}))
}

func (ac *AccountController) Register(ctx router.Context) error {
	var req RegistrationRequest
	if err := ctx.Bind(&req); err != nil {
		return problem(ctx, http.StatusBadRequest, "Invalid request body")
	}

	if ac.Debug {
		redacted := req
		redacted.Password, redacted.ConfirmPassword = "***", "***"
		ac.Logger.Debug("register payload: %s", print.MaybePrettyJSON(redacted))
	}

	resp, err := ac.Lifecycle.Register(ctx.Context(), req)
	if err != nil {
		return ac.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, resp)
}

func (ac *AccountController) Login(ctx router.Context) error {
	var req LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return problem(ctx, http.StatusBadRequest, "Invalid request body")
	}

	result, err := ac.Lifecycle.Login(ctx.Context(), req, ac.links(ctx))
	if err != nil {
		return ac.fail(ctx, err)
	}

	if ac.Debug {
		ac.Logger.Debug("login result: %s", result.Kind)
	}

	switch result.Kind {
	case LoginResultRedirect:
		return ctx.Redirect(result.RedirectURL, http.StatusFound)
	case LoginResultConfirmationRequired:
		ctx.SetHeader(fiber.HeaderLocation, result.RedirectURL)
		return ctx.JSON(http.StatusFound, map[string]string{"message": result.Message})
	default:
		return ctx.JSON(http.StatusOK, result.Session)
	}
}

func (ac *AccountController) ConfirmEmail(ctx router.Context) error {
	if _, err := ac.Lifecycle.ConfirmEmail(ctx.Context(), ctx.Query("token", ""), ctx.Query("email", "")); err != nil {
		return ac.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, MsgEmailConfirmed)
}

func (ac *AccountController) ConfirmationPending(ctx router.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"message": MsgConfirmationSent})
}

// Session echoes the claims of the caller's session token
func (ac *AccountController) Session(ctx router.Context) error {
	claims, ok := SessionFromContext(ctx)
	if !ok {
		return problem(ctx, http.StatusUnauthorized, MsgSessionInvalid)
	}

	info := SessionInfo{
		AccountID:  claims.Subject,
		Email:      claims.Email,
		PersonName: claims.Name,
		TokenID:    claims.ID,
	}
	if claims.ExpiresAt != nil {
		info.Expiration = claims.ExpiresAt.Time.UTC()
	}
	return ctx.JSON(http.StatusOK, info)
}

// OAuthCallback returns the handler for the redirect back from provider
func (ac *AccountController) OAuthCallback(provider string) router.HandlerFunc {
	return func(ctx router.Context) error {
		if reason := ctx.Query("error", ""); reason != "" {
			ac.Logger.Warn("%s returned error on callback: %s", provider, reason)
			return ac.fail(ctx, NewAuthError(MsgProviderFailed))
		}

		resp, err := ac.Lifecycle.OAuthCallback(ctx.Context(), provider, ctx.Query("code", ""), ctx.Query("state", ""))
		if err != nil {
			return ac.fail(ctx, err)
		}

		if ac.Debug {
			ac.Logger.Debug("oauth session issued: %s", print.MaybePrettyJSON(map[string]any{
				"provider":   provider,
				"email":      resp.Email,
				"expiration": resp.Expiration,
			}))
		}

		return ctx.JSON(http.StatusOK, resp)
	}
}

// links derives scheme and host from the request unless they were pinned
func (ac *AccountController) links(ctx router.Context) LinkBuilder {
	if ac.Links != nil {
		return ac.Links
	}
	return BaseURLLinkBuilder{
		Scheme: ctx.GetString(headerForwardedProto, "http"),
		Host:   ctx.GetString(fiber.HeaderHost, ""),
	}
}

func (ac *AccountController) fail(ctx router.Context, err error) error {
	if msg, ok := ClientMessage(err); ok {
		status := http.StatusBadRequest
		switch {
		case IsMailDeliveryError(err):
			status = http.StatusServiceUnavailable
		case IsSessionError(err):
			status = http.StatusUnauthorized
		}
		return problem(ctx, status, msg)
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && ac.Debug {
		ac.Logger.Error("request failed: %s details=%s", richErr.Message, print.MaybePrettyJSON(richErr.Metadata))
	} else {
		ac.Logger.Error("request failed: %v", err)
	}

	return problem(ctx, http.StatusInternalServerError, msgUnexpectedError)
}

func problem(ctx router.Context, status int, detail string) error {
	return ctx.JSON(status, newProblem(status, detail))
}

func newProblem(status int, detail string) ProblemDetails {
	return ProblemDetails{
		Title:  statusTitle(status),
		Status: status,
		Detail: detail,
	}
}

func statusTitle(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Bad Request"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusTooManyRequests:
		return "Too Many Requests"
	case http.StatusServiceUnavailable:
		return "Service Unavailable"
	default:
		return "An error occurred while processing your request."
	}
}
