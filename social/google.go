package social

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-verified-auth"
	"golang.org/x/oauth2"
)

const (
	GoogleProviderName = "Google"

	defaultGoogleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// GoogleConfig holds Google OAuth configuration.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client

	// IDTokens, when set, verifies the id_token returned with the access
	// token and pins its subject to the userinfo subject.
	IDTokens *IDTokenVerifier
}

// DefaultGoogleScopes returns the default Google scopes.
func DefaultGoogleScopes() []string {
	return []string{"openid", "email", "profile"}
}

// GoogleProvider runs the authorization code flow with PKCE against Google
// and reports the verified email and name.
type GoogleProvider struct {
	config     GoogleConfig
	states     StateManager
	httpClient *http.Client
	logger     auth.Logger
}

var _ auth.OAuthProvider = (*GoogleProvider)(nil)

// NewGoogleProvider creates a new Google provider.
func NewGoogleProvider(cfg GoogleConfig, states StateManager, logger auth.Logger) *GoogleProvider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultGoogleScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultGoogleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultGoogleTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultGoogleUserInfoURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &GoogleProvider{
		config:     cfg,
		states:     states,
		httpClient: client,
		logger:     logger,
	}
}

func (p *GoogleProvider) Name() string {
	return GoogleProviderName
}

// AuthCodeURL builds the consent URL. The PKCE verifier and callback URL
// ride along in the encrypted state.
func (p *GoogleProvider) AuthCodeURL(_ context.Context, callbackURL string) (string, error) {
	verifier := oauth2.GenerateVerifier()

	state, err := p.states.Encode(&OAuthState{
		Provider:     strings.ToLower(GoogleProviderName),
		CodeVerifier: verifier,
		CallbackURL:  callbackURL,
	})
	if err != nil {
		return "", err
	}

	return p.oauthConfig(callbackURL).AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(verifier),
	), nil
}

// Complete validates state, exchanges code and fetches the user profile.
func (p *GoogleProvider) Complete(ctx context.Context, code, state string) (*auth.OAuthIdentity, error) {
	st, err := p.states.Decode(state)
	if err != nil {
		return nil, err
	}
	if st.Provider != strings.ToLower(GoogleProviderName) {
		return nil, ErrInvalidState
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrTokenExchangeFailed
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	conf := p.oauthConfig(st.CallbackURL)

	token, err := conf.Exchange(ctx, code, oauth2.VerifierOption(st.CodeVerifier))
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("google token exchange failed: %v", err)
		}
		return nil, errors.Wrap(err, ErrTokenExchangeFailed.Category, ErrTokenExchangeFailed.Message).
			WithTextCode(TextCodeTokenExchangeFail)
	}

	var claims *IDTokenClaims
	if p.config.IDTokens != nil {
		raw, _ := token.Extra("id_token").(string)
		if claims, err = p.config.IDTokens.Verify(raw); err != nil {
			if p.logger != nil {
				p.logger.Warn("google id token rejected: %v", err)
			}
			return nil, err
		}
	}

	info, err := p.userInfo(ctx, conf.Client(ctx, token))
	if err != nil {
		return nil, err
	}

	if claims != nil && claims.Subject != info.Sub {
		return nil, idTokenError("subject mismatch")
	}

	if !info.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	return &auth.OAuthIdentity{
		Email: info.Email,
		Name:  info.displayName(),
	}, nil
}

func (p *GoogleProvider) oauthConfig(callbackURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		RedirectURL:  callbackURL,
		Scopes:       p.config.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.config.AuthURL,
			TokenURL:  p.config.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (p *GoogleProvider) userInfo(ctx context.Context, client *http.Client) (*googleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to build userinfo request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, ErrUserInfoFailed.Category, ErrUserInfoFailed.Message).
			WithTextCode(TextCodeUserInfoFail)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, ErrUserInfoFailed.Category, ErrUserInfoFailed.Message).
			WithTextCode(TextCodeUserInfoFail)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, userInfoError(map[string]any{"status": resp.StatusCode})
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, userInfoError(map[string]any{"reason": "invalid userinfo response"})
	}

	if info.Email == "" {
		return nil, userInfoError(map[string]any{"reason": "missing email claim"})
	}

	return &info, nil
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

func (i googleUserInfo) displayName() string {
	if i.Name != "" {
		return i.Name
	}
	return strings.TrimSpace(i.GivenName + " " + i.FamilyName)
}
