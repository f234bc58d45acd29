package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const (
	ConfirmEmailPath        = "/account/confirmemail"
	ConfirmationPendingPath = "/account/confirmationpending"
	GoogleLoginCallbackPath = "/account/googlelogincallback"

	ConfirmationMailSubject = "Confirm Email"
)

// LinkBuilder turns an application path plus query into an absolute URL the
// client can follow.
type LinkBuilder interface {
	Link(path string, query url.Values) string
}

// LinkBuilderFunc adapts a function to LinkBuilder
type LinkBuilderFunc func(path string, query url.Values) string

func (f LinkBuilderFunc) Link(path string, query url.Values) string {
	return f(path, query)
}

// BaseURLLinkBuilder builds links from a fixed scheme and host, e.g. the
// scheme and host of the request being served.
type BaseURLLinkBuilder struct {
	Scheme string
	Host   string
}

// NewBaseURLLinkBuilder parses base (scheme://host) into a builder
func NewBaseURLLinkBuilder(base string) (BaseURLLinkBuilder, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return BaseURLLinkBuilder{}, NewConfigurationError(fmt.Sprintf("invalid public base url %q", base))
	}
	return BaseURLLinkBuilder{Scheme: u.Scheme, Host: u.Host}, nil
}

func (b BaseURLLinkBuilder) Link(path string, query url.Values) string {
	u := url.URL{
		Scheme: b.Scheme,
		Host:   b.Host,
		Path:   path,
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// ConfirmationLink builds the confirmation endpoint URL carrying token and
// email as query parameters.
func ConfirmationLink(links LinkBuilder, token, email string) string {
	return links.Link(ConfirmEmailPath, url.Values{
		"token": []string{token},
		"email": []string{email},
	})
}

// ConfirmationMailBody is the HTML body of the confirmation email
func ConfirmationMailBody(link string) string {
	return "Dear customer please confirm your email with this confirmation link: " + link
}

// sendConfirmation runs the first half of the handshake: a token scoped to
// the account and its current email, a link, and one email.
func (c *Controller) sendConfirmation(ctx context.Context, account *Account, links LinkBuilder) (string, error) {
	token, err := c.store.GenerateConfirmationToken(ctx, account)
	if err != nil {
		return "", err
	}

	link := ConfirmationLink(links, token, account.Email)

	sendCtx := ctx
	if c.mailTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, c.mailTimeout)
		defer cancel()
	}

	if err := c.mail.Send(sendCtx, account.Email, ConfirmationMailSubject, ConfirmationMailBody(link)); err != nil {
		c.logger.Error("failed to send confirmation email to account %s: %v", account.ID, err)
		c.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventMailFailure,
			AccountID: account.ID.String(),
		})
		return "", wrapMailError(err)
	}

	c.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventConfirmationSent,
		AccountID: account.ID.String(),
		Email:     account.Email,
	})

	return link, nil
}
