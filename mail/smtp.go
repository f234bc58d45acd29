// Package mail delivers account emails over SMTP.
package mail

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-verified-auth"
	gomail "github.com/wneessen/go-mail"
)

// SMTPGateway sends one HTML message per call. A new connection is opened
// for every message, nothing is queued or retried.
type SMTPGateway struct {
	config auth.MailConfig
	logger auth.Logger
}

var _ auth.MailGateway = (*SMTPGateway)(nil)

// NewSMTPGateway validates cfg and returns a gateway
func NewSMTPGateway(cfg auth.MailConfig, logger auth.Logger) (*SMTPGateway, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, auth.NewConfigurationError("mail host is required")
	}
	if cfg.Sender() == "" {
		return nil, auth.NewConfigurationError("mail sender address is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}

	return &SMTPGateway{config: cfg, logger: logger}, nil
}

func (g *SMTPGateway) Send(ctx context.Context, toEmail, subject, htmlBody string) error {
	msg, err := g.buildMessage(toEmail, subject, htmlBody)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(g.config.Host, g.clientOptions()...)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create smtp client")
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver email").
			WithMetadata(map[string]any{"host": g.config.Host, "port": g.config.Port})
	}

	if g.logger != nil {
		g.logger.Debug("email %q delivered via %s", subject, g.config.Host)
	}

	return nil
}

func (g *SMTPGateway) buildMessage(toEmail, subject, htmlBody string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()

	if err := msg.From(g.config.Sender()); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid sender address")
	}
	if err := msg.To(toEmail); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid recipient address")
	}

	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)

	return msg, nil
}

func (g *SMTPGateway) clientOptions() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(g.config.Port),
	}

	if g.config.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(g.config.Timeout))
	} else {
		opts = append(opts, gomail.WithTimeout(10*time.Second))
	}

	if g.config.StartTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}

	if g.config.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(g.config.Username),
			gomail.WithPassword(g.config.Password),
		)
	}

	return opts
}

// LogGateway only logs messages. Used when no SMTP host is configured.
type LogGateway struct {
	Logger auth.Logger
}

func (g LogGateway) Send(_ context.Context, toEmail, subject, htmlBody string) error {
	if g.Logger != nil {
		g.Logger.Info("mail to=%s subject=%q body=%q", toEmail, subject, htmlBody)
	}
	return nil
}
