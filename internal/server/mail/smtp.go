package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/Chanzhaoyu/nest-blog-api/internal/logging"
	gomail "github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// ClientURL is the front-end origin the links point to.
	ClientURL string
	// LinkValidity is shown in the message body.
	LinkValidity time.Duration
}

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// newSender is a seam for tests.
var newSender = func(cfg SMTPConfig) (sender, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(15 * time.Second),
	}
	if cfg.Port == 465 {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSMandatory))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	return gomail.NewClient(cfg.Host, opts...)
}

// SMTPNotifier delivers HTML messages through an SMTP relay.
type SMTPNotifier struct {
	cfg    SMTPConfig
	client sender
	logger logging.Logger
}

func NewSMTPNotifier(cfg SMTPConfig, logger logging.Logger) (*SMTPNotifier, error) {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	client, err := newSender(cfg)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPNotifier{cfg: cfg, client: client, logger: logger}, nil
}

func (n *SMTPNotifier) SendVerification(ctx context.Context, email, token string) error {
	return n.send(ctx, email, verificationSubject, verificationTemplate, VerificationLink(n.cfg.ClientURL, token))
}

func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	return n.send(ctx, email, passwordResetSubject, passwordResetTemplate, PasswordResetLink(n.cfg.ClientURL, token))
}

func (n *SMTPNotifier) send(ctx context.Context, to, subject, tmpl, link string) error {
	body, err := render(tmpl, link, n.cfg.LinkValidity)
	if err != nil {
		return fmt.Errorf("render %s: %w", tmpl, err)
	}

	msg := gomail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetBodyString(gomail.TypeTextHTML, body)

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		n.logger.Error(ctx, "mail delivery failed", "to", to, "subject", subject, "error", err)
		return fmt.Errorf("send mail: %w", err)
	}

	n.logger.Info(ctx, "mail sent", "to", to, "subject", subject)
	return nil
}
