// Package mail delivers verification and password-reset messages.
package mail

import (
	"context"
	"embed"
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Chanzhaoyu/nest-blog-api/internal/logging"
)

// Notifier sends one-time token links. Errors are returned to the caller.
type Notifier interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	verificationTemplate  = "verification.html"
	passwordResetTemplate = "password_reset.html"

	verificationSubject  = "Verify your email"
	passwordResetSubject = "Reset your password"
)

type bodyData struct {
	Link     string
	Validity string
}

// VerificationLink builds <clientURL>/verify-email?token=<token>.
func VerificationLink(clientURL, token string) string {
	return link(clientURL, "/verify-email", token)
}

// PasswordResetLink builds <clientURL>/reset-password?token=<token>.
func PasswordResetLink(clientURL, token string) string {
	return link(clientURL, "/reset-password", token)
}

func link(clientURL, path, token string) string {
	return strings.TrimRight(clientURL, "/") + path + "?token=" + url.QueryEscape(token)
}

func render(name, link string, validity time.Duration) (string, error) {
	var b strings.Builder
	err := templates.ExecuteTemplate(&b, name, bodyData{Link: link, Validity: humanize(validity)})
	return b.String(), err
}

func humanize(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short while"
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d.Round(time.Minute)/time.Minute), "minute")
	}
}

func plural(n int, unit string) string {
	s := strconv.Itoa(n) + " " + unit
	if n != 1 {
		s += "s"
	}
	return s
}

// LogNotifier writes the links to the debug log instead of sending mail.
// Meant for local development without an SMTP relay.
type LogNotifier struct {
	clientURL string
	logger    logging.Logger
}

func NewLogNotifier(clientURL string, logger logging.Logger) *LogNotifier {
	return &LogNotifier{clientURL: clientURL, logger: logger}
}

func (n *LogNotifier) SendVerification(ctx context.Context, email, token string) error {
	n.logger.Debug(ctx, "verification mail", "to", email, "link", VerificationLink(n.clientURL, token))
	return nil
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	n.logger.Debug(ctx, "password reset mail", "to", email, "link", PasswordResetLink(n.clientURL, token))
	return nil
}
