package service

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/vibast-solutions/ms-go-menu-auth/config"

	"github.com/sirupsen/logrus"
	mail "github.com/wneessen/go-mail"
)

const (
	verifyEmailPath   = "/verify-email"
	resetPasswordPath = "/reset-password"
	smtpsPort         = 465
)

// Notifier delivers account emails. Callers treat delivery as best-effort.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPlainEmail(ctx context.Context, to, subject, htmlBody string) error
}

type sendFunc func(ctx context.Context, client *mail.Client, msg *mail.Msg) error

type SMTPNotifier struct {
	cfg             config.SMTPConfig
	frontendBaseURL string
	send            sendFunc
}

func NewSMTPNotifier(cfg config.SMTPConfig, frontendBaseURL string) *SMTPNotifier {
	return &SMTPNotifier{
		cfg:             cfg,
		frontendBaseURL: frontendBaseURL,
		send: func(ctx context.Context, client *mail.Client, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}
}

func (n *SMTPNotifier) SendVerificationEmail(ctx context.Context, to, token string) error {
	subject, body := verificationEmail(n.frontendBaseURL, token)
	return n.SendPlainEmail(ctx, to, subject, body)
}

func (n *SMTPNotifier) SendPlainEmail(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := n.newMessage(to, subject, htmlBody)
	if err != nil {
		return err
	}

	client, err := n.newClient()
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err = n.send(ctx, client, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func (n *SMTPNotifier) newMessage(to, subject, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", n.cfg.From, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}

// newClient uses implicit TLS on 465 and opportunistic STARTTLS elsewhere.
func (n *SMTPNotifier) newClient() (*mail.Client, error) {
	opts := []mail.Option{mail.WithTLSPortPolicy(mail.TLSOpportunistic)}
	if n.cfg.Port == smtpsPort {
		opts = []mail.Option{mail.WithSSL()}
	}
	opts = append(opts, mail.WithPort(n.cfg.Port))

	if n.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.Username),
			mail.WithPassword(n.cfg.Password),
		)
	}
	return mail.NewClient(n.cfg.Host, opts...)
}

// LogNotifier writes emails to the log instead of sending them. It is used
// when no SMTP relay is configured. Links and bodies carry live tokens and
// are only logged at debug level.
type LogNotifier struct {
	frontendBaseURL string
}

func NewLogNotifier(frontendBaseURL string) *LogNotifier {
	return &LogNotifier{frontendBaseURL: frontendBaseURL}
}

func (n *LogNotifier) SendVerificationEmail(_ context.Context, to, token string) error {
	entry := logrus.WithField("to", to)
	entry.Info("Verification email not sent (smtp disabled)")
	entry.WithField("link", buildLink(n.frontendBaseURL, verifyEmailPath, token)).Debug("Verification email")
	return nil
}

func (n *LogNotifier) SendPlainEmail(_ context.Context, to, subject, htmlBody string) error {
	entry := logrus.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
	})
	entry.Info("Email not sent (smtp disabled)")
	entry.WithField("body", htmlBody).Debug("Email")
	return nil
}

func verificationEmail(baseURL, token string) (string, string) {
	link := buildLink(baseURL, verifyEmailPath, token)
	body := fmt.Sprintf(
		`<p>Welcome! Please confirm your email address by opening the link below.</p><p><a href="%s">Verify email</a></p>`,
		html.EscapeString(link),
	)
	return "Verify your email", body
}

func passwordResetEmail(baseURL, token string) (string, string) {
	link := buildLink(baseURL, resetPasswordPath, token)
	body := fmt.Sprintf(
		`<p>We received a request to reset your password.</p><p><a href="%s">Reset password</a></p><p>If you did not ask for this, you can ignore this email.</p>`,
		html.EscapeString(link),
	)
	return "Reset your password", body
}

func buildLink(baseURL, path, token string) string {
	query := url.Values{}
	query.Set("token", token)
	return strings.TrimRight(baseURL, "/") + path + "?" + query.Encode()
}
