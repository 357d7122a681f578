// Package mailer delivers invitation emails.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// Invitation is the content of a cabinet invitation email.
type Invitation struct {
	To           string
	InviterEmail string
	AcceptURL    string
	ExpiresAt    time.Time
	Rights       []string
}

// Mailer sends invitation emails.
type Mailer interface {
	SendInvitation(ctx context.Context, inv Invitation) error
}

// SMTPConfig configures the SMTP mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

// NewSMTP creates an SMTPMailer.
func NewSMTP(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPMailer{cfg: cfg, logger: logger.With("component", "mailer")}
}

func (m *SMTPMailer) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	return mail.NewClient(m.cfg.Host, opts...)
}

// SendInvitation delivers inv.
func (m *SMTPMailer) SendInvitation(ctx context.Context, inv Invitation) error {
	msg, err := invitationMessage(m.cfg.From, inv)
	if err != nil {
		return err
	}

	c, err := m.client()
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send invitation: %w", err)
	}

	m.logger.Info("invitation email sent", slog.String("to", inv.To))
	return nil
}

func invitationMessage(from string, inv Invitation) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := msg.To(inv.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", inv.To, err)
	}
	msg.Subject(invitationSubject(inv))
	msg.SetBodyString(mail.TypeTextPlain, invitationBody(inv))
	return msg, nil
}

func invitationSubject(inv Invitation) string {
	return inv.InviterEmail + " shared their Reddit account cabinet with you"
}

func invitationBody(inv Invitation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s invited you to their cabinet.\n\n", inv.InviterEmail)
	if len(inv.Rights) > 0 {
		fmt.Fprintf(&b, "You will be able to: %s.\n\n", strings.Join(inv.Rights, ", "))
	}
	fmt.Fprintf(&b, "Accept the invitation:\n%s\n\n", inv.AcceptURL)
	fmt.Fprintf(&b, "The link expires on %s.\n", inv.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
	return b.String()
}

// LogMailer logs invitations instead of sending them. Used when SMTP is not
// configured.
type LogMailer struct {
	logger *slog.Logger
}

// NewLog creates a LogMailer.
func NewLog(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With("component", "mailer")}
}

// SendInvitation logs inv.
func (m *LogMailer) SendInvitation(ctx context.Context, inv Invitation) error {
	m.logger.Info("invitation email (smtp disabled)",
		slog.String("to", inv.To),
		slog.String("inviter", inv.InviterEmail),
		slog.String("accept_url", inv.AcceptURL),
		slog.Time("expires_at", inv.ExpiresAt),
	)
	return nil
}
