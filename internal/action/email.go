package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// EmailMessage is one outgoing mail.
type EmailMessage struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth
}

// Send delivers msg. msg.From overrides the mailer's default sender.
func (m *SMTPMailer) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := msg.From
	if from == "" {
		from = m.From
	}
	if from == "" {
		return errors.New("smtp: no sender address")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(msg.Body)

	if err := smtp.SendMail(m.Addr, m.Auth, from, msg.To, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp %s: %w", m.Addr, err)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct{}

// Send logs msg.
func (LogMailer) Send(_ context.Context, msg EmailMessage) error {
	slog.Info("email not sent, no relay configured",
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

// EmailHandler sends an email built from its parameters.
type EmailHandler struct {
	Mailer Mailer
	From   string
}

func (h *EmailHandler) Metadata() Metadata {
	return Metadata{
		Type:               "Email",
		Description:        "Sends an email. To accepts a comma-separated list of addresses.",
		RequiredParameters: []string{"To", "Subject", "Body"},
		OptionalParameters: []string{"From"},
		Example: map[string]string{
			"To":      "{{data.Email}}",
			"Subject": "Registration {{id}} received",
			"Body":    "Hello {{data.Name}}, your registration is {{status}}.",
		},
		Effect: EffectNotify,
	}
}

func (h *EmailHandler) Execute(ctx context.Context, inv *Invocation) error {
	to := splitList(inv.Param("To"))
	if len(to) == 0 {
		return errors.New("email: no recipients")
	}
	from := inv.Param("From")
	if from == "" {
		from = h.From
	}
	msg := EmailMessage{
		From:    from,
		To:      to,
		Subject: inv.Param("Subject"),
		Body:    inv.Param("Body"),
	}
	if err := h.Mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	inv.SetMessage(fmt.Sprintf("sent to %s", strings.Join(to, ", ")))
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
