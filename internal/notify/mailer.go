package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"leaveflow.org/internal/ids"
	"leaveflow.org/internal/obs"
)

// Message is a single outbound notification.
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers a message exactly once per call and returns a message id.
// Delivery retries are the mail infrastructure's responsibility, not ours.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SMTPMailer sends messages through a relay using PLAIN auth.
type SMTPMailer struct {
	Addr     string // host:port
	Username string
	Password string
}

var _ Mailer = (*SMTPMailer)(nil)

func (m *SMTPMailer) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", fmt.Errorf("message has no recipients")
	}
	messageID := ids.New()

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Message-ID: <%s@leaveflow>\r\n", messageID)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")

	if msg.HTML != "" {
		const boundary = "leaveflow-alt"
		fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.Text)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.HTML)
		fmt.Fprintf(&b, "--%s--\r\n", boundary)
	} else {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(msg.Text)
		b.WriteString("\r\n")
	}

	host := m.Addr
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	var a smtp.Auth
	if m.Username != "" {
		a = smtp.PlainAuth("", m.Username, m.Password, host)
	}
	if err := smtp.SendMail(m.Addr, a, msg.From, msg.To, []byte(b.String())); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return messageID, nil
}

// LogMailer writes messages to the structured log instead of delivering
// them. Used in dev mode when no relay is configured.
type LogMailer struct{}

var _ Mailer = (*LogMailer)(nil)

func (LogMailer) Send(ctx context.Context, msg Message) (string, error) {
	messageID := ids.New()
	obs.LogRequest(map[string]any{
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		"level":      "info",
		"msg":        "mail_logged",
		"message_id": messageID,
		"to":         msg.To,
		"subject":    msg.Subject,
		"text":       msg.Text,
	})
	return messageID, nil
}
