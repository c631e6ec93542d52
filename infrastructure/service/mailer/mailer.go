// Package mailer delivers account emails over SMTP, or records them in the
// log when no relay is configured.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/domain/entity"
	"github.com/mentorclub/auth-service/infrastructure/service/logger"
)

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

type message struct {
	kind    string
	to      string
	subject string
	body    string
	// logURL is the link in the body with any token stripped, safe to log.
	logURL string
}

func confirmationMessage(confirmURL string, user *entity.User) message {
	return message{
		kind:    "confirmation",
		to:      user.Email,
		subject: "Confirm your email address",
		body: fmt.Sprintf("Hello %s,\r\n\r\nplease confirm your email address by opening the link below:\r\n\r\n%s\r\n",
			displayName(user), confirmURL),
		logURL: redactURL(confirmURL),
	}
}

func confirmationSuccessfulMessage(user *entity.User) message {
	return message{
		kind:    "confirmation_successful",
		to:      user.Email,
		subject: "Your email address is confirmed",
		body:    fmt.Sprintf("Hello %s,\r\n\r\nyour email address has been confirmed. Welcome aboard!\r\n", displayName(user)),
	}
}

func passwordResetMessage(resetURL, email string) message {
	return message{
		kind:    "password_reset",
		to:      email,
		subject: "Reset your password",
		body:    fmt.Sprintf("Hello,\r\n\r\nyou can choose a new password here:\r\n\r\n%s\r\n\r\nIf you did not ask for this, ignore this email.\r\n", resetURL),
		logURL:  resetURL,
	}
}

func displayName(user *entity.User) string {
	if user.Name != "" {
		return user.Name
	}
	return user.Username
}

// redactURL drops the last path segment, which carries the token.
func redactURL(u string) string {
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[:i+1] + logger.Redacted
	}
	return logger.Redacted
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends plain text mail through a relay.
type SMTPMailer struct {
	config SMTPConfig
	logger logger.Logger
	send   sendFunc
	now    func() time.Time
}

func NewSMTPMailer(config SMTPConfig, log logger.Logger) *SMTPMailer {
	return &SMTPMailer{
		config: config,
		logger: log.WithFields(map[string]interface{}{"component": "mailer"}),
		send:   smtp.SendMail,
		now:    time.Now,
	}
}

func (m *SMTPMailer) SendConfirmationEmail(ctx context.Context, confirmURL string, user *entity.User) outbound.DeliveryStatus {
	return m.deliver(ctx, confirmationMessage(confirmURL, user))
}

func (m *SMTPMailer) SendConfirmationSuccessfulEmail(ctx context.Context, user *entity.User) outbound.DeliveryStatus {
	return m.deliver(ctx, confirmationSuccessfulMessage(user))
}

func (m *SMTPMailer) SendPasswordResetEmail(ctx context.Context, resetURL string, email string) outbound.DeliveryStatus {
	return m.deliver(ctx, passwordResetMessage(resetURL, email))
}

func (m *SMTPMailer) deliver(ctx context.Context, msg message) outbound.DeliveryStatus {
	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))
	err := m.send(addr, auth, m.config.FromEmail, []string{msg.to}, m.compose(msg))
	fields := map[string]interface{}{
		"mail_kind": msg.kind,
		"to":        msg.to,
	}
	if err != nil {
		m.logger.Error(ctx, "Failed to send email", err, fields)
		return outbound.DeliveryFailed
	}

	m.logger.Info(ctx, "Email sent", fields)
	return outbound.DeliverySent
}

func (m *SMTPMailer) compose(msg message) []byte {
	from := m.config.FromEmail
	if m.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.config.FromName, m.config.FromEmail)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", m.now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	buf.WriteString(msg.body)
	return buf.Bytes()
}

// LogMailer records every email as a structured log entry and reports it as sent.
type LogMailer struct {
	logger logger.Logger
}

func NewLogMailer(log logger.Logger) *LogMailer {
	return &LogMailer{logger: log.WithFields(map[string]interface{}{"component": "mailer"})}
}

func (m *LogMailer) SendConfirmationEmail(ctx context.Context, confirmURL string, user *entity.User) outbound.DeliveryStatus {
	return m.record(ctx, confirmationMessage(confirmURL, user))
}

func (m *LogMailer) SendConfirmationSuccessfulEmail(ctx context.Context, user *entity.User) outbound.DeliveryStatus {
	return m.record(ctx, confirmationSuccessfulMessage(user))
}

func (m *LogMailer) SendPasswordResetEmail(ctx context.Context, resetURL string, email string) outbound.DeliveryStatus {
	return m.record(ctx, passwordResetMessage(resetURL, email))
}

func (m *LogMailer) record(ctx context.Context, msg message) outbound.DeliveryStatus {
	fields := map[string]interface{}{
		"mail_kind": msg.kind,
		"to":        msg.to,
		"subject":   msg.subject,
	}
	if msg.logURL != "" {
		fields["url"] = msg.logURL
	}
	m.logger.Info(ctx, "Email delivery skipped, no SMTP relay configured", fields)
	return outbound.DeliverySent
}
