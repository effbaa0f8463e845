// Package mail implements outbound mail delivery over SMTP.
package mail

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"support_server/core/domain"
	"support_server/core/port/out"
	"support_server/pkg/apperr"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// Config holds SMTP relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	UseTLS   bool
}

// SMTPSender implements out.MailSender against an SMTP relay.
type SMTPSender struct {
	cfg Config
}

// NewSMTPSender creates a new SMTPSender.
func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// SendReply sends an approved draft back to the original sender,
// threading it onto the customer's message via In-Reply-To.
func (s *SMTPSender) SendReply(ctx context.Context, msg *domain.InboundMessage, draft *domain.ReplyDraft) error {
	subject := msg.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	headers := map[string]string{
		"Subject": encodeHeader(subject),
	}
	if msg.ExternalID != "" {
		headers["In-Reply-To"] = msg.ExternalID
		headers["References"] = msg.ExternalID
	}

	body := buildMessage(s.fromHeader(), formatAddress(msg.FromName, msg.FromEmail), headers, draft.Body)

	if err := s.send(ctx, msg.FromEmail, body); err != nil {
		return apperr.SendFailed(msg.FromEmail, err)
	}
	return nil
}

// SendNotification sends a plain-text notification to a single recipient.
func (s *SMTPSender) SendNotification(ctx context.Context, to, subject, body string) error {
	headers := map[string]string{
		"Subject": encodeHeader(subject),
	}

	message := buildMessage(s.fromHeader(), to, headers, body)

	if err := s.send(ctx, to, message); err != nil {
		return apperr.SendFailed(to, err)
	}
	return nil
}

func (s *SMTPSender) send(ctx context.Context, to, message string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	done := make(chan error, 1)
	go func() {
		done <- s.deliver(addr, to, message)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (s *SMTPSender) deliver(addr, to, message string) error {
	var client *smtp.Client
	var err error
	if s.cfg.UseTLS {
		client, err = smtp.DialStartTLS(addr, nil)
	} else {
		client, err = smtp.Dial(addr)
	}
	if err != nil {
		return fmt.Errorf("failed to dial relay: %w", err)
	}
	defer client.Close()

	if s.cfg.Username != "" {
		auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := client.SendMail(s.cfg.From, []string{to}, strings.NewReader(message)); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	return client.Quit()
}

func (s *SMTPSender) fromHeader() string {
	return formatAddress(s.cfg.FromName, s.cfg.From)
}

func formatAddress(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", encodeHeader(name), email)
}

func encodeHeader(value string) string {
	return mime.QEncoding.Encode("utf-8", value)
}

func buildMessage(from, to string, headers map[string]string, body string) string {
	var sb strings.Builder

	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	for key, value := range headers {
		sb.WriteString(key + ": " + value + "\r\n")
	}
	sb.WriteString("Message-Id: <" + uuid.NewString() + "@support>\r\n")
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return sb.String()
}

var _ out.MailSender = (*SMTPSender)(nil)
