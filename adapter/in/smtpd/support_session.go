package smtpd

import (
	"bytes"
	"context"
	"io"
	"time"

	"support_server/core/service/triage"
	"support_server/pkg/logger"

	"github.com/emersion/go-smtp"
)

// session implements the go-smtp Session interface. Accepting the DATA
// command hands the message to ingestion; a storage failure returns a
// transient 451 so the sending relay retries delivery.
type session struct {
	ingest     *triage.IngestService
	from       string
	recipients []string
}

func newSession(ingest *triage.IngestService) *session {
	return &session{
		ingest:     ingest,
		recipients: make([]string, 0, 1),
	}
}

// AuthPlain handles PLAIN authentication. Receiving does not require it.
func (s *session) AuthPlain(username, password string) error {
	return nil
}

// Mail handles the MAIL FROM command.
func (s *session) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt handles the RCPT TO command.
func (s *session) Rcpt(to string, opts *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data handles the DATA command and ingests the message.
func (s *session) Data(r io.Reader) error {
	if len(s.recipients) == 0 {
		return &smtp.SMTPError{
			Code:         503,
			EnhancedCode: smtp.EnhancedCode{5, 5, 1},
			Message:      "No recipients specified",
		}
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Failed to read message",
		}
	}

	raw, err := ParseMessage(bytes.NewReader(buf.Bytes()))
	if err != nil {
		logger.WithError(err).Error("Failed to parse inbound message")
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Failed to parse message",
		}
	}

	// Envelope data fills gaps in the headers.
	if raw.FromEmail == "" {
		raw.FromEmail = s.from
	}
	raw.ToEmail = s.recipients[0]
	raw.Raw = buf.String()
	raw.ReceivedAt = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg, created, err := s.ingest.Ingest(ctx, raw)
	if err != nil {
		logger.WithError(err).Error("Failed to ingest message %s", raw.ExternalID)
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary storage error",
		}
	}

	if created {
		logger.WithMessageID(msg.ID).Info("Message received from %s: %s", raw.FromEmail, raw.Subject)
	}

	return nil
}

// Reset resets the session state.
func (s *session) Reset() {
	s.from = ""
	s.recipients = s.recipients[:0]
}

// Logout handles the end of the session.
func (s *session) Logout() error {
	return nil
}
