package out

import (
	"context"

	"support_server/core/domain"
)

// MailSender delivers outbound mail.
type MailSender interface {
	// SendReply sends an approved draft back to the original sender,
	// threading it onto the customer's message.
	SendReply(ctx context.Context, msg *domain.InboundMessage, draft *domain.ReplyDraft) error

	// SendNotification sends a plain-text notification to a single recipient.
	SendNotification(ctx context.Context, to, subject, body string) error
}

// BodyRecord is the full message content kept in the body archive.
type BodyRecord struct {
	MessageID  int64
	ExternalID string
	TextBody   string
	HTMLBody   string
	Raw        string
}

// BodyArchive stores full message bodies outside the primary database.
type BodyArchive interface {
	SaveBody(ctx context.Context, record *BodyRecord) error
	GetBody(ctx context.Context, messageID int64) (*BodyRecord, error)
	DeleteBody(ctx context.Context, messageID int64) error
}

// JobProducer enqueues pipeline jobs onto the work queue.
type JobProducer interface {
	PublishTriage(ctx context.Context, messageID int64, force bool) (string, error)

	// PublishReprocess enqueues a forced re-run, the operator path for
	// messages parked in a terminal or stuck state.
	PublishReprocess(ctx context.Context, messageID int64) (string, error)

	PublishEscalation(ctx context.Context, messageID int64) (string, error)
	PublishCleanup(ctx context.Context, retentionDays int) (string, error)
}
