package triage

import (
	"context"
	"fmt"
	"strings"

	"support_server/core/domain"
	"support_server/core/port/out"
	"support_server/pkg/logger"
)

const escalationBodyLimit = 500

// Notifier fans an escalation out to every active staff recipient.
// Delivery is best effort: one failed recipient never blocks the rest,
// and a failed fan-out never rolls back the escalation itself.
type Notifier struct {
	staff  out.StaffRepository
	sender out.MailSender
}

func NewNotifier(staff out.StaffRepository, sender out.MailSender) *Notifier {
	return &Notifier{
		staff:  staff,
		sender: sender,
	}
}

// Notify sends the escalation notification for msg to all active staff.
func (n *Notifier) Notify(ctx context.Context, msg *domain.InboundMessage) error {
	recipients, err := n.staff.ListActiveEmails(ctx)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		logger.WithMessageID(msg.ID).Warn("No active staff to notify about escalation")
		return nil
	}

	subject := "[ESCALATION] " + msg.Subject
	body := buildEscalationBody(msg)

	sent := 0
	for _, recipient := range recipients {
		if err := n.sender.SendNotification(ctx, recipient, subject, body); err != nil {
			logger.WithMessageID(msg.ID).WithError(err).Error("Failed to notify %s", recipient)
			continue
		}
		sent++
	}

	logger.WithMessageID(msg.ID).Info("Escalation notification sent to %d/%d staff", sent, len(recipients))
	return nil
}

func buildEscalationBody(msg *domain.InboundMessage) string {
	var sb strings.Builder

	sb.WriteString("A support message requires attention.\n\n")
	sb.WriteString(fmt.Sprintf("From: %s <%s>\n", msg.FromName, msg.FromEmail))
	sb.WriteString(fmt.Sprintf("Subject: %s\n", msg.Subject))
	sb.WriteString(fmt.Sprintf("Category: %s\n", msg.CategoryName))
	sb.WriteString(fmt.Sprintf("Priority: %s\n", msg.Priority))
	sb.WriteString(fmt.Sprintf("Sentiment: %s\n", msg.Sentiment))
	if msg.EscalationReason != "" {
		sb.WriteString(fmt.Sprintf("Reason: %s\n", msg.EscalationReason))
	}

	body := msg.BodyText
	if len(body) > escalationBodyLimit {
		body = body[:escalationBodyLimit] + "..."
	}
	sb.WriteString("\n--- Original message ---\n")
	sb.WriteString(body)

	return sb.String()
}
