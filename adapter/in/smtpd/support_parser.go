package smtpd

import (
	"io"
	"regexp"
	"strings"

	"support_server/core/domain"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"
)

// fromHeaderRe matches "Name" <email@example.com>, Name <email@example.com>
// and bare addresses.
var fromHeaderRe = regexp.MustCompile(`^(?:"?([^"<]*)"?\s*)?<?([^<>]+@[^<>]+)>?$`)

// ParseMessage parses a raw MIME message into a RawMessage. Messages
// without a Message-Id get a generated one so deduplication still works.
func ParseMessage(r io.Reader) (*domain.RawMessage, error) {
	env, err := enmime.ReadEnvelope(r)
	if err != nil {
		return nil, err
	}

	raw := &domain.RawMessage{
		ExternalID: strings.TrimSpace(env.GetHeader("Message-Id")),
		Subject:    env.GetHeader("Subject"),
		BodyText:   env.Text,
		BodyHTML:   env.HTML,
	}
	if raw.ExternalID == "" {
		raw.ExternalID = "<" + uuid.NewString() + "@generated>"
	}

	raw.FromName, raw.FromEmail = parseFromHeader(env.GetHeader("From"))

	for _, att := range env.Attachments {
		raw.Attachments = append(raw.Attachments, domain.AttachmentMeta{
			Filename:    att.FileName,
			ContentType: att.ContentType,
			Size:        int64(len(att.Content)),
		})
	}

	return raw, nil
}

// parseFromHeader extracts name and email from a From header.
func parseFromHeader(from string) (name, email string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}

	matches := fromHeaderRe.FindStringSubmatch(from)
	if len(matches) >= 3 {
		name = strings.Trim(strings.TrimSpace(matches[1]), `"`)
		email = strings.TrimSpace(matches[2])
	} else {
		email = from
	}

	return name, email
}
