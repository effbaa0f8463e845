// Package smtpd receives inbound support mail over SMTP and hands it to
// the ingestion service.
package smtpd

import (
	"time"

	"support_server/core/service/triage"
	"support_server/pkg/logger"

	"github.com/emersion/go-smtp"
)

const (
	DefaultMaxMessageSize = 25 * 1024 * 1024 // 25 MB
	DefaultMaxRecipients  = 10
	DefaultReadTimeout    = 60 * time.Second
	DefaultWriteTimeout   = 60 * time.Second
	DefaultMaxLineLength  = 2000
)

// Backend implements the go-smtp Backend interface.
type Backend struct {
	ingest *triage.IngestService
}

// NewBackend creates a new SMTP backend.
func NewBackend(ingest *triage.IngestService) *Backend {
	return &Backend{ingest: ingest}
}

// NewSession creates a new SMTP session.
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	logger.Debug("New SMTP connection from %s", c.Conn().RemoteAddr())
	return newSession(b.ingest), nil
}

// ServerConfig holds listener settings for the inbound SMTP server.
type ServerConfig struct {
	Addr           string
	Domain         string
	MaxMessageSize int64
}

// NewServer creates the inbound SMTP server with sane limits.
func NewServer(backend *Backend, cfg ServerConfig) *smtp.Server {
	s := smtp.NewServer(backend)

	s.Addr = cfg.Addr
	s.Domain = cfg.Domain

	if cfg.MaxMessageSize > 0 {
		s.MaxMessageBytes = cfg.MaxMessageSize
	} else {
		s.MaxMessageBytes = DefaultMaxMessageSize
	}
	s.MaxRecipients = DefaultMaxRecipients
	s.ReadTimeout = DefaultReadTimeout
	s.WriteTimeout = DefaultWriteTimeout
	s.MaxLineLength = DefaultMaxLineLength

	return s
}
