// Package mirror fans archived entries out to NATS so other processes can
// follow an archive as it is written.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/onnwee/discord-archiver/archive"
	"github.com/onnwee/discord-archiver/telemetry"
)

// DefaultSubjectPrefix is used when Config.SubjectPrefix is empty.
const DefaultSubjectPrefix = "archive"

// Payload is the JSON document published for each entry.
type Payload struct {
	ConversationID string    `json:"conversation_id"`
	ChannelID      string    `json:"channel_id"`
	GuildID        string    `json:"guild_id,omitempty"`
	MessageID      string    `json:"message_id"`
	AuthorID       string    `json:"author_id,omitempty"`
	Author         string    `json:"author"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	Phase          string    `json:"phase"`
	Line           string    `json:"line"`
	Attachments    []string  `json:"attachments,omitempty"`
}

// Config configures a Publisher.
type Config struct {
	URL           string
	Token         string
	SubjectPrefix string
	Logger        *slog.Logger
}

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher implements archive.Publisher over a NATS connection.
type Publisher struct {
	conn   conn
	prefix string
	logger *slog.Logger
}

// Connect dials NATS. The connection retries in the background, so an
// unreachable server does not prevent the archive from running.
func Connect(cfg Config) (*Publisher, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "mirror"))
	opts := []nats.Option{
		nats.Name("discord-archiver"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newPublisher(nc, cfg.SubjectPrefix, logger), nil
}

func newPublisher(c conn, prefix string, logger *slog.Logger) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: c, prefix: prefix, logger: logger}
}

// Subject returns the subject entries of a conversation are published on.
func (p *Publisher) Subject(conversationID string) string {
	return p.prefix + "." + subjectToken(conversationID)
}

// PublishEntry publishes e as JSON on Subject(e.ConversationID).
func (p *Publisher) PublishEntry(ctx context.Context, e archive.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(toPayload(e))
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	subject := p.Subject(e.ConversationID)
	if err := p.conn.Publish(subject, payload); err != nil {
		telemetry.ObserveMirrorError()
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (p *Publisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

func toPayload(e archive.Entry) Payload {
	m := e.Message
	return Payload{
		ConversationID: e.ConversationID,
		ChannelID:      m.ChannelID,
		GuildID:        m.GuildID,
		MessageID:      m.ID,
		AuthorID:       m.AuthorID,
		Author:         m.AuthorTag,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt.UTC(),
		Phase:          e.Phase,
		Line:           e.Line,
		Attachments:    e.Attachments,
	}
}

// subjectToken replaces characters NATS treats specially in a subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
