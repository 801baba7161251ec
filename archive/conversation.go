package archive

import (
	"context"
	"log/slog"

	"github.com/onnwee/discord-archiver/telemetry"
)

// Conversation is one log file and the context its entries are labelled
// with. A DM or group conversation has a nil Guild; a guild conversation
// collects every archived channel of that guild.
type Conversation struct {
	ID        string
	Sink      *Sink
	Guild     *Guild
	Publisher Publisher
}

// Label returns the session header label.
func (c *Conversation) Label(primary Channel) string {
	if c.Guild != nil {
		return "SERVER " + c.Guild.DisplayName()
	}
	return primary.DisplayName()
}

// Context returns the bracketed entry context for a message in ch.
func (c *Conversation) Context(ch Channel) string {
	if c.Guild != nil {
		return GuildContext(*c.Guild, ch)
	}
	return DMContext(ch)
}

// Append formats m and writes it with its attachments. A mirror failure is
// logged and does not fail the write.
func (c *Conversation) Append(ctx context.Context, phase string, ch Channel, m Message) error {
	line := MessageLine(c.Context(ch), m)
	atts := AttachmentLines(m)
	if err := c.Sink.WriteMessage(line, atts); err != nil {
		return err
	}
	telemetry.ObserveMessage(phase)
	if c.Publisher != nil {
		e := Entry{ConversationID: c.ID, Phase: phase, Line: line, Attachments: atts, Message: m}
		if err := c.Publisher.PublishEntry(ctx, e); err != nil {
			slog.Default().Warn("mirror publish failed", slog.String("conversation", c.ID), slog.String("message_id", m.ID), slog.Any("err", err))
		}
	}
	return nil
}
