package archive

import (
	"context"
	"strings"
	"time"
)

// Fallback display names used when the source reports an empty name.
const (
	FallbackConversationName = "DM"
	FallbackGuildName        = "Server"
)

// EveryChannel selects all text channels of a guild.
const EveryChannel = "every"

// DefaultPageSize is the history batch size; the source caps it at 100.
const DefaultPageSize = 100

// ChannelKind classifies a conversation.
type ChannelKind int

const (
	KindOther ChannelKind = iota
	KindDM
	KindGroup
	KindText
)

func (k ChannelKind) String() string {
	switch k {
	case KindDM:
		return "dm"
	case KindGroup:
		return "group"
	case KindText:
		return "text"
	default:
		return "other"
	}
}

// Channel identifies one conversation target.
type Channel struct {
	ID       string
	Name     string
	GuildID  string
	Kind     ChannelKind
	Position int
}

// DisplayName returns the channel name or the DM placeholder.
func (c Channel) DisplayName() string {
	if strings.TrimSpace(c.Name) == "" {
		return FallbackConversationName
	}
	return c.Name
}

// Guild is a server owning text channels.
type Guild struct {
	ID   string
	Name string
}

// DisplayName returns the guild name or the server placeholder.
func (g Guild) DisplayName() string {
	if strings.TrimSpace(g.Name) == "" {
		return FallbackGuildName
	}
	return g.Name
}

// Attachment is a file attached to a message.
type Attachment struct {
	Name string
	URL  string
}

// Message is a single chat message as fetched from the source.
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	AuthorID    string
	AuthorTag   string
	Content     string
	CreatedAt   time.Time
	Attachments []Attachment
}

// Source is the remote message source. FetchBatch returns at most limit
// messages strictly older than before (newest page when before is empty),
// ordered newest-first. Subscribe installs a live handler and returns a
// function removing it; the handler may be invoked from many goroutines.
type Source interface {
	FetchBatch(ctx context.Context, channelID, before string, limit int) ([]Message, error)
	FetchChannel(ctx context.Context, channelID string) (Channel, error)
	FetchGuild(ctx context.Context, guildID string) (Guild, error)
	FetchGuildChannels(ctx context.Context, guildID string) ([]Channel, error)
	Subscribe(handler func(Message)) (unsubscribe func())
}

// Publisher receives a copy of every archived entry. Implementations must be
// safe for concurrent use.
type Publisher interface {
	PublishEntry(ctx context.Context, e Entry) error
}

// Entry is a formatted log entry together with the message it came from.
type Entry struct {
	ConversationID string
	Phase          string
	Line           string
	Attachments    []string
	Message        Message
}

// Phases reported on entries and metrics.
const (
	PhaseHistory = "history"
	PhaseLive    = "live"
)

// CompareIDs orders snowflake-style decimal IDs numerically. Non-numeric IDs
// fall back to length-then-lexicographic order, which matches numeric order
// for unpadded decimals.
func CompareIDs(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
