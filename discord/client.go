// Package discord adapts a discordgo session to the archive.Source
// interface: REST history paging and channel/guild lookups, plus the gateway
// MESSAGE_CREATE stream for the live tail.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/discord-archiver/archive"
)

// Config configures a Client.
type Config struct {
	// Token is a user token, or a bot token when Bot is set.
	Token      string
	Bot        bool
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is an archive.Source backed by discordgo.
type Client struct {
	session *discordgo.Session
	logger  *slog.Logger
}

// New creates a session; it does not connect to the gateway until Open.
func New(cfg Config) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("discord token empty")
	}
	if cfg.Bot && !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	s, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent
	if cfg.HTTPClient != nil {
		s.Client = cfg.HTTPClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{session: s, logger: logger.With(slog.String("component", "discord"))}, nil
}

// Open connects to the gateway and returns the logged-in account's tag.
func (c *Client) Open() (string, error) {
	if err := c.session.Open(); err != nil {
		return "", fmt.Errorf("discord gateway open: %w", err)
	}
	tag := ""
	if c.session.State != nil && c.session.State.User != nil {
		tag = c.session.State.User.String()
	}
	c.logger.Info("logged in", slog.String("user", tag))
	return tag, nil
}

// Close disconnects from the gateway.
func (c *Client) Close() error {
	return c.session.Close()
}

// FetchBatch returns up to limit messages older than before, newest first.
func (c *Client) FetchBatch(ctx context.Context, channelID, before string, limit int) ([]archive.Message, error) {
	msgs, err := c.session.ChannelMessages(channelID, limit, before, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapNotFound(err)
	}
	out := make([]archive.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		out = append(out, toMessage(m))
	}
	return out, nil
}

// FetchChannel resolves a DM, group or guild channel.
func (c *Client) FetchChannel(ctx context.Context, channelID string) (archive.Channel, error) {
	ch, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return archive.Channel{}, wrapNotFound(err)
	}
	return toChannel(ch), nil
}

// FetchGuild resolves a guild.
func (c *Client) FetchGuild(ctx context.Context, guildID string) (archive.Guild, error) {
	g, err := c.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return archive.Guild{}, wrapNotFound(err)
	}
	return archive.Guild{ID: g.ID, Name: g.Name}, nil
}

// FetchGuildChannels lists every channel of a guild.
func (c *Client) FetchGuildChannels(ctx context.Context, guildID string) ([]archive.Channel, error) {
	chans, err := c.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapNotFound(err)
	}
	out := make([]archive.Channel, 0, len(chans))
	for _, ch := range chans {
		if ch == nil {
			continue
		}
		out = append(out, toChannel(ch))
	}
	return out, nil
}

// Subscribe installs a MESSAGE_CREATE handler. discordgo runs each handler
// invocation on its own goroutine.
func (c *Client) Subscribe(handler func(archive.Message)) func() {
	return c.session.AddHandler(func(_ *discordgo.Session, mc *discordgo.MessageCreate) {
		if mc == nil || mc.Message == nil {
			return
		}
		m := toMessage(mc.Message)
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
		handler(m)
	})
}

func toMessage(m *discordgo.Message) archive.Message {
	out := archive.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		CreatedAt: m.Timestamp,
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.AuthorTag = m.Author.String()
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		out.Attachments = append(out.Attachments, archive.Attachment{Name: a.Filename, URL: a.URL})
	}
	return out
}

func toChannel(ch *discordgo.Channel) archive.Channel {
	out := archive.Channel{ID: ch.ID, Name: ch.Name, GuildID: ch.GuildID, Position: ch.Position}
	switch ch.Type {
	case discordgo.ChannelTypeDM:
		out.Kind = archive.KindDM
	case discordgo.ChannelTypeGroupDM:
		out.Kind = archive.KindGroup
	case discordgo.ChannelTypeGuildText:
		out.Kind = archive.KindText
	default:
		out.Kind = archive.KindOther
	}
	return out
}

// wrapNotFound maps 404 responses onto archive.ErrNotFound.
func wrapNotFound(err error) error {
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", archive.ErrNotFound, err)
	}
	return err
}
