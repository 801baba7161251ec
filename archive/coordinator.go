package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/discord-archiver/telemetry"
)

// Target selects what to archive: either a single DM/group conversation, or
// a guild with one channel or EveryChannel.
type Target struct {
	ConversationID string
	GuildID        string
	ChannelID      string
}

// IsGuild reports whether the target is a server.
func (t Target) IsGuild() bool { return t.ConversationID == "" }

// Every reports whether all text channels of the guild are selected.
func (t Target) Every() bool { return strings.EqualFold(strings.TrimSpace(t.ChannelID), EveryChannel) }

// ChannelReport is the drain outcome of one channel.
type ChannelReport struct {
	Channel  Channel `json:"-"`
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Messages int     `json:"messages"`
	Pages    int     `json:"pages"`
	Newest   string  `json:"newest_id,omitempty"`
	Err      string  `json:"error,omitempty"`
}

// Report summarizes a run.
type Report struct {
	ConversationID string          `json:"conversation_id"`
	LogFile        string          `json:"log_file"`
	Channels       []ChannelReport `json:"channels"`
	Replayed       int             `json:"replayed"`
}

// Failed returns the number of channels whose drain failed.
func (r *Report) Failed() int {
	n := 0
	for _, c := range r.Channels {
		if c.Err != "" {
			n++
		}
	}
	return n
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	LogsDir    string
	PageSize   int
	LiveBuffer int
	Publisher  Publisher
	Logger     *slog.Logger
	Now        func() time.Time
}

// Coordinator resolves targets, drains them one after another and then
// activates the live tail for all of them.
type Coordinator struct {
	source  Source
	cfg     CoordinatorConfig
	logger  *slog.Logger
	drainer *Drainer
	tail    *Tail

	mu     sync.Mutex
	sinks  map[string]*Sink
	report *Report
}

// NewCoordinator returns a Coordinator reading from src.
func NewCoordinator(src Source, cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger = logger.With(slog.String("component", "archive"))
	return &Coordinator{
		source:  src,
		cfg:     cfg,
		logger:  logger,
		drainer: &Drainer{Source: src, PageSize: cfg.PageSize, Logger: logger},
		tail:    NewTail(src, TailOptions{BufferSize: cfg.LiveBuffer, Logger: logger}),
		sinks:   make(map[string]*Sink),
	}
}

// Tail exposes the live tail.
func (c *Coordinator) Tail() *Tail { return c.tail }

// Ready reports whether the live tail is active.
func (c *Coordinator) Ready() bool { return c.tail.Active() }

// Report returns the last run's report, or nil before Run completes.
func (c *Coordinator) Report() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report
}

// Run resolves t, drains its history and activates the tail. It returns once
// live delivery is on; the tail keeps running until Close.
func (c *Coordinator) Run(ctx context.Context, t Target) (*Report, error) {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "archive"))
	c.drainer.Logger = logger

	var (
		report *Report
		err    error
	)
	if t.IsGuild() {
		report, err = c.runGuild(ctx, logger, t)
	} else {
		report, err = c.runConversation(ctx, logger, t.ConversationID)
	}
	if err != nil {
		var rerr *ResolutionError
		if errors.As(err, &rerr) {
			telemetry.ObserveResolutionError()
		}
		c.tail.Stop()
		return nil, err
	}

	highWater := make(map[string]string, len(report.Channels))
	for _, cr := range report.Channels {
		if cr.Newest != "" {
			highWater[cr.ID] = cr.Newest
		}
	}
	report.Replayed = c.tail.Activate(highWater)

	c.mu.Lock()
	c.report = report
	c.mu.Unlock()
	return report, nil
}

func (c *Coordinator) runConversation(ctx context.Context, logger *slog.Logger, id string) (*Report, error) {
	ch, err := c.source.FetchChannel(ctx, id)
	if err != nil {
		logger.Error("conversation not found", slog.String("id", id), slog.Any("err", err))
		return nil, &ResolutionError{Kind: "conversation", ID: id, Err: err}
	}
	sink, err := c.openSink(ch.DisplayName(), ch.ID)
	if err != nil {
		return nil, err
	}
	conv := &Conversation{ID: ch.ID, Sink: sink, Publisher: c.cfg.Publisher}
	logger.Info("found conversation", slog.String("name", ch.DisplayName()), slog.String("log_file", sink.Path()))
	if err := sink.WriteHeader(conv.Label(ch), ch.ID, c.cfg.Now()); err != nil {
		return nil, err
	}

	c.tail.TrackChannel(conv, ch)
	c.tail.Start(ctx)

	report := &Report{ConversationID: ch.ID, LogFile: sink.Path()}
	report.Channels = append(report.Channels, c.drainOne(ctx, logger, conv, ch))
	return report, nil
}

func (c *Coordinator) runGuild(ctx context.Context, logger *slog.Logger, t Target) (*Report, error) {
	g, err := c.source.FetchGuild(ctx, t.GuildID)
	if err != nil {
		logger.Error("server not found", slog.String("id", t.GuildID), slog.Any("err", err))
		return nil, &ResolutionError{Kind: "server", ID: t.GuildID, Err: err}
	}

	var channels []Channel
	if t.Every() {
		all, err := c.source.FetchGuildChannels(ctx, g.ID)
		if err != nil {
			return nil, &ResolutionError{Kind: "server", ID: g.ID, Err: fmt.Errorf("list channels: %w", err)}
		}
		channels = TextChannels(all)
		logger.Info("archiving all text channels", slog.String("server", g.DisplayName()), slog.Int("channels", len(channels)))
	} else {
		ch, err := c.source.FetchChannel(ctx, t.ChannelID)
		if err == nil && ch.GuildID != g.ID {
			err = fmt.Errorf("channel belongs to server %q: %w", ch.GuildID, ErrNotFound)
		}
		if err != nil {
			logger.Error("channel not found in server", slog.String("id", t.ChannelID), slog.Any("err", err))
			return nil, &ResolutionError{Kind: "channel", ID: t.ChannelID, Err: err}
		}
		channels = []Channel{ch}
		logger.Info("archiving channel", slog.String("server", g.DisplayName()), slog.String("channel", ch.Name))
	}

	sink, err := c.openSink(g.DisplayName(), g.ID)
	if err != nil {
		return nil, err
	}
	guild := g
	conv := &Conversation{ID: g.ID, Sink: sink, Guild: &guild, Publisher: c.cfg.Publisher}
	logger.Info("found server", slog.String("name", g.DisplayName()), slog.String("log_file", sink.Path()))
	if err := sink.WriteHeader(conv.Label(Channel{}), g.ID, c.cfg.Now()); err != nil {
		return nil, err
	}

	if t.Every() {
		c.tail.TrackGuild(conv, g.ID, channels)
	} else {
		c.tail.TrackChannel(conv, channels[0])
	}
	c.tail.Start(ctx)

	report := &Report{ConversationID: g.ID, LogFile: sink.Path()}
	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := sink.WriteChannelHeader(ch.DisplayName(), ch.ID); err != nil {
			return nil, err
		}
		report.Channels = append(report.Channels, c.drainOne(ctx, logger, conv, ch))
	}
	return report, nil
}

// drainOne drains ch and records the outcome. Failures are reported and
// never abort the caller's loop.
func (c *Coordinator) drainOne(ctx context.Context, logger *slog.Logger, conv *Conversation, ch Channel) ChannelReport {
	logger.Info("fetching existing messages", slog.String("channel", ch.DisplayName()), slog.String("channel_id", ch.ID))
	res, err := c.drainer.Drain(ctx, conv, ch)
	cr := ChannelReport{Channel: ch, ID: ch.ID, Name: ch.DisplayName(), Messages: res.Messages, Pages: res.Pages, Newest: res.Newest}
	if err != nil {
		cr.Err = err.Error()
		logger.Error("error fetching messages", slog.String("channel", ch.DisplayName()), slog.String("channel_id", ch.ID), slog.Int("logged", res.Messages), slog.Any("err", err))
		return cr
	}
	logger.Info("finished logging existing messages", slog.String("channel", ch.DisplayName()), slog.Int("messages", res.Messages))
	return cr
}

func (c *Coordinator) openSink(name, id string) (*Sink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sinks[id]; ok {
		return s, nil
	}
	s, err := OpenSink(c.cfg.LogsDir, name, id)
	if err != nil {
		return nil, err
	}
	c.sinks[id] = s
	return s, nil
}

// Close stops the tail and closes every sink.
func (c *Coordinator) Close() error {
	c.tail.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for id, s := range c.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.sinks, id)
	}
	return errors.Join(errs...)
}

// TextChannels keeps guild text channels ordered by position then ID.
func TextChannels(all []Channel) []Channel {
	out := make([]Channel, 0, len(all))
	for _, ch := range all {
		if ch.Kind == KindText {
			out = append(out, ch)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return CompareIDs(out[i].ID, out[j].ID) < 0
	})
	return out
}
