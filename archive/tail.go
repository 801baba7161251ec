package archive

import (
	"context"
	"log/slog"
	"sync"

	"github.com/onnwee/discord-archiver/telemetry"
)

// DefaultLiveBuffer bounds the number of live messages queued while drains run.
const DefaultLiveBuffer = 10000

// TailOptions configures a Tail.
type TailOptions struct {
	BufferSize int
	Logger     *slog.Logger
}

type channelRoute struct {
	conv    *Conversation
	channel Channel
}

// Tail owns the process-wide live subscription and routes each incoming
// message to the conversation tracking its channel or guild. Until Activate
// is called messages are queued, never written.
type Tail struct {
	source Source
	limit  int
	logger *slog.Logger

	mu          sync.Mutex
	ctx         context.Context
	exact       map[string]channelRoute
	wildcard    map[string]*Conversation
	active      bool
	queue       []Message
	overflowed  map[string]bool
	unsubscribe func()

	namesMu sync.Mutex
	names   map[string]Channel
}

// NewTail returns a Tail reading from src.
func NewTail(src Source, opts TailOptions) *Tail {
	limit := opts.BufferSize
	if limit <= 0 {
		limit = DefaultLiveBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tail{
		source:     src,
		limit:      limit,
		logger:     logger.With(slog.String("component", "live_tail")),
		ctx:        context.Background(),
		exact:      make(map[string]channelRoute),
		wildcard:   make(map[string]*Conversation),
		overflowed: make(map[string]bool),
		names:      make(map[string]Channel),
	}
}

// TrackChannel routes messages of exactly ch to conv. For guild channels the
// message's guild must match too.
func (t *Tail) TrackChannel(conv *Conversation, ch Channel) {
	t.mu.Lock()
	t.exact[ch.ID] = channelRoute{conv: conv, channel: ch}
	t.mu.Unlock()
	t.remember(ch)
	telemetry.SetTrackedChannels(t.Tracked())
}

// TrackGuild routes every message of guildID to conv. known seeds the
// channel name cache used for entry labels.
func (t *Tail) TrackGuild(conv *Conversation, guildID string, known []Channel) {
	t.mu.Lock()
	t.wildcard[guildID] = conv
	t.mu.Unlock()
	for _, ch := range known {
		t.remember(ch)
	}
	telemetry.SetTrackedChannels(t.Tracked())
}

// Tracked returns the number of registered routes.
func (t *Tail) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.exact) + len(t.wildcard)
}

// Start installs the live handler. It is a no-op when already started.
func (t *Tail) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unsubscribe != nil {
		return
	}
	t.ctx = ctx
	t.unsubscribe = t.source.Subscribe(t.handle)
	t.logger.Debug("live subscription started (buffering)")
}

// Activate replays queued messages, skipping any at or below the drain
// high-water mark of their channel, then switches to direct delivery. It
// returns the number of replayed messages.
func (t *Tail) Activate(highWater map[string]string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	replayed := 0
	for _, m := range t.queue {
		if hw, ok := highWater[m.ChannelID]; ok && hw != "" && CompareIDs(m.ID, hw) <= 0 {
			continue
		}
		conv, ch, ok := t.matchLocked(m)
		if !ok {
			continue
		}
		t.deliver(conv, t.channelFor(ch, m), m)
		replayed++
	}
	t.queue = nil
	t.active = true
	telemetry.SetTailActive(true)
	t.logger.Info("now logging new messages in real time", slog.Int("replayed", replayed), slog.Int("routes", len(t.exact)+len(t.wildcard)))
	return replayed
}

// Active reports whether live delivery is on.
func (t *Tail) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Stop removes the live handler.
func (t *Tail) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unsubscribe != nil {
		t.unsubscribe()
		t.unsubscribe = nil
	}
	t.active = false
	telemetry.SetTailActive(false)
}

func (t *Tail) handle(m Message) {
	t.mu.Lock()
	conv, ch, ok := t.matchLocked(m)
	if !ok {
		t.mu.Unlock()
		return
	}
	if !t.active {
		if len(t.queue) < t.limit {
			t.queue = append(t.queue, m)
		} else {
			telemetry.ObserveLiveDropped()
			if !t.overflowed[m.ChannelID] {
				t.overflowed[m.ChannelID] = true
				t.logger.Warn("live buffer full; dropping messages until tail activates", slog.String("channel_id", m.ChannelID), slog.Int("limit", t.limit))
			}
		}
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.deliver(conv, t.channelFor(ch, m), m)
}

// matchLocked finds the conversation owning m. Exact channel routes win
// over guild wildcards.
func (t *Tail) matchLocked(m Message) (*Conversation, Channel, bool) {
	if r, ok := t.exact[m.ChannelID]; ok {
		if r.channel.GuildID == "" || r.channel.GuildID == m.GuildID {
			return r.conv, r.channel, true
		}
	}
	if m.GuildID != "" {
		if conv, ok := t.wildcard[m.GuildID]; ok {
			return conv, Channel{ID: m.ChannelID, GuildID: m.GuildID}, true
		}
	}
	return nil, Channel{}, false
}

// channelFor fills in the channel name for wildcard routes.
func (t *Tail) channelFor(ch Channel, m Message) Channel {
	if ch.Name != "" {
		return ch
	}
	t.namesMu.Lock()
	known, ok := t.names[m.ChannelID]
	t.namesMu.Unlock()
	if ok {
		return known
	}
	fetched, err := t.source.FetchChannel(t.ctx, m.ChannelID)
	if err != nil {
		t.logger.Debug("channel lookup failed", slog.String("channel_id", m.ChannelID), slog.Any("err", err))
		fetched = Channel{ID: m.ChannelID, Name: m.ChannelID, GuildID: m.GuildID, Kind: KindText}
	}
	t.remember(fetched)
	return fetched
}

func (t *Tail) remember(ch Channel) {
	t.namesMu.Lock()
	t.names[ch.ID] = ch
	t.namesMu.Unlock()
}

func (t *Tail) deliver(conv *Conversation, ch Channel, m Message) {
	if err := conv.Append(t.ctx, PhaseLive, ch, m); err != nil {
		t.logger.Error("failed to write live message", slog.String("channel_id", ch.ID), slog.String("message_id", m.ID), slog.Any("err", err))
	}
}
