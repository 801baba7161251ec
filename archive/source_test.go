package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

type fetchCall struct {
	channelID string
	before    string
	limit     int
}

// fakeSource is an in-memory Source. History is stored per channel in
// ascending ID order and served newest-first like the real API.
type fakeSource struct {
	mu       sync.Mutex
	history  map[string][]Message
	channels map[string]Channel
	guilds   map[string]Guild
	failOn   map[string]error
	calls    []fetchCall
	handler  func(Message)
	// afterFetch runs after a page has been computed, before it is returned.
	afterFetch func(channelID string, call int)
	lookups    int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		history:  make(map[string][]Message),
		channels: make(map[string]Channel),
		guilds:   make(map[string]Guild),
		failOn:   make(map[string]error),
	}
}

func (f *fakeSource) addChannel(ch Channel, msgs []Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[ch.ID] = ch
	sorted := append([]Message(nil), msgs...)
	sort.SliceStable(sorted, func(i, j int) bool { return CompareIDs(sorted[i].ID, sorted[j].ID) < 0 })
	f.history[ch.ID] = sorted
}

func (f *fakeSource) FetchBatch(ctx context.Context, channelID, before string, limit int) ([]Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{channelID: channelID, before: before, limit: limit})
	call := 0
	for _, c := range f.calls {
		if c.channelID == channelID {
			call++
		}
	}
	if err, ok := f.failOn[channelID]; ok {
		f.mu.Unlock()
		return nil, err
	}
	all := f.history[channelID]
	var out []Message
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if before != "" && CompareIDs(all[i].ID, before) >= 0 {
			continue
		}
		out = append(out, all[i])
	}
	hook := f.afterFetch
	f.mu.Unlock()
	if hook != nil {
		hook(channelID, call)
	}
	return out, nil
}

func (f *fakeSource) FetchChannel(ctx context.Context, channelID string) (Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	ch, ok := f.channels[channelID]
	if !ok {
		return Channel{}, fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	return ch, nil
}

func (f *fakeSource) FetchGuild(ctx context.Context, guildID string) (Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guilds[guildID]
	if !ok {
		return Guild{}, fmt.Errorf("guild %s: %w", guildID, ErrNotFound)
	}
	return g, nil
}

func (f *fakeSource) FetchGuildChannels(ctx context.Context, guildID string) ([]Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Channel
	for _, ch := range f.channels {
		if ch.GuildID == guildID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *fakeSource) Subscribe(handler func(Message)) func() {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.handler = nil
		f.mu.Unlock()
	}
}

// emit delivers a live message like the gateway would.
func (f *fakeSource) emit(m Message) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(m)
	}
}

func (f *fakeSource) callsFor(channelID string) []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fetchCall
	for _, c := range f.calls {
		if c.channelID == channelID {
			out = append(out, c)
		}
	}
	return out
}

var testEpoch = time.Date(2024, 10, 15, 14, 30, 0, 0, time.Local)

// makeMessages returns n messages with consecutive IDs starting at firstID,
// one second apart.
func makeMessages(ch Channel, firstID, n int) []Message {
	out := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		id := firstID + i
		out = append(out, Message{
			ID:        fmt.Sprintf("%d", id),
			ChannelID: ch.ID,
			GuildID:   ch.GuildID,
			AuthorID:  "42",
			AuthorTag: "alice",
			Content:   fmt.Sprintf("message %d", id),
			CreatedAt: testEpoch.Add(time.Duration(id-firstID) * time.Second),
		})
	}
	return out
}

func liveMessage(ch Channel, id int, content string) Message {
	return Message{
		ID:        fmt.Sprintf("%d", id),
		ChannelID: ch.ID,
		GuildID:   ch.GuildID,
		AuthorID:  "43",
		AuthorTag: "bob",
		Content:   content,
		CreatedAt: testEpoch.Add(24 * time.Hour),
	}
}

var messageIDPattern = regexp.MustCompile(`\(MESSAGE ID: (\d+), USER ID: \d+\)$`)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(string(data), "\n")
}

// loggedIDs returns the message IDs of every entry line in file order.
func loggedIDs(lines []string) []string {
	var ids []string
	for _, ln := range lines {
		if !strings.HasPrefix(ln, "[ LOG ") {
			continue
		}
		if m := messageIDPattern.FindStringSubmatch(ln); m != nil {
			ids = append(ids, m[1])
		}
	}
	return ids
}

func logFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.log"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return matches
}
