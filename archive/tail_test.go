package archive

import (
	"context"
	"strings"
	"sync"
	"testing"
)

func newTailFixture(t *testing.T, src *fakeSource, opts TailOptions) (*Tail, *Conversation) {
	t.Helper()
	g := Guild{ID: "1", Name: "Guild"}
	sink, err := OpenSink(t.TempDir(), g.Name, g.ID)
	if err != nil {
		t.Fatalf("OpenSink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })
	tail := NewTail(src, opts)
	t.Cleanup(tail.Stop)
	return tail, &Conversation{ID: g.ID, Sink: sink, Guild: &g}
}

func TestTailQueuesUntilActivated(t *testing.T) {
	src := newFakeSource()
	tail, conv := newTailFixture(t, src, TailOptions{})
	ch := Channel{ID: "11", Name: "general", GuildID: "1", Kind: KindText}
	tail.TrackChannel(conv, ch)
	tail.Start(context.Background())

	src.emit(liveMessage(ch, 500, "queued"))
	if ids := loggedIDs(readLines(t, conv.Sink.Path())); len(ids) != 0 {
		t.Fatalf("written before activation: %v", ids)
	}
	if tail.Active() {
		t.Fatal("tail active before Activate")
	}

	if n := tail.Activate(nil); n != 1 {
		t.Errorf("replayed = %d, want 1", n)
	}
	src.emit(liveMessage(ch, 501, "direct"))
	ids := loggedIDs(readLines(t, conv.Sink.Path()))
	if len(ids) != 2 || ids[0] != "500" || ids[1] != "501" {
		t.Errorf("ids = %v, want [500 501]", ids)
	}
}

func TestTailExactGuildRouteRequiresGuild(t *testing.T) {
	src := newFakeSource()
	tail, conv := newTailFixture(t, src, TailOptions{})
	ch := Channel{ID: "11", Name: "general", GuildID: "1", Kind: KindText}
	tail.TrackChannel(conv, ch)
	tail.Start(context.Background())
	tail.Activate(nil)

	spoofed := liveMessage(ch, 600, "wrong guild")
	spoofed.GuildID = "2"
	src.emit(spoofed)
	src.emit(liveMessage(Channel{ID: "12", GuildID: "1"}, 601, "other channel"))

	if ids := loggedIDs(readLines(t, conv.Sink.Path())); len(ids) != 0 {
		t.Errorf("unexpected entries: %v", ids)
	}
}

func TestTailWildcardResolvesUnknownChannel(t *testing.T) {
	src := newFakeSource()
	created := Channel{ID: "15", Name: "new-channel", GuildID: "1", Kind: KindText}
	src.addChannel(created, nil)
	tail, conv := newTailFixture(t, src, TailOptions{})
	tail.TrackGuild(conv, "1", nil)
	tail.Start(context.Background())
	tail.Activate(nil)

	src.emit(liveMessage(created, 700, "first"))
	src.emit(liveMessage(created, 701, "second"))
	src.emit(liveMessage(Channel{ID: "16", GuildID: "1"}, 702, "unresolvable"))

	lines := readLines(t, conv.Sink.Path())
	var entries []string
	for _, ln := range lines {
		if len(ln) > 0 && ln[0] == '[' {
			entries = append(entries, ln)
		}
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %q", entries)
	}
	if want := "[Guild 1]: [#new-channel 15]"; !strings.Contains(entries[0], want) || !strings.Contains(entries[1], want) {
		t.Errorf("labels = %q, want %q", entries[:2], want)
	}
	if !strings.Contains(entries[2], "[#16 16]") {
		t.Errorf("fallback label = %q", entries[2])
	}
	// 15 cached after first lookup, 16 looked up once.
	if src.lookups != 2 {
		t.Errorf("lookups = %d, want 2", src.lookups)
	}
}

func TestTailBufferOverflowDrops(t *testing.T) {
	src := newFakeSource()
	tail, conv := newTailFixture(t, src, TailOptions{BufferSize: 2})
	ch := Channel{ID: "11", Name: "general", GuildID: "1", Kind: KindText}
	tail.TrackChannel(conv, ch)
	tail.Start(context.Background())

	for id := 800; id < 805; id++ {
		src.emit(liveMessage(ch, id, "burst"))
	}
	if n := tail.Activate(nil); n != 2 {
		t.Errorf("replayed = %d, want 2", n)
	}
}

func TestTailStopUnsubscribes(t *testing.T) {
	src := newFakeSource()
	tail, conv := newTailFixture(t, src, TailOptions{})
	ch := Channel{ID: "11", Name: "general", GuildID: "1", Kind: KindText}
	tail.TrackChannel(conv, ch)
	tail.Start(context.Background())
	tail.Start(context.Background())
	tail.Activate(nil)
	tail.Stop()

	src.emit(liveMessage(ch, 900, "after stop"))
	if ids := loggedIDs(readLines(t, conv.Sink.Path())); len(ids) != 0 {
		t.Errorf("entries after Stop: %v", ids)
	}
	if tail.Active() {
		t.Error("tail active after Stop")
	}
}

func TestTailConcurrentDeliveryKeepsAttachmentsTogether(t *testing.T) {
	src := newFakeSource()
	tail, conv := newTailFixture(t, src, TailOptions{})
	ch := Channel{ID: "11", Name: "general", GuildID: "1", Kind: KindText}
	tail.TrackChannel(conv, ch)
	tail.Start(context.Background())
	tail.Activate(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			m := liveMessage(ch, 1000+id, "with files")
			m.Attachments = []Attachment{{Name: "a", URL: "u"}, {Name: "b", URL: "v"}}
			src.emit(m)
		}(i)
	}
	wg.Wait()

	lines := readLines(t, conv.Sink.Path())
	for i, ln := range lines {
		if len(ln) > 0 && ln[0] == '[' {
			if i+2 >= len(lines) || lines[i+1] != "    📎 Attachment: a - u" || lines[i+2] != "    📎 Attachment: b - v" {
				t.Fatalf("attachments of line %d interleaved", i)
			}
		}
	}
	if ids := loggedIDs(lines); len(ids) != 20 {
		t.Errorf("entries = %d, want 20", len(ids))
	}
}
