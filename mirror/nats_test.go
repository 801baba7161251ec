package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/discord-archiver/archive"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu       sync.Mutex
	msgs     []published
	err      error
	drained  bool
	drainErr error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return f.drainErr
}

func sampleEntry() archive.Entry {
	return archive.Entry{
		ConversationID: "555",
		Phase:          archive.PhaseHistory,
		Line:           "[10/15/2024, 14:30:00] [DM 555] alice: hello",
		Attachments:    []string{"    📎 Attachment: a.png - https://cdn.example/a.png"},
		Message: archive.Message{
			ID:        "1001",
			ChannelID: "555",
			AuthorID:  "7",
			AuthorTag: "alice",
			Content:   "hello",
			CreatedAt: time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC),
		},
	}
}

func TestPublishEntry(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, "", nil)

	if err := p.PublishEntry(context.Background(), sampleEntry()); err != nil {
		t.Fatalf("PublishEntry: %v", err)
	}
	if len(fc.msgs) != 1 {
		t.Fatalf("got %d publishes, want 1", len(fc.msgs))
	}
	if fc.msgs[0].subject != "archive.555" {
		t.Errorf("subject = %q, want archive.555", fc.msgs[0].subject)
	}
	var got Payload
	if err := json.Unmarshal(fc.msgs[0].data, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.MessageID != "1001" || got.Author != "alice" || got.Phase != "history" {
		t.Errorf("unexpected payload %+v", got)
	}
	if len(got.Attachments) != 1 {
		t.Errorf("attachments = %v", got.Attachments)
	}
	if !got.CreatedAt.Equal(time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC)) {
		t.Errorf("created_at = %v", got.CreatedAt)
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		prefix string
		id     string
		want   string
	}{
		{"", "123", "archive.123"},
		{"team.archive.", "123", "team.archive.123"},
		{"x", "a.b*c>", "x.a_b_c_"},
		{"x", "", "x._"},
	}
	for _, tt := range tests {
		p := newPublisher(&fakeConn{}, tt.prefix, nil)
		if got := p.Subject(tt.id); got != tt.want {
			t.Errorf("Subject(%q) with prefix %q = %q, want %q", tt.id, tt.prefix, got, tt.want)
		}
	}
}

func TestPublishEntryError(t *testing.T) {
	fc := &fakeConn{err: errors.New("connection closed")}
	p := newPublisher(fc, "archive", nil)

	err := p.PublishEntry(context.Background(), sampleEntry())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, fc.err) {
		t.Errorf("error %v does not wrap publish error", err)
	}
}

func TestPublishEntryCanceled(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, "archive", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.PublishEntry(ctx, sampleEntry()); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(fc.msgs) != 0 {
		t.Errorf("published %d messages after cancel", len(fc.msgs))
	}
}

func TestClose(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, "archive", nil)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fc.drained {
		t.Error("connection not drained")
	}
}

func TestPublisherSatisfiesInterface(t *testing.T) {
	var _ archive.Publisher = newPublisher(&fakeConn{}, "", nil)
}
