package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Sink is the append-only log file of one conversation. Writes are
// synchronous appends serialized by the sink's mutex.
type Sink struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// SinkFileName returns <name>_<id>.log, replacing characters that would
// escape the logs directory.
func SinkFileName(name, id string) string {
	if strings.TrimSpace(name) == "" {
		name = FallbackConversationName
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf("%s_%s.log", name, id)
}

// OpenSink opens (creating if needed) the conversation's log file in dir for
// appending. Existing content is never truncated.
func OpenSink(dir, name, id string) (*Sink, error) {
	p := filepath.Join(dir, SinkFileName(name, id))
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &Sink{f: f, path: p}, nil
}

// Path returns the log file path.
func (s *Sink) Path() string { return s.path }

// WriteHeader appends the session header.
func (s *Sink) WriteHeader(label, id string, at time.Time) error {
	return s.append(SessionHeader(label, id, at))
}

// WriteChannelHeader appends a guild channel section header.
func (s *Sink) WriteChannelHeader(name, id string) error {
	return s.append(ChannelHeader(name, id))
}

// WriteEntry appends a formatted message line.
func (s *Sink) WriteEntry(line string) error {
	return s.append(line)
}

// WriteAttachment appends an attachment sub-line.
func (s *Sink) WriteAttachment(line string) error {
	return s.append(line)
}

// WriteMessage appends a message line followed by its attachment lines
// without letting another writer interleave.
func (s *Sink) WriteMessage(line string, attachments []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(line); err != nil {
		return err
	}
	for _, a := range attachments {
		if err := s.writeLocked(a); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *Sink) append(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(text)
}

func (s *Sink) writeLocked(text string) error {
	if s.f == nil {
		return fmt.Errorf("write %s: sink closed", s.path)
	}
	if _, err := s.f.WriteString(text + "\n"); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}
