package archive

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by sources when a channel or guild does not exist
// or is not visible to the account.
var ErrNotFound = errors.New("not found")

// ResolutionError reports that a primary target could not be resolved. It is
// fatal for that target.
type ResolutionError struct {
	Kind string // "conversation", "server" or "channel"
	ID   string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// FetchError reports a failed history page request. The drain of that
// channel is abandoned; siblings continue.
type FetchError struct {
	ChannelID string
	Cursor    string
	Err       error
}

func (e *FetchError) Error() string {
	if e.Cursor == "" {
		return fmt.Sprintf("fetch history %s (newest page): %v", e.ChannelID, e.Err)
	}
	return fmt.Sprintf("fetch history %s before %s: %v", e.ChannelID, e.Cursor, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
