package archive

import (
	"fmt"
	"time"
)

// TimestampLayout renders times as MM/DD/YYYY, HH:MM:SS (24h).
const TimestampLayout = "01/02/2006, 15:04:05"

// FormatTimestamp renders t in local time.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// SessionHeader is written once per run at the top of a conversation's section.
func SessionHeader(label, id string, at time.Time) string {
	return fmt.Sprintf("\n========== LOGGING STARTED FOR %s (%s) AT %s ==========\n", label, id, FormatTimestamp(at))
}

// ChannelHeader precedes each channel's history in a guild log.
func ChannelHeader(name, id string) string {
	return fmt.Sprintf("\n----- CHANNEL: #%s (%s) -----\n", name, id)
}

// DMContext is the bracketed context of a DM or group entry.
func DMContext(ch Channel) string {
	return ch.DisplayName() + " " + ch.ID
}

// GuildContext is the bracketed context of a guild entry. It deliberately
// closes and reopens the bracket so the line reads [guild id]: [#channel id].
func GuildContext(g Guild, ch Channel) string {
	return fmt.Sprintf("%s %s]: [#%s %s", g.DisplayName(), g.ID, ch.DisplayName(), ch.ID)
}

// MessageLine formats one message entry.
func MessageLine(context string, m Message) string {
	return fmt.Sprintf("[ LOG %s ] [%s] - %s: %s (MESSAGE ID: %s, USER ID: %s)",
		FormatTimestamp(m.CreatedAt), context, m.AuthorTag, m.Content, m.ID, m.AuthorID)
}

// AttachmentLine formats one attachment sub-line.
func AttachmentLine(a Attachment) string {
	return fmt.Sprintf("    📎 Attachment: %s - %s", a.Name, a.URL)
}

// AttachmentLines formats a message's attachments in their original order.
func AttachmentLines(m Message) []string {
	if len(m.Attachments) == 0 {
		return nil
	}
	out := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		out = append(out, AttachmentLine(a))
	}
	return out
}
