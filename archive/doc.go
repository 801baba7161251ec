// Package archive contains the conversation archiver: the append-only log
// sink, the history drainer, the live tail and the coordinator driving them.
//
// A run has two phases per target:
//   - Drain: page backward through a channel's history (newest page first,
//     cursor = oldest ID seen) and append every message to the conversation's
//     log file in chronological order.
//   - Tail: after every target has drained, route newly arriving messages from
//     the source's single live subscription to the sink owning their channel.
//
// The live subscription is opened before the drains start so nothing sent
// during a drain is lost; those messages are queued and replayed once the tail
// is activated, skipping anything the drain already wrote.
//
// Log files are never truncated. A fresh run appends a new session header and
// re-walks the full history, so repeated runs repeat the historical record.
package archive
