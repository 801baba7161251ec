package archive

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/onnwee/discord-archiver/telemetry"
)

// DrainResult summarizes one channel's backfill.
type DrainResult struct {
	Messages int
	Pages    int
	// Newest is the highest message ID written; the tail skips queued live
	// messages at or below it.
	Newest string
}

// Drainer pages backward through a channel's history and appends every
// message to a conversation in chronological order.
type Drainer struct {
	Source   Source
	PageSize int
	Logger   *slog.Logger
}

func (d *Drainer) pageSize() int {
	if d.PageSize <= 0 || d.PageSize > DefaultPageSize {
		return DefaultPageSize
	}
	return d.PageSize
}

func (d *Drainer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Drain requests pages of history (before = oldest ID seen so far) until the
// source returns an empty or short page, then writes them oldest page first,
// each page in ascending CreatedAt order. Pages arrive newest first, so
// nothing is written until paging stops.
//
// On a fetch failure the pages collected so far are still written and the
// partial result is returned with a *FetchError.
//
// The whole history of ch is held in memory until paging stops, so memory
// grows with the channel's size, and an interrupted drain leaves none of
// that channel's history on disk.
func (d *Drainer) Drain(ctx context.Context, conv *Conversation, ch Channel) (DrainResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "archive", "archive.drain",
		attribute.String("channel_id", ch.ID),
		attribute.String("conversation_id", conv.ID),
	)
	defer span.End()

	logger := d.logger().With(slog.String("channel_id", ch.ID), slog.String("channel", ch.DisplayName()))

	var (
		res DrainResult
		err error
	)
	telemetry.TimeFunc(telemetry.DrainDuration, func() {
		res, err = d.drain(ctx, logger, span, conv, ch)
	})
	return res, err
}

func (d *Drainer) drain(ctx context.Context, logger *slog.Logger, span trace.Span, conv *Conversation, ch Channel) (DrainResult, error) {
	pages, fetchErr := d.collect(ctx, logger, ch)

	var res DrainResult
	res.Pages = len(pages)
	for i := len(pages) - 1; i >= 0; i-- {
		for _, m := range pages[i] {
			if err := conv.Append(ctx, PhaseHistory, ch, m); err != nil {
				telemetry.RecordError(span, err)
				return res, err
			}
			res.Messages++
			if res.Newest == "" || CompareIDs(m.ID, res.Newest) > 0 {
				res.Newest = m.ID
			}
		}
	}
	span.SetAttributes(attribute.Int("messages", res.Messages), attribute.Int("pages", res.Pages))
	if fetchErr != nil {
		telemetry.RecordError(span, fetchErr)
		return res, fetchErr
	}
	telemetry.SetSpanSuccess(span)
	return res, nil
}

// collect fetches every page of ch. Returned pages are newest page first,
// each sorted ascending with ties kept in fetch order, and never repeat an ID.
func (d *Drainer) collect(ctx context.Context, logger *slog.Logger, ch Channel) ([][]Message, error) {
	limit := d.pageSize()
	seen := make(map[string]struct{})
	var pages [][]Message
	fetched := 0
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		batch, err := d.Source.FetchBatch(ctx, ch.ID, cursor, limit)
		if err != nil {
			telemetry.ObserveFetchError()
			return pages, &FetchError{ChannelID: ch.ID, Cursor: cursor, Err: err}
		}
		if len(batch) == 0 {
			return pages, nil
		}
		telemetry.ObservePage()

		// The oldest message of the page, in server order, bounds the next request.
		next := batch[len(batch)-1].ID

		page := make([]Message, 0, len(batch))
		for _, m := range batch {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			page = append(page, m)
		}
		sort.SliceStable(page, func(i, j int) bool {
			return page[i].CreatedAt.Before(page[j].CreatedAt)
		})
		if len(page) > 0 {
			pages = append(pages, page)
			fetched += len(page)
		}
		logger.Info("drain progress", slog.Int("fetched", fetched), slog.Int("pages", len(pages)))

		if len(batch) < limit || next == cursor {
			return pages, nil
		}
		cursor = next
	}
}
