package upload

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tonimelisma/gdrive-upload/internal/gdrive"
	"github.com/tonimelisma/gdrive-upload/internal/uploadstate"
)

// ShareMessage joins the accompanying text and the link the way it is
// posted: text, newline, link. Blank text yields the link alone.
func ShareMessage(text, link string) string {
	if strings.TrimSpace(text) == "" {
		return link
	}

	return text + "\n" + link
}

// complete records a successful upload: checksum check, history entry,
// then the public-read grant.
func (e *Engine) complete(ctx context.Context, c *Completion, item *gdrive.Item) {
	itemID := c.Outcome.ItemID
	link := gdrive.ShareLink(itemID, e.opts.DirectLink)

	if e.opts.VerifyChecksum && item != nil {
		e.verifyChecksum(c.File, item)
	}

	if _, err := e.history.Append(ctx, uploadstate.HistoryEntry{
		CompletedAt:  e.now(),
		RemoteItemID: itemID,
		File:         c.File,
		Destination:  c.Destination,
		Link:         link,
	}); err != nil {
		e.logger.Error("failed to record upload history",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}

	if !e.opts.ShareEnabled {
		return
	}

	if e.share(ctx, c.Handle, itemID) {
		c.Link = link

		if e.opts.OnShare != nil {
			e.opts.OnShare(ShareNotice{
				Handle:      c.Handle,
				ItemID:      itemID,
				Link:        link,
				Destination: c.Destination,
				Message:     ShareMessage(c.Text, link),
			})
		}
	}
}

// share grants public read, refreshing once on 401. A failure leaves the
// upload successful but private; it is logged and not retried.
func (e *Engine) share(ctx context.Context, handle, itemID string) bool {
	err := e.remote.GrantPublicRead(ctx, itemID)
	if isUnauthorized(err) {
		if rerr := e.refresh(ctx); rerr != nil {
			err = rerr
		} else {
			err = e.remote.GrantPublicRead(ctx, itemID)
		}
	}

	if err != nil {
		e.logger.Warn("uploaded file could not be shared; it stays private",
			slog.String("handle", gdrive.RedactHandle(handle)),
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)

		return false
	}

	return true
}

// verifyChecksum compares the local MD5 with the one the server computed.
// A mismatch is reported, not acted on: the bytes are already committed.
func (e *Engine) verifyChecksum(file uploadstate.FileInfo, item *gdrive.Item) {
	if item.MD5Checksum == "" {
		return
	}

	local, err := fileMD5(file.Path)
	if err != nil {
		e.logger.Warn("could not hash source for verification",
			slog.String("file", file.Name),
			slog.String("error", err.Error()),
		)

		return
	}

	if !strings.EqualFold(local, item.MD5Checksum) {
		e.logger.Warn("checksum mismatch after upload",
			slog.String("file", file.Name),
			slog.String("item_id", item.ID),
			slog.String("local_md5", local),
			slog.String("remote_md5", item.MD5Checksum),
		)

		return
	}

	e.logger.Debug("checksum verified", slog.String("item_id", item.ID))
}
