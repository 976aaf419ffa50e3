package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tonimelisma/gdrive-upload/internal/gdrive"
	"github.com/tonimelisma/gdrive-upload/internal/uploadstate"
)

// maxStalls is how many consecutive 308s that do not move the resume offset
// forward are tolerated before the session is given up.
const maxStalls = 3

// streamChunks sends s.File from start until the server reports the upload
// complete. Each iteration checks for cancellation first, then sends one
// chunk and waits for its answer. The next offset always comes from the
// server, never from local arithmetic.
func (e *Engine) streamChunks(ctx context.Context, r *run, s uploadstate.Session, start int64) (Outcome, *gdrive.Item) {
	r.transition(StateStreaming)

	handle := s.Handle
	total := s.File.Size
	log := e.logger.With(slog.String("handle", gdrive.RedactHandle(handle)), slog.String("file", s.File.Name))

	f, err := os.Open(s.File.Path)
	if err != nil {
		return Failed(KindFileIO, fmt.Errorf("upload: opening source: %w", err)), nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Failed(KindFileIO, fmt.Errorf("upload: stat source: %w", err)), nil
	}

	if info.Size() != total {
		return Failed(KindFileIO, fmt.Errorf("%w: registered %d bytes, now %d", ErrFileChanged, total, info.Size())), nil
	}

	if start < 0 || start > total {
		return Failed(KindUnrecoverableServer, fmt.Errorf("%w: %d of %d", ErrBadOffset, start, total)), nil
	}

	log.Debug("streaming", slog.Int64("start", start), slog.Int64("total", total))
	e.progress(r, s, start)

	buf := make([]byte, min(e.opts.ChunkSize, total))
	offset := start
	stalls := 0

	for {
		if e.cancels.has(handle) {
			log.Info("upload canceled", slog.Int64("offset", offset))
			return Canceled(), nil
		}

		if err := ctx.Err(); err != nil {
			return Failed(KindTransientNetwork, err), nil
		}

		if e.isDraining() {
			log.Info("upload paused for shutdown", slog.Int64("offset", offset))
			return Failed(KindTransientNetwork, ErrDraining), nil
		}

		length := min(e.opts.ChunkSize, total-offset)

		n, err := f.ReadAt(buf[:length], offset)
		if int64(n) < length {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}

			return Failed(KindFileIO, fmt.Errorf("upload: reading bytes %d-%d: %w", offset, offset+length-1, err)), nil
		}

		sentAt := e.now()

		res, err := e.putChunk(ctx, handle, buf[:length], offset, total)
		if err != nil {
			o := classifyFailure(err)
			log.Warn("chunk failed", slog.Int64("offset", offset), slog.String("outcome", o.String()))

			return o, nil
		}

		e.opts.Metrics.ChunkSent(length, e.now().Sub(sentAt))

		if res.Complete {
			e.progress(r, s, total)
			return Success(res.Item.ID), res.Item
		}

		next := res.NextOffset

		if next > total {
			return Failed(KindUnrecoverableServer, fmt.Errorf("%w: %d > %d", ErrBadOffset, next, total)), nil
		}

		if next <= offset {
			stalls++
			if stalls >= maxStalls {
				return Failed(KindUnrecoverableServer, fmt.Errorf("%w at %d", ErrStalled, next)), nil
			}
		} else {
			stalls = 0
		}

		if next != offset+length {
			log.Debug("server resume offset differs from bytes sent",
				slog.Int64("sent_end", offset+length),
				slog.Int64("server_next", next),
			)
		}

		offset = next
		e.progress(r, s, offset)
	}
}

// putChunk sends one chunk. On 401 it refreshes once and resends the same
// bytes at the same offset; a second 401 ends the session as AuthExpired.
func (e *Engine) putChunk(ctx context.Context, handle string, data []byte, offset, total int64) (*gdrive.ChunkResult, error) {
	send := func() (*gdrive.ChunkResult, error) {
		body := e.opts.Limiter.WrapReader(ctx, bytes.NewReader(data))
		return e.remote.PutChunk(ctx, handle, body, offset, int64(len(data)), total)
	}

	res, err := send()
	if !isUnauthorized(err) {
		return res, err
	}

	e.logger.Info("chunk rejected with 401, refreshing token",
		slog.String("handle", gdrive.RedactHandle(handle)),
		slog.Int64("offset", offset),
	)

	if rerr := e.refresh(ctx); rerr != nil {
		return nil, fail(KindAuthExpired, rerr)
	}

	res, err = send()
	if isUnauthorized(err) {
		return nil, fail(KindAuthExpired, err)
	}

	return res, err
}
