package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ChunkAlignment is the granularity Drive requires for every chunk except the
// last one (256 KiB).
const ChunkAlignment = 256 * 1024

// statusResumeIncomplete is the non-standard 308 Drive uses for "keep going".
const statusResumeIncomplete = 308

// probeContentRange asks the server how much it holds without sending bytes.
const probeContentRange = "bytes 0-*/*"

// itemFields selects the file fields returned by the final chunk response.
const itemFields = "id,name,mimeType,size,md5Checksum"

// createSessionRequest is the JSON metadata body of a session creation.
type createSessionRequest struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
}

// CreateSession opens a resumable upload session and returns its handle,
// the session URI from the Location header. The total size and MIME type
// are declared up front so every later chunk can be checked against them.
// Any status other than 200 is returned as an *APIError.
func (c *Client) CreateSession(ctx context.Context, meta FileMetadata) (string, error) {
	name := norm.NFC.String(meta.Name)

	c.logger.Info("creating upload session",
		slog.String("name", name),
		slog.String("mime_type", meta.MimeType),
		slog.Int64("size", meta.Size),
	)

	body, err := json.Marshal(createSessionRequest{Name: name, MimeType: meta.MimeType})
	if err != nil {
		return "", fmt.Errorf("gdrive: marshaling session metadata: %w", err)
	}

	url := c.endpoints.UploadURL + "?uploadType=resumable&fields=" + itemFields

	req, err := newRequest(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(meta.Size, 10))

	if meta.MimeType != "" {
		req.Header.Set("X-Upload-Content-Type", meta.MimeType)
	}

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("session creation rejected", slog.Int("status", resp.StatusCode))
		return "", readError(resp)
	}

	defer drain(resp)

	handle := resp.Header.Get("Location")
	if handle == "" {
		return "", &APIError{
			StatusCode: resp.StatusCode,
			RequestID:  resp.Header.Get(requestIDHeader),
			Message:    "session created without a Location header",
			Err:        ErrServerError,
		}
	}

	c.logger.Debug("upload session created", slog.String("handle", RedactHandle(handle)))

	return handle, nil
}

// PutChunk sends bytes [offset, offset+length) of a total-byte upload.
// A complete result carries the created item; an incomplete one carries
// the server's resume offset, which callers must prefer over their own
// arithmetic. Other statuses are returned as *APIError (401 unwraps to
// ErrUnauthorized, 404/410 satisfy IsSessionExpired).
func (c *Client) PutChunk(
	ctx context.Context, handle string, chunk io.Reader, offset, length, total int64,
) (*ChunkResult, error) {
	contentRange := fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, total)
	if length == 0 {
		// Zero-byte files finish with an empty body.
		contentRange = fmt.Sprintf("bytes */%d", total)
		chunk = http.NoBody
	}

	c.logger.Debug("uploading chunk",
		slog.String("handle", RedactHandle(handle)),
		slog.String("content_range", contentRange),
	)

	req, err := newRequest(ctx, http.MethodPut, handle, chunk)
	if err != nil {
		return nil, err
	}

	req.ContentLength = length
	req.Header.Set("Content-Range", contentRange)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}

	return c.handleResumableResponse(resp)
}

// ProbeSession asks how many bytes the server has durably received for the
// session, with a zero-length PUT. 404/410 mean the session expired.
func (c *Client) ProbeSession(ctx context.Context, handle string) (*ChunkResult, error) {
	c.logger.Debug("probing upload session", slog.String("handle", RedactHandle(handle)))

	req, err := newRequest(ctx, http.MethodPut, handle, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.ContentLength = 0
	req.Header.Set("Content-Range", probeContentRange)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}

	return c.handleResumableResponse(resp)
}

// handleResumableResponse interprets the answer to a chunk PUT or probe.
// 200/201 mean complete, 308 means incomplete; everything else is an error.
func (c *Client) handleResumableResponse(resp *http.Response) (*ChunkResult, error) {
	switch resp.StatusCode {
	case statusResumeIncomplete:
		defer drain(resp)

		next, err := parseResumeOffset(resp.Header.Get("Range"))
		if err != nil {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				RequestID:  resp.Header.Get(requestIDHeader),
				Message:    err.Error(),
				Err:        ErrServerError,
			}
		}

		c.logger.Debug("resume incomplete", slog.Int64("next_offset", next))

		return &ChunkResult{NextOffset: next}, nil

	case http.StatusOK, http.StatusCreated:
		defer resp.Body.Close()

		var dfr driveFileResponse
		if err := json.NewDecoder(resp.Body).Decode(&dfr); err != nil {
			return nil, fmt.Errorf("gdrive: decoding completed upload response: %w", err)
		}

		if dfr.ID == "" {
			return nil, fmt.Errorf("gdrive: completed upload response has no file id")
		}

		item := dfr.toItem(c.logger)

		c.logger.Debug("upload complete", slog.String("item_id", item.ID))

		return &ChunkResult{Complete: true, Item: item}, nil

	default:
		c.logger.Warn("resumable request failed", slog.Int("status", resp.StatusCode))

		return nil, readError(resp)
	}
}

// parseResumeOffset converts a 308 Range header ("bytes=0-N") into the next
// offset to send, N+1. A missing header means nothing has been received.
func parseResumeOffset(header string) (int64, error) {
	if header == "" {
		return 0, nil
	}

	rng := strings.TrimPrefix(strings.TrimSpace(header), "bytes=")

	_, last, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, fmt.Errorf("malformed Range header %q", header)
	}

	n, err := strconv.ParseInt(strings.TrimSpace(last), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("malformed Range header %q", header)
	}

	return n + 1, nil
}

// CancelSession asks the server to discard a resumable session. Drive answers
// 499 on success; any response at all counts, only transport errors fail.
func (c *Client) CancelSession(ctx context.Context, handle string) error {
	c.logger.Info("canceling upload session", slog.String("handle", RedactHandle(handle)))

	req, err := newRequest(ctx, http.MethodDelete, handle, http.NoBody)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}

	drain(resp)

	c.logger.Debug("upload session cancel answered", slog.Int("status", resp.StatusCode))

	return nil
}
