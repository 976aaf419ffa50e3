package gdrive

import (
	"log/slog"
	"strconv"
)

// FileMetadata is what the server is told about a file when a resumable
// session is created. Size and MimeType are declared up front.
type FileMetadata struct {
	Name     string
	MimeType string
	Size     int64
}

// Item is a Drive file as returned by the final chunk of an upload.
type Item struct {
	ID          string
	Name        string
	MimeType    string
	Size        int64
	MD5Checksum string // hex; empty when Drive did not report one
}

// ChunkResult is the server's verdict after a chunk PUT or a status probe.
// Exactly one of Complete / !Complete applies: a complete result carries
// the created Item, an incomplete one carries the next offset to send.
type ChunkResult struct {
	Complete   bool
	Item       *Item
	NextOffset int64 // server-authoritative; valid when !Complete
}

// driveFileResponse is the JSON shape of a Drive v3 file resource.
// Drive encodes int64 sizes as JSON strings.
type driveFileResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType"`
	Size        string `json:"size"`
	MD5Checksum string `json:"md5Checksum"`
}

func (r *driveFileResponse) toItem(logger *slog.Logger) *Item {
	item := &Item{
		ID:          r.ID,
		Name:        r.Name,
		MimeType:    r.MimeType,
		MD5Checksum: r.MD5Checksum,
	}

	if r.Size != "" {
		size, err := strconv.ParseInt(r.Size, 10, 64)
		if err != nil {
			logger.Warn("unparseable file size in response",
				slog.String("raw", r.Size),
				slog.String("error", err.Error()),
			)
		} else {
			item.Size = size
		}
	}

	return item
}
