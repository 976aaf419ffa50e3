package uploadstate

import "time"

// FileInfo describes the local file behind an upload.
type FileInfo struct {
	Path     string
	Name     string
	Size     int64
	MimeType string
}

// Session is one registry entry. Handle is the server-issued resumable
// session URI and never changes once registered.
type Session struct {
	Handle      string
	File        FileInfo
	Destination string // opaque caller context, e.g. a chat channel
	Text        string // message accompanying the share link
	CreatedAt   time.Time
}

// HistoryEntry records one completed upload. Entries are never mutated.
type HistoryEntry struct {
	ID           int64
	CompletedAt  time.Time
	RemoteItemID string
	File         FileInfo
	Destination  string
	Link         string
}
