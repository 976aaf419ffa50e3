// Package progressfeed publishes upload progress, completions, and share
// links to WebSocket subscribers. It is the external sink the upload engine
// reports to when the CLI runs as a long-lived watcher.
package progressfeed

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tonimelisma/gdrive-upload/internal/gdrive"
	"github.com/tonimelisma/gdrive-upload/internal/upload"
)

const (
	// subscriberBuffer is how many events may queue for one slow subscriber
	// before further events to it are dropped.
	subscriberBuffer = 64

	writeTimeout = 10 * time.Second
)

// EventType names the kind of Event.
type EventType string

const (
	EventProgress   EventType = "progress"
	EventCompletion EventType = "completion"
	EventShare      EventType = "share"
)

// Event is the JSON message sent to subscribers. Handles are redacted:
// a session URI grants write access to the upload.
type Event struct {
	Type        EventType `json:"type"`
	Time        time.Time `json:"time"`
	Handle      string    `json:"handle,omitempty"`
	File        string    `json:"file,omitempty"`
	Destination string    `json:"destination,omitempty"`

	Sent    int64   `json:"sent,omitempty"`
	Total   int64   `json:"total,omitempty"`
	Percent float64 `json:"percent,omitempty"`

	Status string `json:"status,omitempty"`
	Kind   string `json:"kind,omitempty"`
	ItemID string `json:"item_id,omitempty"`
	Error  string `json:"error,omitempty"`

	Link    string `json:"link,omitempty"`
	Message string `json:"message,omitempty"`
}

type subscriber struct {
	events chan Event
}

// Hub fans events out to every connected subscriber. Publishing never
// blocks the upload engine.
type Hub struct {
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		logger: logger,
		now:    time.Now,
		subs:   make(map[*subscriber]struct{}),
		closed: make(chan struct{}),
	}
}

// Close disconnects every subscriber with a going-away status. Later
// connections are refused the same way.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.closed) })
}

// Progress publishes an upload.Progress. Its signature matches
// upload.Options.OnProgress.
func (h *Hub) Progress(p upload.Progress) {
	h.Publish(Event{
		Type:    EventProgress,
		Handle:  gdrive.RedactHandle(p.Handle),
		File:    p.File.Name,
		Sent:    p.Sent,
		Total:   p.Total,
		Percent: p.Percent(),
	})
}

// Completion publishes an upload.Completion. Its signature matches
// upload.Options.OnCompletion.
func (h *Hub) Completion(c upload.Completion) {
	ev := Event{
		Type:        EventCompletion,
		Handle:      gdrive.RedactHandle(c.Handle),
		File:        c.File.Name,
		Destination: c.Destination,
		Status:      c.Outcome.Status.String(),
		ItemID:      c.Outcome.ItemID,
		Link:        c.Link,
	}

	if c.Outcome.Status == upload.StatusFailed {
		ev.Kind = c.Outcome.Kind.String()

		if c.Outcome.Err != nil {
			ev.Error = c.Outcome.Err.Error()
		}
	}

	h.Publish(ev)
}

// Share publishes an upload.ShareNotice. Its signature matches
// upload.Options.OnShare.
func (h *Hub) Share(n upload.ShareNotice) {
	h.Publish(Event{
		Type:        EventShare,
		Handle:      gdrive.RedactHandle(n.Handle),
		ItemID:      n.ItemID,
		Destination: n.Destination,
		Link:        n.Link,
		Message:     n.Message,
	})
}

// Publish sends ev to every subscriber whose queue has room.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = h.now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.events <- ev:
		default:
			h.logger.Debug("subscriber queue full, dropping event", slog.String("type", string(ev.Type)))
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

func (h *Hub) subscribe() *subscriber {
	s := &subscriber{events: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	return s
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request to a WebSocket and streams events until
// the client goes away. Messages from the client are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())

	s := h.subscribe()
	defer h.unsubscribe(s)

	h.logger.Debug("feed subscriber connected", slog.String("remote", r.RemoteAddr))

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("feed subscriber gone", slog.String("remote", r.RemoteAddr))
			return
		case <-h.closed:
			conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		case ev := <-s.events:
			if err := h.write(ctx, conn, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.Debug("feed write failed", slog.String("error", err.Error()))
				}

				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return wsjson.Write(ctx, conn, ev)
}
