package progressfeed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gdrive-upload/internal/upload"
	"github.com/tonimelisma/gdrive-upload/internal/uploadstate"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// dial connects a subscriber to srv and waits until the hub counts it.
func dial(t *testing.T, srv *httptest.Server, hub *Hub, want int) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)

	t.Cleanup(func() { conn.CloseNow() })

	require.Eventually(t, func() bool { return hub.Subscribers() == want }, 5*time.Second, 10*time.Millisecond)

	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var ev Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))

	return ev
}

func TestHub_BroadcastsToEverySubscriber(t *testing.T) {
	hub := NewHub(quietLogger())
	srv := httptest.NewServer(NewMux(hub, nil))
	defer srv.Close()

	a := dial(t, srv, hub, 1)
	b := dial(t, srv, hub, 2)

	hub.Progress(upload.Progress{
		Handle: "https://upload.test/files?upload_id=abcdefghijklmnop",
		File:   uploadstate.FileInfo{Name: "clip.mp4"},
		Sent:   50,
		Total:  200,
	})

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		assert.Equal(t, EventProgress, ev.Type)
		assert.Equal(t, "clip.mp4", ev.File)
		assert.Equal(t, int64(50), ev.Sent)
		assert.InDelta(t, 25.0, ev.Percent, 0.001)
		assert.NotContains(t, ev.Handle, "upload_id=abcdefghijklmnop")
		assert.False(t, ev.Time.IsZero())
	}
}

func TestHub_CompletionAndShareEvents(t *testing.T) {
	hub := NewHub(quietLogger())
	srv := httptest.NewServer(NewMux(hub, nil))
	defer srv.Close()

	conn := dial(t, srv, hub, 1)

	hub.Completion(upload.Completion{
		Handle:      "h1",
		File:        uploadstate.FileInfo{Name: "a.bin"},
		Destination: "room",
		Outcome:     upload.Failed(upload.KindFileIO, errors.New("disk gone")),
	})
	hub.Share(upload.ShareNotice{Handle: "h2", ItemID: "abc123", Link: "https://l", Destination: "room", Message: "hi\nhttps://l"})

	ev := readEvent(t, conn)
	assert.Equal(t, EventCompletion, ev.Type)
	assert.Equal(t, "failed", ev.Status)
	assert.Equal(t, "file_io", ev.Kind)
	assert.Equal(t, "disk gone", ev.Error)
	assert.Equal(t, "room", ev.Destination)

	ev = readEvent(t, conn)
	assert.Equal(t, EventShare, ev.Type)
	assert.Equal(t, "abc123", ev.ItemID)
	assert.Equal(t, "hi\nhttps://l", ev.Message)
}

func TestHub_SubscriberLeaves(t *testing.T) {
	hub := NewHub(quietLogger())
	srv := httptest.NewServer(NewMux(hub, nil))
	defer srv.Close()

	conn := dial(t, srv, hub, 1)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHub_CloseDisconnectsSubscribers(t *testing.T) {
	hub := NewHub(quietLogger())
	srv := httptest.NewServer(NewMux(hub, nil))
	defer srv.Close()

	conn := dial(t, srv, hub, 1)
	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestHub_PublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	hub := NewHub(quietLogger())
	s := hub.subscribe()

	done := make(chan struct{})

	go func() {
		for range subscriberBuffer * 3 {
			hub.Publish(Event{Type: EventProgress})
		}

		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	assert.Len(t, s.events, subscriberBuffer)

	hub.unsubscribe(s)
	assert.Equal(t, 0, hub.Subscribers())
}

func TestMux_MetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "feed_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	srv := httptest.NewServer(NewMux(NewHub(quietLogger()), reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "feed_test_total 3")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMux_NoMetricsWithoutGatherer(t *testing.T) {
	srv := httptest.NewServer(NewMux(NewHub(quietLogger()), nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_StartAndShutdown(t *testing.T) {
	hub := NewHub(quietLogger())

	s, err := Start("127.0.0.1:0", NewMux(hub, nil), quietLogger())
	require.NoError(t, err)

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub.Close()
	require.NoError(t, s.Shutdown(ctx))

	_, err = http.Get("http://" + s.Addr() + "/healthz")
	require.Error(t, err)
}

func TestStart_BadAddress(t *testing.T) {
	_, err := Start("256.0.0.1:bad", http.NotFoundHandler(), quietLogger())
	require.Error(t, err)
}
