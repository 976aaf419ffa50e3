package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gdrive-upload/internal/gdrive"
	"github.com/tonimelisma/gdrive-upload/internal/uploadstate"
)

// putCall is one chunk PUT as observed by fakeRemote.
type putCall struct {
	handle string
	offset int64
	length int64
	total  int64
}

type fakeSession struct {
	received int64
	total    int64
}

// fakeRemote is an in-memory resumable upload server. By default it
// accepts every chunk and answers with the next offset, or with the item
// once the last byte arrived.
type fakeRemote struct {
	mu sync.Mutex

	itemID   string
	md5      string
	seq      int
	sessions map[string]*fakeSession

	creates  []gdrive.FileMetadata
	puts     []putCall
	probes   []string
	grants   []string
	canceled []string

	createErrs []error // returned in order before the default behavior
	putErrs    []error
	grantErrs  []error
	probeErrs  map[string]error

	// beforePut runs outside the lock before each PUT is processed.
	beforePut func(putCall)
	// answer replaces the default PUT answer when set.
	answer func(putCall) (*gdrive.ChunkResult, error)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		itemID:    "abc123",
		sessions:  make(map[string]*fakeSession),
		probeErrs: make(map[string]error),
	}
}

func apiErr(code int) error {
	return &gdrive.APIError{
		StatusCode: code,
		Message:    http.StatusText(code),
		Err:        sentinelFor(code),
	}
}

func sentinelFor(code int) error {
	switch code {
	case http.StatusUnauthorized:
		return gdrive.ErrUnauthorized
	case http.StatusForbidden:
		return gdrive.ErrForbidden
	case http.StatusNotFound:
		return gdrive.ErrNotFound
	case http.StatusGone:
		return gdrive.ErrGone
	default:
		return gdrive.ErrServerError
	}
}

func popErr(q *[]error) error {
	if len(*q) == 0 {
		return nil
	}

	err := (*q)[0]
	*q = (*q)[1:]

	return err
}

// addSession makes the fake know handle as if a previous process created it.
func (f *fakeRemote) addSession(handle string, received, total int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sessions[handle] = &fakeSession{received: received, total: total}
}

func (f *fakeRemote) CreateSession(_ context.Context, meta gdrive.FileMetadata) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.creates = append(f.creates, meta)

	if err := popErr(&f.createErrs); err != nil {
		return "", err
	}

	f.seq++
	handle := fmt.Sprintf("https://upload.test/files?upload_id=s%d", f.seq)
	f.sessions[handle] = &fakeSession{total: meta.Size}

	return handle, nil
}

func (f *fakeRemote) PutChunk(
	_ context.Context, handle string, chunk io.Reader, offset, length, total int64,
) (*gdrive.ChunkResult, error) {
	data, err := io.ReadAll(chunk)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gdrive.ErrTransport, err)
	}

	if int64(len(data)) != length {
		return nil, fmt.Errorf("body has %d bytes, declared %d", len(data), length)
	}

	call := putCall{handle: handle, offset: offset, length: length, total: total}

	f.mu.Lock()
	hook := f.beforePut
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.puts = append(f.puts, call)

	if err := popErr(&f.putErrs); err != nil {
		return nil, err
	}

	if f.answer != nil {
		return f.answer(call)
	}

	s, ok := f.sessions[handle]
	if !ok {
		return nil, apiErr(http.StatusNotFound)
	}

	s.received = offset + length
	if s.received == total {
		return &gdrive.ChunkResult{Complete: true, Item: &gdrive.Item{ID: f.itemID, Size: total, MD5Checksum: f.md5}}, nil
	}

	return &gdrive.ChunkResult{NextOffset: s.received}, nil
}

func (f *fakeRemote) ProbeSession(_ context.Context, handle string) (*gdrive.ChunkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.probes = append(f.probes, handle)

	if err, ok := f.probeErrs[handle]; ok {
		delete(f.probeErrs, handle)
		return nil, err
	}

	s, ok := f.sessions[handle]
	if !ok {
		return nil, apiErr(http.StatusNotFound)
	}

	if s.received == s.total {
		return &gdrive.ChunkResult{Complete: true, Item: &gdrive.Item{ID: f.itemID, Size: s.total}}, nil
	}

	return &gdrive.ChunkResult{NextOffset: s.received}, nil
}

func (f *fakeRemote) GrantPublicRead(_ context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.grants = append(f.grants, itemID)

	return popErr(&f.grantErrs)
}

func (f *fakeRemote) CancelSession(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.canceled = append(f.canceled, handle)
	delete(f.sessions, handle)

	return nil
}

func (f *fakeRemote) putCalls() []putCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]putCall(nil), f.puts...)
}

func (f *fakeRemote) grantCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.grants...)
}

func (f *fakeRemote) canceledHandles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.canceled...)
}

// fakeRefresher counts refresh calls and fails with err when set.
type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return "", f.err
	}

	return fmt.Sprintf("token-%d", f.calls), nil
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

// completions collects every Completion and ShareNotice the engine delivers.
type completions struct {
	mu     sync.Mutex
	done   []Completion
	shares []ShareNotice
}

func (c *completions) onCompletion(x Completion) {
	c.mu.Lock()
	c.done = append(c.done, x)
	c.mu.Unlock()
}

func (c *completions) onShare(n ShareNotice) {
	c.mu.Lock()
	c.shares = append(c.shares, n)
	c.mu.Unlock()
}

func (c *completions) all() []Completion {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Completion(nil), c.done...)
}

func (c *completions) shared() []ShareNotice {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]ShareNotice(nil), c.shares...)
}

type testEngine struct {
	*Engine
	remote *fakeRemote
	tokens *fakeRefresher
	store  *uploadstate.Store
	sink   *completions
}

// newTestEngine wires an engine to a fake remote and a real state store.
// tweak may adjust the options before the engine is built.
func newTestEngine(t *testing.T, tweak func(*Options)) *testEngine {
	t.Helper()

	store, err := uploadstate.Open(context.Background(), filepath.Join(t.TempDir(), "uploads.db"), nil)
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	te := &testEngine{
		remote: newFakeRemote(),
		tokens: &fakeRefresher{},
		store:  store,
		sink:   &completions{},
	}

	opts := Options{
		ChunkSize:    256 * 1024,
		ShareEnabled: true,
		OnCompletion: te.sink.onCompletion,
		OnShare:      te.sink.onShare,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	if tweak != nil {
		tweak(&opts)
	}

	te.Engine = NewEngine(te.remote, te.tokens, store.Registry(), store.History(), opts)

	return te
}

func (te *testEngine) registered(t *testing.T, handle string) bool {
	t.Helper()

	s, err := te.store.Registry().Get(context.Background(), handle)
	require.NoError(t, err)

	return s != nil
}

// writeTestFile writes size bytes of a repeating pattern and returns the path.
func writeTestFile(t *testing.T, name string, size int) string {
	t.Helper()

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

// requirePartition asserts the PUTs cover [0, total) exactly, in order.
func requirePartition(t *testing.T, puts []putCall, total int64) {
	t.Helper()

	var next int64

	for i, p := range puts {
		require.Equalf(t, next, p.offset, "chunk %d starts at %d, want %d", i, p.offset, next)
		require.Equal(t, total, p.total)

		next = p.offset + p.length
	}

	require.Equal(t, total, next)
}
