package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gdrive-upload/internal/config"
	"github.com/tonimelisma/gdrive-upload/internal/gdrive"
	"github.com/tonimelisma/gdrive-upload/internal/upload"
	"github.com/tonimelisma/gdrive-upload/internal/uploadstate"
)

// --- buildLogger tests ---

func TestBuildLogger_Levels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cfg   *config.Resolved
		flags CLIFlags
		want  slog.Level
	}{
		{name: "default", want: slog.LevelInfo},
		{name: "config debug", cfg: &config.Resolved{LogLevel: "debug"}, want: slog.LevelDebug},
		{name: "config warn", cfg: &config.Resolved{LogLevel: "WARN"}, want: slog.LevelWarn},
		{name: "config error", cfg: &config.Resolved{LogLevel: "error"}, want: slog.LevelError},
		{name: "verbose overrides", cfg: &config.Resolved{LogLevel: "error"}, flags: CLIFlags{Verbose: true}, want: slog.LevelDebug},
		{name: "quiet overrides", cfg: &config.Resolved{LogLevel: "debug"}, flags: CLIFlags{Quiet: true}, want: slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger := buildLogger(&bytes.Buffer{}, tt.cfg, tt.flags)
			ctx := context.Background()

			assert.True(t, logger.Handler().Enabled(ctx, tt.want))
			assert.False(t, logger.Handler().Enabled(ctx, tt.want-1))
		})
	}
}

func TestBuildLogger_FormatAutoIsJSONOffTerminal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	buildLogger(&buf, &config.Resolved{LogFormat: "auto"}, CLIFlags{}).Info("hello", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "v", rec["k"])
}

func TestBuildLogger_FormatText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	buildLogger(&buf, &config.Resolved{LogFormat: "text"}, CLIFlags{}).Info("hello")

	assert.Contains(t, buf.String(), "msg=hello")
}

func TestMustCLIContext_PanicsWithoutContext(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { mustCLIContext(context.Background()) })
}

// --- command wiring ---

func TestNewRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"login", "logout", "upload", "resume", "pending", "cancel", "history", "watch"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()

	for _, name := range []string{"config", "data-dir", "verbose", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestNewRootCmd_TransferFlags(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()

	for _, name := range []string{"upload", "resume", "watch"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)

		for _, flag := range []string{"chunk-size", "direct-link", "no-share"} {
			assert.NotNil(t, sub.Flags().Lookup(flag), "%s --%s", name, flag)
		}
	}
}

// --- end-to-end command runs against a temp data directory ---

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// runCLI executes the root command with a throwaway config and data dir.
// Environment overrides are cleared so the host's settings never leak in.
func runCLI(t *testing.T, dataDir string, args ...string) cliResult {
	t.Helper()

	for _, env := range []string{config.EnvConfig, config.EnvClientID, config.EnvClientSecret, config.EnvDataDir} {
		t.Setenv(env, "")
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var stdout, stderr bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{
		"--config", filepath.Join(dataDir, "none.toml"),
		"--data-dir", dataDir,
	}, args...))

	err := cmd.ExecuteContext(ctx)

	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func seedStore(t *testing.T, dataDir string, sessions []uploadstate.Session, history []uploadstate.HistoryEntry) {
	t.Helper()

	ctx := context.Background()

	store, err := uploadstate.Open(ctx, config.StatePath(dataDir), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	defer store.Close()

	for _, s := range sessions {
		require.NoError(t, store.Registry().Register(ctx, s))
	}

	for _, e := range history {
		_, err := store.History().Append(ctx, e)
		require.NoError(t, err)
	}
}

const testHandle = "https://www.googleapis.com/upload/drive/v3/files?uploadType=resumable&upload_id=xyz"

func pendingSession() uploadstate.Session {
	return uploadstate.Session{
		Handle:      testHandle,
		File:        uploadstate.FileInfo{Path: "/videos/big.mp4", Name: "big.mp4", Size: 5 << 20, MimeType: "video/mp4"},
		Destination: "#general",
		Text:        "here you go",
		CreatedAt:   time.Now().Add(-time.Hour).UTC(),
	}
}

func TestPending_Table(t *testing.T) {
	dir := t.TempDir()
	seedStore(t, dir, []uploadstate.Session{pendingSession()}, nil)

	res := runCLI(t, dir, "pending")
	require.NoError(t, res.err)

	assert.Contains(t, res.stdout, "ID")
	assert.Contains(t, res.stdout, gdrive.RedactHandle(testHandle))
	assert.Contains(t, res.stdout, "big.mp4")
	assert.Contains(t, res.stdout, "5MiB")
	assert.Contains(t, res.stdout, "#general")
	assert.NotContains(t, res.stdout, "upload_id=xyz", "session URI must never be printed")
}

func TestPending_JSON(t *testing.T) {
	dir := t.TempDir()
	seedStore(t, dir, []uploadstate.Session{pendingSession()}, nil)

	res := runCLI(t, dir, "pending", "--json")
	require.NoError(t, res.err)

	var out []pendingJSON
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	require.Len(t, out, 1)
	assert.Equal(t, gdrive.RedactHandle(testHandle), out[0].ID)
	assert.Equal(t, "/videos/big.mp4", out[0].Path)
	assert.Equal(t, int64(5<<20), out[0].Size)
	assert.Equal(t, "video/mp4", out[0].MimeType)
}

func TestPending_Empty(t *testing.T) {
	dir := t.TempDir()

	res := runCLI(t, dir, "pending")
	require.NoError(t, res.err)
	assert.Empty(t, res.stdout)
	assert.Contains(t, res.stderr, "No pending uploads.")
}

func TestHistory_NewestFirstWithLimit(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedStore(t, dir, nil, []uploadstate.HistoryEntry{
		{CompletedAt: base, RemoteItemID: "old", File: uploadstate.FileInfo{Name: "old.bin", Size: 1}, Link: "https://drive.google.com/file/d/old/view?usp=sharing"},
		{CompletedAt: base.Add(time.Hour), RemoteItemID: "new", File: uploadstate.FileInfo{Name: "new.bin", Size: 2}, Link: "https://drive.google.com/file/d/new/view?usp=sharing"},
	})

	res := runCLI(t, dir, "history", "--json")
	require.NoError(t, res.err)

	var out []historyJSON
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "new", out[0].RemoteItemID)
	assert.Equal(t, "old", out[1].RemoteItemID)

	res = runCLI(t, dir, "history", "-n", "1")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "new.bin")
	assert.NotContains(t, res.stdout, "old.bin")
}

func TestHistory_Clear(t *testing.T) {
	dir := t.TempDir()

	seedStore(t, dir, nil, []uploadstate.HistoryEntry{
		{CompletedAt: time.Now(), RemoteItemID: "a", File: uploadstate.FileInfo{Name: "a"}},
		{CompletedAt: time.Now(), RemoteItemID: "b", File: uploadstate.FileInfo{Name: "b"}},
	})

	res := runCLI(t, dir, "history", "--clear")
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "Removed 2 history entries.")

	res = runCLI(t, dir, "history")
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "No uploads yet.")
}

func TestUpload_NoClientConfigured(t *testing.T) {
	dir := t.TempDir()

	res := runCLI(t, dir, "upload", filepath.Join(dir, "x.bin"))
	require.ErrorIs(t, res.err, errNoClient)
}

func TestUpload_NotLoggedIn(t *testing.T) {
	dir := t.TempDir()

	for _, env := range []string{config.EnvConfig, config.EnvDataDir} {
		t.Setenv(env, "")
	}

	t.Setenv(config.EnvClientID, "client.apps.googleusercontent.com")
	t.Setenv(config.EnvClientSecret, "secret")

	var stdout, stderr bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--config", filepath.Join(dir, "none.toml"), "--data-dir", dir, "upload", filepath.Join(dir, "x.bin")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := cmd.ExecuteContext(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gdrive-upload login")
}

func TestUpload_RequiresArgs(t *testing.T) {
	res := runCLI(t, t.TempDir(), "upload")
	require.Error(t, res.err)
}

func TestResume_RefusesWhileWatcherRuns(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.PIDPath(dir), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600))

	res := runCLI(t, dir, "resume")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "watcher")
}

func TestCancel_RefusesWhileWatcherRuns(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.PIDPath(dir), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600))

	res := runCLI(t, dir, "cancel", "session-000000000000")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "stop it before canceling")
}

func TestLogout_ToleratesBrokenConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[upload\nchunk_size = "), 0o600))

	tokenPath := config.TokenPath(dir)
	require.NoError(t, os.WriteFile(tokenPath, []byte("{}"), 0o600))

	res := runCLI(t, dir, "--config", cfgPath, "logout")
	require.NoError(t, res.err)

	_, err := os.Stat(tokenPath)
	assert.True(t, os.IsNotExist(err))
	assert.Contains(t, res.stderr, "Logged out.")
}

func TestPending_BrokenConfigFails(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[upload\n"), 0o600))

	res := runCLI(t, dir, "--config", cfgPath, "pending")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "loading config")
}

func TestFindPending(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	seedStore(t, dir, []uploadstate.Session{pendingSession()}, nil)

	store, err := uploadstate.Open(ctx, config.StatePath(dir), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	defer store.Close()

	got, err := findPending(ctx, store.Registry(), gdrive.RedactHandle(testHandle))
	require.NoError(t, err)
	assert.Equal(t, testHandle, got)

	got, err = findPending(ctx, store.Registry(), "  "+testHandle+"  ")
	require.NoError(t, err)
	assert.Equal(t, testHandle, got)

	_, err = findPending(ctx, store.Registry(), "session-ffffffffffff")
	assert.ErrorIs(t, err, upload.ErrUnknownSession)
}
