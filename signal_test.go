package main

import (
	"context"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopOnSignal_DrainsThenAborts(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	drained := make(chan struct{})
	ctx, stop := stopOnSignal(parent, slog.New(slog.DiscardHandler), func() { close(drained) })
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("first signal did not drain uploads")
	}

	assert.NoError(t, ctx.Err(), "first signal must let the chunk in flight finish")

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("second signal did not abort uploads")
	}

	assert.NoError(t, parent.Err(), "signal must not cancel the parent")
}

func TestStopOnSignal_WithoutDrainCancelsAtOnce(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx, stop := stopOnSignal(parent, slog.New(slog.DiscardHandler), nil)
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("signal did not cancel")
	}
}

func TestStopOnSignal_FollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := stopOnSignal(parent, slog.New(slog.DiscardHandler), nil)
	defer stop()

	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("derived context outlived its parent")
	}
}

func TestStopOnSignal_StopCancels(t *testing.T) {
	ctx, stop := stopOnSignal(context.Background(), slog.New(slog.DiscardHandler), func() {})

	stop()
	stop()

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
