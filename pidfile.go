package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// pidFilePermissions matches the standard config file permissions (owner rw, group/other r).
const pidFilePermissions = 0o644

// pidDirPermissions keeps the data directory private: it also holds the
// token and session URIs.
const pidDirPermissions = 0o700

// writePIDFile writes the current process ID to path and acquires an exclusive
// flock. Returns a cleanup function that removes the file and releases the
// lock. If the lock cannot be acquired, another watcher is already running.
func writePIDFile(path string) (cleanup func(), err error) {
	if path == "" {
		return nil, errors.New("PID file path is empty: cannot determine data directory")
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(path), pidDirPermissions); mkdirErr != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", mkdirErr)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	// Non-blocking exclusive lock: fails immediately if another process holds it.
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		return nil, fmt.Errorf("another gdrive-upload watch is already running (could not lock %s)", path)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()

		return nil, fmt.Errorf("truncating PID file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()

		return nil, fmt.Errorf("writing PID file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()

		return nil, fmt.Errorf("syncing PID file: %w", err)
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

// readPIDFile reads the PID from the given file path. Returns 0 and an error
// if the file does not exist or contains invalid content.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}

// watcherRunning reports the PID of a live watcher owning pidPath. A PID
// file left behind by a dead process is removed.
func watcherRunning(pidPath string) (int, bool) {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return 0, false
	}

	if pid == os.Getpid() {
		return pid, true
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}

	// Signal 0 checks liveness without delivering anything.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidPath)
		return 0, false
	}

	return pid, true
}
