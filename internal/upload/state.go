package upload

import (
	"fmt"
	"sync"

	"github.com/tonimelisma/gdrive-upload/internal/uploadstate"
)

// State is where one upload is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateCreating
	StateStreaming
	StateCompleting
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCreating:
		return "creating"
	case StateStreaming:
		return "streaming"
	case StateCompleting:
		return "completing"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RunStatus is a point-in-time view of one upload owned by the engine.
type RunStatus struct {
	Handle string // empty while Creating
	File   uploadstate.FileInfo
	State  State
	Offset int64 // bytes the server has confirmed
}

// run tracks one upload from Initiate (or recovery) to its terminal outcome.
type run struct {
	mu     sync.Mutex
	handle string
	file   uploadstate.FileInfo
	state  State
	offset int64
}

func (r *run) transition(to State) {
	r.mu.Lock()
	r.state = to
	r.mu.Unlock()
}

func (r *run) setHandle(h string) {
	r.mu.Lock()
	r.handle = h
	r.offset = 0
	r.mu.Unlock()
}

func (r *run) setOffset(n int64) {
	r.mu.Lock()
	r.offset = n
	r.mu.Unlock()
}

func (r *run) status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RunStatus{Handle: r.handle, File: r.file, State: r.state, Offset: r.offset}
}
