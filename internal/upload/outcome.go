package upload

import (
	"errors"
	"fmt"
)

// Status is the top-level result of an upload.
type Status int

const (
	StatusSuccess Status = iota
	StatusCanceled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusCanceled:
		return "canceled"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Kind classifies a failed upload.
type Kind int

const (
	KindNone Kind = iota
	KindAuthExpired
	KindSessionExpired
	KindTransientNetwork
	KindUnrecoverableServer
	KindFileIO
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAuthExpired:
		return "auth_expired"
	case KindSessionExpired:
		return "session_expired"
	case KindTransientNetwork:
		return "transient_network"
	case KindUnrecoverableServer:
		return "unrecoverable_server"
	case KindFileIO:
		return "file_io"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the terminal result of one upload. ItemID is set only on
// success; Kind and Err only on failure.
type Outcome struct {
	Status Status
	ItemID string
	Kind   Kind
	Err    error
}

// Success reports a completed upload of the given remote item.
func Success(itemID string) Outcome {
	return Outcome{Status: StatusSuccess, ItemID: itemID}
}

// Canceled reports a user-requested stop.
func Canceled() Outcome {
	return Outcome{Status: StatusCanceled}
}

// Failed reports a failure of the given kind.
func Failed(kind Kind, err error) Outcome {
	return Outcome{Status: StatusFailed, Kind: kind, Err: err}
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusSuccess:
		return "success(" + o.ItemID + ")"
	case StatusFailed:
		if o.Err != nil {
			return fmt.Sprintf("failed(%s): %v", o.Kind, o.Err)
		}

		return "failed(" + o.Kind.String() + ")"
	default:
		return o.Status.String()
	}
}

// keepsRegistration reports whether the registry entry must survive this
// outcome so a later ResumeAll can pick the session up again: after the
// user logs in again, or after the network comes back.
func (o Outcome) keepsRegistration() bool {
	return o.Status == StatusFailed &&
		(o.Kind == KindAuthExpired || o.Kind == KindTransientNetwork)
}

// failure carries an already-decided Kind through ordinary error returns.
type failure struct {
	kind Kind
	err  error
}

func (f *failure) Error() string { return f.kind.String() + ": " + f.err.Error() }
func (f *failure) Unwrap() error { return f.err }

func fail(kind Kind, err error) error {
	return &failure{kind: kind, err: err}
}

// Sentinel errors surfaced inside Outcome.Err.
var (
	ErrStalled        = errors.New("upload: server stopped advancing the resume offset")
	ErrBadOffset      = errors.New("upload: server reported an offset beyond the file size")
	ErrFileChanged    = errors.New("upload: source file changed size since the upload started")
	ErrUnknownSession = errors.New("upload: no such session")
	ErrDraining       = errors.New("upload: engine is draining for shutdown")
)
