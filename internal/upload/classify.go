package upload

import (
	"context"
	"errors"

	"github.com/tonimelisma/gdrive-upload/internal/gdrive"
)

// classifyFailure maps any error from the engine's collaborators to a
// failed Outcome. It is the only place error kinds are decided.
func classifyFailure(err error) Outcome {
	var f *failure

	switch {
	case errors.As(err, &f):
		return Failed(f.kind, f.err)
	case errors.Is(err, gdrive.ErrReauthRequired),
		errors.Is(err, gdrive.ErrNotLoggedIn),
		errors.Is(err, gdrive.ErrTokenUnavailable):
		return Failed(KindAuthExpired, err)
	case errors.Is(err, gdrive.ErrTransport),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return Failed(KindTransientNetwork, err)
	case gdrive.IsSessionExpired(err):
		return Failed(KindSessionExpired, err)
	default:
		return Failed(KindUnrecoverableServer, err)
	}
}

func isUnauthorized(err error) bool {
	return err != nil && errors.Is(err, gdrive.ErrUnauthorized)
}

// isHTTPRejection reports whether the server answered with an error status,
// as opposed to the request never completing.
func isHTTPRejection(err error) bool {
	var apiErr *gdrive.APIError
	return errors.As(err, &apiErr)
}
