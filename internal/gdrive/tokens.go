package gdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/gdrive-upload/internal/tokenfile"
)

// expiryLeeway refreshes a little before the recorded expiry so a request
// does not start with a token that dies in flight.
const expiryLeeway = 30 * time.Second

// proactiveRefreshTimeout bounds the refresh Token performs on its own.
const proactiveRefreshTimeout = 30 * time.Second

// refreshTimeout bounds one shared token-endpoint round trip. The flight
// outlives any single caller, so it cannot use a caller's deadline.
const refreshTimeout = 30 * time.Second

// TokenProvider hands out access tokens and refreshes them on demand.
// Concurrent Refresh calls collapse into one token-endpoint round trip.
type TokenProvider struct {
	cfg    *oauth2.Config
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	tok *oauth2.Token

	flight singleflight.Group
}

// NewTokenProvider loads the token saved at path. Returns ErrNotLoggedIn if
// there is none.
func NewTokenProvider(cfg *oauth2.Config, path string, logger *slog.Logger) (*TokenProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tok, err := tokenfile.Load(path)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	logger.Debug("loaded saved token",
		slog.String("path", path),
		slog.Time("expiry", tok.Expiry),
	)

	return &TokenProvider{
		cfg:    cfg,
		path:   path,
		logger: logger,
		now:    time.Now,
		tok:    tok,
	}, nil
}

// Token returns the current access token. An expired token is refreshed
// first when a refresh token is available.
func (p *TokenProvider) Token() (string, error) {
	p.mu.Lock()
	tok := p.tok
	p.mu.Unlock()

	expired := !tok.Expiry.IsZero() && p.now().Add(expiryLeeway).After(tok.Expiry)
	if !expired && tok.AccessToken != "" {
		return tok.AccessToken, nil
	}

	if tok.RefreshToken == "" {
		if tok.AccessToken == "" {
			return "", ErrReauthRequired
		}

		// Let the server decide; a 401 takes the refresh path.
		return tok.AccessToken, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), proactiveRefreshTimeout)
	defer cancel()

	return p.Refresh(ctx)
}

// Refresh exchanges the refresh token for a new access token and persists
// it. A refresh token the server rejects yields ErrReauthRequired.
// Callers that join an in-flight refresh wait for it; a caller whose ctx
// ends first returns ctx.Err() without failing the others.
func (p *TokenProvider) Refresh(ctx context.Context) (string, error) {
	ch := p.flight.DoChan("refresh", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		return p.refresh(fctx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}

		if res.Shared {
			p.logger.Debug("joined in-flight token refresh")
		}

		return res.Val.(string), nil
	}
}

func (p *TokenProvider) refresh(ctx context.Context) (string, error) {
	p.mu.Lock()
	rt := p.tok.RefreshToken
	p.mu.Unlock()

	if rt == "" {
		return "", fmt.Errorf("%w: no refresh token saved", ErrReauthRequired)
	}

	p.logger.Info("refreshing access token")

	fresh, err := p.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
			p.logger.Warn("refresh token rejected",
				slog.Int("status", re.Response.StatusCode),
				slog.String("error_code", re.ErrorCode),
			)

			return "", fmt.Errorf("%w: %s", ErrReauthRequired, re.ErrorCode)
		}

		return "", fmt.Errorf("gdrive: refreshing token: %w", err)
	}

	if fresh.RefreshToken == "" {
		fresh.RefreshToken = rt
	}

	p.mu.Lock()
	p.tok = fresh
	p.mu.Unlock()

	if saveErr := tokenfile.Save(p.path, fresh); saveErr != nil {
		p.logger.Warn("failed to persist refreshed token",
			slog.String("path", p.path),
			slog.String("error", saveErr.Error()),
		)
	}

	p.logger.Info("access token refreshed", slog.Time("expiry", fresh.Expiry))

	return fresh.AccessToken, nil
}
