package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/tonimelisma/gdrive-upload/internal/config"
	"github.com/tonimelisma/gdrive-upload/internal/gdrive"
	"github.com/tonimelisma/gdrive-upload/internal/upload"
	"github.com/tonimelisma/gdrive-upload/internal/uploadstate"
)

// errNoClient is returned when no OAuth client registration is configured.
var errNoClient = fmt.Errorf(
	"no OAuth client configured: set [auth] client_id and client_secret in the config file or %s / %s",
	config.EnvClientID, config.EnvClientSecret,
)

// sessionHooks are the engine callbacks a command wants.
type sessionHooks struct {
	OnProgress   func(upload.Progress)
	OnCompletion func(upload.Completion)
	OnShare      func(upload.ShareNotice)
	Metrics      upload.Metrics
}

// uploadSession bundles everything a command needs to move bytes: the
// token provider, the state store, and an engine wired to both.
type uploadSession struct {
	Engine *upload.Engine
	Store  *uploadstate.Store
	Tokens *gdrive.TokenProvider
}

// newUploadSession loads the saved token, opens the state store, and builds
// the engine from the resolved config.
func newUploadSession(ctx context.Context, cc *CLIContext, hooks sessionHooks) (*uploadSession, error) {
	cfg := cc.Cfg
	logger := cc.Logger

	if !cfg.HasClientCredentials() {
		return nil, errNoClient
	}

	tokens, err := gdrive.NewTokenProvider(gdrive.OAuthConfig(cfg.ClientID, cfg.ClientSecret), cfg.TokenPath(), logger)
	if err != nil {
		if errors.Is(err, gdrive.ErrNotLoggedIn) {
			return nil, fmt.Errorf("not logged in: run 'gdrive-upload login' first")
		}

		return nil, err
	}

	store, err := uploadstate.Open(ctx, cfg.StatePath(), logger)
	if err != nil {
		return nil, err
	}

	client := gdrive.NewClient(gdrive.DefaultEndpoints(), newTransferHTTPClient(cfg), tokens, logger, cfg.UserAgent)

	engine := upload.NewEngine(client, tokens, store.Registry(), store.History(), upload.Options{
		ChunkSize:      cfg.ChunkSize,
		Parallel:       cfg.ParallelUploads,
		ShareEnabled:   cfg.ShareEnabled,
		DirectLink:     cfg.DirectLink,
		VerifyChecksum: true,
		OnProgress:     hooks.OnProgress,
		OnCompletion:   hooks.OnCompletion,
		OnShare:        hooks.OnShare,
		Limiter:        upload.NewBandwidthLimiter(cfg.BandwidthLimit, logger),
		Metrics:        hooks.Metrics,
		Logger:         logger,
	})

	return &uploadSession{Engine: engine, Store: store, Tokens: tokens}, nil
}

// Close releases the state store.
func (s *uploadSession) Close() error {
	return s.Store.Close()
}

// openStore opens only the state store, for commands that never talk to
// Drive.
func openStore(ctx context.Context, cc *CLIContext) (*uploadstate.Store, error) {
	return uploadstate.Open(ctx, cc.Cfg.StatePath(), cc.Logger)
}

// newTransferHTTPClient returns a client for chunk traffic. There is no
// overall request timeout because a chunk may legitimately take minutes on
// a slow link; connect and response-header timeouts bound the dead cases.
func newTransferHTTPClient(cfg *config.Resolved) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.ConnectTimeout > 0 {
		transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
		transport.TLSHandshakeTimeout = cfg.ConnectTimeout
	}

	if cfg.DataTimeout > 0 {
		transport.ResponseHeaderTimeout = cfg.DataTimeout
	}

	return &http.Client{Transport: transport}
}
