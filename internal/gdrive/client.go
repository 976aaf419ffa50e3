package gdrive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Default Drive v3 endpoints.
const (
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3/files"
	DefaultFilesURL  = "https://www.googleapis.com/drive/v3/files"
	defaultUserAgent = "gdrive-upload/0.1"
)

// TokenSource provides the current OAuth2 bearer token. Defined at the
// consumer per Go convention "accept interfaces, return structs".
// TokenProvider is the production implementation.
type TokenSource interface {
	Token() (string, error)
}

// Endpoints holds the base URLs the client talks to. Tests point both at an
// httptest server.
type Endpoints struct {
	UploadURL string // resumable session creation, e.g. DefaultUploadURL
	FilesURL  string // file metadata and permissions, e.g. DefaultFilesURL
}

// DefaultEndpoints returns the production Drive v3 endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{UploadURL: DefaultUploadURL, FilesURL: DefaultFilesURL}
}

// Client is an HTTP client for the Drive v3 resumable upload protocol.
// It issues exactly one HTTP request per call: retry and token refresh are
// the caller's decision, because the upload engine must control which
// requests are repeated and how often.
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	userAgent  string
}

// NewClient creates a Drive client. A nil httpClient uses http.DefaultClient,
// a nil logger uses slog.Default(), an empty userAgent uses the built-in one.
func NewClient(
	endpoints Endpoints, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string,
) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		endpoints:  endpoints,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		userAgent:  userAgent,
	}
}

// do attaches the bearer token and user agent, then sends req once.
// Transport-level failures are wrapped with ErrTransport.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("gdrive: %s canceled: %w", req.Method, ctxErr)
		}

		c.logger.Warn("request failed before a response arrived",
			slog.String("method", req.Method),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, req.Method, err)
	}

	return resp, nil
}

// newRequest builds a request bound to ctx.
func newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("gdrive: creating %s request: %w", method, err)
	}

	return req, nil
}

// drain discards the rest of a response body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort
	resp.Body.Close()
}

// readError consumes the body of a failed response and returns an APIError.
func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort read for error message
	resp.Body.Close()

	return newAPIError(resp, body)
}

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 64 * 1024

// RedactHandle returns a short stable fingerprint of a session URI for logs.
// Session URIs authorize writes on their own, so they are never logged whole.
func RedactHandle(handle string) string {
	if handle == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(handle))

	return "session-" + hex.EncodeToString(sum[:6])
}
