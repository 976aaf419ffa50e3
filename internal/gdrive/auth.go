package gdrive

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/tonimelisma/gdrive-upload/internal/tokenfile"
)

// driveFileScope grants access to files this application created, which is
// all the uploader ever touches (upload, share).
const driveFileScope = "https://www.googleapis.com/auth/drive.file"

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

const callbackPath = "/"

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

type callbackResult struct {
	code string
	err  error
}

// OAuthConfig builds the Google OAuth2 configuration for an installed app.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{driveFileScope},
		Endpoint:     endpoints.Google,
	}
}

// LoginWithBrowser performs the authorization code + PKCE flow against a
// loopback redirect and saves the resulting token to tokenPath.
//
// openURL is called with the authorization URL. If it fails, the URL is
// printed to stderr so the user can open it by hand.
func LoginWithBrowser(
	ctx context.Context,
	cfg *oauth2.Config,
	tokenPath string,
	openURL func(string) error,
	logger *slog.Logger,
) error {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("starting browser auth flow", slog.String("path", tokenPath))

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh, logger)
	if err != nil {
		return err
	}

	defer shutdownCallbackServer(srv, logger)

	// Copy so the caller's config keeps its own redirect URL.
	local := *cfg
	local.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d", port)

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return fmt.Errorf("gdrive: generating state token: %w", err)
	}

	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})

	// prompt=consent makes Google return a refresh token on every login.
	authURL := local.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.S256ChallengeOption(verifier),
	)

	logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL", slog.String("error", openErr.Error()))
		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return err
	}

	tok, err := local.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("gdrive: token exchange failed: %w", err)
	}

	if tok.RefreshToken == "" {
		logger.Warn("authorization server returned no refresh token; uploads will need a new login once the access token expires")
	}

	if err := tokenfile.Save(tokenPath, tok); err != nil {
		return fmt.Errorf("gdrive: saving token: %w", err)
	}

	logger.Info("browser login successful",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return nil
}

func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("gdrive: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, fmt.Errorf("gdrive: listener address is not TCP")
	}

	logger.Debug("callback server listening", slog.Int("port", tcpAddr.Port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case resultCh <- callbackResult{err: fmt.Errorf("gdrive: callback server error: %w", serveErr)}:
			default:
			}
		}
	}()

	return srv, tcpAddr.Port, nil
}

func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	send := func(res callbackResult) {
		select {
		case resultCh <- res:
		default:
		}
	}

	q := r.URL.Query()

	if q.Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		send(callbackResult{err: fmt.Errorf("gdrive: OAuth2 state mismatch")})

		return
	}

	if errParam := q.Get("error"); errParam != "" {
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		send(callbackResult{err: fmt.Errorf("gdrive: authorization failed: %s", errParam)})

		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		send(callbackResult{err: fmt.Errorf("gdrive: callback missing authorization code")})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Signed in</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	send(callbackResult{code: code})
}

func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("gdrive: browser auth canceled: %w", ctx.Err())
	}
}

func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// Logout removes the saved token file. A missing file is not an error.
func Logout(tokenPath string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	existed, err := tokenfile.Remove(tokenPath)
	if err != nil {
		return err
	}

	if !existed {
		logger.Info("logout: no token file to remove", slog.String("path", tokenPath))
		return nil
	}

	logger.Info("logout: removed token file", slog.String("path", tokenPath))

	return nil
}
