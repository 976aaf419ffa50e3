package progressfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readHeaderTimeout = 5 * time.Second

// NewMux routes /events to the hub, /metrics to gatherer, and /healthz to
// a liveness probe. A nil gatherer leaves /metrics unrouted.
func NewMux(hub *Hub, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /events", hub)

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return mux
}

// Server serves a handler on a listener it owns.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
	done   chan struct{}
}

// Start listens on addr and serves handler in the background. Use port 0
// to let the kernel pick one; Addr reports the result.
func Start(addr string, handler http.Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("progressfeed: listening on %s: %w", addr, err)
	}

	s := &Server{
		srv:    &http.Server{Handler: handler, ReadHeaderTimeout: readHeaderTimeout},
		ln:     ln,
		logger: logger,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)

		if serveErr := s.srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("progress feed server failed", slog.String("error", serveErr.Error()))
		}
	}()

	logger.Info("progress feed listening", slog.String("addr", ln.Addr().String()))

	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops accepting connections and waits for open ones up to
// ctx's deadline. WebSocket subscribers are cut off at the deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = s.srv.Close()
	}

	<-s.done

	if err != nil {
		return fmt.Errorf("progressfeed: shutting down: %w", err)
	}

	return nil
}
