// control/server.go
// Author: momentics <momentics@gmail.com>
//
// Side listener for /metrics and /debug/state.

package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"pkt.systems/pslog"
)

// Server serves metrics and probes on their own listener, apart from the
// reactor.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger pslog.Logger
}

// StartServer listens on addr and serves in the background. probes may be
// nil.
func StartServer(addr string, metrics *Metrics, probes *DebugProbes, logger pslog.Logger) (*Server, error) {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("control: metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	if probes != nil {
		mux.Handle("/debug/state", probes)
	}
	s := &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("control.metrics.serve_error", "error", err)
		}
	}()
	logger.Info("control.metrics.enabled", "listen", ln.Addr().String())
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Shutdown stops accepting and waits for in-flight scrapes until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
