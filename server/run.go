// File: server/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Run blocks in the reactor loop and orchestrates teardown.

package server

import (
	"context"
)

// Run serves until ctx is done or Shutdown is called, then stops every
// component in dependency order: the reactor loop, the workers (joined),
// the connections and listener, the side services, and last the resource
// pool.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	s.logger.Info("server.started",
		"port", s.Port(),
		"doc_root", s.cfg.DocRoot,
		"workers", s.cfg.Workers,
		"max_requests", s.cfg.MaxRequests,
		"handles", s.resources.Capacity(),
		"metrics", s.MetricsAddr(),
	)
	err := s.reactor.Run(ctx)
	if err != nil {
		s.logger.Error("server.reactor.failed", "error", err)
	}
	s.teardown()
	s.logger.Info("server.stopped")
	return err
}

// Shutdown asks Run to return. Safe from any goroutine and idempotent.
func (s *Server) Shutdown() {
	if s.reactor != nil {
		s.reactor.Stop()
	}
}

// Close releases a server that was built but never run.
func (s *Server) Close() {
	if s.running.Load() {
		s.Shutdown()
		return
	}
	s.teardown()
}

func (s *Server) teardown() {
	s.closeOnce.Do(func() {
		if s.workers != nil {
			s.workers.Close()
		}
		if s.reactor != nil {
			s.reactor.Close()
		}
		if s.watcher != nil {
			s.watcher.Close()
		}
		if s.ctrl != nil {
			timeout := s.cfg.ShutdownTimeout
			if timeout <= 0 {
				timeout = DefaultConfig().ShutdownTimeout
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			if err := s.ctrl.Shutdown(ctx); err != nil {
				s.logger.Warn("server.metrics.shutdown_failed", "error", err)
			}
			cancel()
		}
		if s.resources != nil {
			s.resources.Teardown()
		}
	})
}
