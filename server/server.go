// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server wires the resource pool, worker pool, reactor, site layer and
// control plane into one process.

package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"pkt.systems/pslog"

	"github.com/momentics/hioload-httpd/control"
	"github.com/momentics/hioload-httpd/internal/concurrency"
	"github.com/momentics/hioload-httpd/logging"
	"github.com/momentics/hioload-httpd/protocol"
	"github.com/momentics/hioload-httpd/reactor"
	"github.com/momentics/hioload-httpd/resource"
	"github.com/momentics/hioload-httpd/site"
)

var ErrAlreadyRunning = errors.New("server already running")

// Server is the high-level facade over the serving pipeline.
type Server struct {
	cfg    *Config
	logger pslog.Logger

	dialer   resource.Dialer
	resolver protocol.Resolver
	messages protocol.Messages
	mapper   protocol.Mapper

	resources *resource.Pool
	workers   *concurrency.WorkerPool
	reactor   *reactor.Reactor
	users     *site.UserStore
	metrics   *control.Metrics
	probes    *control.DebugProbes
	watcher   *control.Watcher
	ctrl      *control.Server

	running   atomic.Bool
	closeOnce sync.Once
}

// NewServer builds every component and binds the listener. A component
// that cannot start is fatal; whatever was built is torn down again.
func NewServer(ctx context.Context, cfg *Config, opts ...ServerOption) (_ *Server, err error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = pslog.NoopLogger()
	}
	defer func() {
		if err != nil {
			s.teardown()
		}
	}()

	if s.dialer == nil {
		if cfg.Resource.Endpoint != "" {
			s.dialer = resource.TCPDialer{Timeout: cfg.DialTimeout}
		} else {
			s.dialer = resource.MemoryDialer{}
		}
	}
	if s.resources, err = resource.New(ctx, cfg.Resource, s.dialer, logging.Subsystem(s.logger, "resource.pool")); err != nil {
		return nil, fmt.Errorf("server: resource pool: %w", err)
	}

	if s.users, err = site.NewUserStore(cfg.UsersFile, s.logger); err != nil {
		return nil, fmt.Errorf("server: users: %w", err)
	}
	if s.resolver == nil {
		s.resolver = site.New(s.users, s.logger)
	}

	if s.workers, err = concurrency.NewWorkerPool(concurrency.Config{
		Workers:     cfg.Workers,
		MaxRequests: cfg.MaxRequests,
	}, s.resources, s.logger); err != nil {
		return nil, fmt.Errorf("server: worker pool: %w", err)
	}

	s.metrics = control.NewMetrics()
	popts := &protocol.Options{
		DocRoot:         cfg.DocRoot,
		Landing:         cfg.Landing,
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		Messages:        s.messages,
		Resolver:        s.resolver,
		Mapper:          s.mapper,
		Logger:          logging.Subsystem(s.logger, "protocol"),
	}
	if s.reactor, err = reactor.New(reactor.Config{
		Host:      cfg.Host,
		Port:      cfg.Port,
		TimeSlot:  cfg.TimeSlot,
		MaxConns:  cfg.MaxConns,
		MaxEvents: cfg.MaxEvents,
		Pin:       cfg.ReactorCPU >= 0,
		CPU:       cfg.ReactorCPU,
	}, popts, s.workers, s.logger, s.metrics); err != nil {
		return nil, fmt.Errorf("server: reactor: %w", err)
	}

	if err = s.registerGauges(); err != nil {
		return nil, fmt.Errorf("server: metrics: %w", err)
	}
	s.probes = control.NewDebugProbes()
	s.registerProbes()

	if cfg.UsersFile != "" {
		if s.watcher, err = control.WatchFile(cfg.UsersFile, 0, s.logger); err != nil {
			return nil, fmt.Errorf("server: users watch: %w", err)
		}
		s.watcher.OnReload(func() {
			if err := s.users.Reload(); err != nil {
				s.logger.Warn("server.users.reload_failed", "path", cfg.UsersFile, "error", err)
			}
		})
	}
	if cfg.MetricsListen != "" {
		if s.ctrl, err = control.StartServer(cfg.MetricsListen, s.metrics, s.probes, s.logger); err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
	}
	return s, nil
}

func (s *Server) registerGauges() error {
	gauges := []struct {
		name, help string
		fn         func() float64
	}{
		{"live_connections", "Open client connections.", func() float64 { return float64(s.reactor.Live()) }},
		{"queue_length", "Requests waiting for a worker.", func() float64 { return float64(s.workers.Len()) }},
		{"workers_busy", "Workers running a request.", func() float64 { return float64(s.workers.Busy()) }},
		{"resource_handles_free", "Idle resource handles.", func() float64 { return float64(s.resources.Free()) }},
		{"resource_handles_in_use", "Leased resource handles.", func() float64 { return float64(s.resources.InUse()) }},
		{"users", "Known users.", func() float64 { return float64(s.users.Len()) }},
	}
	for _, g := range gauges {
		if err := s.metrics.Gauge(g.name, g.help, g.fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) registerProbes() {
	s.probes.RegisterProbe("reactor.live", func() any { return s.reactor.Live() })
	s.probes.RegisterProbe("reactor.port", func() any { return s.reactor.Port() })
	s.probes.RegisterProbe("worker.pool", func() any { return s.workers.Stats() })
	s.probes.RegisterProbe("resource.pool", func() any {
		return map[string]int{
			"capacity": s.resources.Capacity(),
			"free":     s.resources.Free(),
			"in_use":   s.resources.InUse(),
		}
	})
	s.probes.RegisterProbe("site.users", func() any { return s.users.Len() })
	control.RegisterPlatformProbes(s.probes)
}

// Port returns the bound HTTP port.
func (s *Server) Port() int { return s.reactor.Port() }

// MetricsAddr returns the metrics listener address, empty when disabled.
func (s *Server) MetricsAddr() string {
	if s.ctrl == nil {
		return ""
	}
	return s.ctrl.Addr()
}

// Metrics exposes the Prometheus collectors.
func (s *Server) Metrics() *control.Metrics { return s.metrics }

// Probes exposes the debug probe registry.
func (s *Server) Probes() *control.DebugProbes { return s.probes }

// Users exposes the credential cache.
func (s *Server) Users() *site.UserStore { return s.users }
