// File: server/options.go
// Package server defines functional options for the Server facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"pkt.systems/pslog"

	"github.com/momentics/hioload-httpd/protocol"
	"github.com/momentics/hioload-httpd/resource"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the root logger. Components derive tagged children.
func WithLogger(l pslog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithDialer replaces the handle factory chosen from Config.Resource.
func WithDialer(d resource.Dialer) ServerOption {
	return func(s *Server) {
		s.dialer = d
	}
}

// WithResolver replaces the site routes.
func WithResolver(r protocol.Resolver) ServerOption {
	return func(s *Server) {
		s.resolver = r
	}
}

// WithMessages overrides the error page bodies.
func WithMessages(m protocol.Messages) ServerOption {
	return func(s *Server) {
		s.messages = m
	}
}

// WithMapper overrides how files are mapped into memory.
func WithMapper(m protocol.Mapper) ServerOption {
	return func(s *Server) {
		s.mapper = m
	}
}
