// File: protocol/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"context"

	"pkt.systems/pslog"

	"github.com/momentics/hioload-httpd/resource"
)

// Request is the parsed request handed to a Resolver. Body aliases the
// connection's read buffer and is only valid during Resolve.
type Request struct {
	Method    Method
	Target    string
	Host      string
	KeepAlive bool
	Body      []byte
}

// Resolver maps a request to a path below the document root. The handle
// is the resource leased for the request, possibly nil.
type Resolver interface {
	Resolve(ctx context.Context, req *Request, h resource.Handle) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, req *Request, h resource.Handle) (string, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, req *Request, h resource.Handle) (string, error) {
	return f(ctx, req, h)
}

// Options is shared by every Conn of a server and must not change once
// connections exist.
type Options struct {
	DocRoot         string
	Landing         string
	ReadBufferSize  int
	WriteBufferSize int
	Messages        Messages
	Resolver        Resolver
	Mapper          Mapper
	Logger          pslog.Logger
}

// DefaultOptions serves the current directory with the stock sizes.
func DefaultOptions() Options {
	return Options{
		DocRoot:         ".",
		Landing:         DefaultLanding,
		ReadBufferSize:  DefaultReadBufferSize,
		WriteBufferSize: DefaultWriteBufferSize,
		Messages:        DefaultMessages(),
		Mapper:          MmapMapper{},
	}
}

// Normalize fills zero fields with defaults.
func (o *Options) Normalize() {
	def := DefaultOptions()
	if o.DocRoot == "" {
		o.DocRoot = def.DocRoot
	}
	if o.Landing == "" {
		o.Landing = def.Landing
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = def.ReadBufferSize
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = def.WriteBufferSize
	}
	if o.Messages == (Messages{}) {
		o.Messages = def.Messages
	}
	if o.Mapper == nil {
		o.Mapper = def.Mapper
	}
	if o.Logger == nil {
		o.Logger = pslog.NoopLogger()
	}
}
