// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/momentics/hioload-httpd/internal/concurrency"
	"github.com/momentics/hioload-httpd/protocol"
	"github.com/momentics/hioload-httpd/reactor"
	"github.com/momentics/hioload-httpd/resource"
)

// Config holds all server-side configuration parameters.
type Config struct {
	Host            string        // IPv4 bind address, empty for all interfaces
	Port            int           // listen port, 0 picks a free one
	DocRoot         string        // directory files are served from
	Landing         string        // page served for "/"
	ReadBufferSize  int           // per-connection request buffer
	WriteBufferSize int           // per-connection header buffer
	Workers         int           // worker goroutines
	MaxRequests     int           // worker queue bound
	MaxConns        int           // open connection ceiling
	MaxEvents       int           // events per epoll wait
	ReactorCPU      int           // CPU the event loop is pinned to, negative for none
	TimeSlot        time.Duration // sweep tick; idle budget is three slots
	Resource        resource.Config
	DialTimeout     time.Duration // per-handle dial timeout when Resource.Endpoint is set
	UsersFile       string        // YAML credential file, empty for memory only
	MetricsListen   string        // address for /metrics and /debug/state, empty to disable
	ShutdownTimeout time.Duration // bound on stopping the metrics listener
}

// DefaultConfig returns the stock limits.
func DefaultConfig() *Config {
	rc := reactor.DefaultConfig()
	wc := concurrency.DefaultConfig()
	return &Config{
		DocRoot:         "./root",
		Landing:         protocol.DefaultLanding,
		ReadBufferSize:  protocol.DefaultReadBufferSize,
		WriteBufferSize: protocol.DefaultWriteBufferSize,
		Workers:         wc.Workers,
		MaxRequests:     wc.MaxRequests,
		MaxConns:        rc.MaxConns,
		MaxEvents:       rc.MaxEvents,
		ReactorCPU:      -1,
		TimeSlot:        rc.TimeSlot,
		Resource:        resource.DefaultConfig(),
		DialTimeout:     5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}
