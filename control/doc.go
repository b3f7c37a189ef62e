// Package control
// Author: momentics <momentics@gmail.com>
//
// Operational side of the server: Prometheus metrics, debug probes, the
// metrics listener, and file watching for hot reload.
//
// Metrics implements the reactor's Observer, so counters are updated on the
// reactor goroutine; gauges are sampled at scrape time from live state.
package control
