// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed-size worker pool draining a bounded request queue. Producers never
// block: a full queue is reported to the caller. Each job runs with a
// resource handle leased for its duration, and Close joins every worker.
//
// PinCurrentThread binds a locked goroutine's thread to one CPU; the
// reactor uses it for its event loop.
package concurrency
