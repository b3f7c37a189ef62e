// File: protocol/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package protocol holds the per-socket HTTP/1.1 subset: a byte scanner and
// parser over a fixed read buffer, file resolution under a document root,
// and response assembly into a bounded header buffer plus an optional
// memory-mapped body sent with writev.
//
// A Conn is never shared. The reactor owns it while reading and writing,
// the work queue while it waits, and exactly one worker while Process runs.
// Owner records the current holder so each hand-off can be checked.
package protocol
