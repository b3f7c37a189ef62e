// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "errors"

var (
	// ErrPoolClosed indicates the worker pool has been shut down
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrInvalidWorkerCount indicates invalid worker count configuration
	ErrInvalidWorkerCount = errors.New("invalid worker count")

	// ErrInvalidQueueSize indicates a non-positive request queue capacity
	ErrInvalidQueueSize = errors.New("invalid request queue size")
)
