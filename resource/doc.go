// File: resource/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package resource implements the bounded pool of external handles leased
// by workers for the duration of a request. Admission is a weighted
// semaphore sized to the number of handles that opened successfully; the
// free list is a FIFO guarded by a mutex.
package resource
