// File: resource/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package resource

import "errors"

var (
	// ErrNotInitialized is returned by Acquire on a nil or torn down pool.
	ErrNotInitialized = errors.New("resource pool not initialized")

	// ErrNoCapacity is returned by New when no handle could be opened.
	ErrNoCapacity = errors.New("resource pool has zero capacity")
)
