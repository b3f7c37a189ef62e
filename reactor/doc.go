// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor owns the epoll instance, the listening socket and every
// client connection between worker hand-offs. It accepts, drains reads,
// queues complete reads for the worker pool, drives writes, and evicts idle
// connections from a timer registry swept on a periodic tick delivered
// through a socket pair.
package reactor
