//go:build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll wrapper.

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-httpd/protocol"
)

// Client sockets are edge-triggered and one-shot: after an event the fd is
// disarmed until its current holder re-arms it.
const connFlags = unix.EPOLLET | unix.EPOLLONESHOT | unix.EPOLLRDHUP

// poller wraps one epoll instance. epoll_ctl is safe to call from workers
// while the reactor waits.
type poller struct {
	epfd int
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &poller{epfd: epfd}, nil
}

func interestEvents(in protocol.Interest) uint32 {
	if in == protocol.InterestWrite {
		return unix.EPOLLOUT | connFlags
	}
	return unix.EPOLLIN | connFlags
}

func (p *poller) ctl(op, fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, op, fd, &ev)
}

// addListener watches the listening socket, edge-triggered.
func (p *poller) addListener(fd int) error {
	if err := p.ctl(unix.EPOLL_CTL_ADD, fd, unix.EPOLLIN|unix.EPOLLET); err != nil {
		return fmt.Errorf("epoll ctl add listener: %w", err)
	}
	return nil
}

// addSignal watches the notification socket, level-triggered.
func (p *poller) addSignal(fd int) error {
	if err := p.ctl(unix.EPOLL_CTL_ADD, fd, unix.EPOLLIN); err != nil {
		return fmt.Errorf("epoll ctl add signal: %w", err)
	}
	return nil
}

// add registers a new client socket for in.
func (p *poller) add(fd int, in protocol.Interest) error {
	if err := p.ctl(unix.EPOLL_CTL_ADD, fd, interestEvents(in)); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// arm re-enables a disarmed client socket for in.
func (p *poller) arm(fd int, in protocol.Interest) error {
	if err := p.ctl(unix.EPOLL_CTL_MOD, fd, interestEvents(in)); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

func (p *poller) del(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// wait blocks for up to msec milliseconds, or indefinitely when msec is
// negative. An interrupted wait reports zero events.
func (p *poller) wait(events []unix.EpollEvent, msec int) (int, error) {
	n, err := unix.EpollWait(p.epfd, events, msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	return n, nil
}

func (p *poller) close() error {
	return unix.Close(p.epfd)
}
