//go:build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Listening socket and the tick/stop notification socket pair.

package reactor

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// listen opens a non-blocking IPv4 listener with SO_REUSEADDR and returns
// the fd and the bound port.
func listen(host string, port, backlog int) (int, int, error) {
	ip := net.IPv4zero
	if host != "" {
		ip = net.ParseIP(host).To4()
		if ip == nil {
			return -1, 0, fmt.Errorf("listen: %q is not an IPv4 address", host)
		}
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, 0, fmt.Errorf("listen socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("listen reuseaddr: %w", err)
	}
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip.To4())
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("listen bind %s: %w", net.JoinHostPort(ip.String(), strconv.Itoa(port)), err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("listen: %w", err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("listen getsockname: %w", err)
	}
	return fd, bound.(*unix.SockaddrInet4).Port, nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrUnix:
		return a.Name
	default:
		return "unknown"
	}
}

const (
	tickByte byte = 'T'
	stopByte byte = 'S'
)

// notifier turns timer ticks and stop requests into bytes on a socket the
// reactor polls, so the reactor only ever blocks in epoll_wait.
type notifier struct {
	rfd, wfd int

	mu    sync.Mutex
	alarm *time.Timer
}

func newNotifier() (*notifier, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("signal socketpair: %w", err)
	}
	return &notifier{rfd: fds[0], wfd: fds[1]}, nil
}

// send queues b. A full socket already holds a pending flag, so the byte
// can be dropped.
func (n *notifier) send(b byte) {
	_, _ = unix.Write(n.wfd, []byte{b})
}

// arm schedules one tick after d, replacing any pending tick.
func (n *notifier) arm(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.alarm != nil {
		n.alarm.Stop()
	}
	n.alarm = time.AfterFunc(d, func() { n.send(tickByte) })
}

// drain reads every queued byte and reports which flags they carried.
func (n *notifier) drain() (tick, stop bool, err error) {
	var buf [64]byte
	for {
		k, rerr := unix.Read(n.rfd, buf[:])
		switch {
		case rerr == unix.EINTR:
			continue
		case rerr == unix.EAGAIN:
			return tick, stop, nil
		case rerr != nil:
			return tick, stop, fmt.Errorf("signal read: %w", rerr)
		case k == 0:
			return tick, stop, nil
		}
		for _, b := range buf[:k] {
			switch b {
			case tickByte:
				tick = true
			case stopByte:
				stop = true
			}
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	if n.alarm != nil {
		n.alarm.Stop()
	}
	n.mu.Unlock()
	unix.Close(n.rfd)
	unix.Close(n.wfd)
}
