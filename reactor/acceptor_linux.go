//go:build linux
// +build linux

package reactor

import (
	"github.com/fzft/go-epoll-echo/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Acceptor turns pending connections on the listening socket into
// registered, tracked connections.
type Acceptor struct {
	listenFd   int
	mode       TriggerMode
	bufferSize int
	set        *ReadinessSet
	table      *ConnectionTable
	stats      *Stats
}

// Accept is called when the listener is readable. Level triggered it
// performs a single accept; edge triggered it keeps accepting until the
// backlog is empty, since the listener will not be reported again for
// connections that were already queued when the edge fired.
// Any other accept failure (EMFILE, ENFILE, ENOBUFS) ends the pass even
// under edge triggering: the failing call leaves the queue untouched, so
// looping would spin. Level triggered, the listener is reported again on
// the next wait. Edge triggered, whatever is still queued waits for the next
// incoming connection to raise a new edge.
// It returns the number of connections admitted.
func (a *Acceptor) Accept() int {
	accepted := 0
	for {
		connFd, sa, err := unix.Accept4(a.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch {
			case IsTemporaryError(err):
				return accepted
			case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
				if a.mode == EdgeTriggered {
					continue
				}
				return accepted
			default:
				// EMFILE and friends: retrying now would spin, the next readiness report retries.
				a.stats.acceptErrors.Inc()
				log.Logger.Error("accept error", zap.Int("listener", a.listenFd), zap.Error(err))
				return accepted
			}
		}

		if a.admit(connFd, sa) {
			accepted++
		}
		if a.mode == LevelTriggered {
			return accepted
		}
	}
}

// admit registers and tracks a freshly accepted fd. The fd is closed if it cannot be registered.
func (a *Acceptor) admit(connFd int, sa unix.Sockaddr) bool {
	if err := a.set.Register(connFd, Readable, a.mode); err != nil {
		a.stats.acceptErrors.Inc()
		log.Logger.Error("register read error", zap.Int("fd", connFd), zap.Error(err))
		if cerr := unix.Close(connFd); cerr != nil {
			log.Logger.Warn("Failed to close rejected connection", zap.Int("fd", connFd), zap.Error(cerr))
		}
		return false
	}

	conn := newConnectionState(connFd, sockaddrIP(sa), a.bufferSize, a.mode)
	if !a.table.Insert(conn) {
		// the kernel handed out an fd we still track, so our bookkeeping is broken
		panic(errors.Errorf("reactor: accepted fd %d is already tracked", connFd))
	}
	a.stats.incrConn()

	log.Logger.Debug("new connection", zap.Int("fd", connFd), zap.String("ip", conn.ip))
	return true
}
