//go:build linux
// +build linux

package reactor

import (
	"github.com/fzft/go-epoll-echo/log"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"os"
)

// ConnectionReader performs the non-blocking reads for ready connections
// and owns the only path that closes a tracked connection.
type ConnectionReader struct {
	set     *ReadinessSet
	table   *ConnectionTable
	stats   *Stats
	handler Handler
}

// Read surfaces the bytes available on c to the handler. Level triggered
// it reads once, the next Wait reports c again while data remains. Edge
// triggered it reads until the socket would block, otherwise the rest of
// the data stays unreachable until the peer sends more.
// It reports whether c was closed.
func (r *ConnectionReader) Read(c *ConnectionState) bool {
	for {
		n, err := unix.Read(c.fd, c.buf)
		if n > 0 {
			r.stats.bytesRead.Add(uint64(n))
			r.stats.handlerCalls.Inc()
			r.handler.OnData(c.fd, c.buf[:n])
		}

		switch {
		case err == nil && n == 0:
			log.Logger.Debug("peer closed connection", zap.Int("fd", c.fd))
			r.closeLogged(c)
			return true
		case err == nil:
			if c.mode == LevelTriggered {
				return false
			}
		case errors.Is(err, unix.EINTR):
		case IsTemporaryError(err):
			return false
		default:
			r.stats.readErrors.Inc()
			log.Logger.Warn("read error", zap.Int("fd", c.fd), zap.Error(err))
			r.closeLogged(c)
			return true
		}
	}
}

// Close deregisters c and then releases its fd. Calling it again is a no-op.
func (r *ConnectionReader) Close(c *ConnectionState) error {
	if c.closed {
		return nil
	}
	c.closed = true

	err := r.set.Deregister(c.fd)
	r.table.Remove(c.fd)
	if cerr := unix.Close(c.fd); cerr != nil {
		err = multierr.Append(err, os.NewSyscallError("close", cerr))
	}
	r.stats.decrConn()
	return err
}

func (r *ConnectionReader) closeLogged(c *ConnectionState) {
	if err := r.Close(c); err != nil {
		log.Logger.Warn("Failed to close connection", zap.Int("fd", c.fd), zap.Error(err))
	}
}
