//go:build linux
// +build linux

package reactor

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"net"
	"os"
)

func isFDValid(fd int) bool {
	// Try to get the flags of the file descriptor
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}

// IsTemporaryError reports whether err is the would-block outcome of a non-blocking call.
// EWOULDBLOCK and EAGAIN share a value on linux.
func IsTemporaryError(err error) bool {
	return errors.Is(err, unix.EAGAIN)
}

// CloseFd closes fd if it is still open.
func CloseFd(fd int) error {
	if !isFDValid(fd) {
		return nil
	}
	return os.NewSyscallError("close", unix.Close(fd))
}

func writeFd(fd int, data []byte) (int, error) {
	for {
		n, err := unix.Write(fd, data)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if IsTemporaryError(err) {
			return 0, nil
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

func sockaddrIP(sa unix.Sockaddr) string {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IPv4(addr.Addr[0], addr.Addr[1], addr.Addr[2], addr.Addr[3]).String()
	case *unix.SockaddrInet6:
		return net.IP(addr.Addr[:]).String()
	}
	return ""
}
