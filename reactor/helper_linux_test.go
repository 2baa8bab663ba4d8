//go:build linux
// +build linux

package reactor

import (
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
	"net"
	"strings"
	"testing"
	"time"
)

// recorder keeps a copy of every chunk handed to it.
type recorder struct {
	chunks []string
}

func (r *recorder) OnData(_ int, data []byte) {
	r.chunks = append(r.chunks, string(data))
}

func (r *recorder) total() int {
	return len(strings.Join(r.chunks, ""))
}

func testPipe(t *testing.T) (rfd, wfd int) {
	t.Helper()
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	t.Cleanup(func() {
		unix.Close(p[0])
		unix.Close(p[1])
	})
	return p[0], p[1]
}

func testDispatcher(t *testing.T, opts Options) (*Dispatcher, string) {
	t.Helper()
	lnFd, err := Listen("127.0.0.1", 0, 128)
	require.NoError(t, err)

	addr, err := LocalAddr(lnFd)
	require.NoError(t, err)

	d, err := NewDispatcher(lnFd, opts)
	if err != nil {
		unix.Close(lnFd)
		t.Fatalf("NewDispatcher failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d, addr.String()
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// runUntil drives the dispatcher until cond holds or two seconds pass.
func runUntil(t *testing.T, d *Dispatcher, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		require.NoError(t, d.RunOnce(50*time.Millisecond))
	}
}

// requireInvariant checks that every registered connection fd is tracked and
// every tracked connection is registered.
func requireInvariant(t *testing.T, d *Dispatcher) {
	t.Helper()
	for fd := range d.set.entries {
		if fd == d.listenFd || fd == d.wakeFd {
			continue
		}
		_, ok := d.table.Lookup(fd)
		require.Truef(t, ok, "fd %d registered but not tracked", fd)
	}
	d.table.Range(func(c *ConnectionState) bool {
		require.Truef(t, d.set.Registered(c.fd), "fd %d tracked but not registered", c.fd)
		return true
	})
	require.Equal(t, d.table.Len()+2, d.set.Len())
}
