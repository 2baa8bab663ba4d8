//go:build linux
// +build linux

package reactor

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
	"io"
	"net"
	"os"
	"testing"
	"time"
)

func TestNewDispatcherRegistersListener(t *testing.T) {
	d, _ := testDispatcher(t, Options{Mode: EdgeTriggered})

	assert.Equal(t, Idle, d.State())
	assert.True(t, d.set.Registered(d.ListenFd()))
	assert.True(t, d.set.Registered(d.wakeFd))
	requireInvariant(t, d)
}

func TestEdgeTriggeredReadDrainsSocket(t *testing.T) {
	rec := &recorder{}
	d, addr := testDispatcher(t, Options{Mode: EdgeTriggered, BufferSize: 2, Handler: rec})

	conn := dial(t, addr)
	runUntil(t, d, func() bool { return d.Connections() == 1 })

	_, err := conn.Write([]byte("ping"))
	require.NoError(t, err)

	// the first pass that sees the data must surface all of it
	for i := 0; i < 20 && rec.total() == 0; i++ {
		require.NoError(t, d.RunOnce(time.Second))
	}
	assert.Equal(t, []string{"pi", "ng"}, rec.chunks)
	assert.Equal(t, 4, rec.total())
	assert.Equal(t, uint64(4), d.Stats().Snapshot().BytesRead)

	// nothing left, no new edge
	require.NoError(t, d.RunOnce(50*time.Millisecond))
	assert.Len(t, rec.chunks, 2)
	requireInvariant(t, d)
}

func TestLevelTriggeredReadRenotifies(t *testing.T) {
	rec := &recorder{}
	d, addr := testDispatcher(t, Options{Mode: LevelTriggered, BufferSize: 2, Handler: rec})

	conn := dial(t, addr)
	runUntil(t, d, func() bool { return d.Connections() == 1 })

	_, err := conn.Write([]byte("ping"))
	require.NoError(t, err)

	runUntil(t, d, func() bool { return rec.total() > 0 })
	assert.Equal(t, []string{"pi"}, rec.chunks)

	// the fd comes back in the very next batch without new data
	require.NoError(t, d.RunOnce(time.Second))
	assert.Equal(t, []string{"pi", "ng"}, rec.chunks)
	requireInvariant(t, d)
}

func TestEdgeTriggeredAcceptDrainsBacklog(t *testing.T) {
	d, addr := testDispatcher(t, Options{Mode: EdgeTriggered})

	for i := 0; i < 3; i++ {
		dial(t, addr)
	}
	// let the handshakes land in the accept queue
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, d.RunOnce(time.Second))
	assert.Equal(t, 3, d.Connections())
	assert.Equal(t, uint64(3), d.Stats().Snapshot().Accepted)
	requireInvariant(t, d)
}

func TestLevelTriggeredAcceptsOnePerPass(t *testing.T) {
	d, addr := testDispatcher(t, Options{Mode: LevelTriggered})

	for i := 0; i < 3; i++ {
		dial(t, addr)
	}
	time.Sleep(50 * time.Millisecond)

	for want := 1; want <= 3; want++ {
		require.NoError(t, d.RunOnce(time.Second))
		assert.Equal(t, want, d.Connections())
		requireInvariant(t, d)
	}
}

func TestPeerCloseClosesOnce(t *testing.T) {
	for _, mode := range []TriggerMode{LevelTriggered, EdgeTriggered} {
		t.Run(mode.String(), func(t *testing.T) {
			rec := &recorder{}
			d, addr := testDispatcher(t, Options{Mode: mode, BufferSize: 8, Handler: rec})

			conn := dial(t, addr)
			runUntil(t, d, func() bool { return d.Connections() == 1 })

			var state *ConnectionState
			d.table.Range(func(c *ConnectionState) bool {
				state = c
				return false
			})
			require.NotNil(t, state)

			_, err := conn.Write([]byte("bye"))
			require.NoError(t, err)
			require.NoError(t, conn.Close())

			runUntil(t, d, func() bool { return d.Connections() == 0 })
			assert.Equal(t, []string{"bye"}, rec.chunks)
			assert.False(t, d.set.Registered(state.Fd()))
			requireInvariant(t, d)

			assert.NoError(t, d.reader.Close(state))
			snap := d.Stats().Snapshot()
			assert.Equal(t, uint64(1), snap.Closed)
			assert.Equal(t, int64(0), snap.Active)
		})
	}
}

func TestRunEchoesAndStopsOnCancel(t *testing.T) {
	for _, mode := range []TriggerMode{LevelTriggered, EdgeTriggered} {
		t.Run(mode.String(), func(t *testing.T) {
			d, addr := testDispatcher(t, Options{Mode: mode, BufferSize: 3, Handler: EchoHandler{}})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- d.Run(ctx) }()

			conn := dial(t, addr)
			require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
			_, err := conn.Write([]byte("hello, reactor"))
			require.NoError(t, err)

			reply := make([]byte, len("hello, reactor"))
			_, err = io.ReadFull(conn, reply)
			require.NoError(t, err)
			assert.Equal(t, "hello, reactor", string(reply))

			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("Run did not return after cancel")
			}
			assert.Equal(t, Stopped, d.State())
			assert.ErrorIs(t, d.RunOnce(0), ErrStopped)
		})
	}
}

func TestStopFromAnotherGoroutine(t *testing.T) {
	d, addr := testDispatcher(t, Options{})

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	conn := dial(t, addr)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	// the connection was closed during shutdown, either after accept (EOF) or still queued (reset)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err := conn.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, os.ErrDeadlineExceeded)

	// and the listener is gone
	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)
	assert.NoError(t, d.Stop())
}

func TestCloseIsIdempotent(t *testing.T) {
	d, addr := testDispatcher(t, Options{Mode: EdgeTriggered})
	dial(t, addr)
	runUntil(t, d, func() bool { return d.Connections() == 1 })

	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close())
	assert.Equal(t, 0, d.Connections())
	assert.Equal(t, Stopped, d.State())
}

func TestWaitFailureStopsDispatcher(t *testing.T) {
	d, _ := testDispatcher(t, Options{Mode: EdgeTriggered})

	epfd := d.set.epollFd
	d.set.epollFd = -1
	err := d.RunOnce(0)
	d.set.epollFd = epfd

	require.Error(t, err)
	assert.ErrorIs(t, err, unix.EBADF)
	assert.Equal(t, Stopped, d.State())
	assert.ErrorIs(t, d.RunOnce(0), ErrStopped)
}

func TestResetPeerClosesConnection(t *testing.T) {
	for _, mode := range []TriggerMode{LevelTriggered, EdgeTriggered} {
		t.Run(mode.String(), func(t *testing.T) {
			d, addr := testDispatcher(t, Options{Mode: mode})

			conn := dial(t, addr)
			other := dial(t, addr)
			runUntil(t, d, func() bool { return d.Connections() == 2 })

			// linger 0 makes close send RST instead of FIN
			require.NoError(t, conn.(*net.TCPConn).SetLinger(0))
			require.NoError(t, conn.Close())

			runUntil(t, d, func() bool { return d.Connections() == 1 })
			snap := d.Stats().Snapshot()
			assert.Equal(t, uint64(1), snap.ReadErrors)
			assert.Equal(t, uint64(1), snap.Closed)
			assert.NotEqual(t, Stopped, d.State())
			requireInvariant(t, d)

			// the remaining connection is still served
			_, err := other.Write([]byte("x"))
			require.NoError(t, err)
			runUntil(t, d, func() bool { return d.Stats().Snapshot().BytesRead == 1 })
		})
	}
}

func TestListenerFailureIsFatal(t *testing.T) {
	d, _ := testDispatcher(t, Options{Mode: LevelTriggered})

	assert.NoError(t, d.processEvent(Event{Fd: d.ListenFd(), Mask: Readable | Failure}))
	err := d.processEvent(Event{Fd: d.ListenFd(), Mask: Failure})
	assert.ErrorIs(t, err, ErrListenerFailed)
}
