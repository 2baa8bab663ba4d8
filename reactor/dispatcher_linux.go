//go:build linux
// +build linux

package reactor

import (
	"context"
	"github.com/fzft/go-epoll-echo/log"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"os"
	"sync"
	"time"
)

// Dispatcher is the single threaded event loop: it waits on the readiness
// set and routes every ready fd to the Acceptor or the ConnectionReader.
// Apart from Stop, State and Stats, its methods must be called from one goroutine.
type Dispatcher struct {
	set      *ReadinessSet
	table    *ConnectionTable
	acceptor *Acceptor
	reader   *ConnectionReader
	stats    *Stats
	mode     TriggerMode

	listenFd int // listener fd
	wakeFd   int // eventfd used by Stop

	state    atomic.Int32
	stopping atomic.Bool

	wakeMu    sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewDispatcher builds a dispatcher around an already listening, non-blocking
// socket. On success the dispatcher owns listenFd and closes it in Close.
func NewDispatcher(listenFd int, opts Options) (*Dispatcher, error) {
	opts = opts.withDefaults()

	set, err := Create(opts.MaxEvents)
	if err != nil {
		return nil, err
	}

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		log.Logger.Error("Failed to create eventfd", zap.Error(err))
		set.Close()
		return nil, os.NewSyscallError("eventfd", err)
	}

	// Register the eventfd to epoll for read events
	if err := set.Register(efd, Readable, LevelTriggered); err != nil {
		log.Logger.Error("Failed to add eventfd to epoll", zap.Error(err))
		unix.Close(efd)
		set.Close()
		return nil, err
	}

	// Register the listener to epoll for read events
	if err := set.Register(listenFd, Readable, opts.Mode); err != nil {
		log.Logger.Error("Failed to add listener to epoll", zap.Int("fd", listenFd), zap.Error(err))
		unix.Close(efd)
		set.Close()
		return nil, err
	}

	table := NewConnectionTable()
	stats := &Stats{}
	d := &Dispatcher{
		set:   set,
		table: table,
		stats: stats,
		mode:  opts.Mode,
		acceptor: &Acceptor{
			listenFd:   listenFd,
			mode:       opts.Mode,
			bufferSize: opts.BufferSize,
			set:        set,
			table:      table,
			stats:      stats,
		},
		reader: &ConnectionReader{
			set:     set,
			table:   table,
			stats:   stats,
			handler: opts.Handler,
		},
		listenFd: listenFd,
		wakeFd:   efd,
	}
	d.setState(Idle)
	return d, nil
}

// Run drives the loop until Stop is called or ctx is done, then closes the
// dispatcher. It returns nil after a requested stop and the readiness set
// failure otherwise.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer func() {
		if err := d.Close(); err != nil {
			log.Logger.Warn("Failed to close dispatcher cleanly", zap.Error(err))
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			log.Logger.Info("Received stop signal. Exiting event loop.")
			if err := d.Stop(); err != nil {
				log.Logger.Error("Failed to wake event loop", zap.Error(err))
			}
		case <-done:
		}
	}()

	log.Logger.Info("event loop started", zap.Int("listener", d.listenFd), zap.Stringer("mode", d.mode))
	for {
		err := d.RunOnce(Infinite)
		switch {
		case err == nil:
		case errors.Is(err, ErrStopped):
			return nil
		default:
			return err
		}
	}
}

// RunOnce performs one Waiting -> Processing pass: a single Wait with the
// given timeout followed by dispatch of every entry in the batch.
// It returns ErrStopped once a stop was requested, and the wrapped
// readiness set error, after which the dispatcher is Stopped, if Wait fails.
func (d *Dispatcher) RunOnce(timeout time.Duration) error {
	if d.State() == Stopped {
		return ErrStopped
	}

	d.setState(Waiting)
	batch, err := d.set.Wait(timeout)
	if err != nil {
		d.setState(Stopped)
		log.Logger.Error("epoll wait error", zap.Error(err))
		return errors.Wrap(err, "reactor: wait for readiness")
	}
	if len(batch) == 0 {
		return nil
	}

	d.stats.batches.Inc()
	d.setState(Processing)
	for _, ev := range batch {
		if err := d.processEvent(ev); err != nil {
			d.setState(Stopped)
			return err
		}
	}
	d.setState(Waiting)
	return nil
}

func (d *Dispatcher) processEvent(ev Event) error {
	switch ev.Fd {
	case d.wakeFd:
		return d.handleWakeup()
	case d.listenFd:
		if ev.Mask&Readable != 0 {
			if ev.Mask&Failure != 0 {
				log.Logger.Warn("epoll error event for listener", zap.Int("fd", ev.Fd), zap.Stringer("events", ev.Mask))
			}
			d.acceptor.Accept()
			return nil
		}
		if ev.Mask&Failure != 0 {
			// nothing to accept and the error stays pending, level triggered it would be reported forever
			log.Logger.Error("listener failed", zap.Int("fd", ev.Fd), zap.Stringer("events", ev.Mask))
			return errors.Wrapf(ErrListenerFailed, "fd %d events %s", ev.Fd, ev.Mask)
		}
		return nil
	}

	conn, ok := d.table.Lookup(ev.Fd)
	if !ok {
		// closed earlier in this batch
		log.Logger.Debug("event for untracked fd", zap.Int("fd", ev.Fd))
		return nil
	}

	if ev.Mask&Readable != 0 {
		d.reader.Read(conn)
		return nil
	}
	if ev.Mask&(Failure|PeerHangup) != 0 {
		log.Logger.Debug("epoll error event for fd", zap.Int("fd", ev.Fd), zap.Stringer("events", ev.Mask))
		d.reader.closeLogged(conn)
	}
	return nil
}

// handleWakeup drains the eventfd counter and reports whether Stop asked us to leave.
func (d *Dispatcher) handleWakeup() error {
	var buf [8]byte
	if _, err := unix.Read(d.wakeFd, buf[:]); err != nil && !IsTemporaryError(err) {
		log.Logger.Error("Failed to read from event fd", zap.Error(err))
	}
	if d.stopping.Load() {
		return ErrStopped
	}
	return nil
}

// Stop asks a running loop to return. It is safe to call from any goroutine
// and more than once.
func (d *Dispatcher) Stop() error {
	d.stopping.Store(true)

	d.wakeMu.Lock()
	defer d.wakeMu.Unlock()
	if d.wakeFd < 0 {
		return nil
	}
	// any non-zero value bumps the counter
	one := [8]byte{1}
	_, err := unix.Write(d.wakeFd, one[:])
	if err != nil && !IsTemporaryError(err) {
		return os.NewSyscallError("write eventfd", err)
	}
	return nil
}

// Close releases everything in order: eventfd, listener, connections, epoll.
// Connections are deregistered before their fds are closed.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.setState(Stopped)
		var errs error

		d.wakeMu.Lock()
		if err := d.set.Deregister(d.wakeFd); err != nil {
			errs = multierr.Append(errs, err)
		}
		if err := CloseFd(d.wakeFd); err != nil {
			errs = multierr.Append(errs, err)
		}
		d.wakeFd = -1
		d.wakeMu.Unlock()

		if err := d.set.Deregister(d.listenFd); err != nil {
			errs = multierr.Append(errs, err)
		}
		if err := CloseFd(d.listenFd); err != nil {
			errs = multierr.Append(errs, err)
		}

		d.table.Range(func(c *ConnectionState) bool {
			errs = multierr.Append(errs, d.reader.Close(c))
			return true
		})

		errs = multierr.Append(errs, d.set.Close())
		d.closeErr = errs

		log.Logger.Info("event loop closed", zap.Object("stats", d.stats.Snapshot()))
	})
	return d.closeErr
}

// Stats returns the live counters of this dispatcher.
func (d *Dispatcher) Stats() *Stats {
	return d.stats
}

func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

func (d *Dispatcher) setState(s State) {
	d.state.Store(int32(s))
}

// ListenFd returns the listening descriptor the dispatcher accepts on.
func (d *Dispatcher) ListenFd() int {
	return d.listenFd
}

// Connections returns the number of tracked connections.
func (d *Dispatcher) Connections() int {
	return d.table.Len()
}
