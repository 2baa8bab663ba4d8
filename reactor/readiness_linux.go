//go:build linux
// +build linux

package reactor

import (
	"github.com/fzft/go-epoll-echo/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"math"
	"os"
	"time"
)

// https://copyconstruct.medium.com/the-method-to-epolls-madness-d9d2d6378642

const (
	readEvents  = unix.EPOLLPRI | unix.EPOLLIN
	writeEvents = unix.EPOLLOUT
	edgeEvents  = unix.EPOLLET
)

type registration struct {
	mask Mask
	mode TriggerMode
}

// ReadinessSet is a wrapper around epoll. It keeps track of every fd
// registered with the epoll instance and the interest it was given.
type ReadinessSet struct {
	epollFd int
	events  []unix.EpollEvent
	batch   ReadyBatch
	entries map[int]registration
	closed  bool
}

// Create allocates a new epoll instance able to report up to maxEvents
// descriptors per Wait.
func Create(maxEvents int) (*ReadinessSet, error) {
	if maxEvents < 1 {
		maxEvents = 1
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		log.Logger.Error("Failed to create epoll", zap.Error(err))
		if errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE) || errors.Is(err, unix.ENOMEM) {
			return nil, errors.Wrap(ErrResourceExhausted, os.NewSyscallError("epoll_create1", err).Error())
		}
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	return &ReadinessSet{
		epollFd: epfd,
		events:  make([]unix.EpollEvent, maxEvents),
		batch:   make(ReadyBatch, 0, maxEvents),
		entries: make(map[int]registration),
	}, nil
}

// Register adds fd with the given interest. mode is remembered for the
// lifetime of the registration and reapplied by Modify.
func (r *ReadinessSet) Register(fd int, mask Mask, mode TriggerMode) error {
	if r.closed {
		return ErrClosed
	}
	if fd < 0 {
		return errors.Wrapf(ErrInvalidDescriptor, "fd %d", fd)
	}
	if _, ok := r.entries[fd]; ok {
		return errors.Wrapf(ErrDuplicateRegistration, "fd %d", fd)
	}

	err := unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: toEpoll(mask, mode)})
	if err != nil {
		return ctlError("epoll_ctl add", fd, err)
	}

	r.entries[fd] = registration{mask: mask, mode: mode}
	log.Logger.Debug("registered fd", zap.Int("fd", fd), zap.Stringer("mask", mask), zap.Stringer("mode", mode))
	return nil
}

// Modify replaces the interest of an already registered fd.
func (r *ReadinessSet) Modify(fd int, mask Mask) error {
	if r.closed {
		return ErrClosed
	}
	reg, ok := r.entries[fd]
	if !ok {
		return errors.Wrapf(ErrNotRegistered, "fd %d", fd)
	}

	err := unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: toEpoll(mask, reg.mode)})
	if err != nil {
		return ctlError("epoll_ctl mod", fd, err)
	}

	reg.mask = mask
	r.entries[fd] = reg
	return nil
}

// Deregister removes fd from epoll. Removing an fd that is not registered,
// or one the kernel already dropped because it was closed, is not an error.
func (r *ReadinessSet) Deregister(fd int) error {
	if _, ok := r.entries[fd]; !ok {
		return nil
	}
	delete(r.entries, fd)
	if r.closed {
		return nil
	}

	err := unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && !errors.Is(err, unix.ENOENT) && !errors.Is(err, unix.EBADF) {
		return ctlError("epoll_ctl del", fd, err)
	}
	log.Logger.Debug("deregistered fd", zap.Int("fd", fd))
	return nil
}

// Wait blocks until at least one registered fd is ready or timeout elapses.
// A negative timeout (Infinite) blocks indefinitely. On timeout, or when the
// wait is interrupted by a signal, the batch is empty.
func (r *ReadinessSet) Wait(timeout time.Duration) (ReadyBatch, error) {
	if r.closed {
		return nil, ErrClosed
	}

	n, err := unix.EpollWait(r.epollFd, r.events, toMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return r.batch[:0], nil
		}
		return nil, os.NewSyscallError("epoll_wait", err)
	}

	batch := r.batch[:0]
	for i := 0; i < n; i++ {
		ev := &r.events[i]
		batch = append(batch, Event{Fd: int(ev.Fd), Mask: fromEpoll(ev.Events)})
	}
	r.batch = batch
	return batch, nil
}

// Registered reports whether fd is currently in the set.
func (r *ReadinessSet) Registered(fd int) bool {
	_, ok := r.entries[fd]
	return ok
}

// Interest returns the mask fd was registered or last modified with.
func (r *ReadinessSet) Interest(fd int) (Mask, bool) {
	reg, ok := r.entries[fd]
	return reg.mask, ok
}

// Len returns the number of registered fds.
func (r *ReadinessSet) Len() int {
	return len(r.entries)
}

// Close releases the epoll instance. Registered fds are not closed.
func (r *ReadinessSet) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.entries = make(map[int]registration)
	return os.NewSyscallError("close", unix.Close(r.epollFd))
}

func toEpoll(mask Mask, mode TriggerMode) uint32 {
	var events uint32
	if mask&Readable != 0 {
		events |= readEvents
	}
	if mask&Writable != 0 {
		events |= writeEvents
	}
	if mask&EdgeFlag != 0 || mode == EdgeTriggered {
		events |= edgeEvents
	}
	return events
}

func fromEpoll(events uint32) Mask {
	var mask Mask
	if events&readEvents != 0 {
		mask |= Readable
	}
	if events&writeEvents != 0 {
		mask |= Writable
	}
	if events&unix.EPOLLERR != 0 {
		mask |= Failure
	}
	if events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		mask |= PeerHangup
	}
	return mask
}

func toMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	msec := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		msec++
	}
	// epoll_wait takes an int32; anything longer would wrap negative and block forever
	if msec > math.MaxInt32 {
		msec = math.MaxInt32
	}
	return int(msec)
}

func ctlError(op string, fd int, err error) error {
	switch {
	case errors.Is(err, unix.EBADF):
		return errors.Wrapf(ErrInvalidDescriptor, "%s fd %d", op, fd)
	case errors.Is(err, unix.EEXIST):
		return errors.Wrapf(ErrDuplicateRegistration, "%s fd %d", op, fd)
	case errors.Is(err, unix.ENOENT):
		return errors.Wrapf(ErrNotRegistered, "%s fd %d", op, fd)
	}
	return os.NewSyscallError(op, err)
}
