//go:build !linux
// +build !linux

package reactor

import (
	"context"
	"net"
	"time"
)

// Dispatcher is unavailable off linux; every constructor reports ErrUnsupported.
type Dispatcher struct {
	stats Stats
}

func NewDispatcher(int, Options) (*Dispatcher, error) {
	return nil, ErrUnsupported
}

func (d *Dispatcher) Run(context.Context) error    { return ErrUnsupported }
func (d *Dispatcher) RunOnce(time.Duration) error { return ErrUnsupported }
func (d *Dispatcher) Stop() error                 { return nil }
func (d *Dispatcher) Close() error                { return nil }
func (d *Dispatcher) Stats() *Stats               { return &d.stats }
func (d *Dispatcher) State() State                { return Stopped }
func (d *Dispatcher) ListenFd() int               { return -1 }
func (d *Dispatcher) Connections() int            { return 0 }

func Listen(string, int, int) (int, error) {
	return -1, ErrUnsupported
}

func LocalAddr(int) (*net.TCPAddr, error) {
	return nil, ErrUnsupported
}

func writeFd(int, []byte) (int, error) {
	return 0, ErrUnsupported
}

func CloseFd(int) error {
	return nil
}
