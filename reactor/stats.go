package reactor

import (
	"go.uber.org/atomic"
	"go.uber.org/zap/zapcore"
)

// Stats are updated by the dispatcher goroutine and may be read from any goroutine.
type Stats struct {
	accepted      atomic.Uint64
	closed        atomic.Uint64
	acceptErrors  atomic.Uint64
	readErrors    atomic.Uint64
	bytesRead     atomic.Uint64
	handlerCalls  atomic.Uint64
	batches       atomic.Uint64
	activeConnCnt atomic.Int64
}

// StatsSnapshot is a point in time copy of Stats.
type StatsSnapshot struct {
	Accepted     uint64
	Closed       uint64
	AcceptErrors uint64
	ReadErrors   uint64
	BytesRead    uint64
	HandlerCalls uint64
	Batches      uint64
	Active       int64
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Accepted:     s.accepted.Load(),
		Closed:       s.closed.Load(),
		AcceptErrors: s.acceptErrors.Load(),
		ReadErrors:   s.readErrors.Load(),
		BytesRead:    s.bytesRead.Load(),
		HandlerCalls: s.handlerCalls.Load(),
		Batches:      s.batches.Load(),
		Active:       s.activeConnCnt.Load(),
	}
}

func (s *Stats) incrConn() {
	s.accepted.Inc()
	s.activeConnCnt.Inc()
}

func (s *Stats) decrConn() {
	s.closed.Inc()
	s.activeConnCnt.Dec()
}

// MarshalLogObject lets a snapshot be logged with zap.Object.
func (s StatsSnapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("accepted", s.Accepted)
	enc.AddUint64("closed", s.Closed)
	enc.AddInt64("active", s.Active)
	enc.AddUint64("accept_errors", s.AcceptErrors)
	enc.AddUint64("read_errors", s.ReadErrors)
	enc.AddUint64("bytes_read", s.BytesRead)
	enc.AddUint64("handler_calls", s.HandlerCalls)
	enc.AddUint64("batches", s.Batches)
	return nil
}
