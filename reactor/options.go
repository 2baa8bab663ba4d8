package reactor

import "time"

// Infinite makes Wait block until a descriptor is ready.
const Infinite time.Duration = -1

const (
	DefaultBufferSize = 1024
	DefaultMaxEvents  = 1024
)

// Options configures a Dispatcher. The zero value is usable: level
// triggered, default buffer sizes, bytes discarded.
type Options struct {
	Mode       TriggerMode
	BufferSize int // per connection receive buffer
	MaxEvents  int // upper bound of one ReadyBatch
	Handler    Handler
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.MaxEvents <= 0 {
		o.MaxEvents = DefaultMaxEvents
	}
	if o.Handler == nil {
		o.Handler = DiscardHandler{}
	}
	return o
}
