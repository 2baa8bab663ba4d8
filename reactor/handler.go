package reactor

import (
	"fmt"
	"github.com/fzft/go-epoll-echo/log"
	"go.uber.org/zap"
)

// Handler receives the bytes surfaced by the connection reader.
// data aliases the connection's receive buffer and must not be
// retained after OnData returns.
type Handler interface {
	OnData(fd int, data []byte)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(fd int, data []byte)

func (f HandlerFunc) OnData(fd int, data []byte) {
	f(fd, data)
}

// EchoHandler writes every chunk straight back to the peer. Writes are
// best effort: whatever the socket does not accept right away is dropped.
type EchoHandler struct{}

func (EchoHandler) OnData(fd int, data []byte) {
	n, err := writeFd(fd, data)
	if err != nil {
		log.Logger.Warn("echo write failed", zap.Int("fd", fd), zap.Error(err))
		return
	}
	if n < len(data) {
		log.Logger.Warn("echo short write", zap.Int("fd", fd), zap.Int("written", n), zap.Int("dropped", len(data)-n))
	}
}

// LogHandler logs the received bytes.
type LogHandler struct{}

func (LogHandler) OnData(fd int, data []byte) {
	log.Logger.Info("read data", zap.Int("fd", fd), zap.ByteString("data", data))
}

// DiscardHandler ignores everything.
type DiscardHandler struct{}

func (DiscardHandler) OnData(int, []byte) {}

// NewHandler resolves a handler by its configuration name.
func NewHandler(name string) (Handler, error) {
	switch name {
	case "", "echo":
		return EchoHandler{}, nil
	case "log":
		return LogHandler{}, nil
	case "discard":
		return DiscardHandler{}, nil
	}
	return nil, fmt.Errorf("unknown handler %q", name)
}
