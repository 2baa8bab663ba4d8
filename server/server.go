package server

import (
	"context"
	"github.com/fzft/go-epoll-echo/config"
	"github.com/fzft/go-epoll-echo/log"
	"github.com/fzft/go-epoll-echo/reactor"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type Server struct {
	config *config.Config

	mu         sync.Mutex
	addr       *net.TCPAddr
	dispatcher *reactor.Dispatcher
	ready      chan struct{}
}

func New(cfg *config.Config) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Server{
		config: cfg,
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound listen address, nil before Ready.
func (s *Server) Addr() *net.TCPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stats of the running dispatcher, nil before Ready.
func (s *Server) Stats() *reactor.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dispatcher == nil {
		return nil
	}
	return s.dispatcher.Stats()
}

// Run serves until ctx is cancelled, a termination signal arrives or the
// reactor fails. Only reactor failures are returned as errors.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	opts, err := s.config.ReactorOptions()
	if err != nil {
		return err
	}

	listenFd, err := reactor.Listen(s.config.Listen.Address, s.config.Listen.Port, s.config.Listen.Backlog)
	if err != nil {
		log.Logger.Error("listen error", zap.Error(err))
		return err
	}

	d, err := reactor.NewDispatcher(listenFd, opts)
	if err != nil {
		reactor.CloseFd(listenFd)
		return errors.Wrap(err, "create dispatcher")
	}

	addr, err := reactor.LocalAddr(listenFd)
	if err != nil {
		d.Close()
		return err
	}

	s.mu.Lock()
	s.addr = addr
	s.dispatcher = d
	s.mu.Unlock()
	close(s.ready)

	log.Logger.Info("listening",
		zap.Stringer("addr", addr),
		zap.Stringer("mode", opts.Mode),
		zap.Int("buffer_size", opts.BufferSize),
		zap.String("handler", s.config.Reactor.Handler))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Run(gctx)
	})
	if interval := s.config.Stats.Interval; interval > 0 {
		g.Go(func() error {
			reportStats(gctx, d.Stats(), interval)
			return nil
		})
	}

	err = g.Wait()
	log.Logger.Info("shutting down server")
	return err
}

func reportStats(ctx context.Context, stats *reactor.Stats, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Logger.Info("reactor stats", zap.Object("stats", stats.Snapshot()))
		}
	}
}
