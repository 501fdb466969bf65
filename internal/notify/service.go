package notify

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"shiftwatch/internal/transport"
	"shiftwatch/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notify queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type Config struct {
	Workers    int
	QueueSize  int
	RatePerSec int
}

// Service is the async outbound pipeline: queue + worker pool + rate
// limit. The watcher pushes here so a slow Telegram API never stalls a
// polling cycle.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter transport.Adapter

	cfg     Config
	limiter *rate.Limiter

	queue   chan transport.Notification
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		adapter: adapter,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	rctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.queue = make(chan transport.Notification, s.cfg.QueueSize)

	queue := s.queue
	s.wg.Add(s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		go func() {
			defer s.wg.Done()
			s.worker(rctx, queue)
		}()
	}
	s.log.Info("notifier started", logx.Int("workers", s.cfg.Workers))
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.running = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.log.Info("notifier stopped")
}

// Push enqueues a notification. It never blocks: a full queue returns
// ErrQueueFull and the caller decides whether that matters.
func (s *Service) Push(n transport.Notification) error {
	s.mu.Lock()
	running := s.running
	queue := s.queue
	s.mu.Unlock()

	if !running {
		return ErrStopped
	}
	select {
	case queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) worker(ctx context.Context, queue <-chan transport.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			if _, err := s.adapter.SendText(ctx, n.Target, n.Text, n.Options); err != nil {
				s.log.Warn("notification send failed",
					logx.Int64("chat_id", n.Target.ChatID),
					logx.Err(err))
			}
		}
	}
}
