package application

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Poller interface {
	PollOnce(ctx context.Context) error
}

type Scheduler struct {
	log       *zap.Logger
	every     time.Duration
	pauseFile string

	mu   sync.RWMutex
	poll Poller
}

func NewScheduler(l *zap.Logger, p Poller, every time.Duration, pauseFile string) *Scheduler {
	return &Scheduler{
		log: l, poll: p, every: every, pauseFile: pauseFile,
	}
}

// Swap replaces the poller, e.g. after a config reload.
func (s *Scheduler) Swap(p Poller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poll = p
	s.log.Info("config reloaded")
}

func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.every)
	defer t.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.isPaused() {
		s.log.Debug("paused: skipping poll")
		return
	}

	s.mu.RLock()
	p := s.poll
	s.mu.RUnlock()

	if err := p.PollOnce(ctx); err != nil {
		s.log.Warn("poll failed", zap.Error(err))
	}
}

func (s *Scheduler) isPaused() bool {
	if s.pauseFile == "" {
		return false
	}
	_, err := os.Stat(s.pauseFile)
	return err == nil
}
