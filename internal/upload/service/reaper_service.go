package service

import (
	"context"
	"sync"
	"time"

	"github.com/anthanhphan/go-upload-gateway/internal/upload/domain"
	"github.com/anthanhphan/go-upload-gateway/pkg/resilience"
	"github.com/anthanhphan/gosdk/logger"
)

// reaperService periodically removes expired sessions and completed ones
// that were already handed off, releasing their buffers.
type reaperService struct {
	core *UploadServiceImpl

	mu      sync.Mutex
	done    chan struct{}
	stopped sync.WaitGroup
}

// newReaperService creates the expiry-sweep use-case service.
func newReaperService(core *UploadServiceImpl) *reaperService {
	return &reaperService{core: core}
}

// start launches the sweep loop. Starting twice is a no-op.
func (s *reaperService) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	s.done = make(chan struct{})
	s.stopped.Add(1)

	interval := s.core.cfg.Upload.ReaperInterval()
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		defer s.stopped.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
	logger.Infow("Upload reaper started", "interval", interval.String())
}

// stop halts the sweep loop and waits for it to exit.
func (s *reaperService) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return
	}
	close(s.done)
	s.stopped.Wait()
	s.done = nil
}

// sweep removes every expired or completed session. Removals go through
// the same per-session locks as chunk writes, so a sweep never races a
// live write. Fan-out is bounded by a worker pool.
func (s *reaperService) sweep() {
	now := s.core.clock.Now()
	candidates := s.core.store.sweepCandidates(now)
	if len(candidates) == 0 {
		return
	}

	workers := s.core.cfg.Upload.ReaperWorkers
	if workers <= 0 {
		workers = 4
	}
	pool := resilience.NewWorkerPool(workers, len(candidates))

	var mu sync.Mutex
	var expired, finalized int
	for _, id := range candidates {
		sessionID := id
		_ = pool.Submit(context.Background(), func() {
			sess, ok := s.core.store.remove(sessionID)
			if !ok {
				return
			}
			mu.Lock()
			if sess.Status == domain.StatusCompleted {
				finalized++
			} else {
				expired++
			}
			mu.Unlock()
		})
	}
	pool.Close()
	pool.Wait()

	sessions, bytes := s.core.store.stats()
	logger.Infow("Upload reaper sweep finished",
		"expired", expired, "finalized", finalized,
		"live_sessions", sessions, "buffered_bytes", bytes)
}
