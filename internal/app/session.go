package app

import (
	"context"
	"sync"

	"github.com/TokenPulse/dashboard_core/internal/app/services/orchestrator"
	"github.com/TokenPulse/dashboard_core/internal/chart/render"
)

// chartSession keeps the shared REST chart session alive: it runs the
// renderer's frame loop and feeds refresh cycles into it so exports and
// annotation overlays always draw against current data.
type chartSession struct {
	renderer  *render.Renderer
	refresher *orchestrator.Refresher

	mu          sync.Mutex
	cancel      context.CancelFunc
	unsubscribe func()
	done        chan struct{}
}

func newChartSession(renderer *render.Renderer, refresher *orchestrator.Refresher) *chartSession {
	return &chartSession{renderer: renderer, refresher: refresher}
}

func (s *chartSession) Name() string { return "chart-session" }

func (s *chartSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	s.renderer.StartLoop(runCtx)

	updates, unsubscribe := s.refresher.Subscribe()
	s.unsubscribe = unsubscribe
	go func() {
		defer close(s.done)
		for {
			select {
			case <-runCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Err == "" {
					s.renderer.ApplyUpdate(update.Chart)
				}
			}
		}
	}()
	return nil
}

func (s *chartSession) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	unsubscribe := s.unsubscribe
	done := s.done
	s.cancel = nil
	s.unsubscribe = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	unsubscribe()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
