package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/TokenPulse/dashboard_core/internal/app/cache"
	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
	"github.com/TokenPulse/dashboard_core/internal/app/httpapi"
	"github.com/TokenPulse/dashboard_core/internal/app/services/marketdata"
	"github.com/TokenPulse/dashboard_core/internal/app/services/orchestrator"
	"github.com/TokenPulse/dashboard_core/internal/app/system"
	"github.com/TokenPulse/dashboard_core/internal/app/ws"
	"github.com/TokenPulse/dashboard_core/internal/chart/render"
	"github.com/TokenPulse/dashboard_core/internal/config"
	"github.com/TokenPulse/dashboard_core/pkg/logger"
	"github.com/TokenPulse/dashboard_core/pkg/retry"
)

// Application ties the dashboard services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Provider     *marketdata.Client
	Orchestrator *orchestrator.Service
	Refresher    *orchestrator.Refresher
	Hub          *ws.Hub
	Renderer     *render.Renderer
	Handler      http.Handler
}

// New builds a fully initialised application from configuration.
func New(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	store, err := newCacheStore(cfg, log)
	if err != nil {
		return nil, err
	}

	provider, err := marketdata.NewClient(marketdata.ClientConfig{
		Endpoint:         cfg.Market.Endpoint,
		Chain:            cfg.Market.Chain,
		PairAddress:      cfg.Market.PairAddress,
		APIKey:           cfg.Market.APIKey,
		RequestTimeout:   cfg.Market.RequestTimeout,
		SnapshotTTL:      cfg.Market.SnapshotTTL,
		StaleGraceFactor: cfg.Market.StaleGraceFactor,
		RatePerSecond:    cfg.Market.RatePerSecond,
		RateBurst:        cfg.Market.RateBurst,
	}, nil, log)
	if err != nil {
		return nil, fmt.Errorf("configure market data client: %w", err)
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Orchestrator.RetryAttempts,
		BaseDelay:   cfg.Orchestrator.RetryBase,
	}
	orch := orchestrator.New(provider, store, policy, cfg.Orchestrator.CacheTTL, log)
	refresher := orchestrator.NewRefresher(orch, cfg.Orchestrator.RefreshSpec, market.WindowDay, log)

	sessionConfig := render.Config{
		Width:            cfg.Chart.Width,
		Height:           cfg.Chart.Height,
		DevicePixelRatio: cfg.Chart.DevicePixelRatio,
		FPS:              cfg.Chart.FrameRate,
		ShowLegend:       true,
		ShowToolbar:      true,
		ShowBubbles:      true,
	}
	sessions := func() (*render.Renderer, error) {
		return render.New(orch, sessionConfig, log)
	}
	shared, err := sessions()
	if err != nil {
		return nil, fmt.Errorf("configure chart session: %w", err)
	}

	hub := ws.NewHub(refresher, sessions, log)
	handler := httpapi.NewHandler(httpapi.Deps{
		Orchestrator: orch,
		Refresher:    refresher,
		Renderer:     shared,
		Sessions:     sessions,
		Hub:          hub,
		Log:          log,
		RateLimit:    cfg.Server.RatePerSecond,
		CORSOrigins:  cfg.Server.Origins(),
	})

	manager := system.NewManager()
	services := []system.Service{
		refresher,
		hub,
		newChartSession(shared, refresher),
		newHTTPServer(cfg.Server, handler, log),
	}
	for _, svc := range services {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:      manager,
		log:          log,
		Provider:     provider,
		Orchestrator: orch,
		Refresher:    refresher,
		Hub:          hub,
		Renderer:     shared,
		Handler:      handler,
	}, nil
}

func newCacheStore(cfg *config.Config, log *logger.Logger) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store, err := cache.NewRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		log.WithField("addr", cfg.Cache.RedisAddr).Info("using redis cache backend")
		return store, nil
	default:
		return cache.NewMemory(), nil
	}
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services and tears down the shared chart session.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	a.Renderer.Destroy()
	return err
}
