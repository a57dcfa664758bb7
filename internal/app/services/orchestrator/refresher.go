package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
	"github.com/TokenPulse/dashboard_core/internal/app/metrics"
	"github.com/TokenPulse/dashboard_core/pkg/logger"
)

// Status is the orchestrator's view of upstream connectivity.
type Status string

const (
	StatusLive         Status = "live"
	StatusStale        Status = "stale"
	StatusReconnecting Status = "reconnecting"
	StatusDown         Status = "down"
)

// downAfterFailures is the consecutive-failure count that flips
// reconnecting into down.
const downAfterFailures = 3

// Update is one completed refresh cycle fanned out to subscribers. Failed
// cycles carry the error string and leave dataset fields zero; consumers
// keep showing their last good data.
type Update struct {
	Generation   uint64              `json:"generation"`
	Status       Status              `json:"status"`
	Stats        market.TokenStats   `json:"stats"`
	Pool         market.PoolData     `json:"pool"`
	Holders      HoldersDataset      `json:"holders"`
	Transactions TransactionsDataset `json:"transactions"`
	Chart        market.ChartData    `json:"chart"`
	Err          string              `json:"error,omitempty"`
	At           time.Time           `json:"at"`
}

// Refresher drives periodic dataset refreshes on a cron schedule and fans
// results out to subscribers. A newly triggered cycle supersedes any
// in-flight one: the older cycle's context is cancelled and its late
// results are discarded, so the last-issued refresh always wins.
type Refresher struct {
	service *Service
	log     *logger.Logger
	spec    string
	window  market.Window

	mu           sync.Mutex
	cron         *cron.Cron
	running      bool
	generation   uint64
	cancelCycle  context.CancelFunc
	status       Status
	failures     int
	lastSuccess  time.Time
	subscribers  map[chan Update]struct{}
	baseCtx      context.Context
	cancelBase   context.CancelFunc
	cycleTimeout time.Duration
}

// NewRefresher creates a lifecycle-managed refresher. The spec is a cron
// expression such as "@every 30s"; window selects the chart span pushed
// with every update.
func NewRefresher(service *Service, spec string, window market.Window, log *logger.Logger) *Refresher {
	if log == nil {
		log = logger.NewDefault("orchestrator-refresher")
	}
	if spec == "" {
		spec = "@every 30s"
	}
	if !window.Valid() {
		window = market.WindowDay
	}
	return &Refresher{
		service:      service,
		log:          log,
		spec:         spec,
		window:       window,
		status:       StatusReconnecting,
		subscribers:  make(map[chan Update]struct{}),
		cycleTimeout: 2 * time.Minute,
	}
}

func (r *Refresher) Name() string { return "orchestrator-refresher" }

// Start registers the cron job and runs one immediate refresh cycle.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.baseCtx, r.cancelBase = context.WithCancel(ctx)
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.spec, r.Trigger); err != nil {
		r.cancelBase()
		r.mu.Unlock()
		return err
	}
	r.running = true
	r.mu.Unlock()

	r.cron.Start()
	r.Trigger()
	r.log.WithField("spec", r.spec).Info("refresher started")
	return nil
}

// Stop cancels any in-flight cycle and halts the schedule.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cronRunner := r.cron
	cancelCycle := r.cancelCycle
	cancelBase := r.cancelBase
	r.cancelCycle = nil
	r.mu.Unlock()

	if cancelCycle != nil {
		cancelCycle()
	}
	if cancelBase != nil {
		cancelBase()
	}

	stopCtx := cronRunner.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("refresher stopped")
	return nil
}

// Trigger starts a refresh cycle immediately, superseding any in-flight
// one. Safe to call from the schedule, the API layer, or tests.
func (r *Refresher) Trigger() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	if r.cancelCycle != nil {
		r.cancelCycle()
	}
	r.generation++
	generation := r.generation
	cycleCtx, cancel := context.WithTimeout(r.baseCtx, r.cycleTimeout)
	r.cancelCycle = cancel
	r.mu.Unlock()

	go r.runCycle(cycleCtx, generation)
}

func (r *Refresher) runCycle(ctx context.Context, generation uint64) {
	started := time.Now()
	update := Update{Generation: generation, At: started}

	err := r.collect(ctx, &update)

	r.mu.Lock()
	if generation != r.generation || !r.running {
		// A newer cycle was issued while this one ran; its results are
		// authoritative and ours must not overwrite them.
		r.mu.Unlock()
		return
	}
	if err != nil {
		r.failures++
		if r.failures >= downAfterFailures {
			r.status = StatusDown
		} else {
			r.status = StatusReconnecting
		}
		update.Status = r.status
		update.Err = err.Error()
	} else {
		r.failures = 0
		r.status = StatusLive
		r.lastSuccess = time.Now()
		update.Status = StatusLive
	}
	subscribers := make([]chan Update, 0, len(r.subscribers))
	for ch := range r.subscribers {
		subscribers = append(subscribers, ch)
	}
	r.mu.Unlock()

	metrics.RecordRefreshCycle(time.Since(started), err == nil)
	if err != nil {
		r.log.WithError(err).WithField("generation", generation).Warn("refresh cycle failed")
	}

	for _, ch := range subscribers {
		select {
		case ch <- update:
		default:
			// Slow consumers drop frames rather than stall the cycle.
		}
	}
}

func (r *Refresher) collect(ctx context.Context, update *Update) error {
	var err error
	if update.Stats, err = r.service.Stats(ctx); err != nil {
		return err
	}
	if update.Pool, err = r.service.Pool(ctx); err != nil {
		return err
	}
	if update.Holders, err = r.service.Holders(ctx); err != nil {
		return err
	}
	if update.Transactions, err = r.service.Transactions(ctx); err != nil {
		return err
	}
	if update.Chart, err = r.service.ChartData(ctx, r.window); err != nil {
		return err
	}
	return nil
}

// Status reports the current connection state. A live feed whose last
// success has aged past two refresh TTLs degrades to stale.
func (r *Refresher) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusLive && !r.lastSuccess.IsZero() &&
		time.Since(r.lastSuccess) > 2*r.service.ttl {
		return StatusStale
	}
	return r.status
}

// Subscribe registers an update channel. The returned function removes
// the subscription and closes the channel.
func (r *Refresher) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 4)
	r.mu.Lock()
	r.subscribers[ch] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subscribers, ch)
			r.mu.Unlock()
			close(ch)
		})
	}
}
