// Package refresh periodically refetches weather for the current location.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
	"github.com/kjstillabower/weather-location-sync/internal/service"
)

// DefaultInterval matches the weather cache TTL.
const DefaultInterval = 10 * time.Minute

const defaultRunTimeout = 30 * time.Second

// Refresher refetches the current location, reporting ok=false when none is set.
type Refresher interface {
	Refresh(ctx context.Context) (service.FetchResult, bool, error)
}

// Poller runs Refresh on a fixed interval.
type Poller struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	base   context.Context
	cancel context.CancelFunc
}

// NewPoller creates a Poller. interval <= 0 uses DefaultInterval; timeout <= 0
// bounds each run to 30s.
func NewPoller(refresher Refresher, interval, timeout time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	return &Poller{
		scheduler: gocron.NewScheduler(time.UTC),
		refresher: refresher,
		interval:  interval,
		timeout:   timeout,
		logger:    observability.OrNop(logger),
	}
}

// Start schedules the job. The first run happens one interval from now; runs
// never overlap. ctx bounds every run.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	p.base, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	_, err := p.scheduler.Every(p.interval).WaitForSchedule().SingletonMode().Do(func() {
		p.RunOnce(p.baseContext())
	})
	if err != nil {
		return err
	}
	p.scheduler.StartAsync()
	p.logger.Info("refresh poller started", zap.Duration("interval", p.interval))
	return nil
}

// RunOnce performs a single refresh and records its status.
func (p *Poller) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res, ok, err := p.refresher.Refresh(ctx)
	status := "ok"
	switch {
	case err != nil && errors.Is(err, apperr.ErrSuperseded):
		status = "superseded"
	case err != nil:
		status = "failed"
		p.logger.Warn("scheduled refresh failed",
			zap.String("category", string(apperr.CategorizeError(err))),
			zap.Error(err),
		)
	case !ok:
		status = "skipped"
	default:
		p.logger.Debug("scheduled refresh completed", zap.String("key", res.Key))
	}
	observability.RefreshRunsTotal.WithLabelValues(status).Inc()
}

// Stop cancels pending runs and stops the scheduler.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.scheduler.Stop()
}

func (p *Poller) baseContext() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.base == nil {
		return context.Background()
	}
	return p.base
}
