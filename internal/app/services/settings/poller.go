package settings

import (
	"context"
	"sync"
	"time"

	"github.com/apex-authority/backoffice/internal/app/system"
	"github.com/apex-authority/backoffice/internal/logging"
	"github.com/apex-authority/backoffice/internal/metrics"
)

var _ system.Service = (*Poller)(nil)

// Poller refreshes the settings snapshot on a fixed interval. It is the
// fallback that keeps tabs consistent when no broadcast reaches them.
type Poller struct {
	service      *Service
	log          *logging.Logger
	metrics      *metrics.Registry
	interval     time.Duration
	fetchTimeout time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewPoller creates a lifecycle-managed settings poller. interval and
// fetchTimeout default to 5s when zero.
func NewPoller(service *Service, interval, fetchTimeout time.Duration, reg *metrics.Registry, log *logging.Logger) *Poller {
	if log == nil {
		log = logging.NewDefault("settings-poller")
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 5 * time.Second
	}
	return &Poller{
		service:      service,
		log:          log,
		metrics:      reg,
		interval:     interval,
		fetchTimeout: fetchTimeout,
	}
}

func (p *Poller) Name() string { return "settings-poller" }

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.tick(runCtx)
			}
		}
	}()

	p.log.WithField("interval", p.interval.String()).Info("settings poller started")
	return nil
}

func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.log.Info("settings poller stopped")
	return nil
}

func (p *Poller) tick(ctx context.Context) {
	if p.service == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	_, changed, err := p.service.Refresh(ctx)
	outcome := "unchanged"
	switch {
	case err != nil:
		outcome = "error"
		p.log.WithError(err).Warn("settings poll failed")
	case changed:
		outcome = "changed"
		p.log.Info("settings changed since last poll")
	}
	if p.metrics != nil {
		p.metrics.RecordPollTick(outcome)
	}
}
