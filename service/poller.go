package service

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultPollInterval is the refetch interval while a bet is outstanding
const DefaultPollInterval = 4 * time.Second

// LifecyclePoller refetches contract state on a fixed interval while a bet
// is outstanding, so a missed event never strands the lifecycle
type LifecyclePoller struct {
	controller *LifecycleController
	interval   time.Duration
}

// NewLifecyclePoller creates a poller for controller
func NewLifecyclePoller(controller *LifecycleController, interval time.Duration) *LifecyclePoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &LifecyclePoller{controller: controller, interval: interval}
}

// Run polls until ctx is cancelled
func (p *LifecyclePoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.WithFields(log.Fields{
		"interval": p.interval,
	}).Info("Lifecycle poller started")

	for {
		select {
		case <-ctx.Done():
			log.Info("Lifecycle poller stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick performs one poll cycle
func (p *LifecyclePoller) Tick(ctx context.Context) {
	if _, ok := p.controller.Account(); !ok {
		return
	}

	if p.controller.Outstanding() {
		if err := p.controller.RefreshReads(ctx); err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Warn("Poll refetch failed")
		}
	}

	p.controller.RetryUnrecorded(ctx)
}
