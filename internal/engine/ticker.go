// Package engine - ticker.go
// The heartbeat of the robot: one call to the tick function per period.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/dewwy/petbot/internal/platform/logger"
	"go.uber.org/zap"
)

// DefaultTickRate is the control loop period.
const DefaultTickRate = 100 * time.Millisecond

// Ticker calls tick at a fixed rate until stopped. It knows nothing about
// behavior; it only provides the cadence.
type Ticker struct {
	rate     time.Duration
	tick     func()
	logger   *logger.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTicker creates a ticker. A non-positive rate uses DefaultTickRate.
func NewTicker(rate time.Duration, tick func(), log *logger.Logger) *Ticker {
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return &Ticker{
		rate:     rate,
		tick:     tick,
		logger:   log,
		stopChan: make(chan struct{}),
	}
}

// Start runs the loop. Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	t.logger.Info("control loop started", zap.Duration("rate", t.rate))

	ticker := time.NewTicker(t.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("control loop stopped by context")
			return
		case <-t.stopChan:
			t.logger.Info("control loop stopped")
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

// Stop ends the loop. Safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

// Rate is the tick period.
func (t *Ticker) Rate() time.Duration {
	return t.rate
}
