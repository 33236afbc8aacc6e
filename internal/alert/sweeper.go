package alert

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

type ExpiryStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper purges expired alerts on its own schedule, away from the check loop.
type Sweeper struct {
	store    ExpiryStore
	interval time.Duration
	metrics  *Metrics
	now      func() time.Time
}

func NewSweeper(store ExpiryStore, interval time.Duration, metrics *Metrics) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{store: store, interval: interval, metrics: metrics, now: time.Now}
}

func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		if s.metrics != nil {
			s.metrics.StoreErrors.Inc()
		}
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.AlertsExpired.Add(float64(n))
	}
	if n > 0 {
		log.Infof("🧹 Removed %d expired alerts", n)
	}
	return n, nil
}

// Start sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			if _, err := s.Sweep(ctx); err != nil {
				log.Errorf("❌ Expiry sweep failed: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
