package alert

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"coinpaprika-price-alerts/internal/types"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// ErrTickInProgress is returned by RunTick when another check has not finished yet.
var ErrTickInProgress = errors.New("alert check already in progress")

const (
	DefaultInterval      = time.Minute
	DefaultNotifyTimeout = 10 * time.Second
)

// Store is the part of the alert store the monitor reads and writes.
type Store interface {
	ListActive(ctx context.Context) ([]types.Alert, error)
	Update(ctx context.Context, id string, u types.AlertUpdate) (bool, error)
}

// PriceFeed returns prices for the requested symbols. Symbols without a price are
// absent from the map; an error means the whole batch is unavailable.
type PriceFeed interface {
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// Channel delivers a triggered-alert notification.
type Channel interface {
	Send(ctx context.Context, n types.Notification) error
}

type Config struct {
	Interval      time.Duration
	NoiseEpsilon  float64
	DailyCooldown time.Duration
	NotifyTimeout time.Duration
}

// TickReport summarizes one check.
type TickReport struct {
	Alerts               int
	Symbols              int
	Evaluated            int
	Triggered            int
	MissingPrice         int
	StoreErrors          int
	NotificationFailures int
	FeedError            error
}

// Monitor periodically evaluates every active alert against live prices.
// The monitor is the only writer of the alert-state fields (last checked price,
// trigger count, status, last triggered time); user-facing code is expected to
// create, edit and delete alerts without touching them.
type Monitor struct {
	store     Store
	feed      PriceFeed
	channel   Channel
	evaluator Evaluator
	metrics   *Metrics
	cfg       Config
	now       func() time.Time

	// tickMu serializes checks and guards lastPrices, unsaved and seq.
	tickMu     sync.Mutex
	lastPrices map[string]float64
	seq        uint64
	// unsaved holds trigger writes of once alerts that fired but could not be
	// persisted. Those alerts are not evaluated again until the write succeeds.
	unsaved map[string]types.AlertUpdate

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	checkNow chan struct{}
}

// NewMonitor wires a monitor. channel may be nil, metrics may be nil.
func NewMonitor(store Store, feed PriceFeed, channel Channel, metrics *Metrics, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Monitor{
		store:      store,
		feed:       feed,
		channel:    channel,
		evaluator:  NewEvaluator(cfg.NoiseEpsilon, cfg.DailyCooldown),
		metrics:    metrics,
		cfg:        cfg,
		now:        time.Now,
		lastPrices: make(map[string]float64),
		unsaved:    make(map[string]types.AlertUpdate),
		checkNow:   make(chan struct{}, 1),
	}
}

// Start begins periodic checks and requests an immediate one. Calling Start on a
// running monitor does nothing.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx, m.done)

	m.CheckNow()
	log.Infof("🚀 Alert monitor started, checking every %s.", m.cfg.Interval)
}

// Stop prevents further checks and waits for an in-flight one to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info("Alert monitor stopped.")
}

// Running reports whether periodic checks are scheduled.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// CheckNow asks the running loop for an immediate check. It never blocks; repeated
// requests before the loop picks one up collapse into a single check.
func (m *Monitor) CheckNow() {
	select {
	case m.checkNow <- struct{}{}:
	default:
	}
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(m.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.checkNow:
			if ctx.Err() != nil {
				return
			}
			m.tick(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(m.cfg.Interval)
		case <-timer.C:
			if ctx.Err() != nil {
				return
			}
			m.tick(ctx)
			// an overrunning check delays the next one instead of overlapping it
			timer.Reset(m.cfg.Interval)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("🔥 Panic recovered in alert checker: %v", r)
		}
	}()

	// stopping the monitor must not abort a check halfway through
	if _, err := m.RunTick(context.WithoutCancel(ctx)); err != nil {
		log.Errorf("❌ Alert check failed: %v", err)
	}
}

// RunTick performs one full check: load active alerts, fetch prices once for the
// distinct symbols, evaluate every alert, persist state changes and dispatch
// notifications. Per-alert failures are logged and counted, never returned.
func (m *Monitor) RunTick(ctx context.Context) (TickReport, error) {
	var report TickReport

	if !m.tickMu.TryLock() {
		return report, ErrTickInProgress
	}
	defer m.tickMu.Unlock()

	m.seq++
	tickLog := log.WithField("tick", m.seq)

	started := m.now()
	defer func() {
		m.metrics.Ticks.Inc()
		m.metrics.TickDuration.Observe(time.Since(started).Seconds())
	}()

	tickLog.Debug("🔄 Checking alerts...")

	alerts, err := m.store.ListActive(ctx)
	if err != nil {
		m.metrics.StoreErrors.Inc()
		return report, errors.Wrap(err, "failed to fetch alerts from the store")
	}
	report.Alerts = len(alerts)
	if len(alerts) == 0 {
		return report, nil
	}

	symbols := distinctSymbols(alerts)
	report.Symbols = len(symbols)

	prices, err := m.feed.GetPrices(ctx, symbols)
	if err != nil {
		m.metrics.FeedFailures.Inc()
		report.FeedError = err
		tickLog.WithField("symbols", len(symbols)).Warnf("⚠️ Price feed unavailable, skipping check: %v", err)
		return report, nil
	}

	var (
		wg       sync.WaitGroup
		failures int64
	)
	now := m.now()

	for _, a := range alerts {
		logger := tickLog.WithFields(log.Fields{"alert_id": a.ID, "symbol": a.Symbol})

		if pending, ok := m.unsaved[a.ID]; ok {
			m.retryUnsaved(ctx, a.ID, pending, &report, logger)
			continue
		}

		current, ok := prices[a.Symbol]
		if !ok {
			m.metrics.FeedMisses.Inc()
			report.MissingPrice++
			logger.Debug("⚠️ No price data for symbol, skipping")
			continue
		}

		res := m.evaluator.Evaluate(a, current, m.previousPrice(a), now)
		m.metrics.AlertsEvaluated.Inc()
		report.Evaluated++

		if res.Changes != nil {
			found, err := m.store.Update(ctx, a.ID, *res.Changes)
			if err != nil {
				m.metrics.StoreErrors.Inc()
				report.StoreErrors++
				logger.Errorf("❌ Failed to persist alert state: %v", err)
				if res.Triggered && a.Frequency == types.FrequencyOnce {
					m.unsaved[a.ID] = *res.Changes
				}
			} else if !found {
				logger.Warn("Alert disappeared before its state could be saved")
			}
		}

		if !res.Triggered {
			logger.Debugf("🔍 Not triggered (%s) at %v", res.Reason, current)
			continue
		}

		report.Triggered++
		m.metrics.AlertsTriggered.WithLabelValues(string(a.AlertType)).Inc()
		logger.WithField("trigger_count", res.Next.TriggerCount).Infof("🚨 Alert triggered: %s %s %v at %v",
			a.AlertType, a.Condition, a.Value, current)

		m.dispatch(&wg, &failures, BuildNotification(a, current, res.Percent))
	}

	for symbol, p := range prices {
		m.lastPrices[symbol] = p
	}

	wg.Wait()
	report.NotificationFailures = int(atomic.LoadInt64(&failures))

	tickLog.WithFields(log.Fields{
		"alerts":    report.Alerts,
		"evaluated": report.Evaluated,
		"triggered": report.Triggered,
	}).Debug("✅ Alert check completed.")
	return report, nil
}

// retryUnsaved writes the held trigger state of a once alert again.
func (m *Monitor) retryUnsaved(ctx context.Context, id string, u types.AlertUpdate, report *TickReport, logger *log.Entry) {
	if _, err := m.store.Update(ctx, id, u); err != nil {
		m.metrics.StoreErrors.Inc()
		report.StoreErrors++
		logger.Errorf("❌ Still failing to persist fired alert: %v", err)
		return
	}
	delete(m.unsaved, id)
	logger.Info("✅ Persisted state of previously fired alert")
}

// previousPrice is the symbol's price from the previous check, or the alert's own
// last observation when no check has seen the symbol since start-up.
func (m *Monitor) previousPrice(a types.Alert) *float64 {
	if p, ok := m.lastPrices[a.Symbol]; ok {
		return types.Float(p)
	}
	return a.LastCheckedPrice
}

// dispatch sends n without blocking the evaluation of the remaining alerts.
// Delivery failures never affect persisted alert state.
func (m *Monitor) dispatch(wg *sync.WaitGroup, failures *int64, n types.Notification) {
	if m.channel == nil {
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("🔥 Panic recovered in notification dispatch: %v", r)
				atomic.AddInt64(failures, 1)
				m.metrics.NotificationFailures.Inc()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.NotifyTimeout)
		defer cancel()

		if err := m.channel.Send(ctx, n); err != nil {
			atomic.AddInt64(failures, 1)
			m.metrics.NotificationFailures.Inc()
			log.WithField("alert_id", n.Payload.AlertID).Errorf("❌ Failed to send alert notification: %v", err)
			return
		}
		log.WithField("alert_id", n.Payload.AlertID).Debug("✅ Alert notification sent")
	}()
}

func distinctSymbols(alerts []types.Alert) []string {
	seen := make(map[string]struct{}, len(alerts))
	symbols := make([]string, 0, len(alerts))
	for _, a := range alerts {
		if _, ok := seen[a.Symbol]; ok {
			continue
		}
		seen[a.Symbol] = struct{}{}
		symbols = append(symbols, a.Symbol)
	}
	sort.Strings(symbols)
	return symbols
}
