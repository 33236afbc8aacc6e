package alert

import (
	"context"
	"testing"
	"time"

	"coinpaprika-price-alerts/internal/types"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withID(a types.Alert, id, symbol string) types.Alert {
	a.ID = id
	a.Symbol = symbol
	return a
}

func newTestMonitor(store *fakeStore, feed *fakeFeed, ch Channel) (*Monitor, *Metrics) {
	metrics := NewMetrics(prometheus.NewRegistry())
	m := NewMonitor(store, feed, ch, metrics, Config{Interval: time.Hour})
	m.now = func() time.Time { return evalNow }
	return m, metrics
}

func TestRunTick_BatchesSymbolsAndPersists(t *testing.T) {
	store := newFakeStore(
		withID(priceAlert(types.ConditionBelow, 60000, types.FrequencyOnce), "btc-1", "BTC"),
		withID(priceAlert(types.ConditionAbove, 70000, types.FrequencyRepeated), "btc-2", "BTC"),
		withID(percentAlert(types.ConditionAbove, 10, 100), "eth-1", "ETH"),
	)
	feed := &fakeFeed{prices: map[string]float64{"BTC": 59000, "ETH": 111}}
	ch := &fakeChannel{}
	m, metrics := newTestMonitor(store, feed, ch)

	report, err := m.RunTick(context.Background())
	require.NoError(t, err)

	require.Len(t, feed.calls, 1)
	assert.Equal(t, []string{"BTC", "ETH"}, feed.calls[0])
	assert.Equal(t, 3, report.Alerts)
	assert.Equal(t, 2, report.Symbols)
	assert.Equal(t, 3, report.Evaluated)
	assert.Equal(t, 2, report.Triggered)
	assert.Equal(t, 2, ch.count())

	btc := store.get("btc-1")
	assert.Equal(t, types.StatusTriggered, btc.Status)
	assert.Equal(t, int64(1), btc.TriggerCount)
	assert.Equal(t, 59000.0, *btc.LastCheckedPrice)

	notTriggered := store.get("btc-2")
	assert.Equal(t, int64(0), notTriggered.TriggerCount)
	assert.Equal(t, 59000.0, *notTriggered.LastCheckedPrice)

	eth := store.get("eth-1")
	assert.Equal(t, int64(1), eth.TriggerCount)
	assert.Equal(t, types.StatusActive, eth.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Ticks))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.AlertsEvaluated))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AlertsTriggered.WithLabelValues("price")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AlertsTriggered.WithLabelValues("percentage")))
}

func TestRunTick_OnceNeverFiresTwice(t *testing.T) {
	store := newFakeStore(withID(priceAlert(types.ConditionBelow, 60000, types.FrequencyOnce), "once", "BTC"))
	feed := &fakeFeed{prices: map[string]float64{"BTC": 59000}}
	ch := &fakeChannel{}
	m, _ := newTestMonitor(store, feed, ch)

	for _, p := range []float64{59000, 58000, 57000} {
		feed.set(map[string]float64{"BTC": p})
		_, err := m.RunTick(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, ch.count())
	assert.Equal(t, int64(1), store.get("once").TriggerCount)
}

func TestRunTick_DailyCooldownAcrossTicks(t *testing.T) {
	store := newFakeStore(withID(priceAlert(types.ConditionAbove, 100, types.FrequencyDaily), "daily", "SOL"))
	feed := &fakeFeed{prices: map[string]float64{"SOL": 150}}
	ch := &fakeChannel{}
	m, _ := newTestMonitor(store, feed, ch)

	now := evalNow
	m.now = func() time.Time { return now }
	for i := 0; i < 30; i++ {
		feed.set(map[string]float64{"SOL": 150 + float64(i)})
		_, err := m.RunTick(context.Background())
		require.NoError(t, err)
		now = now.Add(time.Hour)
	}

	require.Equal(t, 2, ch.count())
	a := store.get("daily")
	assert.Equal(t, int64(2), a.TriggerCount)
	assert.Equal(t, evalNow.Add(24*time.Hour), *a.LastTriggeredAt)
}

func TestRunTick_EmptyFeedResult(t *testing.T) {
	original := withID(priceAlert(types.ConditionAbove, 100, types.FrequencyRepeated), "a", "BTC")
	store := newFakeStore(original)
	feed := &fakeFeed{prices: map[string]float64{}}
	ch := &fakeChannel{}
	m, metrics := newTestMonitor(store, feed, ch)

	report, err := m.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.MissingPrice)
	assert.Equal(t, 0, report.Evaluated)
	assert.Equal(t, original, store.get("a"))
	assert.Equal(t, 0, ch.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FeedMisses))
}

func TestRunTick_FeedUnavailable(t *testing.T) {
	original := withID(priceAlert(types.ConditionAbove, 100, types.FrequencyRepeated), "a", "BTC")
	store := newFakeStore(original)
	feed := &fakeFeed{err: errors.New("timeout")}
	ch := &fakeChannel{}
	m, metrics := newTestMonitor(store, feed, ch)

	report, err := m.RunTick(context.Background())
	require.NoError(t, err)
	assert.Error(t, report.FeedError)
	assert.Equal(t, original, store.get("a"))
	assert.Equal(t, 0, ch.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FeedFailures))

	// next tick recovers
	feed.err = nil
	feed.set(map[string]float64{"BTC": 150})
	report, err = m.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggered)
}

func TestRunTick_NoAlertsSkipsFeed(t *testing.T) {
	feed := &fakeFeed{}
	m, _ := newTestMonitor(newFakeStore(), feed, nil)

	report, err := m.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Alerts)
	assert.Equal(t, 0, feed.callCount())
}

func TestRunTick_StoreListFailure(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("locked")
	m, metrics := newTestMonitor(store, &fakeFeed{}, nil)

	_, err := m.RunTick(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreErrors))
}

func TestRunTick_StoreWriteFailureContinues(t *testing.T) {
	store := newFakeStore(
		withID(priceAlert(types.ConditionAbove, 100, types.FrequencyRepeated), "broken", "BTC"),
		withID(priceAlert(types.ConditionAbove, 100, types.FrequencyRepeated), "ok", "ETH"),
	)
	store.failOn["broken"] = true
	feed := &fakeFeed{prices: map[string]float64{"BTC": 150, "ETH": 150}}
	ch := &fakeChannel{}
	m, metrics := newTestMonitor(store, feed, ch)

	report, err := m.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.StoreErrors)
	assert.Equal(t, 2, report.Triggered)
	assert.Equal(t, int64(1), store.get("ok").TriggerCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreErrors))
}

func TestRunTick_OnceAlertWithFailedWriteFiresOnce(t *testing.T) {
	store := newFakeStore(withID(priceAlert(types.ConditionBelow, 60000, types.FrequencyOnce), "a", "BTC"))
	store.failOn["a"] = true
	feed := &fakeFeed{prices: map[string]float64{"BTC": 59000}}
	ch := &fakeChannel{}
	m, metrics := newTestMonitor(store, feed, ch)

	report, err := m.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggered)
	assert.Equal(t, 1, report.StoreErrors)

	report, err = m.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Triggered)
	assert.Equal(t, 1, report.StoreErrors)

	store.mu.Lock()
	store.failOn["a"] = false
	store.mu.Unlock()

	report, err = m.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Triggered)
	assert.Equal(t, 0, report.StoreErrors)

	_, err = m.RunTick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, ch.count())
	got := store.get("a")
	assert.Equal(t, types.StatusTriggered, got.Status)
	assert.Equal(t, int64(1), got.TriggerCount)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.StoreErrors))
}

func TestRunTick_SubEpsilonStepMovesCrossingAnchor(t *testing.T) {
	store := newFakeStore(withID(priceAlert(types.ConditionCrossesUp, 100, types.FrequencyRepeated), "x", "BTC"))
	feed := &fakeFeed{}
	ch := &fakeChannel{}
	m := NewMonitor(store, feed, ch, nil, Config{Interval: time.Hour, NoiseEpsilon: DefaultNoiseEpsilon})
	m.now = func() time.Time { return evalNow }

	for _, p := range []float64{99.995, 100.004, 100.5} {
		feed.set(map[string]float64{"BTC": p})
		_, err := m.RunTick(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, 0, ch.count())
	assert.Equal(t, 100.5, *store.get("x").LastCheckedPrice)
}

func TestRunTick_NotificationFailureKeepsState(t *testing.T) {
	store := newFakeStore(
		withID(priceAlert(types.ConditionBelow, 60000, types.FrequencyOnce), "a", "BTC"),
		withID(priceAlert(types.ConditionBelow, 60000, types.FrequencyOnce), "b", "BTC"),
	)
	feed := &fakeFeed{prices: map[string]float64{"BTC": 59000}}
	ch := &fakeChannel{err: errors.New("telegram down")}
	m, metrics := newTestMonitor(store, feed, ch)

	report, err := m.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.NotificationFailures)
	assert.Equal(t, 2, ch.count())
	assert.Equal(t, types.StatusTriggered, store.get("a").Status)
	assert.Equal(t, types.StatusTriggered, store.get("b").Status)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.NotificationFailures))
}

func TestRunTick_PriceCrossingUsesPreviousTick(t *testing.T) {
	store := newFakeStore(withID(priceAlert(types.ConditionCrossesUp, 50000, types.FrequencyRepeated), "x", "BTC"))
	feed := &fakeFeed{prices: map[string]float64{"BTC": 49000}}
	ch := &fakeChannel{}
	m, _ := newTestMonitor(store, feed, ch)

	_, err := m.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, ch.count())

	feed.set(map[string]float64{"BTC": 51000})
	_, err = m.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ch.count())

	feed.set(map[string]float64{"BTC": 52000})
	_, err = m.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ch.count())
}

func TestRunTick_CrossingFallsBackToPersistedPrice(t *testing.T) {
	a := withID(priceAlert(types.ConditionCrossesDown, 50000, types.FrequencyRepeated), "x", "BTC")
	a.LastCheckedPrice = types.Float(50500)
	store := newFakeStore(a)
	feed := &fakeFeed{prices: map[string]float64{"BTC": 49500}}
	ch := &fakeChannel{}
	m, _ := newTestMonitor(store, feed, ch)

	report, err := m.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggered)
}

func TestRunTick_ReentrancyGuard(t *testing.T) {
	store := newFakeStore(withID(priceAlert(types.ConditionAbove, 100, types.FrequencyRepeated), "a", "BTC"))
	feed := &fakeFeed{
		prices:  map[string]float64{"BTC": 150},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	m, _ := newTestMonitor(store, feed, &fakeChannel{})

	done := make(chan error, 1)
	go func() {
		_, err := m.RunTick(context.Background())
		done <- err
	}()
	<-feed.entered

	_, err := m.RunTick(context.Background())
	assert.Equal(t, ErrTickInProgress, err)

	close(feed.block)
	require.NoError(t, <-done)
}

func TestMonitor_StartChecksImmediatelyAndStops(t *testing.T) {
	store := newFakeStore(withID(priceAlert(types.ConditionAbove, 100, types.FrequencyRepeated), "a", "BTC"))
	feed := &fakeFeed{prices: map[string]float64{"BTC": 150}}
	ch := &fakeChannel{}
	m, _ := newTestMonitor(store, feed, ch)

	m.Start()
	m.Start()
	assert.True(t, m.Running())
	assert.Eventually(t, func() bool { return ch.count() == 1 }, time.Second, 5*time.Millisecond)

	feed.set(map[string]float64{"BTC": 160})
	m.CheckNow()
	assert.Eventually(t, func() bool { return ch.count() == 2 }, time.Second, 5*time.Millisecond)

	m.Stop()
	assert.False(t, m.Running())
	calls := feed.callCount()

	feed.set(map[string]float64{"BTC": 170})
	m.CheckNow()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, feed.callCount())
	m.Stop()
}

func TestMonitor_PeriodicTicks(t *testing.T) {
	store := newFakeStore(withID(priceAlert(types.ConditionAbove, 1000, types.FrequencyRepeated), "a", "BTC"))
	feed := &fakeFeed{prices: map[string]float64{"BTC": 150}}
	m := NewMonitor(store, feed, nil, nil, Config{Interval: 10 * time.Millisecond})

	m.Start()
	defer m.Stop()
	assert.Eventually(t, func() bool { return feed.callCount() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestSweeper(t *testing.T) {
	expiring := withID(priceAlert(types.ConditionAbove, 100, types.FrequencyRepeated), "old", "BTC")
	expiring.ExpiresAt = types.Time(evalNow.Add(-time.Minute))
	store := newFakeStore(expiring, withID(priceAlert(types.ConditionAbove, 100, types.FrequencyRepeated), "new", "BTC"))
	metrics := NewMetrics(prometheus.NewRegistry())

	s := NewSweeper(store, time.Hour, metrics)
	s.now = func() time.Time { return evalNow }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AlertsExpired))
	assert.Equal(t, types.Alert{}, store.get("old"))
	assert.Equal(t, "new", store.get("new").ID)
}
