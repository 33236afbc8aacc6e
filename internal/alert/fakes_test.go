package alert

import (
	"context"
	"sync"
	"time"

	"coinpaprika-price-alerts/internal/types"

	"github.com/pkg/errors"
)

type fakeStore struct {
	mu        sync.Mutex
	alerts    map[string]types.Alert
	order     []string
	failOn    map[string]bool
	listErr   error
	listCalls int
	expired   int64
}

func newFakeStore(alerts ...types.Alert) *fakeStore {
	s := &fakeStore{alerts: make(map[string]types.Alert), failOn: make(map[string]bool)}
	for _, a := range alerts {
		s.alerts[a.ID] = a
		s.order = append(s.order, a.ID)
	}
	return s
}

func (s *fakeStore) ListActive(ctx context.Context) ([]types.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []types.Alert
	for _, id := range s.order {
		if a, ok := s.alerts[id]; ok && a.Status == types.StatusActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) Update(ctx context.Context, id string, u types.AlertUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[id] {
		return false, errors.New("disk full")
	}
	a, ok := s.alerts[id]
	if !ok {
		return false, nil
	}
	s.alerts[id] = a.Apply(u)
	return true, nil
}

func (s *fakeStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, a := range s.alerts {
		if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
			delete(s.alerts, id)
			n++
		}
	}
	s.expired += n
	return n, nil
}

func (s *fakeStore) get(id string) types.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts[id]
}

type fakeFeed struct {
	mu      sync.Mutex
	prices  map[string]float64
	err     error
	calls   [][]string
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeFeed) set(prices map[string]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices = prices
}

func (f *fakeFeed) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, symbols)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]float64)
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func (f *fakeFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeChannel struct {
	mu   sync.Mutex
	sent []types.Notification
	err  error
}

func (c *fakeChannel) Send(ctx context.Context, n types.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return c.err
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}
