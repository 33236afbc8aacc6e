package price

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrFeedUnavailable means no usable price snapshot exists for the whole batch.
var ErrFeedUnavailable = errors.New("price feed unavailable")

// PriceInfo represents the pricing details of a cryptocurrency
type PriceInfo struct {
	ID       string
	Name     string
	Symbol   string
	PriceUSD float64
}

// FetchFunc returns the full ticker list from the upstream API.
type FetchFunc func() ([]*coinpaprika.Ticker, error)

// Feed keeps an in-memory snapshot of USD prices keyed by uppercase symbol and
// serves batched lookups from it.
type Feed struct {
	fetch  FetchFunc
	maxAge time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	prices    map[string]PriceInfo
	updatedAt time.Time
}

func NewFeed(fetch FetchFunc, maxAge time.Duration) *Feed {
	return &Feed{
		fetch:  fetch,
		maxAge: maxAge,
		now:    time.Now,
		prices: make(map[string]PriceInfo),
	}
}

// NewCoinPaprikaFeed builds a feed over the CoinPaprika tickers endpoint.
func NewCoinPaprikaFeed(apiProKey string, maxAge time.Duration) *Feed {
	client := coinpaprika.NewClient(nil)
	if apiProKey != "" {
		client = coinpaprika.NewClient(nil, coinpaprika.WithAPIKey(apiProKey))
	}
	tickerOpts := &coinpaprika.TickersOptions{Quotes: "USD"}
	return NewFeed(func() ([]*coinpaprika.Ticker, error) {
		return client.Tickers.List(tickerOpts)
	}, maxAge)
}

// Refresh replaces the snapshot with a fresh ticker list. When several coins share
// a symbol the first one listed (the best ranked) wins.
func (f *Feed) Refresh() error {
	tickers, err := f.fetch()
	if err != nil {
		return errors.Wrap(err, "failed to fetch cryptocurrency prices")
	}

	prices := make(map[string]PriceInfo, len(tickers))
	for _, ticker := range tickers {
		if ticker == nil || ticker.Symbol == nil {
			continue
		}
		usd, ok := ticker.Quotes["USD"]
		if !ok || usd.Price == nil || *usd.Price <= 0 {
			continue
		}
		symbol := strings.ToUpper(*ticker.Symbol)
		if _, exists := prices[symbol]; exists {
			continue
		}

		info := PriceInfo{Symbol: symbol, PriceUSD: *usd.Price}
		if ticker.ID != nil {
			info.ID = *ticker.ID
		}
		if ticker.Name != nil {
			info.Name = *ticker.Name
		}
		prices[symbol] = info
	}
	if len(prices) == 0 {
		return errors.Wrap(ErrFeedUnavailable, "upstream returned no priced tickers")
	}

	f.mu.Lock()
	f.prices = prices
	f.updatedAt = f.now()
	f.mu.Unlock()

	log.Debugf("✅ Cryptocurrency prices updated: %d symbols", len(prices))
	return nil
}

// Start refreshes the snapshot every interval until ctx is done.
func (f *Feed) Start(ctx context.Context, interval time.Duration) {
	go f.run(ctx, interval)
	log.Info("🚀 Price updater started.")
}

func (f *Feed) run(ctx context.Context, interval time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("🔥 Panic recovered in price fetcher: %v. Restarting fetcher in 10 seconds...", r)
			select {
			case <-ctx.Done():
			case <-time.After(10 * time.Second):
				go f.run(ctx, interval)
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := f.Refresh(); err != nil {
			log.Warnf("❌ %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (f *Feed) fresh() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.prices) > 0 && f.now().Sub(f.updatedAt) <= f.maxAge
}

// GetPrices returns the USD price for each requested symbol that has one. Missing
// symbols are simply absent from the result. ErrFeedUnavailable is returned only
// when the snapshot is empty or stale and cannot be refreshed.
func (f *Feed) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !f.fresh() {
		if err := f.Refresh(); err != nil {
			return nil, errors.Wrap(ErrFeedUnavailable, err.Error())
		}
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		if info, ok := f.prices[strings.ToUpper(symbol)]; ok {
			result[symbol] = info.PriceUSD
		}
	}
	return result, nil
}

// Lookup returns the coin details for one symbol, refreshing a stale snapshot first.
func (f *Feed) Lookup(ctx context.Context, symbol string) (PriceInfo, error) {
	if _, err := f.GetPrices(ctx, nil); err != nil {
		return PriceInfo{}, err
	}
	info, ok := f.GetPrice(symbol)
	if !ok {
		return PriceInfo{}, errors.Errorf("no price for %s", strings.ToUpper(symbol))
	}
	return info, nil
}

// GetPrice retrieves the price information for a symbol from the current snapshot.
func (f *Feed) GetPrice(symbol string) (PriceInfo, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	info, exists := f.prices[strings.ToUpper(symbol)]
	return info, exists
}
