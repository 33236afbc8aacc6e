package price

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tickersFixture = `[
	{"id": "btc-bitcoin", "name": "Bitcoin", "symbol": "BTC", "quotes": {"USD": {"price": 61250.5}}},
	{"id": "eth-ethereum", "name": "Ethereum", "symbol": "ETH", "quotes": {"USD": {"price": 3012.25}}},
	{"id": "btc-fake", "name": "Fake Bitcoin", "symbol": "btc", "quotes": {"USD": {"price": 0.01}}},
	{"id": "dead-coin", "name": "Dead", "symbol": "DEAD", "quotes": {}}
]`

func fixtureFetch(t *testing.T, calls *int, fail *bool) FetchFunc {
	return func() ([]*coinpaprika.Ticker, error) {
		*calls++
		if *fail {
			return nil, errors.New("connection refused")
		}
		var tickers []*coinpaprika.Ticker
		require.NoError(t, json.Unmarshal([]byte(tickersFixture), &tickers))
		return tickers, nil
	}
}

func TestFeed_GetPricesPartial(t *testing.T) {
	calls, fail := 0, false
	f := NewFeed(fixtureFetch(t, &calls, &fail), time.Minute)

	prices, err := f.GetPrices(context.Background(), []string{"BTC", "ETH", "DEAD", "XYZ"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"BTC": 61250.5, "ETH": 3012.25}, prices)
	assert.Equal(t, 1, calls)

	info, ok := f.GetPrice("btc")
	require.True(t, ok)
	assert.Equal(t, "btc-bitcoin", info.ID)
	assert.Equal(t, "Bitcoin", info.Name)

	_, err = f.GetPrices(context.Background(), []string{"BTC"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "fresh snapshot must be served from cache")
}

func TestFeed_Lookup(t *testing.T) {
	calls, fail := 0, false
	f := NewFeed(fixtureFetch(t, &calls, &fail), time.Minute)

	info, err := f.Lookup(context.Background(), "eth")
	require.NoError(t, err)
	assert.Equal(t, PriceInfo{ID: "eth-ethereum", Name: "Ethereum", Symbol: "ETH", PriceUSD: 3012.25}, info)
	assert.Equal(t, 1, calls)

	_, err = f.Lookup(context.Background(), "XYZ")
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestFeed_StaleSnapshotRefreshes(t *testing.T) {
	calls, fail := 0, false
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFeed(fixtureFetch(t, &calls, &fail), time.Minute)
	f.now = func() time.Time { return now }

	require.NoError(t, f.Refresh())
	now = now.Add(2 * time.Minute)

	_, err := f.GetPrices(context.Background(), []string{"ETH"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestFeed_Unavailable(t *testing.T) {
	calls, fail := 0, true
	f := NewFeed(fixtureFetch(t, &calls, &fail), time.Minute)

	_, err := f.GetPrices(context.Background(), []string{"BTC"})
	assert.True(t, errors.Is(err, ErrFeedUnavailable), "got %v", err)
}

func TestFeed_StartRefreshesInBackground(t *testing.T) {
	calls, fail := 0, false
	f := NewFeed(fixtureFetch(t, &calls, &fail), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx, time.Hour)

	assert.Eventually(t, func() bool {
		_, ok := f.GetPrice("ETH")
		return ok
	}, time.Second, 5*time.Millisecond)
}
