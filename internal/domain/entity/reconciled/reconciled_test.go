package reconciled

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicIDIsStable(t *testing.T) {
	first := DeterministicID("balance-update", "1001", "1709251200000")
	second := DeterministicID("balance-update", "1001", "1709251200000")
	require.Equal(t, first, second)

	parsed, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())

	assert.NotEqual(t, first, DeterministicID("cash", "1001", "1709251200000"))
	assert.NotEqual(t, DeterministicID("k", "ab", "c"), DeterministicID("k", "a", "bc"))
}

func TestLimitOrderValidity(t *testing.T) {
	order := &LimitOrder{
		ID:          "m-1",
		ExternalID:  "e-1",
		AssetPairID: "BTCUSD",
		ClientID:    "client",
		Volume:      -1,
		Price:       100,
		Status:      "Matched",
	}
	assert.True(t, order.IsValid())

	order.Price = 0
	assert.False(t, order.IsValid())

	order.Price = 100
	order.Status = strings.Repeat("x", MaxStringLength+1)
	assert.False(t, order.IsValid())

	order.Status = "Matched"
	order.Trades = []LimitTradeInfo{{LimitOrderID: "m-1", ClientID: "client", Asset: "BTC"}}
	assert.False(t, order.IsValid())
}

func TestTradeInfoRequiresUUIDClients(t *testing.T) {
	trade := &TradeInfo{
		MarketClientID:       uuid.NewString(),
		MarketAsset:          "BTC",
		LimitClientID:        uuid.NewString(),
		LimitAsset:           "USD",
		LimitOrderID:         "l-1",
		LimitOrderExternalID: "l-ext-1",
	}
	assert.True(t, trade.IsValid())

	trade.LimitClientID = NotAvailable
	assert.False(t, trade.IsValid())
}

func TestCandleMatchKeyTruncatesToMinute(t *testing.T) {
	finish := time.Date(2024, 3, 1, 10, 0, 59, 0, time.UTC)
	candle := &Candlestick{AssetPair: "BTCUSD", IsAsk: true, Finish: finish}

	assert.Equal(t, "true|2024-03-01T10:00:00Z", candle.MatchKey())
	assert.Equal(t, candle.MatchKey(), CandleMatchKey(true, finish.Add(-30*time.Second)))
}
