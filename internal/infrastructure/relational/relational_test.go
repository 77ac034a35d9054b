package relational

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"reconciler/internal/domain/entity/reconciled"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func candle(pair string, isAsk bool, bucket time.Time) *reconciled.Candlestick {
	return &reconciled.Candlestick{
		ID:        reconciled.DeterministicID("candle", pair, fmt.Sprint(isAsk), bucket.Format(time.RFC3339)),
		AssetPair: pair,
		IsAsk:     isAsk,
		Open:      1,
		Close:     1,
		High:      1,
		Low:       1,
		Start:     bucket,
		Finish:    bucket.Add(59 * time.Second),
	}
}

func candleKey(c *reconciled.Candlestick) string { return c.MatchKey() }

func TestDayBucketCacheDiscardsPreviousDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	d2 := d1.Add(24 * time.Hour)
	require.NoError(t, db.Create(candle("BTCUSD", true, d1)).Error)

	loads := 0
	cache := NewDayBucketCache(func(ctx context.Context, db *gorm.DB, from, to time.Time, group string) ([]*reconciled.Candlestick, error) {
		loads++
		return CandlesOfDay(ctx, db, from, to, group)
	}, candleKey)

	found, ok, err := cache.Find(ctx, db, d1, "BTCUSD", reconciled.CandleMatchKey(true, d1.Add(59*time.Second)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BTCUSD", found.AssetPair)

	// same day, same group: served from memory
	_, _, err = cache.Find(ctx, db, d1.Add(time.Hour), "BTCUSD", "other")
	require.NoError(t, err)
	assert.Equal(t, 1, loads)

	// the D1 row must not be visible when asking about D2
	_, ok, err = cache.Find(ctx, db, d2, "BTCUSD", reconciled.CandleMatchKey(true, d1.Add(59*time.Second)))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, loads)
	assert.True(t, cache.Day().Equal(d2.Truncate(24*time.Hour)))
}

func TestDayBucketCacheKeepsOtherGroupsOfSameDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	bucket := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	loads := map[string]int{}
	cache := NewDayBucketCache(func(ctx context.Context, db *gorm.DB, from, to time.Time, group string) ([]*reconciled.Candlestick, error) {
		loads[group]++
		return CandlesOfDay(ctx, db, from, to, group)
	}, candleKey)

	for _, pair := range []string{"BTCUSD", "ETHUSD", "BTCUSD", "ETHUSD"} {
		_, _, err := cache.Find(ctx, db, bucket, pair, "k")
		require.NoError(t, err)
	}
	assert.Equal(t, map[string]int{"BTCUSD": 1, "ETHUSD": 1}, loads)
}

func TestDayBucketCacheMissingGroups(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	bucket := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	present := candle("ETHUSD", false, bucket)
	require.NoError(t, db.Create(present).Error)

	cache := NewDayBucketCache(func(ctx context.Context, db *gorm.DB, from, to time.Time, group string) ([]*reconciled.Candlestick, error) {
		return CandlesOfDay(ctx, db, from, to, group)
	}, candleKey)

	_, ok, err := cache.Find(ctx, db, bucket, "BTCUSD", reconciled.CandleMatchKey(false, bucket.Add(59*time.Second)))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cache.Find(ctx, db, bucket, "ETHUSD", present.MatchKey())
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = cache.Find(ctx, db, bucket.Add(time.Minute), "ETHUSD", reconciled.CandleMatchKey(false, bucket.Add(119*time.Second)))
	require.NoError(t, err)
	assert.False(t, ok)

	whole, partial := cache.Missing()
	assert.Equal(t, []string{"BTCUSD"}, whole)
	assert.Equal(t, []string{"ETHUSD"}, partial)
	assert.Equal(t, GroupStats{DaysLoaded: 1, Lookups: 2, Misses: 1}, cache.Stats("ETHUSD"))

	cache.Reset()
	whole, partial = cache.Missing()
	assert.Empty(t, whole)
	assert.Empty(t, partial)
}

func TestDayBucketCacheRemember(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	bucket := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	cache := NewDayBucketCache(func(ctx context.Context, db *gorm.DB, from, to time.Time, group string) ([]*reconciled.Candlestick, error) {
		return CandlesOfDay(ctx, db, from, to, group)
	}, candleKey)

	c := candle("BTCUSD", true, bucket)
	_, ok, err := cache.Find(ctx, db, bucket, "BTCUSD", c.MatchKey())
	require.NoError(t, err)
	require.False(t, ok)

	cache.Remember(c.Finish, "BTCUSD", c)
	got, ok, err := cache.Find(ctx, db, bucket, "BTCUSD", c.MatchKey())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.ID, got.ID)
}

func TestFindByIDAndOrders(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	order := &reconciled.LimitOrder{
		ID:          "match-1",
		ExternalID:  "ext-1",
		AssetPairID: "BTCUSD",
		ClientID:    "client",
		Volume:      1,
		Price:       100,
		Status:      "Matched",
		CreatedAt:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Trades: []reconciled.LimitTradeInfo{{
			ID:           "leg-1",
			LimitOrderID: "match-1",
			ClientID:     "client",
			Asset:        "BTC",
		}},
	}
	require.NoError(t, db.Create(order).Error)

	got, ok, err := FindByID[reconciled.LimitOrder](ctx, db, "match-1", "Trades")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got.Trades, 1)

	_, ok, err = FindByID[reconciled.LimitOrder](ctx, db, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	orders := NewOrders(db)
	byExternal, ok, err := orders.LimitOrder(ctx, "ext-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "match-1", byExternal.ID)

	_, ok, err = orders.MarketOrder(ctx, "ext-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsDuplicate(t *testing.T) {
	assert.True(t, IsDuplicate(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicate(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsDuplicate(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsDuplicate(errors.New("boom")))
	assert.False(t, IsDuplicate(nil))
}
