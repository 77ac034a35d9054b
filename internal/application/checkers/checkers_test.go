package checkers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"reconciler/internal/domain/entity/ledger"
	"reconciler/internal/domain/entity/reconciled"
	"reconciler/internal/domain/interfaces"
	"reconciler/internal/infrastructure/relational"
)

var (
	windowEnd = time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	inWindow  = time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)
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
	require.NoError(t, relational.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newDeps(t *testing.T) Deps {
	logger, _ := logtest.NewNullLogger()
	return Deps{DB: newTestDB(t), CommandTimeout: time.Minute, Logger: logger}
}

type sliceSource[T any] struct {
	batches [][]T
}

func (s *sliceSource[T]) FetchWindow(ctx context.Context, _ time.Time, handle func(context.Context, []T) error) error {
	for _, batch := range s.batches {
		if err := handle(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

type fakeLedgerTrades struct {
	byMarket map[string][]ledger.ClientTradeRecord
	byLimit  map[string][]ledger.ClientTradeRecord
}

func (f *fakeLedgerTrades) ByMarketOrders(_ context.Context, ids []string) ([]ledger.ClientTradeRecord, error) {
	var rows []ledger.ClientTradeRecord
	for _, id := range ids {
		rows = append(rows, f.byMarket[id]...)
	}
	return rows, nil
}

func (f *fakeLedgerTrades) ByLimitOrders(_ context.Context, ids []string) ([]ledger.ClientTradeRecord, error) {
	var rows []ledger.ClientTradeRecord
	for _, id := range ids {
		rows = append(rows, f.byLimit[id]...)
	}
	return rows, nil
}

type fakeLedgerOrders struct {
	limits  map[string]ledger.LimitOrderRecord
	markets map[string]ledger.MarketOrderRecord
}

func (f *fakeLedgerOrders) LimitOrder(_ context.Context, id string) (ledger.LimitOrderRecord, bool, error) {
	rec, ok := f.limits[id]
	return rec, ok, nil
}

func (f *fakeLedgerOrders) MarketOrder(_ context.Context, id string) (ledger.MarketOrderRecord, bool, error) {
	rec, ok := f.markets[id]
	return rec, ok, nil
}

type fakeWallets struct {
	wallets map[string]interfaces.Wallet
	err     error
	calls   int
}

func (f *fakeWallets) ResolveWallet(_ context.Context, id string) (interfaces.Wallet, bool, error) {
	f.calls++
	if f.err != nil {
		return interfaces.Wallet{}, false, f.err
	}
	w, ok := f.wallets[id]
	return w, ok, nil
}

func balanceRow(tx, client, asset string) ledger.BalanceChangeRecord {
	return ledger.BalanceChangeRecord{
		TransactionID:        tx,
		TransactionType:      "Trade",
		TransactionTimestamp: ledger.NewUnixMilli(inWindow),
		ClientID:             client,
		Asset:                asset,
		OldBalance:           1,
		NewBalance:           2,
	}
}

func TestBalanceUpdatesAddOnlyMissingChildren(t *testing.T) {
	deps := newDeps(t)
	ctx := context.Background()
	src := &sliceSource[ledger.BalanceChangeRecord]{batches: [][]ledger.BalanceChangeRecord{{
		balanceRow("tx1", "c1", "BTC"),
		balanceRow("tx1", "c1", "USD"),
	}}}
	checker := NewBalanceUpdates(src, deps)

	rep, err := checker.Check(ctx, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Fetched)
	assert.Equal(t, 1, rep.Converted)
	assert.Equal(t, 1, rep.Added)

	var children []reconciled.ClientBalanceUpdate
	require.NoError(t, deps.DB.Find(&children).Error)
	assert.Len(t, children, 2)

	rep, err = checker.Check(ctx, windowEnd)
	require.NoError(t, err)
	assert.Zero(t, rep.Added)
	assert.Zero(t, rep.Modified)

	src.batches[0] = append(src.batches[0], balanceRow("tx1", "c1", "EUR"))
	rep, err = checker.Check(ctx, windowEnd)
	require.NoError(t, err)
	assert.Zero(t, rep.Added)
	assert.Equal(t, 1, rep.Modified)

	children = nil
	require.NoError(t, deps.DB.Find(&children).Error)
	assert.Len(t, children, 3)
	var updates int64
	require.NoError(t, deps.DB.Model(&reconciled.BalanceUpdate{}).Count(&updates).Error)
	assert.EqualValues(t, 1, updates)
}

func TestCashOperationsAndTransfersAreIdempotent(t *testing.T) {
	deps := newDeps(t)
	ctx := context.Background()
	at := ledger.NewUnixMilli(inWindow)

	cash := NewCashOperations(&sliceSource[ledger.CashOperationRecord]{batches: [][]ledger.CashOperationRecord{{
		{Keys: ledger.Keys{RowKey: "r1"}, TransactionID: "op-1", ClientID: "c1", AssetID: "USD", Amount: 10, DateTime: at},
		{Keys: ledger.Keys{RowKey: "r2"}, TransactionID: "op-2", ClientID: "c1", AssetID: "USD", Amount: 5, DateTime: at, IsHidden: true},
	}}}, deps)
	transfers := NewTransfers(&sliceSource[ledger.TransferRecord]{batches: [][]ledger.TransferRecord{{
		{TransactionID: "t1", ClientID: "from", AssetID: "USD", Amount: -10, DateTime: at},
		{TransactionID: "t1", ClientID: "to", AssetID: "USD", Amount: 10, DateTime: at},
	}}}, deps)

	for run := 0; run < 2; run++ {
		rep, err := cash.Check(ctx, windowEnd)
		require.NoError(t, err)
		assert.Equal(t, 1-run, rep.Added)

		rep, err = transfers.Check(ctx, windowEnd)
		require.NoError(t, err)
		assert.Equal(t, 1-run, rep.Added)
	}

	var transfer reconciled.CashTransferOperation
	require.NoError(t, deps.DB.Take(&transfer, "id = ?", "t1").Error)
	assert.Equal(t, "from", transfer.FromClientID)
	assert.Equal(t, "to", transfer.ToClientID)
}

func TestTransferSidesInDifferentPagesArePaired(t *testing.T) {
	deps := newDeps(t)
	at := ledger.NewUnixMilli(inWindow)
	checker := NewTransfers(&sliceSource[ledger.TransferRecord]{batches: [][]ledger.TransferRecord{
		{{TransactionID: "t1", ClientID: "to", AssetID: "USD", Amount: 10, DateTime: at}},
		{{TransactionID: "t1", ClientID: "from", AssetID: "USD", Amount: -10, DateTime: at}},
	}}, deps)

	rep, err := checker.Check(context.Background(), windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Fetched)
	assert.Equal(t, 1, rep.Converted)
	assert.Equal(t, 1, rep.Added)

	var transfer reconciled.CashTransferOperation
	require.NoError(t, deps.DB.Take(&transfer, "id = ?", "t1").Error)
	assert.Equal(t, "from", transfer.FromClientID)
	assert.Equal(t, "to", transfer.ToClientID)
}

func TestTransfersFillMissingSide(t *testing.T) {
	deps := newDeps(t)
	at := ledger.NewUnixMilli(inWindow)
	require.NoError(t, deps.DB.Create(&reconciled.CashTransferOperation{
		ID:           "t1",
		FromClientID: reconciled.NotAvailable,
		ToClientID:   "to",
		DateTime:     inWindow,
		Volume:       10,
		Asset:        "USD",
	}).Error)

	checker := NewTransfers(&sliceSource[ledger.TransferRecord]{batches: [][]ledger.TransferRecord{{
		{TransactionID: "t1", ClientID: "to", AssetID: "USD", Amount: 10, DateTime: at},
		{TransactionID: "t1", ClientID: "from", AssetID: "USD", Amount: -10, DateTime: at},
	}}}, deps)

	rep, err := checker.Check(context.Background(), windowEnd)
	require.NoError(t, err)
	assert.Zero(t, rep.Added)
	assert.Equal(t, 1, rep.Modified)

	var transfer reconciled.CashTransferOperation
	require.NoError(t, deps.DB.Take(&transfer, "id = ?", "t1").Error)
	assert.Equal(t, "from", transfer.FromClientID)
	assert.Equal(t, "to", transfer.ToClientID)

	rep, err = checker.Check(context.Background(), windowEnd)
	require.NoError(t, err)
	assert.Zero(t, rep.Modified)
}

func TestMarketOrdersAttachLimitSideAndUpdate(t *testing.T) {
	deps := newDeps(t)
	ctx := context.Background()
	marketClient, limitClient := uuid.NewString(), uuid.NewString()
	matched := ledger.NewUnixMilli(inWindow)
	rec := ledger.MarketOrderRecord{
		Keys:        ledger.Keys{PartitionKey: ledger.OrderIDPartition, RowKey: "mo-1"},
		ID:          "mo-1",
		ClientID:    marketClient,
		AssetPairID: "BTCUSD",
		Volume:      1,
		Status:      "Matched",
		Straight:    true,
		CreatedAt:   matched,
		MatchedAt:   &matched,
	}
	trade := func(client, asset string, volume float64, marketID, opposite string) ledger.ClientTradeRecord {
		return ledger.ClientTradeRecord{
			Keys:                 ledger.Keys{PartitionKey: "L1", RowKey: client + asset},
			ClientID:             client,
			AssetID:              asset,
			Volume:               volume,
			Price:                100,
			DateTime:             matched,
			LimitOrderID:         "L1",
			MarketOrderID:        marketID,
			OppositeLimitOrderID: opposite,
		}
	}
	trades := &fakeLedgerTrades{
		byMarket: map[string][]ledger.ClientTradeRecord{"mo-1": {
			trade(marketClient, "BTC", -1, "mo-1", ""),
			trade(marketClient, "USD", 100, "mo-1", ""),
		}},
		byLimit: map[string][]ledger.ClientTradeRecord{"L1": {
			trade(limitClient, "BTC", 1, "", "mo-1"),
			trade(limitClient, "USD", -100, "", "mo-1"),
		}},
	}
	orders := &fakeLedgerOrders{limits: map[string]ledger.LimitOrderRecord{
		"L1": {ID: "L1", MatchingID: "lm-1", ClientID: limitClient, AssetPairID: "BTCUSD"},
	}}
	src := &sliceSource[ledger.MarketOrderRecord]{batches: [][]ledger.MarketOrderRecord{{rec}}}
	checker := NewMarketOrders(src, trades, NewOrderResolver(relational.NewOrders(deps.DB), orders), deps)

	rep, err := checker.Check(ctx, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Added)
	assert.Zero(t, rep.Invalid)
	assert.Equal(t, 2, rep.Diagnostics["attached_limit_side_trades"])

	stored, found, err := relational.FindByID[reconciled.MarketOrder](ctx, deps.DB, "mo-1", "Trades")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, stored.Trades, 1)
	assert.Equal(t, "BTC", stored.Trades[0].MarketAsset)
	assert.Equal(t, "USD", stored.Trades[0].LimitAsset)
	assert.Equal(t, 100.0, stored.Trades[0].LimitVolume)
	assert.Equal(t, limitClient, stored.Trades[0].LimitClientID)
	assert.Equal(t, "lm-1", stored.Trades[0].LimitOrderID)

	rep, err = checker.Check(ctx, windowEnd)
	require.NoError(t, err)
	assert.Zero(t, rep.Added)
	assert.Zero(t, rep.Modified)

	src.batches[0][0].Status = "Cancelled"
	rep, err = checker.Check(ctx, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Modified)

	stored, _, err = relational.FindByID[reconciled.MarketOrder](ctx, deps.DB, "mo-1")
	require.NoError(t, err)
	assert.Equal(t, "Cancelled", stored.Status)
}

func TestLimitOrdersAddMissingLegs(t *testing.T) {
	deps := newDeps(t)
	ctx := context.Background()
	rec := ledger.LimitOrderRecord{
		Keys:        ledger.Keys{PartitionKey: ledger.OrderIDPartition, RowKey: "L1"},
		ID:          "L1",
		MatchingID:  "lm-1",
		ClientID:    "c1",
		AssetPairID: "BTCUSD",
		Volume:      -2,
		Price:       100,
		Status:      "Matched",
		Timestamp:   ledger.NewUnixMilli(inWindow),
	}
	leg := func(asset string, volume float64, opposite string, at time.Time) ledger.ClientTradeRecord {
		return ledger.ClientTradeRecord{
			Keys:                 ledger.Keys{PartitionKey: "L1", RowKey: opposite + asset},
			ClientID:             "c1",
			AssetID:              asset,
			Volume:               volume,
			Price:                100,
			DateTime:             ledger.NewUnixMilli(at),
			LimitOrderID:         "L1",
			OppositeLimitOrderID: opposite,
		}
	}
	trades := &fakeLedgerTrades{byLimit: map[string][]ledger.ClientTradeRecord{"L1": {
		leg("BTC", -1, "L2", inWindow),
		leg("USD", 100, "L2", inWindow),
	}}}
	orders := &fakeLedgerOrders{limits: map[string]ledger.LimitOrderRecord{
		"L2": {ID: "L2", MatchingID: "lm-2", ClientID: "c2"},
		"L3": {ID: "L3", MatchingID: "lm-3", ClientID: "c3"},
	}}
	src := &sliceSource[ledger.LimitOrderRecord]{batches: [][]ledger.LimitOrderRecord{{rec}}}
	checker := NewLimitOrders(src, trades, NewOrderResolver(relational.NewOrders(deps.DB), orders), deps)

	rep, err := checker.Check(ctx, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Added)

	later := inWindow.Add(time.Minute)
	trades.byLimit["L1"] = append(trades.byLimit["L1"], leg("BTC", -1, "L3", later), leg("USD", 100, "L3", later))
	rep, err = checker.Check(ctx, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Modified)

	stored, found, err := relational.FindByID[reconciled.LimitOrder](ctx, deps.DB, "lm-1", "Trades")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, stored.Trades, 2)
	opposites := []string{stored.Trades[0].OppositeOrderID, stored.Trades[1].OppositeOrderID}
	assert.ElementsMatch(t, []string{"lm-2", "lm-3"}, opposites)
}

func TestTradesUseDayCacheAndMapWallets(t *testing.T) {
	deps := newDeps(t)
	ctx := context.Background()
	row := func(asset string, volume float64) ledger.ClientTradeRecord {
		return ledger.ClientTradeRecord{
			Keys:                 ledger.Keys{PartitionKey: ledger.TradesByDatePartition, RowKey: asset},
			ClientID:             "wallet-1",
			AssetID:              asset,
			Volume:               volume,
			Price:                100,
			DateTime:             ledger.NewUnixMilli(inWindow),
			LimitOrderID:         "L1",
			OppositeLimitOrderID: "L0",
		}
	}
	src := &sliceSource[ledger.ClientTradeRecord]{batches: [][]ledger.ClientTradeRecord{{row("BTC", -1), row("USD", 100)}}}
	resolver := &fakeWallets{wallets: map[string]interfaces.Wallet{
		"wallet-1": {ID: "wallet-1", UserID: "user-1", Type: "Trading"},
	}}
	checker := NewTrades(src, NewWalletMapper(resolver, deps.DB, deps.Logger), deps)

	rep, err := checker.Check(ctx, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Added)
	assert.Equal(t, 1, rep.Diagnostics["wallets"])

	var items []reconciled.TradeLogItem
	require.NoError(t, deps.DB.Find(&items).Error)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, "user-1", item.UserID)
		assert.Equal(t, "wallet-1", item.WalletID)
	}
	var wallet reconciled.UserWallet
	require.NoError(t, deps.DB.Take(&wallet, "id = ?", "wallet-1").Error)
	assert.Equal(t, "user-1", wallet.UserID)

	rep, err = checker.Check(ctx, windowEnd)
	require.NoError(t, err)
	assert.Zero(t, rep.Added)
	assert.Zero(t, rep.Duplicates)
	assert.Equal(t, 2, rep.Diagnostics["cache_lookups"])
	assert.Equal(t, 0, rep.Diagnostics["cache_misses"])
}

func TestTradeRowsInDifferentPagesArePaired(t *testing.T) {
	deps := newDeps(t)
	row := func(asset string, volume float64) ledger.ClientTradeRecord {
		return ledger.ClientTradeRecord{
			Keys:                 ledger.Keys{PartitionKey: ledger.TradesByDatePartition, RowKey: asset},
			ClientID:             "c1",
			AssetID:              asset,
			Volume:               volume,
			Price:                100,
			DateTime:             ledger.NewUnixMilli(inWindow),
			LimitOrderID:         "lo1",
			OppositeLimitOrderID: "lo2",
		}
	}
	src := &sliceSource[ledger.ClientTradeRecord]{batches: [][]ledger.ClientTradeRecord{
		{row("BTC", -1)},
		{row("USD", 100)},
	}}

	rep, err := NewTrades(src, nil, deps).Check(context.Background(), windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Fetched)
	assert.Equal(t, 2, rep.Converted)
	assert.Equal(t, 2, rep.Added)
}

func TestWalletMapperTreatsUnknownIDsAsUsers(t *testing.T) {
	deps := newDeps(t)
	ctx := context.Background()
	resolver := &fakeWallets{}
	mapper := NewWalletMapper(resolver, deps.DB, deps.Logger)

	owners, err := mapper.Map(ctx, []string{"user-1", "user-1", ""})
	require.NoError(t, err)
	assert.Empty(t, owners)
	assert.Equal(t, 1, resolver.calls)

	resolver.err = errors.New("unavailable")
	owners, err = mapper.Map(ctx, []string{"wallet-9"})
	require.NoError(t, err)
	assert.Empty(t, owners)
	wallets, users, failed := mapper.Stats()
	assert.Equal(t, 0, wallets)
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, failed)
}

func TestCandlesticksReportMissingPairs(t *testing.T) {
	deps := newDeps(t)
	ctx := context.Background()
	bucket := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := []ledger.FeedHistoryRecord{
		{Keys: ledger.Keys{PartitionKey: "BTCUSD_Ask", RowKey: ledger.FeedRowKey(bucket)}, Data: "O=10;C=12;H=15;L=9;T=0"},
		{Keys: ledger.Keys{PartitionKey: "BTCUSD_Bid", RowKey: ledger.FeedRowKey(bucket)}, Data: "O=9;C=11;H=14;L=8;T=0"},
	}
	checker := NewCandlesticks(&sliceSource[ledger.FeedHistoryRecord]{batches: [][]ledger.FeedHistoryRecord{rows}}, deps)

	rep, err := checker.Check(ctx, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Added)
	assert.Equal(t, []string{"BTCUSD"}, rep.Diagnostics["pairs_missing_whole_day"])

	rep, err = checker.Check(ctx, windowEnd)
	require.NoError(t, err)
	assert.Zero(t, rep.Added)
	assert.Empty(t, rep.Diagnostics["pairs_missing_whole_day"])
	assert.Empty(t, rep.Diagnostics["pairs_missing_partially"])
}

type fakeFeed struct {
	partitions []string
	scanned    bool
}

func (f *fakeFeed) FetchWindow(context.Context, time.Time, func(context.Context, []ledger.FeedHistoryRecord) error) error {
	f.scanned = true
	return nil
}

func (f *fakeFeed) FetchPartitionWindow(_ context.Context, partition string, _ time.Time, _ func(context.Context, []ledger.FeedHistoryRecord) error) error {
	f.partitions = append(f.partitions, partition)
	return nil
}

type fakePairs struct {
	pairs []string
	err   error
}

func (f fakePairs) AssetPairIDs(context.Context) ([]string, error) {
	return f.pairs, f.err
}

func TestCandleSourceReadsPairPartitions(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	noop := func(context.Context, []ledger.FeedHistoryRecord) error { return nil }

	feed := &fakeFeed{}
	src := NewCandleSource(feed, fakePairs{pairs: []string{"BTCUSD", "ETHUSD"}}, logger)
	require.NoError(t, src.FetchWindow(context.Background(), windowEnd, noop))
	assert.Equal(t, []string{"BTCUSD_Ask", "BTCUSD_Bid", "ETHUSD_Ask", "ETHUSD_Bid"}, feed.partitions)
	assert.False(t, feed.scanned)

	feed = &fakeFeed{}
	src = NewCandleSource(feed, fakePairs{err: errors.New("down")}, logger)
	require.NoError(t, src.FetchWindow(context.Background(), windowEnd, noop))
	assert.True(t, feed.scanned)
	assert.Empty(t, feed.partitions)
}

func TestCompareHelpers(t *testing.T) {
	zero := 0.0
	assert.True(t, sameFloatPtr(nil, &zero))
	assert.False(t, sameFloatPtr(nil, ptrTo(1.5)))
	assert.True(t, sameTime(inWindow, inWindow.Add(2*time.Millisecond)))
	assert.False(t, sameTime(inWindow, inWindow.Add(time.Second)))
	assert.True(t, sameTimePtr(nil, &time.Time{}))
}

func ptrTo[T any](v T) *T { return &v }
