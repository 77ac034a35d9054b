package checkers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"reconciler/internal/application/reconcile"
	"reconciler/internal/application/reconstruct"
	"reconciler/internal/domain/entity/ledger"
	"reconciler/internal/domain/entity/reconciled"
	"reconciler/internal/domain/interfaces"
	"reconciler/internal/infrastructure/relational"
)

// tradeDay is the single cache group of the trade log: a whole day is loaded at once.
const tradeDay = ""

type trades struct {
	cache   *relational.DayBucketCache[*reconciled.TradeLogItem]
	wallets *WalletMapper
	logger  *logrus.Entry
}

// NewTrades reconciles the trade log. wallets may be nil, in which case user ids
// are left equal to wallet ids.
func NewTrades(source interfaces.LedgerSource[ledger.ClientTradeRecord], wallets *WalletMapper, deps Deps) *reconcile.Pipeline[ledger.ClientTradeRecord, *reconciled.TradeLogItem] {
	strategy := &trades{
		cache:   relational.NewDayBucketCache(relational.TradeLogOfDay, (*reconciled.TradeLogItem).MatchKey),
		wallets: wallets,
		logger:  deps.component(NameTrades),
	}
	return reconcile.NewPipeline[ledger.ClientTradeRecord, *reconciled.TradeLogItem](source, strategy, deps.DB, deps.CommandTimeout, deps.Logger)
}

func (c *trades) Name() string { return NameTrades }

func (c *trades) Reset() {
	c.cache.Reset()
	if c.wallets != nil {
		c.wallets.Reset()
	}
}

func (c *trades) Convert(ctx context.Context, batch []ledger.ClientTradeRecord) ([]*reconciled.TradeLogItem, error) {
	items := reconstruct.TradeLog(batch, c.logger)
	if c.wallets == nil || len(items) == 0 {
		return items, nil
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.WalletID)
	}
	owners, err := c.wallets.Map(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if user, ok := owners[item.WalletID]; ok && user != "" {
			item.UserID = user
		}
	}
	return items, nil
}

func (c *trades) GroupKey(row ledger.ClientTradeRecord) string {
	return reconstruct.TradeGroupKey(row)
}

func (c *trades) Find(ctx context.Context, tx *gorm.DB, item *reconciled.TradeLogItem) (*reconciled.TradeLogItem, bool, error) {
	return c.cache.Find(ctx, tx, item.DateTime, tradeDay, item.MatchKey())
}

func (c *trades) Update(context.Context, *gorm.DB, *reconciled.TradeLogItem, *reconciled.TradeLogItem) (bool, error) {
	return false, nil
}

func (c *trades) Inserted(item *reconciled.TradeLogItem) {
	c.cache.Remember(item.DateTime, tradeDay, item)
}

func (c *trades) Diagnostics() map[string]any {
	stats := c.cache.Stats(tradeDay)
	diag := map[string]any{
		"cache_lookups": stats.Lookups,
		"cache_misses":  stats.Misses,
	}
	if c.wallets != nil {
		wallets, users, failed := c.wallets.Stats()
		diag["wallets"] = wallets
		diag["user_ids"] = users
		diag["wallet_lookup_failures"] = failed
	}
	return diag
}

type candlesticks struct {
	cache  *relational.DayBucketCache[*reconciled.Candlestick]
	logger *logrus.Entry
}

// NewCandlesticks reconciles one minute candles. Candles are matched per asset pair
// against the whole day of candles already stored for that pair.
func NewCandlesticks(source interfaces.LedgerSource[ledger.FeedHistoryRecord], deps Deps) *reconcile.Pipeline[ledger.FeedHistoryRecord, *reconciled.Candlestick] {
	strategy := &candlesticks{
		cache:  relational.NewDayBucketCache(relational.CandlesOfDay, (*reconciled.Candlestick).MatchKey),
		logger: deps.component(NameCandlesticks),
	}
	return reconcile.NewPipeline[ledger.FeedHistoryRecord, *reconciled.Candlestick](source, strategy, deps.DB, deps.CommandTimeout, deps.Logger)
}

func (c *candlesticks) Name() string { return NameCandlesticks }

func (c *candlesticks) Reset() {
	c.cache.Reset()
}

func (c *candlesticks) Convert(_ context.Context, batch []ledger.FeedHistoryRecord) ([]*reconciled.Candlestick, error) {
	return reconstruct.Candles(batch, c.logger), nil
}

func (c *candlesticks) Find(ctx context.Context, tx *gorm.DB, item *reconciled.Candlestick) (*reconciled.Candlestick, bool, error) {
	return c.cache.Find(ctx, tx, item.Finish, item.AssetPair, item.MatchKey())
}

func (c *candlesticks) Update(context.Context, *gorm.DB, *reconciled.Candlestick, *reconciled.Candlestick) (bool, error) {
	return false, nil
}

func (c *candlesticks) Inserted(item *reconciled.Candlestick) {
	c.cache.Remember(item.Finish, item.AssetPair, item)
}

func (c *candlesticks) Diagnostics() map[string]any {
	whole, partial := c.cache.Missing()
	if len(whole) > 0 {
		c.logger.WithField("asset_pairs", whole).Warn("asset pairs missing for the whole day")
	}
	if len(partial) > 0 {
		c.logger.WithField("asset_pairs", partial).Info("asset pairs missing for part of the day")
	}
	return map[string]any{
		"pairs_missing_whole_day": whole,
		"pairs_missing_partially": partial,
	}
}

// CandleSource reads feed history pair by pair when the asset pairs are known and
// falls back to scanning the whole window otherwise.
type CandleSource struct {
	table  interfaces.PartitionedLedgerSource[ledger.FeedHistoryRecord]
	pairs  interfaces.AssetPairLister
	logger *logrus.Entry
}

func NewCandleSource(table interfaces.PartitionedLedgerSource[ledger.FeedHistoryRecord], pairs interfaces.AssetPairLister, logger *logrus.Logger) *CandleSource {
	return &CandleSource{table: table, pairs: pairs, logger: logger.WithField("component", "candle_source")}
}

func (s *CandleSource) FetchWindow(ctx context.Context, windowEnd time.Time, handle func(context.Context, []ledger.FeedHistoryRecord) error) error {
	if s.pairs == nil {
		return s.table.FetchWindow(ctx, windowEnd, handle)
	}
	pairs, err := s.pairs.AssetPairIDs(ctx)
	if err != nil || len(pairs) == 0 {
		s.logger.WithError(err).Warn("asset pairs unavailable, scanning the whole feed history")
		return s.table.FetchWindow(ctx, windowEnd, handle)
	}
	for _, pair := range pairs {
		for _, isAsk := range []bool{true, false} {
			if err := s.table.FetchPartitionWindow(ctx, ledger.FeedPartition(pair, isAsk), windowEnd, handle); err != nil {
				return err
			}
		}
	}
	return nil
}
