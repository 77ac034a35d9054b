package ledger

import (
	"context"

	domain "reconciler/internal/domain/entity/ledger"
)

const (
	matchingIDAttr    = "MatchingId"
	marketOrderIDAttr = "MarketOrderId"
)

// Orders resolves single orders from the by-id copies of the order tables.
type Orders struct {
	limit  *Table[domain.LimitOrderRecord]
	market *Table[domain.MarketOrderRecord]
}

func NewOrders(limit *Table[domain.LimitOrderRecord], market *Table[domain.MarketOrderRecord]) *Orders {
	return &Orders{limit: limit, market: market}
}

// LimitOrder looks the order up by row key first, then by matching id.
func (o *Orders) LimitOrder(ctx context.Context, id string) (domain.LimitOrderRecord, bool, error) {
	order, ok, err := o.limit.Get(ctx, domain.OrderIDPartition, id)
	if err != nil || ok {
		return order, ok, err
	}
	rows, err := o.limit.FetchByKeys(ctx, domain.OrderIDPartition, matchingIDAttr, []string{id})
	if err != nil || len(rows) == 0 {
		return domain.LimitOrderRecord{}, false, err
	}
	return rows[0], true, nil
}

// MarketOrder looks the order up by row key first, then by matching id.
func (o *Orders) MarketOrder(ctx context.Context, id string) (domain.MarketOrderRecord, bool, error) {
	order, ok, err := o.market.Get(ctx, domain.OrderIDPartition, id)
	if err != nil || ok {
		return order, ok, err
	}
	rows, err := o.market.FetchByKeys(ctx, domain.OrderIDPartition, matchingIDAttr, []string{id})
	if err != nil || len(rows) == 0 {
		return domain.MarketOrderRecord{}, false, err
	}
	return rows[0], true, nil
}

// Trades resolves client trade rows by order.
type Trades struct {
	table *Table[domain.ClientTradeRecord]
}

func NewTrades(table *Table[domain.ClientTradeRecord]) *Trades {
	return &Trades{table: table}
}

// ByMarketOrders returns the by-date rows of the given market orders.
func (t *Trades) ByMarketOrders(ctx context.Context, marketOrderIDs []string) ([]domain.ClientTradeRecord, error) {
	return t.table.FetchByKeys(ctx, domain.TradesByDatePartition, marketOrderIDAttr, marketOrderIDs)
}

// ByLimitOrders returns the rows stored in the per-order partitions of the given limit orders.
func (t *Trades) ByLimitOrders(ctx context.Context, limitOrderIDs []string) ([]domain.ClientTradeRecord, error) {
	return t.table.FetchByKeys(ctx, "", domain.PartitionKeyAttr, limitOrderIDs)
}
