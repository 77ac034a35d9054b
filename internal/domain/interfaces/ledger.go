package interfaces

import (
	"context"
	"time"

	"reconciler/internal/domain/entity/ledger"
)

type LedgerSource[T any] interface {
	FetchWindow(ctx context.Context, windowEnd time.Time, handle func(context.Context, []T) error) error
}

type PartitionedLedgerSource[T any] interface {
	LedgerSource[T]
	FetchPartitionWindow(ctx context.Context, partition string, windowEnd time.Time, handle func(context.Context, []T) error) error
}

type LedgerOrders interface {
	LimitOrder(ctx context.Context, id string) (ledger.LimitOrderRecord, bool, error)
	MarketOrder(ctx context.Context, id string) (ledger.MarketOrderRecord, bool, error)
}

type LedgerTrades interface {
	ByMarketOrders(ctx context.Context, marketOrderIDs []string) ([]ledger.ClientTradeRecord, error)
	ByLimitOrders(ctx context.Context, limitOrderIDs []string) ([]ledger.ClientTradeRecord, error)
}
