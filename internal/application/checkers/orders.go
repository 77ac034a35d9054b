package checkers

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"reconciler/internal/application/reconcile"
	"reconciler/internal/application/reconstruct"
	"reconciler/internal/domain/entity/ledger"
	"reconciler/internal/domain/entity/reconciled"
	"reconciler/internal/domain/interfaces"
	"reconciler/internal/infrastructure/relational"
)

type marketOrders struct {
	trades   interfaces.LedgerTrades
	resolver *OrderResolver
	logger   *logrus.Entry
	attached int
}

// NewMarketOrders reconciles market orders with their executions.
func NewMarketOrders(source interfaces.LedgerSource[ledger.MarketOrderRecord], trades interfaces.LedgerTrades, resolver *OrderResolver, deps Deps) *reconcile.Pipeline[ledger.MarketOrderRecord, *reconciled.MarketOrder] {
	strategy := &marketOrders{trades: trades, resolver: resolver, logger: deps.component(NameMarketOrders)}
	return reconcile.NewPipeline[ledger.MarketOrderRecord, *reconciled.MarketOrder](source, strategy, deps.DB, deps.CommandTimeout, deps.Logger)
}

func (c *marketOrders) Name() string { return NameMarketOrders }

func (c *marketOrders) Reset() {
	c.resolver.Reset()
	c.attached = 0
}

func (c *marketOrders) Diagnostics() map[string]any {
	return map[string]any{"attached_limit_side_trades": c.attached}
}

func (c *marketOrders) Convert(ctx context.Context, batch []ledger.MarketOrderRecord) ([]*reconciled.MarketOrder, error) {
	ids := make([]string, 0, len(batch))
	for _, rec := range batch {
		ids = append(ids, rec.ExternalID())
	}
	rows, err := c.trades.ByMarketOrders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch market order trades: %w", err)
	}

	if pending := reconstruct.OneSidedExecutions(rows); len(pending) > 0 {
		limitIDs := make([]string, 0, len(pending))
		for id := range pending {
			limitIDs = append(limitIDs, id)
		}
		sort.Strings(limitIDs)
		more, err := c.trades.ByLimitOrders(ctx, limitIDs)
		if err != nil {
			return nil, fmt.Errorf("fetch limit side trades: %w", err)
		}
		attached := reconstruct.AttachOrphanTrades(pending, more)
		c.attached += len(attached)
		rows = append(rows, attached...)
	}

	byOrder := make(map[string][]ledger.ClientTradeRecord)
	for _, row := range rows {
		if !row.IsHidden {
			byOrder[row.MarketOrderID] = append(byOrder[row.MarketOrderID], row)
		}
	}

	orders := make([]*reconciled.MarketOrder, 0, len(batch))
	for _, rec := range batch {
		order, err := reconstruct.MarketOrder(ctx, rec, byOrder[rec.ExternalID()], c.resolver, c.logger)
		if err != nil {
			return nil, fmt.Errorf("market order %s: %w", rec.ExternalID(), err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (c *marketOrders) Find(ctx context.Context, tx *gorm.DB, item *reconciled.MarketOrder) (*reconciled.MarketOrder, bool, error) {
	return relational.FindByID[reconciled.MarketOrder](ctx, tx, item.ID, "Trades")
}

func (c *marketOrders) Update(ctx context.Context, tx *gorm.DB, existing, converted *reconciled.MarketOrder) (bool, error) {
	changed := !sameFloatPtr(existing.Price, converted.Price) ||
		existing.Status != converted.Status ||
		!sameTimePtr(existing.MatchedAt, converted.MatchedAt)
	if changed {
		c.logger.WithFields(logrus.Fields{
			"order":      existing.ID,
			"old_status": existing.Status,
			"new_status": converted.Status,
		}).Info("market order changed")
		err := tx.WithContext(ctx).Model(existing).Updates(map[string]any{
			"price":      converted.Price,
			"status":     converted.Status,
			"matched_at": converted.MatchedAt,
		}).Error
		if err != nil {
			return false, err
		}
	}

	seen := make(map[string]struct{}, 2*len(existing.Trades))
	for _, t := range existing.Trades {
		seen[t.LimitOrderExternalID] = struct{}{}
		seen[t.ID] = struct{}{}
	}
	added := false
	for i := range converted.Trades {
		child := converted.Trades[i]
		if _, ok := seen[child.LimitOrderExternalID]; ok {
			continue
		}
		if _, ok := seen[child.ID]; ok {
			continue
		}
		child.MarketOrderID = existing.ID
		if !child.IsValid() {
			c.logger.WithField("trade", child).Warn("invalid execution, persisting anyway")
		}
		if err := tx.WithContext(ctx).Create(&child).Error; err != nil {
			return false, err
		}
		c.logger.WithFields(logrus.Fields{"order": existing.ID, "limit_order": child.LimitOrderExternalID}).Info("added missing execution")
		added = true
	}
	return changed || added, nil
}

type limitOrders struct {
	trades   interfaces.LedgerTrades
	resolver *OrderResolver
	logger   *logrus.Entry
}

// NewLimitOrders reconciles limit orders with their trade legs.
func NewLimitOrders(source interfaces.LedgerSource[ledger.LimitOrderRecord], trades interfaces.LedgerTrades, resolver *OrderResolver, deps Deps) *reconcile.Pipeline[ledger.LimitOrderRecord, *reconciled.LimitOrder] {
	strategy := &limitOrders{trades: trades, resolver: resolver, logger: deps.component(NameLimitOrders)}
	return reconcile.NewPipeline[ledger.LimitOrderRecord, *reconciled.LimitOrder](source, strategy, deps.DB, deps.CommandTimeout, deps.Logger)
}

func (c *limitOrders) Name() string { return NameLimitOrders }

func (c *limitOrders) Reset() {
	c.resolver.Reset()
}

func (c *limitOrders) Convert(ctx context.Context, batch []ledger.LimitOrderRecord) ([]*reconciled.LimitOrder, error) {
	ids := make([]string, 0, len(batch))
	for _, rec := range batch {
		ids = append(ids, rec.ExternalID())
	}
	rows, err := c.trades.ByLimitOrders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch limit order trades: %w", err)
	}
	byOrder := make(map[string][]ledger.ClientTradeRecord)
	for _, row := range rows {
		if !row.IsHidden {
			byOrder[row.PartitionKey] = append(byOrder[row.PartitionKey], row)
		}
	}

	orders := make([]*reconciled.LimitOrder, 0, len(batch))
	for _, rec := range batch {
		order, err := reconstruct.LimitOrder(ctx, rec, byOrder[rec.ExternalID()], c.resolver, c.logger)
		if err != nil {
			return nil, fmt.Errorf("limit order %s: %w", rec.ExternalID(), err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (c *limitOrders) Find(ctx context.Context, tx *gorm.DB, item *reconciled.LimitOrder) (*reconciled.LimitOrder, bool, error) {
	return relational.FindByID[reconciled.LimitOrder](ctx, tx, item.ID, "Trades")
}

func (c *limitOrders) Update(ctx context.Context, tx *gorm.DB, existing, converted *reconciled.LimitOrder) (bool, error) {
	seen := make(map[string]struct{}, 2*len(existing.Trades))
	for _, t := range existing.Trades {
		seen[t.OppositeOrderID] = struct{}{}
		seen[t.ID] = struct{}{}
	}
	added := false
	for i := range converted.Trades {
		child := converted.Trades[i]
		if _, ok := seen[child.OppositeOrderID]; ok {
			continue
		}
		if _, ok := seen[child.ID]; ok {
			continue
		}
		child.LimitOrderID = existing.ID
		if !child.IsValid() {
			c.logger.WithField("trade", child).Warn("invalid trade leg, persisting anyway")
		}
		if err := tx.WithContext(ctx).Create(&child).Error; err != nil {
			return false, err
		}
		c.logger.WithFields(logrus.Fields{"order": existing.ID, "opposite_order": child.OppositeOrderID}).Info("added missing trade leg")
		added = true
	}
	return added, nil
}
