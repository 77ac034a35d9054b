package checkers

import (
	"context"

	"reconciler/internal/application/reconstruct"
	"reconciler/internal/domain/entity/ledger"
	"reconciler/internal/domain/interfaces"
	"reconciler/internal/infrastructure/relational"
)

type resolved struct {
	cp reconstruct.Counterpart
	ok bool
}

// OrderResolver resolves trade counterparts through the relational store first and
// the ledger second. Answers, including misses, are kept until Reset.
type OrderResolver struct {
	store  *relational.Orders
	ledger interfaces.LedgerOrders

	limits  map[string]resolved
	markets map[string]resolved
}

func NewOrderResolver(store *relational.Orders, ledger interfaces.LedgerOrders) *OrderResolver {
	r := &OrderResolver{store: store, ledger: ledger}
	r.Reset()
	return r
}

func (r *OrderResolver) Reset() {
	r.limits = make(map[string]resolved)
	r.markets = make(map[string]resolved)
}

func (r *OrderResolver) LimitOrder(ctx context.Context, id string) (reconstruct.Counterpart, bool, error) {
	if hit, ok := r.limits[id]; ok {
		return hit.cp, hit.ok, nil
	}

	order, found, err := r.store.LimitOrder(ctx, id)
	if err != nil {
		return reconstruct.Counterpart{}, false, err
	}
	if found {
		return r.remember(r.limits, id, reconstruct.Counterpart{
			ClientID:    order.ClientID,
			OrderID:     order.ID,
			ExternalID:  order.ExternalID,
			AssetPairID: order.AssetPairID,
		}, true)
	}

	rec, found, err := r.ledger.LimitOrder(ctx, id)
	if err != nil {
		return reconstruct.Counterpart{}, false, err
	}
	return r.remember(r.limits, id, reconstruct.Counterpart{
		ClientID:    rec.ClientID,
		OrderID:     rec.OrderID(),
		ExternalID:  rec.ExternalID(),
		AssetPairID: rec.AssetPairID,
	}, found)
}

func (r *OrderResolver) MarketOrder(ctx context.Context, id string) (reconstruct.Counterpart, bool, error) {
	if hit, ok := r.markets[id]; ok {
		return hit.cp, hit.ok, nil
	}

	order, found, err := r.store.MarketOrder(ctx, id)
	if err != nil {
		return reconstruct.Counterpart{}, false, err
	}
	if found {
		return r.remember(r.markets, id, reconstruct.Counterpart{
			ClientID:    order.ClientID,
			OrderID:     order.ID,
			ExternalID:  order.ExternalID,
			AssetPairID: order.AssetPairID,
		}, true)
	}

	rec, found, err := r.ledger.MarketOrder(ctx, id)
	if err != nil {
		return reconstruct.Counterpart{}, false, err
	}
	return r.remember(r.markets, id, reconstruct.Counterpart{
		ClientID:    rec.ClientID,
		OrderID:     ledger.FirstNonBlank(rec.MatchingID, rec.ExternalID()),
		ExternalID:  rec.ExternalID(),
		AssetPairID: rec.AssetPairID,
	}, found)
}

func (r *OrderResolver) remember(cache map[string]resolved, id string, cp reconstruct.Counterpart, ok bool) (reconstruct.Counterpart, bool, error) {
	if !ok {
		cp = reconstruct.Counterpart{}
	}
	cache[id] = resolved{cp: cp, ok: ok}
	return cp, ok, nil
}
