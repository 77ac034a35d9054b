package reconstruct

import (
	"context"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"reconciler/internal/domain/entity/ledger"
	"reconciler/internal/domain/entity/reconciled"
)

const statusMatched = "Matched"

// LimitOrder rebuilds a limit order with the legs found in its trade partition.
func LimitOrder(ctx context.Context, rec ledger.LimitOrderRecord, trades []ledger.ClientTradeRecord, resolver CounterpartResolver, log logrus.FieldLogger) (*reconciled.LimitOrder, error) {
	order := &reconciled.LimitOrder{
		ID:              rec.OrderID(),
		ExternalID:      rec.ExternalID(),
		AssetPairID:     rec.AssetPairID,
		ClientID:        rec.ClientID,
		Volume:          rec.Volume,
		Price:           rec.Price,
		Status:          rec.Status,
		CreatedAt:       rec.CreatedAt.Time,
		Registered:      rec.Timestamp.Time,
		RemainingVolume: rec.RemainingVolume,
		Straight:        rec.Straight,
	}
	if rec.Status == statusMatched {
		order.LastMatchTime = rec.Timestamp.Ptr()
	}

	legs, err := LimitTradeLegs(ctx, order, trades, resolver, log)
	if err != nil {
		return nil, err
	}
	order.Trades = legs
	return order, nil
}

type legKey struct {
	opposite string
	at       int64
}

// LimitTradeLegs groups the trade rows of a limit order by counterpart and time
// and turns every group into one leg.
func LimitTradeLegs(ctx context.Context, order *reconciled.LimitOrder, trades []ledger.ClientTradeRecord, resolver CounterpartResolver, log logrus.FieldLogger) ([]reconciled.LimitTradeInfo, error) {
	log = log.WithField("limit_order", order.ID)
	keys, groups := groupBy(trades, func(r ledger.ClientTradeRecord) legKey {
		return legKey{opposite: r.OppositeOrderKey(), at: r.DateTime.UnixMilli()}
	})

	var legs []reconciled.LimitTradeInfo
	for _, key := range keys {
		rows := groups[key]
		if clients := distinctClients(rows); len(clients) > 1 || len(rows) > 2 {
			log.WithFields(logrus.Fields{
				"opposite_order": key.opposite,
				"rows":           len(rows),
				"clients":        len(clients),
			}).Warn("unexpected trade group shape")
		}

		first := rows[0]
		ownSide := func(asset string) bool {
			return order.Straight != (strings.HasPrefix(order.AssetPairID, asset) && !strings.HasSuffix(order.AssetPairID, asset))
		}
		var l sides
		for _, row := range zeroLast(rows) {
			l.place(row.AssetID, row.Volume, true, ownSide)
		}

		leg := reconciled.LimitTradeInfo{
			ID:               reconciled.DeterministicID("limit-trade", order.ID, key.opposite, strconv.FormatInt(key.at, 10)),
			LimitOrderID:     order.ID,
			ClientID:         orDefault(first.ClientID, order.ClientID),
			Asset:            l.asset,
			Volume:           l.volume,
			Price:            first.Price,
			Timestamp:        first.DateTime.Time,
			OppositeAsset:    l.oppositeAsset,
			OppositeVolume:   l.oppositeVolume,
			OppositeClientID: reconciled.NotAvailable,
			// The raw ledger id stays as the counterpart reference when nothing resolves.
			OppositeOrderID:         key.opposite,
			OppositeOrderExternalID: key.opposite,
		}

		cp, found, err := resolveOpposite(ctx, first, resolver)
		if err != nil {
			return nil, err
		}
		if found {
			leg.OppositeClientID = orDefault(cp.ClientID, reconciled.NotAvailable)
			leg.OppositeOrderID = orDefault(cp.OrderID, key.opposite)
			leg.OppositeOrderExternalID = orDefault(cp.ExternalID, key.opposite)
		} else {
			log.WithField("opposite_order", key.opposite).Warn("opposite order not found")
		}
		if blank(leg.Asset) {
			log.WithField("opposite_order", key.opposite).Warn("trade asset not resolved")
			leg.Asset = reconciled.NotAvailable
		}
		if blank(leg.OppositeAsset) {
			log.WithField("opposite_order", key.opposite).Warn("opposite asset not resolved")
			leg.OppositeAsset = reconciled.NotAvailable
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

// resolveOpposite finds the counterpart of a limit order trade. Market counterparts
// are looked up directly; a limit counterpart falls back to the market lookup.
func resolveOpposite(ctx context.Context, row ledger.ClientTradeRecord, resolver CounterpartResolver) (Counterpart, bool, error) {
	if !blank(row.MarketOrderID) {
		return resolver.MarketOrder(ctx, row.MarketOrderID)
	}
	if blank(row.OppositeLimitOrderID) {
		return Counterpart{}, false, nil
	}
	cp, ok, err := resolver.LimitOrder(ctx, row.OppositeLimitOrderID)
	if err != nil || ok {
		return cp, ok, err
	}
	return resolver.MarketOrder(ctx, row.OppositeLimitOrderID)
}

// MarketOrder rebuilds a market order with one execution per limit order it hit.
func MarketOrder(ctx context.Context, rec ledger.MarketOrderRecord, trades []ledger.ClientTradeRecord, resolver CounterpartResolver, log logrus.FieldLogger) (*reconciled.MarketOrder, error) {
	order := &reconciled.MarketOrder{
		ID:          ledger.FirstNonBlank(rec.MatchingID, rec.ExternalID()),
		ExternalID:  rec.ExternalID(),
		AssetPairID: rec.AssetPairID,
		ClientID:    rec.ClientID,
		Volume:      rec.Volume,
		Price:       rec.Price,
		Status:      rec.Status,
		CreatedAt:   rec.CreatedAt.Time,
		Straight:    rec.Straight,
	}
	if rec.MatchedAt != nil {
		order.MatchedAt = rec.MatchedAt.Ptr()
	}
	switch {
	case rec.Registered != nil && !rec.Registered.IsZero():
		order.Registered = rec.Registered.Time
	case order.MatchedAt != nil:
		order.Registered = *order.MatchedAt
	default:
		order.Registered = rec.CreatedAt.Time
	}

	infos, err := MarketTradeInfos(ctx, order, trades, resolver, log)
	if err != nil {
		return nil, err
	}
	order.Trades = infos
	return order, nil
}

// MarketTradeInfos turns the trade rows of a market order into executions, one per
// limit order on the other side.
func MarketTradeInfos(ctx context.Context, order *reconciled.MarketOrder, trades []ledger.ClientTradeRecord, resolver CounterpartResolver, log logrus.FieldLogger) ([]reconciled.TradeInfo, error) {
	log = log.WithField("market_order", order.ID)
	keys, groups := groupBy(trades, func(r ledger.ClientTradeRecord) string { return r.LimitOrderID })
	ownSide := func(asset string) bool {
		return order.Straight != strings.HasPrefix(order.AssetPairID, asset)
	}

	var infos []reconciled.TradeInfo
	for _, limitOrderID := range keys {
		rows := groups[limitOrderID]
		first := rows[0]
		glog := log.WithField("limit_order", limitOrderID)

		cp, found, err := resolver.LimitOrder(ctx, limitOrderID)
		if err != nil {
			return nil, err
		}
		info := reconciled.TradeInfo{
			ID:                   reconciled.DeterministicID("trade-info", order.ID, limitOrderID),
			MarketOrderID:        order.ID,
			MarketClientID:       order.ClientID,
			Price:                first.Price,
			LimitOrderID:         limitOrderID,
			LimitOrderExternalID: limitOrderID,
			LimitClientID:        reconciled.NotAvailable,
			Timestamp:            first.DateTime.Time,
		}
		if found {
			info.LimitOrderID = orDefault(cp.OrderID, limitOrderID)
			info.LimitOrderExternalID = orDefault(cp.ExternalID, limitOrderID)
			info.LimitClientID = orDefault(cp.ClientID, reconciled.NotAvailable)
		} else {
			glog.Warn("limit order not found")
		}

		var own, others []ledger.ClientTradeRecord
		for _, row := range rows {
			if row.ClientID == order.ClientID {
				own = append(own, row)
			} else {
				others = append(others, row)
			}
		}

		var l sides
		for _, row := range zeroLast(own) {
			l.place(row.AssetID, row.Volume, true, ownSide)
		}
		switch clients := distinctClients(others); len(clients) {
		case 0:
		case 1:
			for _, row := range zeroLast(others) {
				l.place(row.AssetID, -row.Volume, false, ownSide)
			}
		default:
			glog.WithField("clients", len(clients)).Warn("execution has several limit clients, skipped")
			continue
		}

		info.MarketAsset, info.MarketVolume = l.asset, l.volume
		info.LimitAsset, info.LimitVolume = l.oppositeAsset, l.oppositeVolume
		if blank(info.MarketAsset) {
			if blank(info.LimitAsset) {
				glog.Warn("execution assets not resolved, skipped")
				continue
			}
			info.MarketAsset = strings.ReplaceAll(order.AssetPairID, info.LimitAsset, "")
		}
		if blank(info.LimitAsset) {
			if found && !blank(cp.AssetPairID) {
				info.LimitAsset = strings.ReplaceAll(cp.AssetPairID, info.MarketAsset, "")
			} else {
				glog.Warn("limit asset not resolved")
				info.LimitAsset = reconciled.NotAvailable
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// OneSidedExecutions collects, per limit order, one row of every market order
// execution where the ledger holds rows of a single client only. The rows of the
// other client are stored under the limit order partition without a market order id.
func OneSidedExecutions(rows []ledger.ClientTradeRecord) map[string][]ledger.ClientTradeRecord {
	pending := make(map[string][]ledger.ClientTradeRecord)
	markets, byMarket := groupBy(rows, func(r ledger.ClientTradeRecord) string { return r.MarketOrderID })
	for _, marketID := range markets {
		limits, byLimit := groupBy(byMarket[marketID], func(r ledger.ClientTradeRecord) string { return r.LimitOrderID })
		for _, limitID := range limits {
			group := byLimit[limitID]
			if len(distinctClients(group)) != 1 {
				continue
			}
			known := pending[limitID]
			duplicate := false
			for _, k := range known {
				if k.MarketOrderID == marketID {
					duplicate = true
					break
				}
			}
			if !duplicate {
				pending[limitID] = append(known, group[0])
			}
		}
	}
	return pending
}

// AttachOrphanTrades picks from rows fetched by limit order the ones that complete a
// one-sided execution: no market order id, the execution's market order as opposite
// order and another client. The market order id is filled in on the returned rows.
func AttachOrphanTrades(pending map[string][]ledger.ClientTradeRecord, rows []ledger.ClientTradeRecord) []ledger.ClientTradeRecord {
	var attached []ledger.ClientTradeRecord
	for _, row := range rows {
		if !blank(row.MarketOrderID) {
			continue
		}
		for _, known := range pending[row.LimitOrderID] {
			if row.OppositeLimitOrderID == known.MarketOrderID && row.ClientID != known.ClientID {
				row.MarketOrderID = known.MarketOrderID
				attached = append(attached, row)
				break
			}
		}
	}
	return attached
}
