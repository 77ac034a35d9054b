package reconstruct

import (
	"math"

	"github.com/sirupsen/logrus"

	"reconciler/internal/domain/entity/ledger"
	"reconciler/internal/domain/entity/reconciled"
)

type tradeGroupKey struct {
	market, limit, oppositeLimit string
}

// TradeGroupKey identifies the trade rows written for one match: the market order
// and the two limit orders involved.
func TradeGroupKey(r ledger.ClientTradeRecord) string {
	return r.MarketOrderID + "|" + r.LimitOrderID + "|" + r.OppositeLimitOrderID
}

// TradeID names a trade the same way from both sides: the two order ids sorted and
// joined with an underscore.
func TradeID(orderID, oppositeOrderID string) string {
	if orderID <= oppositeOrderID {
		return orderID + "_" + oppositeOrderID
	}
	return oppositeOrderID + "_" + orderID
}

// TradeLog turns client trade rows into one trade log item per row. Rows whose
// opposite asset cannot be determined are dropped with a warning.
func TradeLog(rows []ledger.ClientTradeRecord, log logrus.FieldLogger) []*reconciled.TradeLogItem {
	keys, groups := groupBy(rows, func(r ledger.ClientTradeRecord) tradeGroupKey {
		return tradeGroupKey{market: r.MarketOrderID, limit: r.LimitOrderID, oppositeLimit: r.OppositeLimitOrderID}
	})

	var items []*reconciled.TradeLogItem
	for _, key := range keys {
		group := groups[key]
		if clients := distinctClients(group); len(clients) > 2 {
			log.WithFields(logrus.Fields{
				"limit_order":  key.limit,
				"market_order": key.market,
				"clients":      len(clients),
			}).Warn("trade involves more than two clients")
		}
		for i := range group {
			if item, ok := tradeLogItem(group[i], group, log); ok {
				items = append(items, item)
			}
		}
	}
	return items
}

func tradeLogItem(row ledger.ClientTradeRecord, group []ledger.ClientTradeRecord, log logrus.FieldLogger) (*reconciled.TradeLogItem, bool) {
	entry := log.WithFields(logrus.Fields{
		"trade_row": row.RowKey,
		"client":    row.ClientID,
		"asset":     row.AssetID,
	})

	opposite, ok := oppositeRow(row, group)
	if !ok {
		entry.Warn("could not determine opposite asset")
		return nil, false
	}
	if blank(row.AssetID) || blank(opposite.AssetID) {
		entry.Warn("trade asset not resolved")
		return nil, false
	}

	item := &reconciled.TradeLogItem{
		UserID:         row.ClientID,
		WalletID:       row.ClientID,
		Direction:      direction(row.Volume, opposite.Volume),
		Asset:          row.AssetID,
		Volume:         math.Abs(row.Volume),
		Price:          row.Price,
		DateTime:       row.DateTime.Time,
		OppositeAsset:  opposite.AssetID,
		OppositeVolume: ptr(math.Abs(opposite.Volume)),
		IsHidden:       ptr(row.IsHidden),
	}
	if row.IsMarket() {
		item.OrderType = reconciled.OrderTypeMarket
		item.OrderID = row.MarketOrderID
		item.OppositeOrderID = row.LimitOrderID
	} else {
		item.OrderType = reconciled.OrderTypeLimit
		item.OrderID = row.LimitOrderID
		item.OppositeOrderID = row.OppositeLimitOrderID
	}
	item.TradeID = TradeID(row.LimitOrderID, ledger.FirstNonBlank(row.MarketOrderID, row.OppositeLimitOrderID))
	item.ID = reconciled.DeterministicID("trade-log", item.MatchKey())
	return item, true
}

// oppositeRow picks the row with the other asset of the trade: the same client's
// row first, otherwise the only other asset present in the group.
func oppositeRow(row ledger.ClientTradeRecord, group []ledger.ClientTradeRecord) (ledger.ClientTradeRecord, bool) {
	for _, other := range group {
		if other.ClientID == row.ClientID && other.AssetID != row.AssetID {
			return other, true
		}
	}

	var found ledger.ClientTradeRecord
	assets := make(map[string]struct{})
	for _, other := range group {
		if other.AssetID == row.AssetID {
			continue
		}
		if len(assets) == 0 {
			found = other
		}
		assets[other.AssetID] = struct{}{}
	}
	return found, len(assets) == 1
}

// direction is Sell when the asset leaves the wallet. A zero movement takes the
// inverse of the opposite row's sign and defaults to Buy.
func direction(volume, oppositeVolume float64) string {
	switch {
	case volume < 0:
		return reconciled.DirectionSell
	case volume > 0:
		return reconciled.DirectionBuy
	case oppositeVolume > 0:
		return reconciled.DirectionSell
	default:
		return reconciled.DirectionBuy
	}
}

func ptr[T any](v T) *T {
	return &v
}
