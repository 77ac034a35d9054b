package reconstruct

import (
	"context"
	"sort"
	"strings"

	"reconciler/internal/domain/entity/ledger"
)

// Counterpart is the resolved other side of a trade.
type Counterpart struct {
	ClientID    string
	OrderID     string
	ExternalID  string
	AssetPairID string
}

// CounterpartResolver finds orders that took part in a trade.
type CounterpartResolver interface {
	LimitOrder(ctx context.Context, id string) (Counterpart, bool, error)
	MarketOrder(ctx context.Context, id string) (Counterpart, bool, error)
}

// sides holds the two sides of a trade as seen by one party: the asset that left
// it and the asset it received.
type sides struct {
	asset          string
	volume         float64
	oppositeAsset  string
	oppositeVolume float64
}

// place assigns one signed movement. Negative volume leaves the party, positive
// arrives. Zero volume fills whichever side is still free, and when both are free
// ownSide decides whether the asset belongs to the party's outgoing side.
func (l *sides) place(asset string, volume float64, overwrite bool, ownSide func(asset string) bool) {
	switch {
	case volume < 0:
		if overwrite || blank(l.asset) {
			l.asset, l.volume = asset, -volume
		}
	case volume > 0:
		if overwrite || blank(l.oppositeAsset) {
			l.oppositeAsset, l.oppositeVolume = asset, volume
		}
	case blank(l.asset) && !blank(l.oppositeAsset):
		l.asset, l.volume = asset, 0
	case blank(l.oppositeAsset) && !blank(l.asset):
		l.oppositeAsset, l.oppositeVolume = asset, 0
	case blank(l.asset) && blank(l.oppositeAsset):
		if ownSide(asset) {
			l.asset, l.volume = asset, 0
		} else {
			l.oppositeAsset, l.oppositeVolume = asset, 0
		}
	}
}

// zeroLast orders rows by volume, moving zero volumes to the end so that signed
// rows claim their side before ambiguous ones.
func zeroLast(rows []ledger.ClientTradeRecord) []ledger.ClientTradeRecord {
	sorted := make([]ledger.ClientTradeRecord, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		vi, vj := sorted[i].Volume, sorted[j].Volume
		if vi == 0 || vj == 0 {
			return vi != 0 && vj == 0
		}
		return vi < vj
	})
	return sorted
}

func distinctClients(rows []ledger.ClientTradeRecord) []string {
	seen := make(map[string]struct{}, 2)
	var clients []string
	for _, row := range rows {
		if blank(row.ClientID) {
			continue
		}
		if _, ok := seen[row.ClientID]; ok {
			continue
		}
		seen[row.ClientID] = struct{}{}
		clients = append(clients, row.ClientID)
	}
	return clients
}

// groupBy splits rows by key keeping the order in which keys first appear.
func groupBy[K comparable, T any](rows []T, key func(T) K) ([]K, map[K][]T) {
	groups := make(map[K][]T)
	var order []K
	for _, row := range rows {
		k := key(row)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], row)
	}
	return order, groups
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func orDefault(value, fallback string) string {
	if blank(value) {
		return fallback
	}
	return value
}
