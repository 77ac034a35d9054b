package reconstruct

import (
	"math"
	"strconv"

	"github.com/sirupsen/logrus"

	"reconciler/internal/domain/entity/ledger"
	"reconciler/internal/domain/entity/reconciled"
)

// BalanceUpdateID keeps textual transaction ids. Numeric ids are reused by the
// matching engine, so they are replaced by an id derived from the id and timestamp.
func BalanceUpdateID(rec ledger.BalanceChangeRecord) string {
	if _, err := strconv.ParseInt(rec.TransactionID, 10, 64); err == nil {
		return reconciled.DeterministicID("balance-update", rec.TransactionID, strconv.FormatInt(rec.TransactionTimestamp.UnixMilli(), 10))
	}
	return rec.TransactionID
}

// ClientBalanceID identifies one client asset delta within a balance update.
func ClientBalanceID(updateID, clientID, asset string) string {
	return reconciled.DeterministicID("client-balance", updateID, clientID, asset)
}

// BalanceUpdates groups balance change rows by transaction. Rows repeating a
// client asset pair of the same transaction are ignored.
func BalanceUpdates(rows []ledger.BalanceChangeRecord, log logrus.FieldLogger) []*reconciled.BalanceUpdate {
	keys, groups := groupBy(rows, func(r ledger.BalanceChangeRecord) string { return r.TransactionID })

	var updates []*reconciled.BalanceUpdate
	for _, txID := range keys {
		group := groups[txID]
		if blank(txID) {
			log.WithField("rows", len(group)).Warn("balance changes without transaction id skipped")
			continue
		}
		first := group[0]
		update := &reconciled.BalanceUpdate{
			ID:        BalanceUpdateID(first),
			Type:      first.TransactionType,
			Timestamp: first.TransactionTimestamp.Time,
		}

		seen := make(map[string]struct{}, len(group))
		for _, row := range group {
			id := ClientBalanceID(update.ID, row.ClientID, row.Asset)
			if _, dup := seen[id]; dup {
				log.WithFields(logrus.Fields{
					"transaction": txID,
					"client":      row.ClientID,
					"asset":       row.Asset,
				}).Warn("repeated balance change ignored")
				continue
			}
			seen[id] = struct{}{}
			update.Balances = append(update.Balances, reconciled.ClientBalanceUpdate{
				ID:              id,
				BalanceUpdateID: update.ID,
				ClientID:        row.ClientID,
				Asset:           row.Asset,
				OldBalance:      row.OldBalance,
				NewBalance:      row.NewBalance,
				OldReserved:     ptr(row.OldReserved),
				NewReserved:     ptr(row.NewReserved),
			})
		}
		updates = append(updates, update)
	}
	return updates
}

// CashOperations keeps the first visible row of every operation.
func CashOperations(rows []ledger.CashOperationRecord) []*reconciled.CashOperation {
	keys, groups := groupBy(visible(rows, func(r ledger.CashOperationRecord) bool { return r.IsHidden }),
		func(r ledger.CashOperationRecord) string { return r.OperationID() })

	ops := make([]*reconciled.CashOperation, 0, len(keys))
	for _, id := range keys {
		first := groups[id][0]
		ops = append(ops, &reconciled.CashOperation{
			ID:       id,
			ClientID: first.ClientID,
			Volume:   first.Amount,
			Asset:    first.AssetID,
			DateTime: first.DateTime.Time,
		})
	}
	return ops
}

// Transfers pairs the two visible sides of every transfer. The receiving side is the
// positive amount and the sending side the negative one; zero amounts fill whichever
// side is missing.
func Transfers(rows []ledger.TransferRecord, log logrus.FieldLogger) []*reconciled.CashTransferOperation {
	keys, groups := groupBy(visible(rows, func(r ledger.TransferRecord) bool { return r.IsHidden }),
		func(r ledger.TransferRecord) string { return r.TransferID() })

	transfers := make([]*reconciled.CashTransferOperation, 0, len(keys))
	for _, id := range keys {
		group := groups[id]
		first := group[0]
		transfer := &reconciled.CashTransferOperation{
			ID:       id,
			Asset:    first.AssetID,
			Volume:   math.Abs(first.Amount),
			DateTime: first.DateTime.Time,
		}
		for _, row := range group[1:] {
			if row.DateTime.After(transfer.DateTime) {
				transfer.DateTime = row.DateTime.Time
			}
		}

		to := firstIndex(group, func(i int) bool { return group[i].Amount > 0 })
		if to < 0 {
			to = firstIndex(group, func(i int) bool { return group[i].Amount == 0 })
		}
		from := firstIndex(group, func(i int) bool { return group[i].Amount < 0 })
		if from < 0 {
			from = firstIndex(group, func(i int) bool { return group[i].Amount == 0 && i != to })
		}

		entry := log.WithFields(logrus.Fields{"transfer": id, "client": first.ClientID})
		transfer.ToClientID = reconciled.NotAvailable
		if to >= 0 {
			transfer.ToClientID = group[to].ClientID
		} else {
			entry.Warn("receiving side of transfer not found")
		}
		transfer.FromClientID = reconciled.NotAvailable
		if from >= 0 {
			transfer.FromClientID = group[from].ClientID
		} else {
			entry.Warn("sending side of transfer not found")
		}
		transfers = append(transfers, transfer)
	}
	return transfers
}

func visible[T any](rows []T, hidden func(T) bool) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if !hidden(row) {
			out = append(out, row)
		}
	}
	return out
}

func firstIndex[T any](rows []T, match func(int) bool) int {
	for i := range rows {
		if match(i) {
			return i
		}
	}
	return -1
}
