package checkers

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"reconciler/internal/application/reconcile"
	"reconciler/internal/application/reconstruct"
	"reconciler/internal/domain/entity/ledger"
	"reconciler/internal/domain/entity/reconciled"
	"reconciler/internal/domain/interfaces"
	"reconciler/internal/infrastructure/relational"
)

type balanceUpdates struct {
	logger *logrus.Entry
}

// NewBalanceUpdates reconciles balance updates. Existing updates only ever gain
// the client balances they are missing.
func NewBalanceUpdates(source interfaces.LedgerSource[ledger.BalanceChangeRecord], deps Deps) *reconcile.Pipeline[ledger.BalanceChangeRecord, *reconciled.BalanceUpdate] {
	strategy := &balanceUpdates{logger: deps.component(NameBalanceUpdates)}
	return reconcile.NewPipeline[ledger.BalanceChangeRecord, *reconciled.BalanceUpdate](source, strategy, deps.DB, deps.CommandTimeout, deps.Logger)
}

func (c *balanceUpdates) Name() string { return NameBalanceUpdates }

func (c *balanceUpdates) Convert(_ context.Context, batch []ledger.BalanceChangeRecord) ([]*reconciled.BalanceUpdate, error) {
	return reconstruct.BalanceUpdates(batch, c.logger), nil
}

func (c *balanceUpdates) GroupKey(row ledger.BalanceChangeRecord) string {
	return row.TransactionID
}

func (c *balanceUpdates) Find(ctx context.Context, tx *gorm.DB, item *reconciled.BalanceUpdate) (*reconciled.BalanceUpdate, bool, error) {
	return relational.FindByID[reconciled.BalanceUpdate](ctx, tx, item.ID, "Balances")
}

func (c *balanceUpdates) Update(ctx context.Context, tx *gorm.DB, existing, converted *reconciled.BalanceUpdate) (bool, error) {
	type clientAsset struct{ client, asset string }
	have := make(map[clientAsset]struct{}, len(existing.Balances))
	ids := make(map[string]struct{}, len(existing.Balances))
	for _, b := range existing.Balances {
		have[clientAsset{b.ClientID, b.Asset}] = struct{}{}
		ids[b.ID] = struct{}{}
	}

	added := false
	for i := range converted.Balances {
		child := converted.Balances[i]
		if _, ok := have[clientAsset{child.ClientID, child.Asset}]; ok {
			continue
		}
		if _, ok := ids[child.ID]; ok {
			continue
		}
		child.BalanceUpdateID = existing.ID
		if !child.IsValid() {
			c.logger.WithField("balance", child).Warn("invalid client balance, persisting anyway")
		}
		if err := tx.WithContext(ctx).Create(&child).Error; err != nil {
			return false, err
		}
		c.logger.WithFields(logrus.Fields{
			"balance_update": existing.ID,
			"client":         child.ClientID,
			"asset":          child.Asset,
		}).Info("added missing client balance")
		added = true
	}
	return added, nil
}
