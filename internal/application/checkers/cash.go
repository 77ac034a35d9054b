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

type cashOperations struct{}

func NewCashOperations(source interfaces.LedgerSource[ledger.CashOperationRecord], deps Deps) *reconcile.Pipeline[ledger.CashOperationRecord, *reconciled.CashOperation] {
	return reconcile.NewPipeline[ledger.CashOperationRecord, *reconciled.CashOperation](source, cashOperations{}, deps.DB, deps.CommandTimeout, deps.Logger)
}

func (cashOperations) Name() string { return NameCashOperations }

func (cashOperations) Convert(_ context.Context, batch []ledger.CashOperationRecord) ([]*reconciled.CashOperation, error) {
	return reconstruct.CashOperations(batch), nil
}

func (cashOperations) GroupKey(row ledger.CashOperationRecord) string {
	return row.OperationID()
}

func (cashOperations) Find(ctx context.Context, tx *gorm.DB, item *reconciled.CashOperation) (*reconciled.CashOperation, bool, error) {
	return relational.FindByID[reconciled.CashOperation](ctx, tx, item.ID)
}

// Update never rewrites a cash operation once present.
func (cashOperations) Update(context.Context, *gorm.DB, *reconciled.CashOperation, *reconciled.CashOperation) (bool, error) {
	return false, nil
}

type transfers struct {
	logger *logrus.Entry
}

func NewTransfers(source interfaces.LedgerSource[ledger.TransferRecord], deps Deps) *reconcile.Pipeline[ledger.TransferRecord, *reconciled.CashTransferOperation] {
	strategy := &transfers{logger: deps.component(NameTransfers)}
	return reconcile.NewPipeline[ledger.TransferRecord, *reconciled.CashTransferOperation](source, strategy, deps.DB, deps.CommandTimeout, deps.Logger)
}

func (c *transfers) Name() string { return NameTransfers }

func (c *transfers) Convert(_ context.Context, batch []ledger.TransferRecord) ([]*reconciled.CashTransferOperation, error) {
	return reconstruct.Transfers(batch, c.logger), nil
}

func (c *transfers) GroupKey(row ledger.TransferRecord) string {
	return row.TransferID()
}

func (c *transfers) Find(ctx context.Context, tx *gorm.DB, item *reconciled.CashTransferOperation) (*reconciled.CashTransferOperation, bool, error) {
	return relational.FindByID[reconciled.CashTransferOperation](ctx, tx, item.ID)
}

// Update only fills a side stored as N/A once the ledger names its client.
func (c *transfers) Update(ctx context.Context, tx *gorm.DB, existing, converted *reconciled.CashTransferOperation) (bool, error) {
	changes := make(map[string]any, 2)
	if existing.FromClientID == reconciled.NotAvailable && converted.FromClientID != reconciled.NotAvailable {
		changes["from_client_id"] = converted.FromClientID
	}
	if existing.ToClientID == reconciled.NotAvailable && converted.ToClientID != reconciled.NotAvailable {
		changes["to_client_id"] = converted.ToClientID
	}
	if len(changes) == 0 {
		return false, nil
	}

	c.logger.WithFields(logrus.Fields{"transfer": existing.ID, "changes": changes}).Warn("filling missing transfer side")
	if err := tx.WithContext(ctx).Model(existing).Updates(changes).Error; err != nil {
		return false, err
	}
	return true, nil
}
