package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"reconciler/internal/domain/entity/reconciled"
	"reconciler/internal/domain/entity/report"
	"reconciler/internal/domain/interfaces"
	"reconciler/internal/infrastructure/relational"
)

// Strategy adapts one entity type to the pipeline. Find and Update receive the
// transaction of the current item and must run every query through it.
type Strategy[TIn any, TOut reconciled.Entity] interface {
	Name() string
	Convert(ctx context.Context, batch []TIn) ([]TOut, error)
	Find(ctx context.Context, tx *gorm.DB, item TOut) (TOut, bool, error)
	Update(ctx context.Context, tx *gorm.DB, existing, converted TOut) (bool, error)
}

// Resetter is implemented by strategies holding per-run state.
type Resetter interface {
	Reset()
}

// InsertObserver is told about every row the pipeline inserted.
type InsertObserver[TOut any] interface {
	Inserted(item TOut)
}

// Diagnoser adds entity specific figures to the report of a run.
type Diagnoser interface {
	Diagnostics() map[string]any
}

// Grouper is implemented by strategies that build one item from several ledger
// rows. Rows of a group can arrive in different pages, so the pipeline holds them
// until the window is read and converts whole groups only.
type Grouper[TIn any] interface {
	GroupKey(row TIn) string
}

// Pipeline fetches a window of ledger rows batch by batch, converts every batch
// and makes the relational store agree with the result.
type Pipeline[TIn any, TOut reconciled.Entity] struct {
	source   interfaces.LedgerSource[TIn]
	strategy Strategy[TIn, TOut]
	db       *gorm.DB
	timeout  time.Duration
	logger   *logrus.Entry
}

func NewPipeline[TIn any, TOut reconciled.Entity](
	source interfaces.LedgerSource[TIn],
	strategy Strategy[TIn, TOut],
	db *gorm.DB,
	commandTimeout time.Duration,
	logger *logrus.Logger,
) *Pipeline[TIn, TOut] {
	return &Pipeline[TIn, TOut]{
		source:   source,
		strategy: strategy,
		db:       db,
		timeout:  commandTimeout,
		logger:   logger.WithFields(logrus.Fields{"component": "pipeline", "checker": strategy.Name()}),
	}
}

func (p *Pipeline[TIn, TOut]) Name() string {
	return p.strategy.Name()
}

// Check reconciles every ledger row of the window ending at windowEnd. Per item
// failures are counted in the report; fetch and transaction failures abort the run.
func (p *Pipeline[TIn, TOut]) Check(ctx context.Context, windowEnd time.Time) (report.CheckerReport, error) {
	started := time.Now()
	rep := report.CheckerReport{Checker: p.strategy.Name()}
	p.reset()
	defer p.reset()

	var held *heldGroups[TIn]
	if g, ok := p.strategy.(Grouper[TIn]); ok {
		held = newHeldGroups(g.GroupKey)
	}

	err := p.source.FetchWindow(ctx, windowEnd, func(ctx context.Context, batch []TIn) error {
		rep.Fetched += len(batch)
		if held != nil {
			held.add(batch)
			return nil
		}
		return p.processBatch(ctx, batch, &rep)
	})
	if err == nil && held != nil {
		err = held.flush(func(batch []TIn) error {
			return p.processBatch(ctx, batch, &rep)
		})
	}
	rep.Duration = time.Since(started)
	if d, ok := p.strategy.(Diagnoser); ok {
		rep.Diagnostics = d.Diagnostics()
	}
	if err != nil {
		return rep, fmt.Errorf("%s: %w", p.strategy.Name(), err)
	}

	entry := p.logger.WithFields(logrus.Fields{
		"fetched":    rep.Fetched,
		"converted":  rep.Converted,
		"added":      rep.Added,
		"modified":   rep.Modified,
		"invalid":    rep.Invalid,
		"failed":     rep.Failed,
		"duplicates": rep.Duplicates,
		"took_ms":    rep.Duration.Milliseconds(),
	})
	if rep.Added > 0 || rep.Modified > 0 {
		entry.Warn("check finished, relational store was behind the ledger")
	} else {
		entry.Info("check finished")
	}
	return rep, nil
}

// reset drops per-run state so cached rows do not outlive the run.
func (p *Pipeline[TIn, TOut]) reset() {
	if r, ok := p.strategy.(Resetter); ok {
		r.Reset()
	}
}

func (p *Pipeline[TIn, TOut]) processBatch(ctx context.Context, batch []TIn, rep *report.CheckerReport) error {
	items, err := p.strategy.Convert(ctx, batch)
	if err != nil {
		return fmt.Errorf("convert batch: %w", err)
	}
	rep.Converted += len(items)
	if len(items) == 0 {
		return nil
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var inserted []TOut
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if p.reconcileItem(ctx, tx, item, rep) {
				inserted = append(inserted, item)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist batch: %w", err)
	}

	if observer, ok := p.strategy.(InsertObserver[TOut]); ok {
		for _, item := range inserted {
			observer.Inserted(item)
		}
	}
	return nil
}

// reconcileItem runs one item inside its own savepoint so a failing row never
// poisons the batch transaction. It reports whether the item was inserted.
func (p *Pipeline[TIn, TOut]) reconcileItem(ctx context.Context, tx *gorm.DB, item TOut, rep *report.CheckerReport) bool {
	log := p.logger.WithField("id", item.EntityID())
	if !item.IsValid() {
		rep.Invalid++
		log.WithField("record", fmt.Sprintf("%+v", item)).Warn("invalid record, persisting anyway")
	}

	var added, modified bool
	err := tx.Transaction(func(itx *gorm.DB) error {
		existing, found, err := p.strategy.Find(ctx, itx, item)
		if err != nil {
			return fmt.Errorf("find: %w", err)
		}
		if !found {
			if err := itx.Create(item).Error; err != nil {
				return fmt.Errorf("insert: %w", err)
			}
			added = true
			return nil
		}
		modified, err = p.strategy.Update(ctx, itx, existing, item)
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		return nil
	})

	switch {
	case err == nil:
		if added {
			rep.Added++
		}
		if modified {
			rep.Modified++
		}
		return added
	case relational.IsDuplicate(err):
		rep.Duplicates++
		log.Debug("record already present")
	default:
		rep.Failed++
		log.WithError(err).Error("failed to reconcile record")
	}
	return false
}
