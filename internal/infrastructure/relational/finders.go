package relational

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"reconciler/internal/domain/entity/reconciled"
)

// FindByID loads one row by primary key. A missing row is reported as (nil, false, nil).
func FindByID[T any](ctx context.Context, db *gorm.DB, id string, preload ...string) (*T, bool, error) {
	var row T
	query := db.WithContext(ctx)
	for _, association := range preload {
		query = query.Preload(association)
	}
	err := query.Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find %T %s: %w", row, id, err)
	}
	return &row, true, nil
}

// Orders looks up already reconciled orders by the id clients know them by.
type Orders struct {
	db *gorm.DB
}

func NewOrders(db *gorm.DB) *Orders {
	return &Orders{db: db}
}

func (o *Orders) LimitOrder(ctx context.Context, id string) (*reconciled.LimitOrder, bool, error) {
	var order reconciled.LimitOrder
	err := o.db.WithContext(ctx).Where("external_id = ? OR id = ?", id, id).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find limit order %s: %w", id, err)
	}
	return &order, true, nil
}

func (o *Orders) MarketOrder(ctx context.Context, id string) (*reconciled.MarketOrder, bool, error) {
	var order reconciled.MarketOrder
	err := o.db.WithContext(ctx).Where("external_id = ? OR id = ?", id, id).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find market order %s: %w", id, err)
	}
	return &order, true, nil
}

// CandlesOfDay loads the candles of one asset pair finishing within [from, to).
func CandlesOfDay(ctx context.Context, db *gorm.DB, from, to time.Time, assetPair string) ([]*reconciled.Candlestick, error) {
	var rows []*reconciled.Candlestick
	err := db.WithContext(ctx).
		Where("asset_pair = ? AND finish >= ? AND finish < ?", assetPair, from, to).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load candles of %s: %w", assetPair, err)
	}
	return rows, nil
}

// TradeLogOfDay loads every trade log item within [from, to). The group is ignored.
func TradeLogOfDay(ctx context.Context, db *gorm.DB, from, to time.Time, _ string) ([]*reconciled.TradeLogItem, error) {
	var rows []*reconciled.TradeLogItem
	err := db.WithContext(ctx).
		Where("date_time >= ? AND date_time < ?", from, to).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load trade log: %w", err)
	}
	return rows, nil
}
