package checkers

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	NameBalanceUpdates = "balance_updates"
	NameCashOperations = "cash_operations"
	NameTransfers      = "transfers"
	NameMarketOrders   = "market_orders"
	NameLimitOrders    = "limit_orders"
	NameTrades         = "trades"
	NameCandlesticks   = "candlesticks"
)

// timePrecision absorbs the rounding of timestamps by the relational store.
const timePrecision = 3 * time.Millisecond

// Deps are shared by every checker.
type Deps struct {
	DB             *gorm.DB
	CommandTimeout time.Duration
	Logger         *logrus.Logger
}

func (d Deps) component(name string) *logrus.Entry {
	return d.Logger.WithFields(logrus.Fields{"component": "checker", "checker": name})
}

func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func sameFloatPtr(a, b *float64) bool {
	var x, y float64
	if a != nil {
		x = *a
	}
	if b != nil {
		y = *b
	}
	return sameFloat(x, y)
}

func sameTime(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() == b.IsZero()
	}
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= timePrecision
}

func sameTimePtr(a, b *time.Time) bool {
	var x, y time.Time
	if a != nil {
		x = *a
	}
	if b != nil {
		y = *b
	}
	return sameTime(x, y)
}
