package reconciled

import (
	"time"

	"github.com/google/uuid"
)

// LimitOrder is a reconciled limit order together with its trade legs.
type LimitOrder struct {
	ID              string `gorm:"primaryKey;size:255"`
	ExternalID      string `gorm:"size:255;index"`
	AssetPairID     string `gorm:"size:255"`
	ClientID        string `gorm:"size:255"`
	Volume          float64
	Price           float64
	Status          string    `gorm:"size:255"`
	CreatedAt       time.Time `gorm:"autoCreateTime:false"`
	Registered      time.Time
	LastMatchTime   *time.Time
	RemainingVolume float64
	Straight        bool
	Trades          []LimitTradeInfo `gorm:"foreignKey:LimitOrderID"`
}

func (LimitOrder) TableName() string { return "limit_orders" }

func (o *LimitOrder) EntityID() string { return o.ID }

func (o *LimitOrder) IsValid() bool {
	if !validString(o.ID) || !validString(o.ExternalID) || !validString(o.AssetPairID) ||
		!validString(o.ClientID) || !validString(o.Status) {
		return false
	}
	if o.Volume == 0 || o.Price <= 0 {
		return false
	}
	for i := range o.Trades {
		if !o.Trades[i].IsValid() {
			return false
		}
	}
	return true
}

// LimitTradeInfo is one execution of a limit order against a counterpart order.
type LimitTradeInfo struct {
	ID                      string `gorm:"primaryKey;size:255"`
	LimitOrderID            string `gorm:"size:255;index"`
	ClientID                string `gorm:"size:255"`
	Asset                   string `gorm:"size:255"`
	Volume                  float64
	Price                   float64
	Timestamp               time.Time
	OppositeOrderID         string `gorm:"size:255"`
	OppositeOrderExternalID string `gorm:"size:255"`
	OppositeAsset           string `gorm:"size:255"`
	OppositeClientID        string `gorm:"size:255"`
	OppositeVolume          float64
}

func (LimitTradeInfo) TableName() string { return "limit_trade_infos" }

func (t *LimitTradeInfo) EntityID() string { return t.ID }

func (t *LimitTradeInfo) IsValid() bool {
	return validString(t.ClientID) && validString(t.LimitOrderID) && validString(t.Asset) &&
		validString(t.OppositeClientID) && validString(t.OppositeAsset) &&
		validString(t.OppositeOrderID) && validString(t.OppositeOrderExternalID)
}

// MarketOrder is a reconciled market order together with its executions.
type MarketOrder struct {
	ID          string `gorm:"primaryKey;size:255"`
	ExternalID  string `gorm:"size:255;index"`
	AssetPairID string `gorm:"size:255"`
	ClientID    string `gorm:"size:255"`
	Volume      float64
	Price       *float64
	Status      string    `gorm:"size:255"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	Registered  time.Time
	MatchedAt   *time.Time
	Straight    bool
	Trades      []TradeInfo `gorm:"foreignKey:MarketOrderID"`
}

func (MarketOrder) TableName() string { return "market_orders" }

func (o *MarketOrder) EntityID() string { return o.ID }

func (o *MarketOrder) IsValid() bool {
	if !validString(o.ID) || !validString(o.ExternalID) || !validString(o.AssetPairID) ||
		!validString(o.ClientID) || !validString(o.Status) || o.Volume == 0 {
		return false
	}
	for i := range o.Trades {
		if !o.Trades[i].IsValid() {
			return false
		}
	}
	return true
}

// TradeInfo is one execution of a market order against a limit order.
type TradeInfo struct {
	ID                   string `gorm:"primaryKey;size:255"`
	MarketOrderID        string `gorm:"size:255;index"`
	MarketClientID       string `gorm:"size:255"`
	MarketVolume         float64
	MarketAsset          string `gorm:"size:255"`
	Price                float64
	LimitOrderID         string `gorm:"size:255"`
	LimitClientID        string `gorm:"size:255"`
	LimitVolume          float64
	LimitAsset           string `gorm:"size:255"`
	LimitOrderExternalID string `gorm:"size:255"`
	Timestamp            time.Time
}

func (TradeInfo) TableName() string { return "trade_infos" }

func (t *TradeInfo) EntityID() string { return t.ID }

func (t *TradeInfo) IsValid() bool {
	return validString(t.MarketClientID) && isUUID(t.MarketClientID) && validString(t.MarketAsset) &&
		validString(t.LimitClientID) && isUUID(t.LimitClientID) && validString(t.LimitAsset) &&
		validString(t.LimitOrderID) && validString(t.LimitOrderExternalID)
}

func isUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
