package reconciled

import "time"

// TradeLogItem is one client's view of a trade: what left the wallet and what arrived.
type TradeLogItem struct {
	ID              string `gorm:"primaryKey;size:255"`
	TradeID         string `gorm:"size:255;index"`
	UserID          string `gorm:"size:255"`
	WalletID        string `gorm:"size:255"`
	OrderID         string `gorm:"size:255"`
	OrderType       string `gorm:"size:255"`
	Direction       string `gorm:"size:255"`
	Asset           string `gorm:"size:255"`
	Volume          float64
	Price           float64
	DateTime        time.Time `gorm:"index"`
	OppositeOrderID string    `gorm:"size:255"`
	OppositeAsset   string    `gorm:"size:255"`
	OppositeVolume  *float64
	IsHidden        *bool
}

func (TradeLogItem) TableName() string { return "trade_log_items" }

func (t *TradeLogItem) EntityID() string { return t.ID }

func (t *TradeLogItem) IsValid() bool {
	return validString(t.UserID) && validString(t.WalletID) && validString(t.OrderID) &&
		validString(t.OrderType) && validString(t.Direction) && validString(t.Asset) &&
		boundedString(t.OppositeOrderID) && validString(t.OppositeAsset)
}

// MatchKey identifies a trade log item within a day.
func (t *TradeLogItem) MatchKey() string {
	return TradeLogMatchKey(t.TradeID, t.WalletID, t.Asset, t.OppositeAsset)
}

func TradeLogMatchKey(tradeID, walletID, asset, oppositeAsset string) string {
	return tradeID + "|" + walletID + "|" + asset + "|" + oppositeAsset
}

// UserWallet maps a wallet id to the user owning it.
type UserWallet struct {
	ID     string `gorm:"primaryKey;size:255"`
	UserID string `gorm:"size:255;index"`
	Type   string `gorm:"size:255"`
}

func (UserWallet) TableName() string { return "user_wallets" }

func (w *UserWallet) EntityID() string { return w.ID }

func (w *UserWallet) IsValid() bool {
	return validString(w.ID) && validString(w.UserID)
}
