package reconciled

import "time"

// BalanceUpdate groups the client balance deltas of one transaction.
type BalanceUpdate struct {
	ID        string `gorm:"primaryKey;size:255"`
	Type      string `gorm:"size:255"`
	Timestamp time.Time
	Balances  []ClientBalanceUpdate `gorm:"foreignKey:BalanceUpdateID"`
}

func (BalanceUpdate) TableName() string { return "balance_updates" }

func (b *BalanceUpdate) EntityID() string { return b.ID }

func (b *BalanceUpdate) IsValid() bool {
	if !validString(b.ID) || !validString(b.Type) || len(b.Balances) == 0 {
		return false
	}
	for i := range b.Balances {
		if !b.Balances[i].IsValid() {
			return false
		}
	}
	return true
}

// ClientBalanceUpdate is the balance delta of one client asset.
type ClientBalanceUpdate struct {
	ID              string `gorm:"primaryKey;size:255"`
	BalanceUpdateID string `gorm:"size:255;index"`
	ClientID        string `gorm:"size:255"`
	Asset           string `gorm:"size:255"`
	OldBalance      float64
	NewBalance      float64
	OldReserved     *float64
	NewReserved     *float64
}

func (ClientBalanceUpdate) TableName() string { return "client_balance_updates" }

func (c *ClientBalanceUpdate) EntityID() string { return c.ID }

func (c *ClientBalanceUpdate) IsValid() bool {
	return validString(c.ClientID) && validString(c.Asset)
}
