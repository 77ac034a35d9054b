package reconciled

import "time"

// CashOperation is a cash in or cash out.
type CashOperation struct {
	ID       string `gorm:"primaryKey;size:255"`
	ClientID string `gorm:"size:255"`
	Volume   float64
	Asset    string    `gorm:"size:255"`
	DateTime time.Time `gorm:"index"`
}

func (CashOperation) TableName() string { return "cash_operations" }

func (c *CashOperation) EntityID() string { return c.ID }

func (c *CashOperation) IsValid() bool {
	return validString(c.ID) && validString(c.ClientID) && validString(c.Asset)
}

// CashTransferOperation moves an asset from one client to another.
type CashTransferOperation struct {
	ID           string    `gorm:"primaryKey;size:255"`
	FromClientID string    `gorm:"size:255"`
	ToClientID   string    `gorm:"size:255"`
	DateTime     time.Time `gorm:"index"`
	Volume       float64
	Asset        string `gorm:"size:255"`
}

func (CashTransferOperation) TableName() string { return "cash_transfer_operations" }

func (c *CashTransferOperation) EntityID() string { return c.ID }

func (c *CashTransferOperation) IsValid() bool {
	return validString(c.ID) && validString(c.FromClientID) && validString(c.ToClientID) &&
		validString(c.Asset)
}
