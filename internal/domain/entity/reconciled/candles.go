package reconciled

import (
	"strconv"
	"time"
)

// Candlestick is a one minute OHLC bar of one side of an asset pair.
type Candlestick struct {
	ID        string `gorm:"primaryKey;size:255"`
	AssetPair string `gorm:"size:255;index"`
	IsAsk     bool
	High      float64
	Low       float64
	Open      float64
	Close     float64
	Start     time.Time
	Finish    time.Time `gorm:"index"`
}

func (Candlestick) TableName() string { return "candlesticks" }

func (c *Candlestick) EntityID() string { return c.ID }

func (c *Candlestick) IsValid() bool {
	return validString(c.AssetPair)
}

// MatchKey identifies a candle of an asset pair within a day.
func (c *Candlestick) MatchKey() string {
	return CandleMatchKey(c.IsAsk, c.Finish)
}

// CandleMatchKey combines the side with the finish time rounded down to the minute.
func CandleMatchKey(isAsk bool, finish time.Time) string {
	return strconv.FormatBool(isAsk) + "|" + finish.UTC().Truncate(time.Minute).Format(time.RFC3339)
}
