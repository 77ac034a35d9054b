package ledger

// ClientTradeRecord is one signed asset movement of a client inside a trade.
// A negative volume leaves the client, a positive one arrives.
type ClientTradeRecord struct {
	Keys
	ID                   string    `dynamodbav:"Id"`
	ClientID             string    `dynamodbav:"ClientId"`
	AssetID              string    `dynamodbav:"AssetId"`
	Volume               float64   `dynamodbav:"Volume"`
	Price                float64   `dynamodbav:"Price"`
	DateTime             UnixMilli `dynamodbav:"DateTime"`
	IsHidden             bool      `dynamodbav:"IsHidden"`
	LimitOrderID         string    `dynamodbav:"LimitOrderId"`
	OppositeLimitOrderID string    `dynamodbav:"OppositeLimitOrderId"`
	MarketOrderID        string    `dynamodbav:"MarketOrderId"`
}

// OppositeOrderKey is the counterpart order id as seen from the limit order side.
func (r ClientTradeRecord) OppositeOrderKey() string {
	return FirstNonBlank(r.OppositeLimitOrderID, r.MarketOrderID)
}

// IsMarket reports whether the row belongs to a market order execution.
func (r ClientTradeRecord) IsMarket() bool {
	return FirstNonBlank(r.MarketOrderID) != ""
}
