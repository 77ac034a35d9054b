package ledger

// LimitOrderRecord is a limit order snapshot as written by the matching engine.
type LimitOrderRecord struct {
	Keys
	ID              string    `dynamodbav:"Id"`
	MatchingID      string    `dynamodbav:"MatchingId"`
	ClientID        string    `dynamodbav:"ClientId"`
	AssetPairID     string    `dynamodbav:"AssetPairId"`
	Volume          float64   `dynamodbav:"Volume"`
	RemainingVolume float64   `dynamodbav:"RemainingVolume"`
	Price           float64   `dynamodbav:"Price"`
	Status          string    `dynamodbav:"Status"`
	Straight        bool      `dynamodbav:"Straight"`
	CreatedAt       UnixMilli `dynamodbav:"CreatedAt"`
	Timestamp       UnixMilli `dynamodbav:"Timestamp"`
}

// ExternalID is the id clients know the order by.
func (r LimitOrderRecord) ExternalID() string {
	return FirstNonBlank(r.ID, r.RowKey)
}

// OrderID is the matching engine id, falling back to the row key.
func (r LimitOrderRecord) OrderID() string {
	return FirstNonBlank(r.MatchingID, r.RowKey)
}

// MarketOrderRecord is a market order snapshot.
type MarketOrderRecord struct {
	Keys
	ID          string     `dynamodbav:"Id"`
	MatchingID  string     `dynamodbav:"MatchingId"`
	ClientID    string     `dynamodbav:"ClientId"`
	AssetPairID string     `dynamodbav:"AssetPairId"`
	Volume      float64    `dynamodbav:"Volume"`
	Price       *float64   `dynamodbav:"Price"`
	Status      string     `dynamodbav:"Status"`
	Straight    bool       `dynamodbav:"Straight"`
	CreatedAt   UnixMilli  `dynamodbav:"CreatedAt"`
	Registered  *UnixMilli `dynamodbav:"Registered"`
	MatchedAt   *UnixMilli `dynamodbav:"MatchedAt"`
}

func (r MarketOrderRecord) ExternalID() string {
	return FirstNonBlank(r.ID, r.RowKey)
}

func (r MarketOrderRecord) OrderID() string {
	return FirstNonBlank(r.MatchingID, r.ID, r.RowKey)
}
