package ledger

// BalanceChangeRecord is a single client balance delta of a transaction.
type BalanceChangeRecord struct {
	Keys
	ClientID             string    `dynamodbav:"ClientId"`
	TransactionID        string    `dynamodbav:"TransactionId"`
	TransactionType      string    `dynamodbav:"TransactionType"`
	TransactionTimestamp UnixMilli `dynamodbav:"TransactionTimestamp"`
	Asset                string    `dynamodbav:"Asset"`
	OldBalance           float64   `dynamodbav:"OldBalance"`
	NewBalance           float64   `dynamodbav:"NewBalance"`
	OldReserved          float64   `dynamodbav:"OldReserved"`
	NewReserved          float64   `dynamodbav:"NewReserved"`
}

// CashOperationRecord is a cash in or cash out of a client.
type CashOperationRecord struct {
	Keys
	ID            string    `dynamodbav:"Id"`
	TransactionID string    `dynamodbav:"TransactionId"`
	ClientID      string    `dynamodbav:"ClientId"`
	AssetID       string    `dynamodbav:"AssetId"`
	Amount        float64   `dynamodbav:"Amount"`
	DateTime      UnixMilli `dynamodbav:"DateTime"`
	IsHidden      bool      `dynamodbav:"IsHidden"`
}

// OperationID groups the rows of one operation.
func (r CashOperationRecord) OperationID() string {
	return FirstNonBlank(r.TransactionID, r.RowKey)
}

// TransferRecord is one side of a transfer between two clients.
type TransferRecord struct {
	Keys
	ID            string    `dynamodbav:"Id"`
	TransactionID string    `dynamodbav:"TransactionId"`
	ClientID      string    `dynamodbav:"ClientId"`
	FromID        string    `dynamodbav:"FromId"`
	AssetID       string    `dynamodbav:"AssetId"`
	Amount        float64   `dynamodbav:"Amount"`
	DateTime      UnixMilli `dynamodbav:"DateTime"`
	IsHidden      bool      `dynamodbav:"IsHidden"`
}

// TransferID groups both sides of a transfer.
func (r TransferRecord) TransferID() string {
	return FirstNonBlank(r.TransactionID, r.RowKey)
}
