package ledger

import "strings"

const (
	PartitionKeyAttr = "PartitionKey"
	RowKeyAttr       = "RowKey"

	// OrderIDPartition holds the by-id copy of every order row.
	OrderIDPartition = "OrderId"
	// TradesByDatePartition holds the by-date copy of every client trade row.
	TradesByDatePartition = "dt"
)

// Keys is the addressing pair every ledger row carries.
type Keys struct {
	PartitionKey string `dynamodbav:"PartitionKey"`
	RowKey       string `dynamodbav:"RowKey"`
}

// FirstNonBlank returns the first value that is not empty after trimming.
func FirstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
