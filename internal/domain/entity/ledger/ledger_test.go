package ledger

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnixMilliIsStoredAsNumber(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 30, 0, 123e6, time.UTC)
	item, err := attributevalue.MarshalMap(ClientTradeRecord{
		Keys:     Keys{PartitionKey: TradesByDatePartition, RowKey: "r1"},
		DateTime: NewUnixMilli(ts),
	})
	require.NoError(t, err)

	n, ok := item["DateTime"].(*types.AttributeValueMemberN)
	require.True(t, ok, "DateTime should be numeric, got %T", item["DateTime"])
	assert.Equal(t, "1709289000123", n.Value)
	assert.Contains(t, item, "PartitionKey")

	var back ClientTradeRecord
	require.NoError(t, attributevalue.UnmarshalMap(item, &back))
	assert.True(t, back.DateTime.Equal(ts))
	assert.Equal(t, "r1", back.RowKey)
}

func TestUnixMilliAcceptsStringEncoding(t *testing.T) {
	var v UnixMilli
	require.NoError(t, v.UnmarshalDynamoDBAttributeValue(&types.AttributeValueMemberS{Value: "1000"}))
	assert.Equal(t, int64(1000), v.UnixMilli())

	assert.Error(t, v.UnmarshalDynamoDBAttributeValue(&types.AttributeValueMemberBOOL{Value: true}))
	assert.Nil(t, UnixMilli{}.Ptr())
}

func TestFeedHistoryRecordKeys(t *testing.T) {
	bucket := time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)
	rec := FeedHistoryRecord{Keys: Keys{
		PartitionKey: FeedPartition("BTC_USD", true),
		RowKey:       FeedRowKey(bucket),
	}}

	pair, isAsk, err := rec.Side()
	require.NoError(t, err)
	assert.Equal(t, "BTC_USD", pair)
	assert.True(t, isAsk)

	parsed, err := rec.Bucket()
	require.NoError(t, err)
	assert.True(t, parsed.Equal(bucket))

	_, _, err = FeedHistoryRecord{Keys: Keys{PartitionKey: "BTCUSD"}}.Side()
	assert.Error(t, err)
}

func TestRecordIdentifiersFallBackToRowKey(t *testing.T) {
	lo := LimitOrderRecord{Keys: Keys{RowKey: "row"}}
	assert.Equal(t, "row", lo.ExternalID())
	assert.Equal(t, "row", lo.OrderID())

	lo.ID, lo.MatchingID = "ext", "match"
	assert.Equal(t, "ext", lo.ExternalID())
	assert.Equal(t, "match", lo.OrderID())

	trade := ClientTradeRecord{MarketOrderID: " "}
	assert.False(t, trade.IsMarket())
	trade.OppositeLimitOrderID = "opp"
	assert.Equal(t, "opp", trade.OppositeOrderKey())
}
