package ledger

import (
	"fmt"
	"strings"
	"time"
)

// FeedRowKeyLayout is the minute bucket layout of feed history row keys.
const FeedRowKeyLayout = "200601021504"

const (
	SideAsk = "Ask"
	SideBid = "Bid"
)

// FeedHistoryRecord holds the encoded sub-candles of one asset pair side for one minute.
// PartitionKey is "<pair>_<Ask|Bid>", RowKey is the minute bucket.
type FeedHistoryRecord struct {
	Keys
	Data string `dynamodbav:"Data"`
}

// FeedPartition renders the partition key of an asset pair side.
func FeedPartition(assetPair string, isAsk bool) string {
	side := SideBid
	if isAsk {
		side = SideAsk
	}
	return assetPair + "_" + side
}

// FeedRowKey renders the minute bucket row key.
func FeedRowKey(t time.Time) string {
	return t.UTC().Format(FeedRowKeyLayout)
}

// Side splits the partition key into asset pair and ask flag.
func (r FeedHistoryRecord) Side() (assetPair string, isAsk bool, err error) {
	idx := strings.LastIndex(r.PartitionKey, "_")
	if idx <= 0 {
		return "", false, fmt.Errorf("feed partition %q has no side suffix", r.PartitionKey)
	}
	switch r.PartitionKey[idx+1:] {
	case SideAsk:
		return r.PartitionKey[:idx], true, nil
	case SideBid:
		return r.PartitionKey[:idx], false, nil
	default:
		return "", false, fmt.Errorf("feed partition %q has unknown side", r.PartitionKey)
	}
}

// Bucket parses the minute bucket from the row key.
func (r FeedHistoryRecord) Bucket() (time.Time, error) {
	t, err := time.ParseInLocation(FeedRowKeyLayout, r.RowKey, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse feed row key %q: %w", r.RowKey, err)
	}
	return t, nil
}
