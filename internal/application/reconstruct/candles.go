package reconstruct

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"reconciler/internal/domain/entity/ledger"
	"reconciler/internal/domain/entity/reconciled"
)

// candleFinishOffset places the finish of every candle at the last second of its minute.
const candleFinishOffset = 59 * time.Second

type subCandle struct {
	open, close, high, low float64
	seconds                int
}

type candleKey struct {
	partition string
	bucket    string
}

// Candles aggregates feed history rows into one candle per asset pair side and
// minute bucket. Buckets without a single usable sub-candle are dropped.
func Candles(rows []ledger.FeedHistoryRecord, log logrus.FieldLogger) []*reconciled.Candlestick {
	keys, groups := groupBy(rows, func(r ledger.FeedHistoryRecord) candleKey {
		return candleKey{partition: r.PartitionKey, bucket: r.RowKey}
	})

	var candles []*reconciled.Candlestick
	for _, key := range keys {
		candle, err := Candle(groups[key], log)
		if err != nil {
			log.WithFields(logrus.Fields{
				"partition": key.partition,
				"row_key":   key.bucket,
			}).WithError(err).Warn("candle discarded")
			continue
		}
		candles = append(candles, candle)
	}
	return candles
}

// Candle aggregates the rows of one asset pair side and minute bucket.
func Candle(rows []ledger.FeedHistoryRecord, log logrus.FieldLogger) (*reconciled.Candlestick, error) {
	if len(rows) == 0 {
		return nil, errors.New("no feed rows")
	}
	first := rows[0]
	assetPair, isAsk, err := first.Side()
	if err != nil {
		return nil, err
	}
	bucket, err := first.Bucket()
	if err != nil {
		return nil, err
	}

	var parts []subCandle
	for _, row := range rows {
		parsed, skipped := parseSubCandles(row.Data)
		for _, perr := range skipped {
			log.WithField("row_key", row.RowKey).WithError(perr).Warn("malformed sub-candle skipped")
		}
		parts = append(parts, parsed...)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no valid sub-candle for %s at %s", first.PartitionKey, first.RowKey)
	}

	start, finish := parts[0], parts[0]
	high, low := math.Inf(-1), math.Inf(1)
	for _, p := range parts {
		if p.seconds < start.seconds {
			start = p
		}
		if p.seconds > finish.seconds {
			finish = p
		}
		high = math.Max(high, p.high)
		low = math.Min(low, p.low)
	}

	return &reconciled.Candlestick{
		ID:        reconciled.DeterministicID("candle", assetPair, strconv.FormatBool(isAsk), first.RowKey),
		AssetPair: assetPair,
		IsAsk:     isAsk,
		Open:      start.open,
		Close:     finish.close,
		High:      high,
		Low:       low,
		Start:     bucket.Add(time.Duration(start.seconds) * time.Second),
		Finish:    bucket.Add(candleFinishOffset),
	}, nil
}

// parseSubCandles decodes "O=..;C=..;H=..;L=..;T=<seconds>" entries separated by '|'.
// Entries that fail to decode are returned as errors and left out.
func parseSubCandles(data string) ([]subCandle, []error) {
	var (
		parts []subCandle
		errs  []error
	)
	for _, entry := range strings.Split(data, "|") {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		part, err := parseSubCandle(entry)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		parts = append(parts, part)
	}
	return parts, errs
}

func parseSubCandle(entry string) (subCandle, error) {
	var (
		part    subCandle
		hasTime bool
	)
	for _, field := range strings.Split(entry, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			return subCandle{}, fmt.Errorf("sub-candle field %q has no value", field)
		}
		if strings.EqualFold(name, "T") {
			seconds, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || seconds < 0 || seconds > 60 {
				return subCandle{}, fmt.Errorf("sub-candle offset %q out of range", value)
			}
			part.seconds, hasTime = seconds, true
			continue
		}
		price, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(value), ",", "."), 64)
		if err != nil {
			return subCandle{}, fmt.Errorf("sub-candle price %q: %w", field, err)
		}
		switch strings.ToUpper(name) {
		case "O":
			part.open = price
		case "C":
			part.close = price
		case "H":
			part.high = price
		case "L":
			part.low = price
		default:
			return subCandle{}, fmt.Errorf("unexpected sub-candle field %q", name)
		}
	}
	if !hasTime {
		return subCandle{}, fmt.Errorf("sub-candle %q has no offset", entry)
	}
	return part, nil
}
