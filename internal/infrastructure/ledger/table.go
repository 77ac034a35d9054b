package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	domain "reconciler/internal/domain/entity/ledger"
)

const (
	defaultChunkSize = 75
	windowLength     = 24 * time.Hour
)

// TableConfig describes how a ledger table is laid out.
type TableConfig struct {
	Name string
	// Partition restricts window reads to one partition; empty scans the whole table.
	Partition string
	// WindowAttr is the attribute the reconciliation window applies to.
	WindowAttr string
	// RowKeyWindow marks tables whose window attribute is a minute bucket row key.
	RowKeyWindow bool
	PageSize     int
	ChunkSize    int
}

// Table reads typed rows from one ledger table.
type Table[T any] struct {
	api    API
	cfg    TableConfig
	logger *logrus.Entry
}

func NewTable[T any](api API, cfg TableConfig, logger *logrus.Logger) *Table[T] {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	return &Table[T]{
		api: api,
		cfg: cfg,
		logger: logger.WithFields(logrus.Fields{
			"component": "ledger_table",
			"table":     cfg.Name,
		}),
	}
}

// Name returns the table name.
func (t *Table[T]) Name() string {
	return t.cfg.Name
}

// FetchWindow streams rows whose window attribute falls in [windowEnd-24h, windowEnd),
// one page at a time.
func (t *Table[T]) FetchWindow(ctx context.Context, windowEnd time.Time, handle func(context.Context, []T) error) error {
	return t.FetchPartitionWindow(ctx, t.cfg.Partition, windowEnd, handle)
}

// FetchPartitionWindow is FetchWindow restricted to an explicit partition.
func (t *Table[T]) FetchPartitionWindow(ctx context.Context, partition string, windowEnd time.Time, handle func(context.Context, []T) error) error {
	from := windowEnd.Add(-windowLength)
	builder := expression.NewBuilder()
	hasKey := false

	switch {
	case t.cfg.RowKeyWindow && partition != "":
		key := expression.Key(domain.PartitionKeyAttr).Equal(expression.Value(partition)).
			And(expression.Key(domain.RowKeyAttr).Between(
				expression.Value(domain.FeedRowKey(from)),
				expression.Value(domain.FeedRowKey(windowEnd.Add(-time.Minute))),
			))
		builder = builder.WithKeyCondition(key)
		hasKey = true
	case t.cfg.RowKeyWindow:
		filter := expression.Name(domain.RowKeyAttr).GreaterThanEqual(expression.Value(domain.FeedRowKey(from))).
			And(expression.Name(domain.RowKeyAttr).LessThan(expression.Value(domain.FeedRowKey(windowEnd))))
		builder = builder.WithFilter(filter)
	default:
		filter := expression.Name(t.cfg.WindowAttr).GreaterThanEqual(expression.Value(from.UnixMilli())).
			And(expression.Name(t.cfg.WindowAttr).LessThan(expression.Value(windowEnd.UnixMilli())))
		builder = builder.WithFilter(filter)
		if partition != "" {
			builder = builder.WithKeyCondition(expression.Key(domain.PartitionKeyAttr).Equal(expression.Value(partition)))
			hasKey = true
		}
	}

	expr, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build window expression for %s: %w", t.cfg.Name, err)
	}

	pages := 0
	err = t.pages(ctx, expr, hasKey, func(items []map[string]types.AttributeValue) error {
		pages++
		if len(items) == 0 {
			return nil
		}
		rows, err := t.decode(items)
		if err != nil {
			return err
		}
		return handle(ctx, rows)
	})
	if err != nil {
		return err
	}
	t.logger.WithFields(logrus.Fields{
		"partition":  partition,
		"window_end": windowEnd.Format(time.RFC3339),
		"pages":      pages,
	}).Debug("window fetched")
	return nil
}

// Get returns the row stored under the given partition and row key.
func (t *Table[T]) Get(ctx context.Context, partition, rowKey string) (T, bool, error) {
	var zero T
	key := expression.Key(domain.PartitionKeyAttr).Equal(expression.Value(partition)).
		And(expression.Key(domain.RowKeyAttr).Equal(expression.Value(rowKey)))
	expr, err := expression.NewBuilder().WithKeyCondition(key).Build()
	if err != nil {
		return zero, false, fmt.Errorf("build key expression: %w", err)
	}
	out, err := t.api.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(t.cfg.Name),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return zero, false, fmt.Errorf("query %s %s/%s: %w", t.cfg.Name, partition, rowKey, err)
	}
	if len(out.Items) == 0 {
		return zero, false, nil
	}
	rows, err := t.decode(out.Items[:1])
	if err != nil {
		return zero, false, err
	}
	return rows[0], true, nil
}

func (t *Table[T]) pages(ctx context.Context, expr expression.Expression, keyed bool, fn func([]map[string]types.AttributeValue) error) error {
	var limit *int32
	if t.cfg.PageSize > 0 {
		limit = aws.Int32(int32(t.cfg.PageSize))
	}

	if keyed {
		paginator := dynamodb.NewQueryPaginator(t.api, &dynamodb.QueryInput{
			TableName:                 aws.String(t.cfg.Name),
			KeyConditionExpression:    expr.KeyCondition(),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			Limit:                     limit,
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return fmt.Errorf("query %s: %w", t.cfg.Name, err)
			}
			if err := fn(page.Items); err != nil {
				return err
			}
		}
		return nil
	}

	paginator := dynamodb.NewScanPaginator(t.api, &dynamodb.ScanInput{
		TableName:                 aws.String(t.cfg.Name),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     limit,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scan %s: %w", t.cfg.Name, err)
		}
		if err := fn(page.Items); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table[T]) decode(items []map[string]types.AttributeValue) ([]T, error) {
	rows := make([]T, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", t.cfg.Name, err)
	}
	return rows, nil
}

var errEmptyChunk = errors.New("empty key chunk")
