package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	domain "reconciler/internal/domain/entity/ledger"
)

// FetchByKeys returns every row whose column equals one of keys, optionally inside one
// partition. Keys are sent in chunks of OR-combined equality filters no longer than the
// configured chunk size. Looking up partition keys without a partition sends one key
// per request as a key condition. Blank keys are skipped.
//
// On a failed chunk the rows gathered so far are returned together with the error.
// Filters on key attributes are only supported for the partition key itself.
func (t *Table[T]) FetchByKeys(ctx context.Context, partition, column string, keys []string) ([]T, error) {
	size := t.cfg.ChunkSize
	if strings.TrimSpace(partition) == "" && column == domain.PartitionKeyAttr {
		size = 1
	}

	var (
		result    []T
		chunk     = make([]string, 0, size)
		processed int
		chunks    int
	)
	flush := func() error {
		rows, err := t.fetchChunk(ctx, partition, column, chunk)
		if err != nil {
			t.logger.WithError(err).WithFields(logrus.Fields{
				"column":    column,
				"partition": partition,
				"processed": processed,
				"fetched":   len(result),
			}).Warn("key chunk failed")
			return err
		}
		result = append(result, rows...)
		processed += len(chunk)
		chunks++
		chunk = chunk[:0]
		return nil
	}

	for _, key := range keys {
		if strings.TrimSpace(key) == "" {
			continue
		}
		chunk = append(chunk, key)
		if len(chunk) >= size {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if len(chunk) > 0 {
		if err := flush(); err != nil {
			return result, err
		}
	}

	t.logger.WithFields(logrus.Fields{
		"column":  column,
		"keys":    processed,
		"chunks":  chunks,
		"fetched": len(result),
	}).Debug("fetched rows by keys")
	return result, nil
}

func (t *Table[T]) fetchChunk(ctx context.Context, partition, column string, keys []string) ([]T, error) {
	if len(keys) == 0 {
		return nil, errEmptyChunk
	}

	builder := expression.NewBuilder()
	keyed := false
	switch {
	case column == domain.PartitionKeyAttr && strings.TrimSpace(partition) == "":
		builder = builder.WithKeyCondition(expression.Key(domain.PartitionKeyAttr).Equal(expression.Value(keys[0])))
		keyed = true
	case strings.TrimSpace(partition) != "":
		builder = builder.
			WithKeyCondition(expression.Key(domain.PartitionKeyAttr).Equal(expression.Value(partition))).
			WithFilter(anyEqual(column, keys))
		keyed = true
	default:
		builder = builder.WithFilter(anyEqual(column, keys))
	}

	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build key filter on %s: %w", column, err)
	}

	var rows []T
	err = t.pages(ctx, expr, keyed, func(items []map[string]types.AttributeValue) error {
		if len(items) == 0 {
			return nil
		}
		decoded, err := t.decode(items)
		if err != nil {
			return err
		}
		rows = append(rows, decoded...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func anyEqual(column string, keys []string) expression.ConditionBuilder {
	cond := expression.Name(column).Equal(expression.Value(keys[0]))
	if len(keys) == 1 {
		return cond
	}
	others := make([]expression.ConditionBuilder, 0, len(keys)-1)
	for _, key := range keys[1:] {
		others = append(others, expression.Name(column).Equal(expression.Value(key)))
	}
	return cond.Or(others[0], others[1:]...)
}
