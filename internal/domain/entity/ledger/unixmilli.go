package ledger

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// UnixMilli stores a timestamp as a numeric attribute of Unix milliseconds so that
// range filters compare numbers instead of strings.
type UnixMilli struct {
	time.Time
}

func NewUnixMilli(t time.Time) UnixMilli {
	return UnixMilli{t.UTC()}
}

// MarshalDynamoDBAttributeValue implements attributevalue.Marshaler.
func (t UnixMilli) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	if t.IsZero() {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.UnixMilli(), 10)}, nil
}

// UnmarshalDynamoDBAttributeValue implements attributevalue.Unmarshaler.
// Both numeric and string encodings are accepted.
func (t *UnixMilli) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	var raw string
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		raw = v.Value
	case *types.AttributeValueMemberS:
		raw = v.Value
	case *types.AttributeValueMemberNULL:
		*t = UnixMilli{}
		return nil
	default:
		return fmt.Errorf("expected numeric AttributeValue, got %T", av)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid unix-milli value %q: %w", raw, err)
	}
	*t = UnixMilli{time.UnixMilli(ms).UTC()}
	return nil
}

// Ptr returns nil for the zero time so optional columns stay empty.
func (t UnixMilli) Ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}
