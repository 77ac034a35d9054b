package reconciled

import (
	"strings"

	"github.com/google/uuid"
)

// MaxStringLength is the width of every string column of the relational schema.
const MaxStringLength = 255

// NotAvailable marks a counterpart or asset that could not be resolved from the ledger.
const NotAvailable = "N/A"

const (
	OrderTypeMarket = "Market"
	OrderTypeLimit  = "Limit"

	DirectionBuy  = "Buy"
	DirectionSell = "Sell"
)

var idNamespace = uuid.MustParse("5c1c8f39-7d07-4d2e-9a4c-3c1f7b0e6a52")

// Entity is a row of the relational system of record.
type Entity interface {
	EntityID() string
	IsValid() bool
}

// DeterministicID derives a stable id from the natural key of a row so that
// repeated runs over the same ledger rows never create duplicates.
func DeterministicID(kind string, parts ...string) string {
	name := kind + "\x1f" + strings.Join(parts, "\x1f")
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

func validString(value string) bool {
	return value != "" && len(value) <= MaxStringLength
}

func boundedString(value string) bool {
	return len(value) <= MaxStringLength
}
