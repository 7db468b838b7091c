package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind is the stored kardex discriminant. Values are persisted verbatim
// and must not change: historical audit rows depend on them.
type EventKind string

const (
	Purchase     EventKind = "PURCHASE"
	Sale         EventKind = "SALE"
	Production   EventKind = "PRODUCTION"
	Consumption  EventKind = "CONSUMPTION"
	Adjustment   EventKind = "ADJUSTMENT"
	MetadataEdit EventKind = "METADATA_EDIT"
)

// Entry is one immutable kardex row. Written only by the Engine; the rebuild
// is the single exception, deleting and regenerating whole article scopes.
type Entry struct {
	ID            int64
	ArticleID     int64
	CreatedAt     time.Time
	Kind          EventKind
	Magnitude     decimal.Decimal // unsigned; direction comes from Kind
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Description   string
}

var (
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
	ErrUnknownArticle  = errors.New("ledger: unknown article")
	ErrUnknownKind     = errors.New("ledger: unknown event kind")
)

// signedDelta resolves the stock effect of an event. PURCHASE and PRODUCTION
// add, SALE and CONSUMPTION subtract. ADJUSTMENT carries its own sign and is
// the only kind allowed a negative quantity (reversals, backfill corrections).
func signedDelta(kind EventKind, qty decimal.Decimal) (decimal.Decimal, error) {
	switch kind {
	case Purchase, Production:
		if qty.Sign() <= 0 {
			return decimal.Zero, ErrInvalidQuantity
		}
		return qty, nil
	case Sale, Consumption:
		if qty.Sign() <= 0 {
			return decimal.Zero, ErrInvalidQuantity
		}
		return qty.Neg(), nil
	case Adjustment:
		if qty.IsZero() {
			return decimal.Zero, ErrInvalidQuantity
		}
		return qty, nil
	default:
		return decimal.Zero, ErrUnknownKind
	}
}
