package transactions

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindPurchase Kind = "PURCHASE"
	KindSale     Kind = "SALE"
)

// Status values are stored verbatim. VOIDED is terminal.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusVoided  Status = "VOIDED"
)

type PaymentMethod string

const (
	PayCash     PaymentMethod = "CASH"
	PayTransfer PaymentMethod = "TRANSFER"
	PayDebit    PaymentMethod = "DEBIT"
	PayCredit   PaymentMethod = "CREDIT"
	PayCheque   PaymentMethod = "CHEQUE"
	PayOther    PaymentMethod = "OTHER"
)

type Header struct {
	ID            int64
	Kind          Kind
	PartyID       int64
	DocNumber     string
	Date          time.Time
	Status        Status
	PaymentMethod PaymentMethod
	Notes         string
	Total         decimal.Decimal
}

type Line struct {
	ID        int64
	HeaderID  int64
	ArticleID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal // quantity × unit_price, fixed at write time
}

var (
	ErrUnknownTransaction     = errors.New("transactions: unknown transaction")
	ErrInvalidStateTransition = errors.New("transactions: invalid state transition")
)

// canTransition encodes the lifecycle: PENDING → PAID, PENDING|PAID → VOIDED.
func canTransition(from, to Status) bool {
	switch to {
	case StatusPaid:
		return from == StatusPending
	case StatusVoided:
		return from == StatusPending || from == StatusPaid
	default:
		return false
	}
}
