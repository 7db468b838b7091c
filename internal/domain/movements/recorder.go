package movements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/avigest/granja/internal/domain/ledger"
)

type Kind string

const (
	Production  Kind = "PRODUCTION"
	Consumption Kind = "CONSUMPTION"
)

// Movement is an internal stock movement tied to a flock: feed going in
// (consumption) or eggs coming out (production).
type Movement struct {
	ID        int64
	FlockID   int64
	ArticleID int64
	Kind      Kind
	Quantity  decimal.Decimal
	CreatedAt time.Time
}

var (
	ErrUnknownFlock           = errors.New("movements: unknown flock")
	ErrClosedFlockConsumption = errors.New("movements: cannot record consumption for a closed flock")
	ErrUnknownKind            = errors.New("movements: unknown movement kind")
)

// Recorder writes internal movements and their ledger effect as one unit.
type Recorder struct {
	pool   *pgxpool.Pool
	engine *ledger.Engine
}

func NewRecorder(pool *pgxpool.Pool, engine *ledger.Engine) *Recorder {
	return &Recorder{pool: pool, engine: engine}
}

// Record validates the flock, inserts the movement and applies the stock
// effect in one transaction. Consumption against a closed flock is rejected
// before any mutation.
func (r *Recorder) Record(ctx context.Context, flockID, articleID int64, kind Kind, qty decimal.Decimal) (*Movement, []ledger.Entry, error) {
	var eventKind ledger.EventKind
	switch kind {
	case Production:
		eventKind = ledger.Production
	case Consumption:
		eventKind = ledger.Consumption
	default:
		return nil, nil, ErrUnknownKind
	}
	if qty.Sign() <= 0 {
		return nil, nil, ledger.ErrInvalidQuantity
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		active bool
		shed   string
		breed  string
	)
	err = tx.QueryRow(ctx, `
		SELECT f.active, s.name, f.breed
		FROM flocks f JOIN sheds s ON s.id = f.shed_id
		WHERE f.id = $1
	`, flockID).Scan(&active, &shed, &breed)
	if err == pgx.ErrNoRows {
		return nil, nil, ErrUnknownFlock
	}
	if err != nil {
		return nil, nil, err
	}
	if kind == Consumption && !active {
		return nil, nil, ErrClosedFlockConsumption
	}

	var mv Movement
	err = tx.QueryRow(ctx, `
		INSERT INTO movements (flock_id, article_id, kind, quantity)
		VALUES ($1,$2,$3,$4)
		RETURNING id, flock_id, article_id, kind, quantity, created_at
	`, flockID, articleID, kind, qty).Scan(
		&mv.ID, &mv.FlockID, &mv.ArticleID, &mv.Kind, &mv.Quantity, &mv.CreatedAt)
	if err != nil {
		return nil, nil, err
	}

	desc := fmt.Sprintf("%s: %s - %s", label(kind), shed, breed)
	entries, err := r.engine.ApplyEventTx(ctx, tx, articleID, eventKind, qty, desc)
	if err != nil {
		return nil, nil, err
	}
	return &mv, entries, tx.Commit(ctx)
}

func label(k Kind) string {
	if k == Production {
		return "Producción"
	}
	return "Consumo"
}
