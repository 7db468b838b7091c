package transactions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/avigest/granja/internal/domain/ledger"
)

// Manager coordinates multi-line commercial transactions. Every operation
// that touches stock runs inside one pgx transaction together with its
// header/line writes: all ledger effects commit with the state change or
// none do.
type Manager struct {
	pool   *pgxpool.Pool
	engine *ledger.Engine
	log    *slog.Logger
}

func NewManager(pool *pgxpool.Pool, engine *ledger.Engine, log *slog.Logger) *Manager {
	return &Manager{pool: pool, engine: engine, log: log}
}

const headerCols = `id, kind, party_id, doc_number, date, status, payment_method, notes, total`

func scanHeader(row pgx.Row) (*Header, error) {
	var h Header
	if err := row.Scan(&h.ID, &h.Kind, &h.PartyID, &h.DocNumber, &h.Date, &h.Status,
		&h.PaymentMethod, &h.Notes, &h.Total); err != nil {
		return nil, err
	}
	return &h, nil
}

// Create opens a header with total 0; lines accumulate into it.
func (m *Manager) Create(ctx context.Context, kind Kind, partyID int64, docNumber string, date time.Time, method PaymentMethod, notes string) (*Header, error) {
	row := m.pool.QueryRow(ctx, `
		INSERT INTO transactions (kind, party_id, doc_number, date, status, payment_method, notes, total)
		VALUES ($1,$2,$3,$4,'PENDING',$5,$6,0)
		RETURNING `+headerCols+`
	`, kind, partyID, docNumber, date, method, notes)
	return scanHeader(row)
}

func (m *Manager) GetByID(ctx context.Context, id int64) (*Header, error) {
	h, err := scanHeader(m.pool.QueryRow(ctx, `SELECT `+headerCols+` FROM transactions WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return h, err
}

func (m *Manager) Lines(ctx context.Context, headerID int64) ([]Line, error) {
	rows, err := m.pool.Query(ctx, `
		SELECT id, header_id, article_id, quantity, unit_price, subtotal
		FROM transaction_lines
		WHERE header_id = $1
		ORDER BY id
	`, headerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.HeaderID, &l.ArticleID, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// AddLine records one line: subtotal computed at write time, ledger effect
// applied first, then the header total — so the visible total never gets
// ahead of applied stock effects. updateRefPrice opts into the explicit
// base-price side effect (the price checkbox on the entry form).
func (m *Manager) AddLine(ctx context.Context, headerID, articleID int64, qty, unitPrice decimal.Decimal, updateRefPrice bool) (*Line, []ledger.Entry, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	h, err := lockHeader(ctx, tx, headerID)
	if err != nil {
		return nil, nil, err
	}
	if h.Status == StatusVoided {
		return nil, nil, ErrInvalidStateTransition
	}

	subtotal := qty.Mul(unitPrice)
	var line Line
	err = tx.QueryRow(ctx, `
		INSERT INTO transaction_lines (header_id, article_id, quantity, unit_price, subtotal)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, header_id, article_id, quantity, unit_price, subtotal
	`, headerID, articleID, qty, unitPrice, subtotal).Scan(
		&line.ID, &line.HeaderID, &line.ArticleID, &line.Quantity, &line.UnitPrice, &line.Subtotal)
	if err != nil {
		return nil, nil, err
	}

	entries, err := m.engine.ApplyEventTx(ctx, tx, articleID, eventKind(h.Kind), qty, lineDescription(h))
	if err != nil {
		return nil, nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE transactions SET total = total + $2 WHERE id = $1
	`, headerID, subtotal); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	if updateRefPrice {
		if _, err := m.engine.UpdateReferencePrice(ctx, articleID, unitPrice, lineDescription(h)); err != nil {
			// Line and stock are committed; the price edit is an optional
			// extra, so report it without failing the whole call.
			m.log.Error("reference price update failed", "article_id", articleID, "err", err)
		}
	}
	return &line, entries, nil
}

// Pay moves a PENDING transaction to PAID.
func (m *Manager) Pay(ctx context.Context, headerID int64) error {
	return m.transition(ctx, headerID, StatusPaid)
}

func (m *Manager) transition(ctx context.Context, headerID int64, to Status) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	h, err := lockHeader(ctx, tx, headerID)
	if err != nil {
		return err
	}
	if !canTransition(h.Status, to) {
		return ErrInvalidStateTransition
	}
	if _, err := tx.Exec(ctx, `UPDATE transactions SET status = $2 WHERE id = $1`, headerID, to); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Void reverses every line's stock effect and marks the header VOIDED, all
// in one transaction: a failed reversal leaves nothing behind. Purchases
// reverse by subtracting the original quantity; plain sales by adding it
// back; bundle sales by re-adding each recipe component. Each reversal is
// its own ADJUSTMENT entry referencing the voided transaction.
func (m *Manager) Void(ctx context.Context, headerID int64) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	h, err := lockHeader(ctx, tx, headerID)
	if err != nil {
		return err
	}
	if !canTransition(h.Status, StatusVoided) {
		return ErrInvalidStateTransition
	}

	lines, err := m.linesTx(ctx, tx, headerID)
	if err != nil {
		return err
	}

	for _, l := range lines {
		desc := fmt.Sprintf("Anulación %s #%d", kindLabel(h.Kind), h.ID)
		switch h.Kind {
		case KindPurchase:
			if _, err := m.engine.ApplyEventTx(ctx, tx, l.ArticleID, ledger.Adjustment, l.Quantity.Neg(), desc); err != nil {
				return fmt.Errorf("reverse line %d: %w", l.ID, err)
			}
		case KindSale:
			// A non-stock-controlled bundle never deducted its components,
			// so there is nothing to re-add.
			var controlsStock bool
			if err := tx.QueryRow(ctx, `SELECT controls_stock FROM articles WHERE id = $1`, l.ArticleID).Scan(&controlsStock); err != nil {
				return err
			}
			if !controlsStock {
				continue
			}
			recipe, err := m.recipeTx(ctx, tx, l.ArticleID)
			if err != nil {
				return err
			}
			if len(recipe) == 0 {
				if _, err := m.engine.ApplyEventTx(ctx, tx, l.ArticleID, ledger.Adjustment, l.Quantity, desc); err != nil {
					return fmt.Errorf("reverse line %d: %w", l.ID, err)
				}
				continue
			}
			// The bundle's own balance never moved, so only components
			// are re-added.
			for _, rc := range recipe {
				back := l.Quantity.Mul(rc.QtyPerUnit)
				if _, err := m.engine.ApplyEventTx(ctx, tx, rc.ComponentID, ledger.Adjustment, back, desc); err != nil {
					return fmt.Errorf("reverse line %d component %d: %w", l.ID, rc.ComponentID, err)
				}
			}
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE transactions SET status = 'VOIDED' WHERE id = $1`, headerID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	m.log.Info("transaction voided", "id", headerID, "kind", h.Kind, "lines", len(lines))
	return nil
}

func (m *Manager) linesTx(ctx context.Context, tx pgx.Tx, headerID int64) ([]Line, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, header_id, article_id, quantity, unit_price, subtotal
		FROM transaction_lines
		WHERE header_id = $1
		ORDER BY id
	`, headerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.HeaderID, &l.ArticleID, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type recipeRow struct {
	ComponentID int64
	QtyPerUnit  decimal.Decimal
}

func (m *Manager) recipeTx(ctx context.Context, tx pgx.Tx, bundleID int64) ([]recipeRow, error) {
	rows, err := tx.Query(ctx, `
		SELECT component_id, qty_per_unit FROM recipes WHERE bundle_id = $1 ORDER BY component_id
	`, bundleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []recipeRow
	for rows.Next() {
		var rc recipeRow
		if err := rows.Scan(&rc.ComponentID, &rc.QtyPerUnit); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func lockHeader(ctx context.Context, tx pgx.Tx, id int64) (*Header, error) {
	h, err := scanHeader(tx.QueryRow(ctx, `SELECT `+headerCols+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
	if err == pgx.ErrNoRows {
		return nil, ErrUnknownTransaction
	}
	return h, err
}

func eventKind(k Kind) ledger.EventKind {
	if k == KindPurchase {
		return ledger.Purchase
	}
	return ledger.Sale
}

func kindLabel(k Kind) string {
	if k == KindPurchase {
		return "compra"
	}
	return "venta"
}

func lineDescription(h *Header) string {
	doc := h.DocNumber
	if doc == "" {
		doc = fmt.Sprintf("%d", h.ID)
	}
	return fmt.Sprintf("%s #%s", kindLabel(h.Kind), doc)
}
