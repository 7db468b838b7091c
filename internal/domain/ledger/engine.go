package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/avigest/granja/internal/infra/metrics"
	"github.com/avigest/granja/internal/infra/notify"
)

// Engine is the only writer of article balances and kardex rows. Callers
// (transaction manager, movement recorder, price updates) go through
// ApplyEvent/ApplyEventTx; direct balance writes break the reconciliation
// invariant.
type Engine struct {
	pool     *pgxpool.Pool
	log      *slog.Logger
	notifier notify.Notifier
}

func NewEngine(pool *pgxpool.Pool, log *slog.Logger, notifier notify.Notifier) *Engine {
	return &Engine{pool: pool, log: log, notifier: notifier}
}

// ApplyEvent applies one stock-affecting event in its own transaction.
// Returns the created entries: one for the standard path, several when a
// bundle sale expands into component deductions, none when the article does
// not control stock (documented no-op).
func (e *Engine) ApplyEvent(ctx context.Context, articleID int64, kind EventKind, qty decimal.Decimal, description string) ([]Entry, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entries, err := e.ApplyEventTx(ctx, tx, articleID, kind, qty, description)
	if err != nil {
		return nil, err
	}
	return entries, tx.Commit(ctx)
}

// ApplyEventTx is ApplyEvent composed into a caller-owned transaction, so a
// multi-line commercial transaction commits all its ledger effects or none.
// The article row is locked FOR UPDATE for the whole read-update-log cycle:
// concurrent mutations on the same article serialize, different articles
// proceed in parallel.
func (e *Engine) ApplyEventTx(ctx context.Context, tx pgx.Tx, articleID int64, kind EventKind, qty decimal.Decimal, description string) ([]Entry, error) {
	delta, err := signedDelta(kind, qty)
	if err != nil {
		return nil, err
	}

	var (
		name          string
		controlsStock bool
		balance       decimal.Decimal
	)
	err = tx.QueryRow(ctx, `
		SELECT name, controls_stock, balance FROM articles WHERE id = $1 FOR UPDATE
	`, articleID).Scan(&name, &controlsStock, &balance)
	if err == pgx.ErrNoRows {
		return nil, ErrUnknownArticle
	}
	if err != nil {
		return nil, err
	}
	if !controlsStock {
		// Documented no-op: no balance change, no kardex row.
		return nil, nil
	}

	if kind == Sale {
		recipe, err := e.loadRecipe(ctx, tx, articleID)
		if err != nil {
			return nil, err
		}
		if len(recipe) > 0 {
			return e.applyBundleSale(ctx, tx, articleID, name, balance, qty, recipe, description)
		}
	}

	entry, err := e.mutate(ctx, tx, articleID, name, kind, qty.Abs(), balance, delta, description)
	if err != nil {
		return nil, err
	}
	return []Entry{*entry}, nil
}

// mutate performs the atomic balance update + kardex append for one article
// whose row is already locked, and flags negative results without rejecting
// them (real-world discrepancies stay visible, not blocked).
func (e *Engine) mutate(ctx context.Context, tx pgx.Tx, articleID int64, name string, kind EventKind, magnitude, before, delta decimal.Decimal, description string) (*Entry, error) {
	after := before.Add(delta)

	if _, err := tx.Exec(ctx, `UPDATE articles SET balance = $2 WHERE id = $1`, articleID, after); err != nil {
		return nil, err
	}
	entry, err := insertEntry(ctx, tx, articleID, kind, magnitude, before, after, description)
	if err != nil {
		return nil, err
	}

	metrics.LedgerEvents.WithLabelValues(string(kind)).Inc()
	if after.Sign() < 0 {
		metrics.NegativeBalances.Inc()
		e.log.Warn("stock went negative", "article_id", articleID, "article", name, "balance", after.String())
		if e.notifier != nil {
			e.notifier.Alert(fmt.Sprintf("⚠️ Stock negativo: %s → %s", name, after.StringFixed(2)))
		}
	}
	return entry, nil
}

type recipeComponent struct {
	ID            int64
	Name          string
	ControlsStock bool
	QtyPerUnit    decimal.Decimal
}

func (e *Engine) loadRecipe(ctx context.Context, tx pgx.Tx, bundleID int64) ([]recipeComponent, error) {
	rows, err := tx.Query(ctx, `
		SELECT a.id, a.name, a.controls_stock, r.qty_per_unit
		FROM recipes r
		JOIN articles a ON a.id = r.component_id
		WHERE r.bundle_id = $1
		ORDER BY a.id
	`, bundleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []recipeComponent
	for rows.Next() {
		var c recipeComponent
		if err := rows.Scan(&c.ID, &c.Name, &c.ControlsStock, &c.QtyPerUnit); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// applyBundleSale: selling a pack never touches the pack's own balance. A
// zero-net SALE row keeps the sale traceable on the bundle's kardex, then
// each stock-controlled component is deducted qty × qty_per_unit with its
// own row pointing back at the bundle.
func (e *Engine) applyBundleSale(ctx context.Context, tx pgx.Tx, bundleID int64, bundleName string, bundleBalance, qty decimal.Decimal, recipe []recipeComponent, description string) ([]Entry, error) {
	bundleEntry, err := insertEntry(ctx, tx, bundleID, Sale, qty, bundleBalance, bundleBalance,
		fmt.Sprintf("Venta pack: %s", description))
	if err != nil {
		return nil, err
	}
	metrics.LedgerEvents.WithLabelValues(string(Sale)).Inc()

	entries := []Entry{*bundleEntry}
	for _, c := range recipe {
		if !c.ControlsStock {
			continue
		}
		deduct := qty.Mul(c.QtyPerUnit)

		// Components are locked in recipe order (ascending id) to keep
		// concurrent bundle sales deadlock-free.
		var before decimal.Decimal
		if err := tx.QueryRow(ctx, `
			SELECT balance FROM articles WHERE id = $1 FOR UPDATE
		`, c.ID).Scan(&before); err != nil {
			return nil, err
		}

		entry, err := e.mutate(ctx, tx, c.ID, c.Name, Sale, deduct, before, deduct.Neg(),
			fmt.Sprintf("Venta en pack: %s (%s)", bundleName, description))
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// UpdateReferencePrice records an explicit base-price change triggered by a
// transaction line. Equal price is a no-op; otherwise the article is updated
// and a net-zero METADATA_EDIT row documents old → new and the trigger.
func (e *Engine) UpdateReferencePrice(ctx context.Context, articleID int64, newPrice decimal.Decimal, trigger string) (*Entry, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		oldPrice decimal.Decimal
		balance  decimal.Decimal
	)
	err = tx.QueryRow(ctx, `
		SELECT reference_price, balance FROM articles WHERE id = $1 FOR UPDATE
	`, articleID).Scan(&oldPrice, &balance)
	if err == pgx.ErrNoRows {
		return nil, ErrUnknownArticle
	}
	if err != nil {
		return nil, err
	}
	if oldPrice.Equal(newPrice) {
		return nil, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE articles SET reference_price = $2 WHERE id = $1`, articleID, newPrice); err != nil {
		return nil, err
	}
	entry, err := insertEntry(ctx, tx, articleID, MetadataEdit, decimal.Zero, balance, balance,
		fmt.Sprintf("Precio base actualizado vía %s: %s -> %s", trigger, oldPrice.StringFixed(2), newPrice.StringFixed(2)))
	if err != nil {
		return nil, err
	}
	metrics.LedgerEvents.WithLabelValues(string(MetadataEdit)).Inc()
	return entry, tx.Commit(ctx)
}

// UpdateArticleInfo renames an article and/or moves its minimum threshold,
// logging the change as METADATA_EDIT so the kardex tells the whole story of
// the article, not just its stock.
func (e *Engine) UpdateArticleInfo(ctx context.Context, articleID int64, newName string, newMinThreshold decimal.Decimal) (*Entry, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		oldName string
		oldMin  decimal.Decimal
		balance decimal.Decimal
	)
	err = tx.QueryRow(ctx, `
		SELECT name, min_threshold, balance FROM articles WHERE id = $1 FOR UPDATE
	`, articleID).Scan(&oldName, &oldMin, &balance)
	if err == pgx.ErrNoRows {
		return nil, ErrUnknownArticle
	}
	if err != nil {
		return nil, err
	}

	var changes []string
	if newName != "" && newName != oldName {
		changes = append(changes, fmt.Sprintf("Nombre: %s -> %s", oldName, newName))
	} else {
		newName = oldName
	}
	if !newMinThreshold.Equal(oldMin) {
		changes = append(changes, fmt.Sprintf("Stock min: %s -> %s", oldMin.StringFixed(2), newMinThreshold.StringFixed(2)))
	}
	if len(changes) == 0 {
		return nil, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE articles SET name = $2, min_threshold = $3 WHERE id = $1
	`, articleID, newName, newMinThreshold); err != nil {
		return nil, err
	}
	entry, err := insertEntry(ctx, tx, articleID, MetadataEdit, decimal.Zero, balance, balance, strings.Join(changes, "; "))
	if err != nil {
		return nil, err
	}
	metrics.LedgerEvents.WithLabelValues(string(MetadataEdit)).Inc()
	return entry, tx.Commit(ctx)
}

// Kardex returns an article's full log, oldest first.
func (e *Engine) Kardex(ctx context.Context, articleID int64) ([]Entry, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT id, article_id, created_at, kind, magnitude, balance_before, balance_after, description
		FROM article_log
		WHERE article_id = $1
		ORDER BY id
	`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var en Entry
		if err := rows.Scan(&en.ID, &en.ArticleID, &en.CreatedAt, &en.Kind, &en.Magnitude,
			&en.BalanceBefore, &en.BalanceAfter, &en.Description); err != nil {
			return nil, err
		}
		out = append(out, en)
	}
	return out, rows.Err()
}

func insertEntry(ctx context.Context, tx pgx.Tx, articleID int64, kind EventKind, magnitude, before, after decimal.Decimal, description string) (*Entry, error) {
	entry := Entry{
		ArticleID:     articleID,
		Kind:          kind,
		Magnitude:     magnitude,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   description,
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO article_log (article_id, kind, magnitude, balance_before, balance_after, description)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at
	`, articleID, string(kind), magnitude, before, after, description).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
