package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/avigest/granja/internal/infra/metrics"
)

// sourceEvent is one historical record (transaction line or internal
// movement) feeding the kardex rebuild.
type sourceEvent struct {
	Date        time.Time
	RecordID    int64 // tiebreaker for same-date determinism
	Kind        EventKind
	Quantity    decimal.Decimal // unsigned magnitude
	Delta       decimal.Decimal // signed stock effect
	Description string
}

// RebuildReport describes one article's rebuild outcome. A nonzero Drift is
// not an error: it becomes a single corrective ADJUSTMENT at the start of
// the replayed history ("unknown starting inventory / untracked edits").
type RebuildReport struct {
	ArticleID     int64
	Entries       int
	Replayed      decimal.Decimal // final balance per history alone
	Authoritative decimal.Decimal // articles.balance, the truth
	Drift         decimal.Decimal // Authoritative - Replayed
}

// replay walks events in (date, record id) order from balance zero and, when
// history disagrees with the authoritative balance by δ, prepends one
// ADJUSTMENT of |δ| and shifts every subsequent before/after by δ so the
// final balance lands exactly on the authoritative value. History after the
// correction stays byte-for-byte what the records say.
func replay(events []sourceEvent, authoritative decimal.Decimal) ([]Entry, RebuildReport) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return events[i].RecordID < events[j].RecordID
	})

	balance := decimal.Zero
	entries := make([]Entry, 0, len(events)+1)
	for _, ev := range events {
		before := balance
		balance = balance.Add(ev.Delta)
		entries = append(entries, Entry{
			CreatedAt:     ev.Date,
			Kind:          ev.Kind,
			Magnitude:     ev.Quantity,
			BalanceBefore: before,
			BalanceAfter:  balance,
			Description:   ev.Description,
		})
	}

	report := RebuildReport{
		Replayed:      balance,
		Authoritative: authoritative,
		Drift:         authoritative.Sub(balance),
	}

	if !report.Drift.IsZero() {
		for i := range entries {
			entries[i].BalanceBefore = entries[i].BalanceBefore.Add(report.Drift)
			entries[i].BalanceAfter = entries[i].BalanceAfter.Add(report.Drift)
		}
		adjustedAt := time.Now()
		if len(entries) > 0 {
			adjustedAt = entries[0].CreatedAt
		}
		entries = append([]Entry{{
			CreatedAt:     adjustedAt,
			Kind:          Adjustment,
			Magnitude:     report.Drift.Abs(),
			BalanceBefore: decimal.Zero,
			BalanceAfter:  report.Drift,
			Description:   "Ajuste inicial / inventario heredado",
		}}, entries...)
	}

	report.Entries = len(entries)
	return entries, report
}

// RebuildArticle regenerates one article's kardex from historical records.
// Existing log rows for the article are deleted first; the rebuild is not
// incremental and requires exclusive access to the article's ledger
// (documented external constraint — run it with live mutations stopped).
// Lines of VOIDED transactions are skipped: their stock effect was already
// reversed, replaying them would manufacture drift.
func (e *Engine) RebuildArticle(ctx context.Context, articleID int64) (*RebuildReport, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var authoritative decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT balance FROM articles WHERE id = $1 FOR UPDATE
	`, articleID).Scan(&authoritative)
	if err == pgx.ErrNoRows {
		return nil, ErrUnknownArticle
	}
	if err != nil {
		return nil, err
	}

	var events []sourceEvent

	rows, err := tx.Query(ctx, `
		SELECT l.id, t.date, t.kind, l.quantity, t.doc_number, p.name
		FROM transaction_lines l
		JOIN transactions t ON t.id = l.header_id
		JOIN parties p ON p.id = t.party_id
		WHERE l.article_id = $1 AND t.status <> 'VOIDED'
	`, articleID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			id        int64
			date      time.Time
			kind      string
			qty       decimal.Decimal
			doc       string
			partyName string
		)
		if err := rows.Scan(&id, &date, &kind, &qty, &doc, &partyName); err != nil {
			rows.Close()
			return nil, err
		}
		ev := sourceEvent{Date: date, RecordID: id, Quantity: qty}
		if kind == string(Purchase) {
			ev.Kind = Purchase
			ev.Delta = qty
			ev.Description = fmt.Sprintf("Compra #%s (%s)", orID(doc, id), partyName)
		} else {
			ev.Kind = Sale
			ev.Delta = qty.Neg()
			ev.Description = fmt.Sprintf("Venta #%s (%s)", orID(doc, id), partyName)
		}
		events = append(events, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, `
		SELECT m.id, m.created_at, m.kind, m.quantity, s.name, f.breed
		FROM movements m
		JOIN flocks f ON f.id = m.flock_id
		JOIN sheds s ON s.id = f.shed_id
		WHERE m.article_id = $1
	`, articleID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			id    int64
			date  time.Time
			kind  string
			qty   decimal.Decimal
			shed  string
			breed string
		)
		if err := rows.Scan(&id, &date, &kind, &qty, &shed, &breed); err != nil {
			rows.Close()
			return nil, err
		}
		ev := sourceEvent{Date: date, RecordID: id, Quantity: qty}
		if kind == string(Production) {
			ev.Kind = Production
			ev.Delta = qty
			ev.Description = fmt.Sprintf("Producción: %s - %s", shed, breed)
		} else {
			ev.Kind = Consumption
			ev.Delta = qty.Neg()
			ev.Description = fmt.Sprintf("Consumo: %s - %s", shed, breed)
		}
		events = append(events, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	entries, report := replay(events, authoritative)
	report.ArticleID = articleID

	if _, err := tx.Exec(ctx, `DELETE FROM article_log WHERE article_id = $1`, articleID); err != nil {
		return nil, err
	}
	for _, en := range entries {
		if _, err := tx.Exec(ctx, `
			INSERT INTO article_log (article_id, created_at, kind, magnitude, balance_before, balance_after, description)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, articleID, en.CreatedAt, string(en.Kind), en.Magnitude, en.BalanceBefore, en.BalanceAfter, en.Description); err != nil {
			return nil, err
		}
	}

	if !report.Drift.IsZero() {
		metrics.RebuildDrift.Inc()
		e.log.Warn("kardex drift corrected",
			"article_id", articleID,
			"authoritative", report.Authoritative.String(),
			"replayed", report.Replayed.String(),
			"drift", report.Drift.String())
	}
	return &report, tx.Commit(ctx)
}

// RebuildAll regenerates the kardex of every article, in id order.
func (e *Engine) RebuildAll(ctx context.Context) ([]RebuildReport, error) {
	rows, err := e.pool.Query(ctx, `SELECT id FROM articles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var reports []RebuildReport
	for _, id := range ids {
		r, err := e.RebuildArticle(ctx, id)
		if err != nil {
			return reports, fmt.Errorf("rebuild article %d: %w", id, err)
		}
		reports = append(reports, *r)
	}
	return reports, nil
}

func orID(doc string, id int64) string {
	if doc != "" {
		return doc
	}
	return fmt.Sprintf("%d", id)
}
