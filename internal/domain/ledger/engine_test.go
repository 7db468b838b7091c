package ledger_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/avigest/granja/internal/domain/articles"
	"github.com/avigest/granja/internal/domain/ledger"
	"github.com/avigest/granja/internal/testdb"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setup(t *testing.T) (context.Context, *pgxpool.Pool, *articles.Repo, *ledger.Engine) {
	t.Helper()
	pool := testdb.New(t)
	return context.Background(), pool, articles.NewRepo(pool), ledger.NewEngine(pool, slog.Default(), nil)
}

func newArticle(t *testing.T, ctx context.Context, repo *articles.Repo, name string, controlsStock bool) *articles.Article {
	t.Helper()
	a, err := repo.Create(ctx, name, articles.TypeSupply, "Kg", controlsStock, d("0"), d("0"), false)
	if err != nil {
		t.Fatalf("create article: %v", err)
	}
	return a
}

func balance(t *testing.T, ctx context.Context, repo *articles.Repo, id int64) decimal.Decimal {
	t.Helper()
	a, err := repo.GetByID(ctx, id)
	if err != nil || a == nil {
		t.Fatalf("get article %d: %v", id, err)
	}
	return a.Balance
}

func TestApplyEventChain(t *testing.T) {
	ctx, _, repo, engine := setup(t)
	a := newArticle(t, ctx, repo, "Alimento", true)

	// Seed starting inventory, then run the standard purchase/sale flow.
	steps := []struct {
		kind  ledger.EventKind
		qty   string
		after string
	}{
		{ledger.Adjustment, "100", "100"},
		{ledger.Purchase, "50", "150"},
		{ledger.Sale, "20", "130"},
		{ledger.Consumption, "30", "100"},
		{ledger.Production, "10", "110"},
	}
	for _, s := range steps {
		entries, err := engine.ApplyEvent(ctx, a.ID, s.kind, d(s.qty), "test")
		if err != nil {
			t.Fatalf("%s: %v", s.kind, err)
		}
		if len(entries) != 1 {
			t.Fatalf("%s: entries = %d, want 1", s.kind, len(entries))
		}
		if !entries[0].BalanceAfter.Equal(d(s.after)) {
			t.Fatalf("%s: after = %s, want %s", s.kind, entries[0].BalanceAfter, s.after)
		}
		if !balance(t, ctx, repo, a.ID).Equal(d(s.after)) {
			t.Fatalf("%s: stored balance diverged from entry", s.kind)
		}
	}

	// Every entry's after must equal the next entry's before.
	kardex, err := engine.Kardex(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(kardex) != len(steps) {
		t.Fatalf("kardex rows = %d, want %d", len(kardex), len(steps))
	}
	for i := 1; i < len(kardex); i++ {
		if !kardex[i].BalanceBefore.Equal(kardex[i-1].BalanceAfter) {
			t.Fatalf("row %d: before = %s, prev after = %s", i, kardex[i].BalanceBefore, kardex[i-1].BalanceAfter)
		}
	}
}

// Concurrent writers on one article must serialize on the row lock: the
// final balance is the signed sum of all events and the kardex chains with
// no lost update.
func TestApplyEventConcurrent(t *testing.T) {
	ctx, _, repo, engine := setup(t)
	a := newArticle(t, ctx, repo, "Alimento", true)

	if _, err := engine.ApplyEvent(ctx, a.ID, ledger.Adjustment, d("1000"), "seed"); err != nil {
		t.Fatal(err)
	}

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.ApplyEvent(ctx, a.ID, ledger.Sale, d("7"), "venta concurrente"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	// 1000 - 20×7 = 860, regardless of interleaving.
	if got := balance(t, ctx, repo, a.ID); !got.Equal(d("860")) {
		t.Fatalf("balance = %s, want 860", got)
	}

	kardex, err := engine.Kardex(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(kardex) != workers+1 {
		t.Fatalf("kardex rows = %d, want %d", len(kardex), workers+1)
	}
	for i := 1; i < len(kardex); i++ {
		if !kardex[i].BalanceBefore.Equal(kardex[i-1].BalanceAfter) {
			t.Fatalf("row %d: before = %s, prev after = %s (lost update)",
				i, kardex[i].BalanceBefore, kardex[i-1].BalanceAfter)
		}
	}
	if !kardex[len(kardex)-1].BalanceAfter.Equal(d("860")) {
		t.Fatalf("last entry after = %s, want 860", kardex[len(kardex)-1].BalanceAfter)
	}
}

func TestApplyEventValidation(t *testing.T) {
	ctx, _, repo, engine := setup(t)
	a := newArticle(t, ctx, repo, "Alimento", true)

	if _, err := engine.ApplyEvent(ctx, a.ID, ledger.Purchase, d("0"), ""); err != ledger.ErrInvalidQuantity {
		t.Fatalf("zero qty: err = %v, want ErrInvalidQuantity", err)
	}
	if _, err := engine.ApplyEvent(ctx, a.ID, ledger.Sale, d("-5"), ""); err != ledger.ErrInvalidQuantity {
		t.Fatalf("negative qty: err = %v, want ErrInvalidQuantity", err)
	}
	if _, err := engine.ApplyEvent(ctx, 99999, ledger.Purchase, d("1"), ""); err != ledger.ErrUnknownArticle {
		t.Fatalf("unknown article: err = %v, want ErrUnknownArticle", err)
	}

	// Nothing above may have touched the ledger.
	kardex, err := engine.Kardex(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(kardex) != 0 {
		t.Fatalf("kardex rows = %d, want 0", len(kardex))
	}
}

func TestApplyEventNoStockControl(t *testing.T) {
	ctx, _, repo, engine := setup(t)
	a := newArticle(t, ctx, repo, "Flete", false)

	entries, err := engine.ApplyEvent(ctx, a.ID, ledger.Purchase, d("10"), "")
	if err != nil {
		t.Fatal(err)
	}
	if entries != nil {
		t.Fatalf("entries = %v, want nil (documented no-op)", entries)
	}
	if !balance(t, ctx, repo, a.ID).IsZero() {
		t.Fatal("balance changed for a non-stock-controlled article")
	}
	kardex, _ := engine.Kardex(ctx, a.ID)
	if len(kardex) != 0 {
		t.Fatal("no-op produced a kardex row")
	}
}

func TestNegativeBalancePermitted(t *testing.T) {
	ctx, _, repo, engine := setup(t)
	a := newArticle(t, ctx, repo, "Alimento", true)

	entries, err := engine.ApplyEvent(ctx, a.ID, ledger.Sale, d("5"), "")
	if err != nil {
		t.Fatalf("negative result must not be rejected: %v", err)
	}
	if !entries[0].BalanceAfter.Equal(d("-5")) {
		t.Fatalf("after = %s, want -5", entries[0].BalanceAfter)
	}
}

func TestBundleSaleExpansion(t *testing.T) {
	ctx, _, repo, engine := setup(t)
	bundle := newArticle(t, ctx, repo, "Docena de huevos", true)
	egg := newArticle(t, ctx, repo, "Huevo", true)
	carton := newArticle(t, ctx, repo, "Cartón", true)
	sticker := newArticle(t, ctx, repo, "Etiqueta", false)

	for _, r := range []struct {
		comp int64
		per  string
	}{{egg.ID, "12"}, {carton.ID, "1"}, {sticker.ID, "1"}} {
		if _, err := repo.AddRecipeRow(ctx, bundle.ID, r.comp, d(r.per)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := engine.ApplyEvent(ctx, egg.ID, ledger.Adjustment, d("100"), "seed"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.ApplyEvent(ctx, carton.ID, ledger.Adjustment, d("10"), "seed"); err != nil {
		t.Fatal(err)
	}

	entries, err := engine.ApplyEvent(ctx, bundle.ID, ledger.Sale, d("2"), "venta #1")
	if err != nil {
		t.Fatal(err)
	}
	// Bundle zero-net row + two stock-controlled components; the sticker
	// does not control stock and is skipped.
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if !entries[0].BalanceBefore.Equal(entries[0].BalanceAfter) {
		t.Fatal("bundle entry must be zero-net")
	}
	if !balance(t, ctx, repo, bundle.ID).IsZero() {
		t.Fatal("bundle balance must not move")
	}
	if got := balance(t, ctx, repo, egg.ID); !got.Equal(d("76")) {
		t.Fatalf("egg balance = %s, want 100 - 2×12 = 76", got)
	}
	if got := balance(t, ctx, repo, carton.ID); !got.Equal(d("8")) {
		t.Fatalf("carton balance = %s, want 10 - 2×1 = 8", got)
	}
	if got := balance(t, ctx, repo, sticker.ID); !got.IsZero() {
		t.Fatalf("sticker balance = %s, want untouched 0", got)
	}
}

func TestUpdateReferencePrice(t *testing.T) {
	ctx, _, repo, engine := setup(t)
	a := newArticle(t, ctx, repo, "Alimento", true)

	entry, err := engine.UpdateReferencePrice(ctx, a.ID, d("150.50"), "compra #1")
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.Kind != ledger.MetadataEdit {
		t.Fatalf("entry = %+v, want METADATA_EDIT", entry)
	}
	if !entry.BalanceBefore.Equal(entry.BalanceAfter) {
		t.Fatal("price edit must be net-zero on stock")
	}

	// Same price again: documented no-op.
	entry, err = engine.UpdateReferencePrice(ctx, a.ID, d("150.50"), "compra #2")
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Fatalf("equal price should be a no-op, got %+v", entry)
	}

	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.ReferencePrice.Equal(d("150.50")) {
		t.Fatalf("reference price = %s, want 150.50", got.ReferencePrice)
	}
}

func TestUpdateArticleInfoLogsChanges(t *testing.T) {
	ctx, _, repo, engine := setup(t)
	a := newArticle(t, ctx, repo, "Alimento", true)

	entry, err := engine.UpdateArticleInfo(ctx, a.ID, "Alimento ponedoras", d("25"))
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.Kind != ledger.MetadataEdit {
		t.Fatalf("entry = %+v, want METADATA_EDIT", entry)
	}

	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Alimento ponedoras" || !got.MinThreshold.Equal(d("25")) {
		t.Fatalf("article not updated: %+v", got)
	}
}
