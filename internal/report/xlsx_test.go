package report_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/avigest/granja/internal/domain/articles"
	"github.com/avigest/granja/internal/domain/ledger"
	"github.com/avigest/granja/internal/report"
	"github.com/avigest/granja/internal/testdb"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestKardexXLSX(t *testing.T) {
	pool := testdb.New(t)
	ctx := context.Background()

	arts := articles.NewRepo(pool)
	engine := ledger.NewEngine(pool, slog.Default(), nil)
	exporter := report.NewExporter(arts, engine)

	a, err := arts.Create(ctx, "Alimento", articles.TypeSupply, "Kg", true, d("0"), d("0"), false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.ApplyEvent(ctx, a.ID, ledger.Purchase, d("50"), "compra #1"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.ApplyEvent(ctx, a.ID, ledger.Sale, d("20"), "venta #1"); err != nil {
		t.Fatal(err)
	}

	raw, err := exporter.KardexXLSX(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("export is not a readable xlsx: %v", err)
	}
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	kind, err := f.GetCellValue(sheet, "B3")
	if err != nil {
		t.Fatal(err)
	}
	if kind != "PURCHASE" {
		t.Fatalf("B3 = %q, want PURCHASE", kind)
	}
	after, err := f.GetCellValue(sheet, "E4")
	if err != nil {
		t.Fatal(err)
	}
	if after != "30.00" {
		t.Fatalf("E4 = %q, want 30.00", after)
	}
}

func TestKardexXLSXUnknownArticle(t *testing.T) {
	pool := testdb.New(t)
	exporter := report.NewExporter(articles.NewRepo(pool), ledger.NewEngine(pool, slog.Default(), nil))

	if _, err := exporter.KardexXLSX(context.Background(), 99999); err != ledger.ErrUnknownArticle {
		t.Fatalf("err = %v, want ErrUnknownArticle", err)
	}
}
