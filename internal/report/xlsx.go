package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/avigest/granja/internal/domain/articles"
	"github.com/avigest/granja/internal/domain/ledger"
)

// Exporter renders XLSX reports from the registry and the kardex. It reads
// only; all numbers come from the ledger engine's outputs.
type Exporter struct {
	articles *articles.Repo
	engine   *ledger.Engine
}

func NewExporter(arts *articles.Repo, engine *ledger.Engine) *Exporter {
	return &Exporter{articles: arts, engine: engine}
}

// KardexXLSX exports one article's full movement history.
func (e *Exporter) KardexXLSX(ctx context.Context, articleID int64) ([]byte, error) {
	a, err := e.articles.GetByID(ctx, articleID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ledger.ErrUnknownArticle
	}
	entries, err := e.engine.Kardex(ctx, articleID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	title := fmt.Sprintf("Kardex: %s (%s)", a.Name, a.Unit)
	if err := f.SetCellValue(sheet, "A1", title); err != nil {
		return nil, err
	}
	header := []interface{}{"fecha", "evento", "cantidad", "saldo_anterior", "saldo_posterior", "descripcion"}
	if err := f.SetSheetRow(sheet, "A2", &header); err != nil {
		return nil, err
	}

	row := 3
	for _, en := range entries {
		excelRow := []interface{}{
			en.CreatedAt.Format("2006-01-02 15:04"),
			string(en.Kind),
			en.Magnitude.StringFixed(2),
			en.BalanceBefore.StringFixed(2),
			en.BalanceAfter.StringFixed(2),
			en.Description,
		}
		cell := fmt.Sprintf("A%d", row)
		if err := f.SetSheetRow(sheet, cell, &excelRow); err != nil {
			return nil, err
		}
		row++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StockXLSX exports current balances for all stock-controlled articles.
func (e *Exporter) StockXLSX(ctx context.Context) ([]byte, error) {
	arts, err := e.articles.List(ctx, "", true)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	header := []interface{}{"article_id", "nombre", "tipo", "unidad", "saldo", "stock_min", "precio_ref"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}

	row := 2
	for _, a := range arts {
		if !a.ControlsStock {
			continue
		}
		excelRow := []interface{}{
			a.ID,
			a.Name,
			string(a.Type),
			a.Unit,
			a.Balance.StringFixed(2),
			a.MinThreshold.StringFixed(2),
			a.ReferencePrice.StringFixed(2),
		}
		cell := fmt.Sprintf("A%d", row)
		if err := f.SetSheetRow(sheet, cell, &excelRow); err != nil {
			return nil, err
		}
		row++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
