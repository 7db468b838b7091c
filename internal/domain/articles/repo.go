package articles

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const articleCols = `id, name, type, unit, controls_stock, balance, min_threshold, reference_price, is_recipe_component, created_at`

func scanArticle(row pgx.Row) (*Article, error) {
	var a Article
	if err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Type,
		&a.Unit,
		&a.ControlsStock,
		&a.Balance,
		&a.MinThreshold,
		&a.ReferencePrice,
		&a.IsRecipeComponent,
		&a.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) Create(ctx context.Context, name string, typ Type, unit string, controlsStock bool, minThreshold, refPrice decimal.Decimal, isRecipeComponent bool) (*Article, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO articles (name, type, unit, controls_stock, min_threshold, reference_price, is_recipe_component)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING `+articleCols+`
	`, name, typ, unit, controlsStock, minThreshold, refPrice, isRecipeComponent)
	return scanArticle(row)
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Article, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+articleCols+` FROM articles WHERE id = $1`, id)
	a, err := scanArticle(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *Repo) List(ctx context.Context, typ Type, includeRecipeComponents bool) ([]Article, error) {
	q := `SELECT ` + articleCols + ` FROM articles`
	var conds []string
	var args []any
	if typ != "" {
		args = append(args, typ)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if !includeRecipeComponents {
		conds = append(conds, "is_recipe_component = FALSE")
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY name"

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Type, &a.Unit, &a.ControlsStock,
			&a.Balance, &a.MinThreshold, &a.ReferencePrice, &a.IsRecipeComponent, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListBelowThreshold returns stock-controlled articles at or under their
// minimum, for the alert sweep.
func (r *Repo) ListBelowThreshold(ctx context.Context) ([]Article, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+articleCols+`
		FROM articles
		WHERE controls_stock AND balance <= min_threshold
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Type, &a.Unit, &a.ControlsStock,
			&a.Balance, &a.MinThreshold, &a.ReferencePrice, &a.IsRecipeComponent, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

/* Recipes */

func (r *Repo) AddRecipeRow(ctx context.Context, bundleID, componentID int64, qtyPerUnit decimal.Decimal) (*RecipeRow, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO recipes (bundle_id, component_id, qty_per_unit)
		VALUES ($1,$2,$3)
		ON CONFLICT (bundle_id, component_id) DO UPDATE SET qty_per_unit = EXCLUDED.qty_per_unit
		RETURNING id, bundle_id, component_id, qty_per_unit
	`, bundleID, componentID, qtyPerUnit)
	var rr RecipeRow
	if err := row.Scan(&rr.ID, &rr.BundleID, &rr.ComponentID, &rr.QtyPerUnit); err != nil {
		return nil, err
	}
	return &rr, nil
}

func (r *Repo) DeleteRecipeRow(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM recipes WHERE id = $1`, id)
	return err
}

func (r *Repo) ListRecipe(ctx context.Context, bundleID int64) ([]RecipeRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, bundle_id, component_id, qty_per_unit
		FROM recipes
		WHERE bundle_id = $1
		ORDER BY component_id
	`, bundleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecipeRow
	for rows.Next() {
		var rr RecipeRow
		if err := rows.Scan(&rr.ID, &rr.BundleID, &rr.ComponentID, &rr.QtyPerUnit); err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}
