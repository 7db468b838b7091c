package parties

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const partyCols = `id, name, tax_id, is_customer, is_supplier, phone, address`

func (r *Repo) Create(ctx context.Context, p Party) (*Party, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO parties (name, tax_id, is_customer, is_supplier, phone, address)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING `+partyCols+`
	`, p.Name, p.TaxID, p.IsCustomer, p.IsSupplier, p.Phone, p.Address)
	var out Party
	if err := row.Scan(&out.ID, &out.Name, &out.TaxID, &out.IsCustomer, &out.IsSupplier, &out.Phone, &out.Address); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Party, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+partyCols+` FROM parties WHERE id = $1`, id)
	var p Party
	if err := row.Scan(&p.ID, &p.Name, &p.TaxID, &p.IsCustomer, &p.IsSupplier, &p.Phone, &p.Address); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// List filters by role: suppliers for purchases, customers for sales.
func (r *Repo) List(ctx context.Context, customersOnly, suppliersOnly bool) ([]Party, error) {
	q := `SELECT ` + partyCols + ` FROM parties`
	switch {
	case customersOnly:
		q += ` WHERE is_customer`
	case suppliersOnly:
		q += ` WHERE is_supplier`
	}
	q += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Party
	for rows.Next() {
		var p Party
		if err := rows.Scan(&p.ID, &p.Name, &p.TaxID, &p.IsCustomer, &p.IsSupplier, &p.Phone, &p.Address); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
