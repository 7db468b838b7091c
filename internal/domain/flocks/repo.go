package flocks

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

/* Sheds */

func (r *Repo) CreateShed(ctx context.Context, name string, maxCapacity int) (*Shed, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO sheds (name, max_capacity) VALUES ($1,$2)
		RETURNING id, name, max_capacity
	`, name, maxCapacity)
	var s Shed
	if err := row.Scan(&s.ID, &s.Name, &s.MaxCapacity); err != nil {
		return nil, err
	}
	return &s, nil
}

/* Flocks */

const flockCols = `id, shed_id, breed, start_date, initial_count, current_count, active, next_vaccination_date`

func scanFlock(row pgx.Row) (*Flock, error) {
	var f Flock
	if err := row.Scan(&f.ID, &f.ShedID, &f.Breed, &f.StartDate, &f.InitialCount,
		&f.CurrentCount, &f.Active, &f.NextVaccinationDate); err != nil {
		return nil, err
	}
	return &f, nil
}

// Create starts a flock with current_count = initial_count.
func (r *Repo) Create(ctx context.Context, shedID int64, breed string, startDate time.Time, initialCount int) (*Flock, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO flocks (shed_id, breed, start_date, initial_count, current_count, active)
		VALUES ($1,$2,$3,$4,$4,TRUE)
		RETURNING `+flockCols+`
	`, shedID, breed, startDate, initialCount)
	return scanFlock(row)
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Flock, error) {
	f, err := scanFlock(r.pool.QueryRow(ctx, `SELECT `+flockCols+` FROM flocks WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func (r *Repo) List(ctx context.Context, onlyActive bool) ([]Flock, error) {
	q := `SELECT ` + flockCols + ` FROM flocks`
	if onlyActive {
		q += ` WHERE active`
	}
	q += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Flock
	for rows.Next() {
		var f Flock
		if err := rows.Scan(&f.ID, &f.ShedID, &f.Breed, &f.StartDate, &f.InitialCount,
			&f.CurrentCount, &f.Active, &f.NextVaccinationDate); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *Repo) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE flocks SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownFlock
	}
	return nil
}

// RecordMortality appends a mortality record and decrements the flock's
// current bird count, in one transaction. There is intentionally no floor
// check: bad input can take the population negative (known open issue in
// the recorded behavior, kept visible rather than silently clamped).
func (r *Repo) RecordMortality(ctx context.Context, flockID int64, qty int, reason MortalityReason) (*MortalityRecord, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE flocks SET current_count = current_count - $2 WHERE id = $1
	`, flockID, qty)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrUnknownFlock
	}

	var rec MortalityRecord
	err = tx.QueryRow(ctx, `
		INSERT INTO mortality (flock_id, quantity, reason)
		VALUES ($1,$2,$3)
		RETURNING id, flock_id, created_at, quantity, reason
	`, flockID, qty, reason).Scan(&rec.ID, &rec.FlockID, &rec.CreatedAt, &rec.Quantity, &rec.Reason)
	if err != nil {
		return nil, err
	}
	return &rec, tx.Commit(ctx)
}

// RecordVaccination stores the application and, when a suggested next date
// is given, moves the flock's next_vaccination_date to it.
func (r *Repo) RecordVaccination(ctx context.Context, flockID int64, vaccine string, appliedOn time.Time, suggestedNext *time.Time, notes string) (*Vaccination, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var v Vaccination
	err = tx.QueryRow(ctx, `
		INSERT INTO vaccinations (flock_id, vaccine, applied_on, suggested_next, notes)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, flock_id, vaccine, applied_on, suggested_next, notes
	`, flockID, vaccine, appliedOn, suggestedNext, notes).Scan(
		&v.ID, &v.FlockID, &v.Vaccine, &v.AppliedOn, &v.SuggestedNext, &v.Notes)
	if err != nil {
		return nil, err
	}

	if suggestedNext != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE flocks SET next_vaccination_date = $2 WHERE id = $1
		`, flockID, *suggestedNext); err != nil {
			return nil, err
		}
	}
	return &v, tx.Commit(ctx)
}

// ListVaccinationsDue returns active flocks whose next vaccination falls
// within the window, for the daily alert sweep.
func (r *Repo) ListVaccinationsDue(ctx context.Context, within time.Duration) ([]Flock, error) {
	deadline := time.Now().Add(within)
	rows, err := r.pool.Query(ctx, `
		SELECT `+flockCols+`
		FROM flocks
		WHERE active AND next_vaccination_date IS NOT NULL AND next_vaccination_date <= $1
		ORDER BY next_vaccination_date
	`, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Flock
	for rows.Next() {
		var f Flock
		if err := rows.Scan(&f.ID, &f.ShedID, &f.Breed, &f.StartDate, &f.InitialCount,
			&f.CurrentCount, &f.Active, &f.NextVaccinationDate); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
