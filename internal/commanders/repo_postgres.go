package commanders

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"incident-portal/pkg/utils"
)

const emailConstraint = "commanders_email_key"

const commanderColumns = `id, full_name, email, phone, rank, unit_id, state, status, password_hash, created_at, updated_at`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (p *PostgresRepo) Insert(ctx context.Context, c Commander) error {
	const q = `
INSERT INTO commanders (
  id, full_name, email, phone, rank, unit_id, state, status, password_hash, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
`
	_, err := p.db.ExecContext(ctx, q,
		c.ID,
		c.FullName,
		c.Email,
		c.Phone,
		c.Rank,
		c.UnitID,
		c.State,
		c.Status,
		utils.NullString(c.PasswordHash),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if utils.IsUniqueViolation(err, emailConstraint) {
		return ErrEmailTaken
	}
	return err
}

func (p *PostgresRepo) Get(ctx context.Context, id string) (Commander, error) {
	if !utils.IsUUID(id) {
		return Commander{}, ErrNotFound
	}
	q := `SELECT ` + commanderColumns + ` FROM commanders WHERE id = $1`
	return scanCommander(p.db.QueryRowContext(ctx, q, id))
}

func (p *PostgresRepo) GetByEmail(ctx context.Context, email string) (Commander, error) {
	q := `SELECT ` + commanderColumns + ` FROM commanders WHERE email = $1`
	return scanCommander(p.db.QueryRowContext(ctx, q, email))
}

func (p *PostgresRepo) List(ctx context.Context) ([]Commander, error) {
	q := `SELECT ` + commanderColumns + ` FROM commanders ORDER BY full_name ASC`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Commander
	for rows.Next() {
		c, err := scanCommander(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresRepo) Activate(ctx context.Context, id, passwordHash string, now time.Time) error {
	const q = `
UPDATE commanders
SET password_hash = $2, status = 'active', updated_at = $3
WHERE id = $1 AND status <> 'disabled'
`
	res, err := p.db.ExecContext(ctx, q, id, passwordHash, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommander(row rowScanner) (Commander, error) {
	var (
		c    Commander
		hash sql.NullString
	)
	if err := row.Scan(
		&c.ID,
		&c.FullName,
		&c.Email,
		&c.Phone,
		&c.Rank,
		&c.UnitID,
		&c.State,
		&c.Status,
		&hash,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Commander{}, ErrNotFound
		}
		return Commander{}, err
	}
	c.PasswordHash = hash.String
	return c, nil
}
