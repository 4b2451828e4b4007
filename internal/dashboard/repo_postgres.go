package dashboard

import (
	"context"
	"database/sql"

	"incident-portal/pkg/utils"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (p *PostgresRepo) ListReports(ctx context.Context, rng TimeRange) ([]ReportRow, error) {
	const q = `
SELECT status, urgency, threat_type, state, created_at
FROM reports
WHERE ($1::timestamptz IS NULL OR created_at >= $1)
  AND ($2::timestamptz IS NULL OR created_at < $2)
`
	from, to := bounds(rng)
	rows, err := p.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReportRow
	for rows.Next() {
		var r ReportRow
		if err := rows.Scan(&r.Status, &r.Urgency, &r.ThreatType, &r.State, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresRepo) ListAssignments(ctx context.Context, rng TimeRange) ([]AssignmentRow, error) {
	const q = `
SELECT status, assigned_at, resolved_at, casualties, injured_personnel, civilians_rescued, weapons_recovered
FROM assignments
WHERE ($1::timestamptz IS NULL OR assigned_at >= $1)
  AND ($2::timestamptz IS NULL OR assigned_at < $2)
`
	from, to := bounds(rng)
	rows, err := p.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AssignmentRow
	for rows.Next() {
		var (
			a                                     AssignmentRow
			resolvedAt                            sql.NullTime
			casualties, injured, rescued, weapons sql.NullInt64
		)
		if err := rows.Scan(&a.Status, &a.AssignedAt, &resolvedAt, &casualties, &injured, &rescued, &weapons); err != nil {
			return nil, err
		}
		a.ResolvedAt = utils.TimePtr(resolvedAt)
		a.Casualties = intPtr(casualties)
		a.InjuredPersonnel = intPtr(injured)
		a.CiviliansRescued = intPtr(rescued)
		a.WeaponsRecovered = intPtr(weapons)
		out = append(out, a)
	}
	return out, rows.Err()
}

func bounds(rng TimeRange) (sql.NullTime, sql.NullTime) {
	if rng.IsZero() {
		return sql.NullTime{}, sql.NullTime{}
	}
	return sql.NullTime{Time: rng.From, Valid: true}, sql.NullTime{Time: rng.To, Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
