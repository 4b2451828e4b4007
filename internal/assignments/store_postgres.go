package assignments

import (
	"context"
	"database/sql"
	"errors"

	"incident-portal/internal/reports"
	"incident-portal/pkg/utils"
)

// activeIndex is the partial unique index on assignments(report_id) WHERE status <> 'resolved'.
const activeIndex = "assignments_one_active_per_report"

const assignmentColumns = `id, report_id, assigned_to_commander, assigned_to_unit_id, assigned_by, status,
  assigned_at, accepted_at, responded_at,
  resolution_notes, resolution_submitted_at, resolved_by, resolved_at,
  casualties, injured_personnel, civilians_rescued, weapons_recovered,
  revision_reason, revision_count, updated_at`

// PostgresStore locks the report row first and the assignment row second in
// every transaction, so concurrent creates and mutations cannot deadlock.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (p *PostgresStore) Create(ctx context.Context, a Assignment, check CreateCheck) (Mutation, error) {
	var out Mutation
	err := utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		r, err := reports.LockForUpdate(ctx, tx, a.ReportID)
		if err != nil {
			return err
		}
		next, err := check(r)
		if err != nil {
			return err
		}

		if err := insertAssignment(ctx, tx, a); err != nil {
			if utils.IsUniqueViolation(err, activeIndex) {
				return ErrAlreadyAssigned
			}
			return err
		}
		if err := reports.UpdateStatusTx(ctx, tx, r.ID, next, a.AssignedAt); err != nil {
			return err
		}

		after := r
		after.Status = next
		after.UpdatedAt = a.AssignedAt
		out = Mutation{After: a, ReportBefore: r, ReportAfter: after}
		return nil
	})
	if err != nil {
		return Mutation{}, err
	}
	return out, nil
}

func (p *PostgresStore) Mutate(ctx context.Context, id string, fn MutateFunc) (Mutation, error) {
	var out Mutation
	err := utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		reportID, err := reportIDOf(ctx, tx, id)
		if err != nil {
			return err
		}
		r, err := reports.LockForUpdate(ctx, tx, reportID)
		if err != nil {
			return err
		}
		before, err := lockAssignment(ctx, tx, id)
		if err != nil {
			return err
		}

		after := before
		next, err := fn(&after, r)
		if err != nil {
			return err
		}
		if err := updateAssignment(ctx, tx, after); err != nil {
			return err
		}

		reportAfter := r
		if next != r.Status {
			if err := reports.UpdateStatusTx(ctx, tx, r.ID, next, after.UpdatedAt); err != nil {
				return err
			}
			reportAfter.Status = next
			reportAfter.UpdatedAt = after.UpdatedAt
		}
		out = Mutation{Before: before, After: after, ReportBefore: r, ReportAfter: reportAfter}
		return nil
	})
	if err != nil {
		return Mutation{}, err
	}
	return out, nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (Assignment, error) {
	if !utils.IsUUID(id) {
		return Assignment{}, ErrNotFound
	}
	q := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`
	return scanAssignment(p.db.QueryRowContext(ctx, q, id))
}

func (p *PostgresStore) ActiveForReport(ctx context.Context, reportID string) (Assignment, error) {
	if !utils.IsUUID(reportID) {
		return Assignment{}, ErrNotFound
	}
	q := `SELECT ` + assignmentColumns + ` FROM assignments WHERE report_id = $1 AND status <> 'resolved'`
	return scanAssignment(p.db.QueryRowContext(ctx, q, reportID))
}

func (p *PostgresStore) ListByCommander(ctx context.Context, commanderID string) ([]Assignment, error) {
	if !utils.IsUUID(commanderID) {
		return nil, nil
	}
	q := `SELECT ` + assignmentColumns + ` FROM assignments WHERE assigned_to_commander = $1 ORDER BY assigned_at DESC, id ASC`
	return p.query(ctx, q, commanderID)
}

func (p *PostgresStore) ListByReport(ctx context.Context, reportID string) ([]Assignment, error) {
	if !utils.IsUUID(reportID) {
		return nil, nil
	}
	q := `SELECT ` + assignmentColumns + ` FROM assignments WHERE report_id = $1 ORDER BY assigned_at DESC, id ASC`
	return p.query(ctx, q, reportID)
}

func (p *PostgresStore) query(ctx context.Context, q string, args ...any) ([]Assignment, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func reportIDOf(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	if !utils.IsUUID(id) {
		return "", ErrNotFound
	}
	const q = `SELECT report_id FROM assignments WHERE id = $1`
	var reportID string
	if err := tx.QueryRowContext(ctx, q, id).Scan(&reportID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return reportID, nil
}

func lockAssignment(ctx context.Context, tx *sql.Tx, id string) (Assignment, error) {
	q := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1 FOR UPDATE`
	return scanAssignment(tx.QueryRowContext(ctx, q, id))
}

func insertAssignment(ctx context.Context, tx *sql.Tx, a Assignment) error {
	q := `INSERT INTO assignments (` + assignmentColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20
)`
	_, err := tx.ExecContext(ctx, q, assignmentArgs(a)...)
	return err
}

func updateAssignment(ctx context.Context, tx *sql.Tx, a Assignment) error {
	const q = `
UPDATE assignments SET
  status = $2,
  accepted_at = $3,
  responded_at = $4,
  resolution_notes = $5,
  resolution_submitted_at = $6,
  resolved_by = $7,
  resolved_at = $8,
  casualties = $9,
  injured_personnel = $10,
  civilians_rescued = $11,
  weapons_recovered = $12,
  revision_reason = $13,
  revision_count = $14,
  updated_at = $15
WHERE id = $1
`
	res, err := tx.ExecContext(ctx, q,
		a.ID,
		a.Status,
		utils.NullTime(a.AcceptedAt),
		utils.NullTime(a.RespondedAt),
		utils.NullString(a.ResolutionNotes),
		utils.NullTime(a.ResolutionSubmittedAt),
		utils.NullString(a.ResolvedBy),
		utils.NullTime(a.ResolvedAt),
		nullInt(a.Casualties),
		nullInt(a.InjuredPersonnel),
		nullInt(a.CiviliansRescued),
		nullInt(a.WeaponsRecovered),
		utils.NullString(a.RevisionReason),
		a.RevisionCount,
		a.UpdatedAt,
	)
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

func assignmentArgs(a Assignment) []any {
	return []any{
		a.ID,
		a.ReportID,
		a.CommanderID,
		a.UnitID,
		a.AssignedBy,
		a.Status,
		a.AssignedAt,
		utils.NullTime(a.AcceptedAt),
		utils.NullTime(a.RespondedAt),
		utils.NullString(a.ResolutionNotes),
		utils.NullTime(a.ResolutionSubmittedAt),
		utils.NullString(a.ResolvedBy),
		utils.NullTime(a.ResolvedAt),
		nullInt(a.Casualties),
		nullInt(a.InjuredPersonnel),
		nullInt(a.CiviliansRescued),
		nullInt(a.WeaponsRecovered),
		utils.NullString(a.RevisionReason),
		a.RevisionCount,
		a.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (Assignment, error) {
	var (
		a                                     Assignment
		acceptedAt, respondedAt               sql.NullTime
		submittedAt, resolvedAt               sql.NullTime
		notes, resolvedBy, revisionReason     sql.NullString
		casualties, injured, rescued, weapons sql.NullInt64
	)
	if err := row.Scan(
		&a.ID,
		&a.ReportID,
		&a.CommanderID,
		&a.UnitID,
		&a.AssignedBy,
		&a.Status,
		&a.AssignedAt,
		&acceptedAt,
		&respondedAt,
		&notes,
		&submittedAt,
		&resolvedBy,
		&resolvedAt,
		&casualties,
		&injured,
		&rescued,
		&weapons,
		&revisionReason,
		&a.RevisionCount,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Assignment{}, ErrNotFound
		}
		return Assignment{}, err
	}
	a.AcceptedAt = utils.TimePtr(acceptedAt)
	a.RespondedAt = utils.TimePtr(respondedAt)
	a.ResolutionSubmittedAt = utils.TimePtr(submittedAt)
	a.ResolvedAt = utils.TimePtr(resolvedAt)
	a.ResolutionNotes = notes.String
	a.ResolvedBy = resolvedBy.String
	a.RevisionReason = revisionReason.String
	a.Casualties = scannedInt(casualties)
	a.InjuredPersonnel = scannedInt(injured)
	a.CiviliansRescued = scannedInt(rescued)
	a.WeaponsRecovered = scannedInt(weapons)
	return a, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func scannedInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
