package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"incident-portal/internal/lifecycle"
	"incident-portal/pkg/utils"
)

// NOTE: This repository assumes the reports table from internal/schema,
// including UNIQUE (serial_number) named reports_serial_number_key.
// images/videos/documents/metadata are JSONB.

const serialConstraint = "reports_serial_number_key"

const reportColumns = `id, serial_number, description, threat_type, state, lga, channel,
       latitude, longitude, manual_location, status, urgency, validation_status,
       is_anonymous, reporter_name, reporter_contact, images, videos, documents,
       metadata, created_at, updated_at`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (p *PostgresRepo) Insert(ctx context.Context, r Report) error {
	images, err := json.Marshal(nonNil(r.Images))
	if err != nil {
		return err
	}
	videos, err := json.Marshal(nonNil(r.Videos))
	if err != nil {
		return err
	}
	documents, err := json.Marshal(nonNil(r.Documents))
	if err != nil {
		return err
	}
	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO reports (
  id, serial_number, description, threat_type, state, lga, channel,
  latitude, longitude, manual_location, status, urgency, validation_status,
  is_anonymous, reporter_name, reporter_contact, images, videos, documents,
  metadata, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22
)
`
	_, err = p.db.ExecContext(ctx, q,
		r.ID,
		r.SerialNumber,
		r.Description,
		r.ThreatType,
		r.State,
		utils.NullString(r.LGA),
		r.Channel,
		nullFloat(r.Latitude),
		nullFloat(r.Longitude),
		utils.NullString(r.ManualLocation),
		r.Status,
		r.Urgency,
		r.ValidationStatus,
		r.IsAnonymous,
		nullStringPtr(r.ReporterName),
		nullStringPtr(r.ReporterContact),
		images,
		videos,
		documents,
		meta,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if utils.IsUniqueViolation(err, serialConstraint) {
		return ErrDuplicateSerial
	}
	return err
}

func (p *PostgresRepo) SerialExists(ctx context.Context, serial string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM reports WHERE serial_number = $1)`
	var exists bool
	if err := p.db.QueryRowContext(ctx, q, serial).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (p *PostgresRepo) Get(ctx context.Context, id string) (Report, error) {
	if !utils.IsUUID(id) {
		return Report{}, ErrNotFound
	}
	q := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	return scanReport(p.db.QueryRowContext(ctx, q, id))
}

func (p *PostgresRepo) GetBySerial(ctx context.Context, serial string) (Report, error) {
	q := `SELECT ` + reportColumns + ` FROM reports WHERE serial_number = $1`
	return scanReport(p.db.QueryRowContext(ctx, q, serial))
}

func (p *PostgresRepo) List(ctx context.Context, f ListFilter) ([]Report, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Urgency != "" {
		args = append(args, f.Urgency)
		where = append(where, fmt.Sprintf("urgency = $%d", len(args)))
	}
	if f.State != "" {
		args = append(args, f.State)
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}

	q := `SELECT ` + reportColumns + ` FROM reports`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LockForUpdate loads a report row and locks it for the rest of tx.
// It serializes concurrent assignment attempts on the same report.
func LockForUpdate(ctx context.Context, tx *sql.Tx, id string) (Report, error) {
	if !utils.IsUUID(id) {
		return Report{}, ErrNotFound
	}
	q := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1 FOR UPDATE`
	return scanReport(tx.QueryRowContext(ctx, q, id))
}

// UpdateStatusTx moves a report's status inside tx.
func UpdateStatusTx(ctx context.Context, tx *sql.Tx, id string, status lifecycle.ReportStatus, now time.Time) error {
	const q = `UPDATE reports SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := tx.ExecContext(ctx, q, id, status, now)
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

func scanReport(row rowScanner) (Report, error) {
	var (
		r                         Report
		lga, manual               sql.NullString
		lat, lng                  sql.NullFloat64
		name, contact             sql.NullString
		images, videos, documents []byte
		meta                      []byte
	)
	if err := row.Scan(
		&r.ID,
		&r.SerialNumber,
		&r.Description,
		&r.ThreatType,
		&r.State,
		&lga,
		&r.Channel,
		&lat,
		&lng,
		&manual,
		&r.Status,
		&r.Urgency,
		&r.ValidationStatus,
		&r.IsAnonymous,
		&name,
		&contact,
		&images,
		&videos,
		&documents,
		&meta,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Report{}, ErrNotFound
		}
		return Report{}, err
	}
	r.LGA = lga.String
	r.ManualLocation = manual.String
	r.Latitude = floatPtr(lat)
	r.Longitude = floatPtr(lng)
	r.ReporterName = stringPtr(name)
	r.ReporterContact = stringPtr(contact)

	for _, f := range []struct {
		raw []byte
		dst *[]string
	}{{images, &r.Images}, {videos, &r.Videos}, {documents, &r.Documents}} {
		if len(f.raw) == 0 {
			*f.dst = []string{}
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return Report{}, fmt.Errorf("reports: decode attachments: %w", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return Report{}, fmt.Errorf("reports: decode metadata: %w", err)
		}
	}
	return r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
