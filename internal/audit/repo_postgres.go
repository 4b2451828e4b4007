package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"incident-portal/pkg/utils"
)

// PostgresRepo stores entries in audit_logs and links them to reports through
// audit_log_reports. Both rows are written in one transaction.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Entry) error {
	oldJSON, err := marshalValues(e.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := marshalValues(e.NewValues)
	if err != nil {
		return err
	}

	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO audit_logs (
  id, entity_type, entity_id, action_type, actor_id, actor_type,
  old_values, new_values, severity_level, is_sensitive, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
`
		if _, err := tx.ExecContext(ctx, q,
			e.ID,
			e.EntityType,
			e.EntityID,
			e.ActionType,
			utils.NullString(e.ActorID),
			e.ActorType,
			oldJSON,
			newJSON,
			e.SeverityLevel,
			e.IsSensitive,
			e.CreatedAt,
		); err != nil {
			return err
		}
		if e.ReportID == "" {
			return nil
		}
		const link = `
INSERT INTO audit_log_reports (audit_log_id, report_id)
VALUES ($1,$2)
`
		_, err := tx.ExecContext(ctx, link, e.ID, e.ReportID)
		return err
	})
}

func (r *PostgresRepo) ListByReport(ctx context.Context, reportID string) ([]Entry, error) {
	if !utils.IsUUID(reportID) {
		return nil, nil
	}
	const q = `
SELECT l.id, l.entity_type, l.entity_id, l.action_type, l.actor_id, l.actor_type,
       l.old_values, l.new_values, l.severity_level, l.is_sensitive, l.created_at
FROM audit_logs l
JOIN audit_log_reports lr ON lr.audit_log_id = l.id
WHERE lr.report_id = $1
ORDER BY l.created_at ASC, l.id ASC
`
	rows, err := r.db.QueryContext(ctx, q, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			actorID  sql.NullString
			oldBytes []byte
			newBytes []byte
		)
		if err := rows.Scan(
			&e.ID,
			&e.EntityType,
			&e.EntityID,
			&e.ActionType,
			&actorID,
			&e.ActorType,
			&oldBytes,
			&newBytes,
			&e.SeverityLevel,
			&e.IsSensitive,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.ActorID = actorID.String
		e.ReportID = reportID
		if e.OldValues, err = unmarshalValues(oldBytes); err != nil {
			return nil, err
		}
		if e.NewValues, err = unmarshalValues(newBytes); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalValues(v map[string]any) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalValues(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
