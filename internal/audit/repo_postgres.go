package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresRepo appends to biometric_audit_logs. The table is INSERT-only; the
// migration installs a trigger that rejects UPDATE and DELETE.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}

	const q = `
INSERT INTO biometric_audit_logs (
  id, patient_id, action, user_id, user_role, device_id, ip_address, user_agent, timestamp, details
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err = r.db.ExecContext(ctx, q,
		e.ID,
		e.PatientID,
		e.Action,
		e.UserID,
		e.UserRole,
		e.DeviceID,
		e.IPAddress,
		e.UserAgent,
		e.Timestamp,
		details,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *PostgresRepo) ListByPatient(ctx context.Context, patientID string, limit int) ([]Entry, error) {
	const q = `
SELECT id, patient_id, action, user_id, user_role, device_id, ip_address, user_agent, timestamp, details
FROM biometric_audit_logs
WHERE patient_id = $1
ORDER BY timestamp DESC, seq DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var (
			e       Entry
			details []byte
		)
		if err := rows.Scan(
			&e.ID,
			&e.PatientID,
			&e.Action,
			&e.UserID,
			&e.UserRole,
			&e.DeviceID,
			&e.IPAddress,
			&e.UserAgent,
			&e.Timestamp,
			&details,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return out, nil
}
