package biometric

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"erlessed-biometric/pkg/utils"
)

// PostgresStore persists fingerprints in Postgres.
//
// NOTE: relies on the partial unique indexes created by internal/migrate:
//
//	fingerprints_active_patient_uq ON fingerprints (patient_id) WHERE status = 'active'
//	fingerprints_active_hash_uq    ON fingerprints (fingerprint_hash) WHERE status = 'active'
//
// Reset requests live in fingerprint_reset_requests keyed by fingerprint_id.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectRecordCols = `
SELECT id, patient_id, fingerprint_hash, fingerprint_data, device_id, registered_by,
       registered_at, status, archived_at, archived_by
FROM fingerprints
`

func (s *PostgresStore) FindActive(ctx context.Context, patientID string) (*FingerprintRecord, error) {
	return s.findOne(ctx, selectRecordCols+`WHERE patient_id = $1 AND status = 'active'`, patientID)
}

func (s *PostgresStore) FindActiveByHash(ctx context.Context, hash string) (*FingerprintRecord, error) {
	return s.findOne(ctx, selectRecordCols+`WHERE fingerprint_hash = $1 AND status = 'active'`, hash)
}

func (s *PostgresStore) findOne(ctx context.Context, q string, arg string) (*FingerprintRecord, error) {
	var (
		r          FingerprintRecord
		deviceID   sql.NullString
		archivedAt sql.NullTime
		archivedBy sql.NullString
	)
	err := s.db.QueryRowContext(ctx, q, arg).Scan(
		&r.ID,
		&r.PatientID,
		&r.FingerprintHash,
		&r.FingerprintData,
		&deviceID,
		&r.RegisteredBy,
		&r.RegisteredAt,
		&r.Status,
		&archivedAt,
		&archivedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find fingerprint: %w", err)
	}
	r.DeviceID = deviceID.String
	r.ArchivedBy = archivedBy.String
	if archivedAt.Valid {
		t := archivedAt.Time
		r.ArchivedAt = &t
	}

	reqs, err := s.listResetRequests(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.ResetRequests = reqs
	return &r, nil
}

func (s *PostgresStore) listResetRequests(ctx context.Context, fingerprintID string) ([]ResetRequest, error) {
	const q = `
SELECT id, requested_by, requested_at, reason, status, approved_by, approved_at, rejected_by, rejected_at
FROM fingerprint_reset_requests
WHERE fingerprint_id = $1
ORDER BY requested_at ASC, id ASC
`
	rows, err := s.db.QueryContext(ctx, q, fingerprintID)
	if err != nil {
		return nil, fmt.Errorf("list reset requests: %w", err)
	}
	defer rows.Close()

	out := make([]ResetRequest, 0)
	for rows.Next() {
		var (
			rr         ResetRequest
			approvedBy sql.NullString
			approvedAt sql.NullTime
			rejectedBy sql.NullString
			rejectedAt sql.NullTime
		)
		if err := rows.Scan(
			&rr.ID,
			&rr.RequestedBy,
			&rr.RequestedAt,
			&rr.Reason,
			&rr.Status,
			&approvedBy,
			&approvedAt,
			&rejectedBy,
			&rejectedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reset request: %w", err)
		}
		rr.ApprovedBy = approvedBy.String
		rr.RejectedBy = rejectedBy.String
		if approvedAt.Valid {
			t := approvedAt.Time
			rr.ApprovedAt = &t
		}
		if rejectedAt.Valid {
			t := rejectedAt.Time
			rr.RejectedAt = &t
		}
		out = append(out, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reset requests: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec FingerprintRecord) error {
	const q = `
INSERT INTO fingerprints (
  id, patient_id, fingerprint_hash, fingerprint_data, device_id, registered_by, registered_at, status
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`
	_, err := s.db.ExecContext(ctx, q,
		rec.ID,
		rec.PatientID,
		rec.FingerprintHash,
		rec.FingerprintData,
		nullIfEmpty(rec.DeviceID),
		rec.RegisteredBy,
		rec.RegisteredAt,
		rec.Status,
	)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (s *PostgresStore) Archive(ctx context.Context, patientID, archivedBy string, archivedAt time.Time) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const archive = `
UPDATE fingerprints
SET status = 'archived', archived_at = $2, archived_by = $3
WHERE patient_id = $1 AND status = 'active'
RETURNING id
`
		var id string
		if err := tx.QueryRowContext(ctx, archive, patientID, archivedAt, archivedBy).Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("archive fingerprint: %w", err)
		}

		const approve = `
UPDATE fingerprint_reset_requests
SET status = 'approved', approved_by = $2, approved_at = $3
WHERE fingerprint_id = $1 AND status = 'pending'
`
		if _, err := tx.ExecContext(ctx, approve, id, archivedBy, archivedAt); err != nil {
			return fmt.Errorf("approve reset requests: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) AppendResetRequest(ctx context.Context, patientID string, req ResetRequest) error {
	// Single statement: the request only lands if an active record exists at write time.
	const q = `
INSERT INTO fingerprint_reset_requests (id, fingerprint_id, requested_by, requested_at, reason, status)
SELECT $2, f.id, $3, $4, $5, $6
FROM fingerprints f
WHERE f.patient_id = $1 AND f.status = 'active'
`
	res, err := s.db.ExecContext(ctx, q, patientID, req.ID, req.RequestedBy, req.RequestedAt, req.Reason, req.Status)
	if err != nil {
		return fmt.Errorf("append reset request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append reset request: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RejectResetRequests(ctx context.Context, patientID, rejectedBy string, rejectedAt time.Time) (int, error) {
	const q = `
WITH active AS (
  SELECT id FROM fingerprints WHERE patient_id = $1 AND status = 'active'
), rejected AS (
  UPDATE fingerprint_reset_requests r
  SET status = 'rejected', rejected_by = $2, rejected_at = $3
  FROM active a
  WHERE r.fingerprint_id = a.id AND r.status = 'pending'
  RETURNING r.id
)
SELECT (SELECT count(*) FROM active), (SELECT count(*) FROM rejected)
`
	var active, n int
	if err := s.db.QueryRowContext(ctx, q, patientID, rejectedBy, rejectedAt).Scan(&active, &n); err != nil {
		return 0, fmt.Errorf("reject reset requests: %w", err)
	}
	switch {
	case active == 0:
		return 0, ErrNotFound
	case n == 0:
		return 0, ErrNoPendingReset
	}
	return n, nil
}

// mapUniqueViolation turns a unique_violation on one of the active-record indexes
// into the matching sentinel error.
func mapUniqueViolation(err error) error {
	if constraint, ok := utils.UniqueViolation(err); ok {
		switch constraint {
		case activePatientIndex:
			return ErrActiveRecordExists
		case activeHashIndex:
			return ErrDuplicateHash
		}
	}
	return fmt.Errorf("insert fingerprint: %w", err)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
