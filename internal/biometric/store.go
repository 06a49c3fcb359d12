package biometric

import (
	"context"
	"errors"
	"time"
)

// Store is the persistence contract for fingerprint records.
//
// Uniqueness is the store's job, not the caller's: Insert must reject a second active
// record for a patient (ErrActiveRecordExists) and an active hash already held by any
// record (ErrDuplicateHash) atomically. Callers may pre-check for nicer messages, but
// the losing insert of a race is always rejected here.
type Store interface {
	// FindActive returns (nil, nil) when the patient has no active record.
	FindActive(ctx context.Context, patientID string) (*FingerprintRecord, error)
	// FindActiveByHash returns (nil, nil) when no active record carries hash.
	FindActiveByHash(ctx context.Context, hash string) (*FingerprintRecord, error)
	Insert(ctx context.Context, rec FingerprintRecord) error
	// Archive flips the patient's active record to archived and stamps pending
	// reset requests as approved by the same actor.
	Archive(ctx context.Context, patientID, archivedBy string, archivedAt time.Time) error
	AppendResetRequest(ctx context.Context, patientID string, req ResetRequest) error
	// RejectResetRequests marks every pending request on the active record as rejected
	// and returns how many were changed. ErrNotFound when the patient has no active
	// record, ErrNoPendingReset when the record has nothing pending.
	RejectResetRequests(ctx context.Context, patientID, rejectedBy string, rejectedAt time.Time) (int, error)
}

var (
	ErrActiveRecordExists = errors.New("biometric: active fingerprint already exists for patient")
	ErrDuplicateHash      = errors.New("biometric: fingerprint hash already registered")
	ErrNotFound           = errors.New("biometric: no active fingerprint")
	ErrNoPendingReset     = errors.New("biometric: no pending reset request")
)

// Constraint/index names shared by the Postgres schema and the Mongo indexes.
const (
	activePatientIndex = "fingerprints_active_patient_uq"
	activeHashIndex    = "fingerprints_active_hash_uq"
)
