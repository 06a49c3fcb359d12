package biometric

import "time"

// FingerprintRecord is one enrolled biometric template for a patient.
//
// Invariants:
// - At most one record per patient has status active.
// - No two active records share a FingerprintHash, regardless of patient.
// - An archived record is never reactivated; re-enrollment creates a new record.
//
// Storage enforces both uniqueness rules (partial unique indexes on status = active).
type FingerprintRecord struct {
	ID        string `json:"id" db:"id" bson:"_id"`
	PatientID string `json:"patient_id" db:"patient_id" bson:"patientId"`

	FingerprintHash string `json:"fingerprint_hash" db:"fingerprint_hash" bson:"fingerprintHash"`
	// FingerprintData is the raw template kept for comparison. Sensitive: never log it
	// and never return it to callers.
	FingerprintData string `json:"-" db:"fingerprint_data" bson:"fingerprintData"`

	DeviceID     string    `json:"device_id,omitempty" db:"device_id" bson:"deviceId"`
	RegisteredBy string    `json:"registered_by" db:"registered_by" bson:"registeredBy"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at" bson:"registeredAt"`

	Status RecordStatus `json:"status" db:"status" bson:"status"`

	ArchivedAt *time.Time `json:"archived_at,omitempty" db:"archived_at" bson:"archivedAt,omitempty"`
	ArchivedBy string     `json:"archived_by,omitempty" db:"archived_by" bson:"archivedBy,omitempty"`

	ResetRequests []ResetRequest `json:"reset_requests" db:"-" bson:"resetRequests"`
}

type RecordStatus string

const (
	RecordStatusActive       RecordStatus = "active"
	RecordStatusArchived     RecordStatus = "archived"
	RecordStatusPendingReset RecordStatus = "pending_reset"
)

// ResetRequest is appended to the active record and resolved by a privileged actor.
type ResetRequest struct {
	ID          string    `json:"id" db:"id" bson:"id"`
	RequestedBy string    `json:"requested_by" db:"requested_by" bson:"requestedBy"`
	RequestedAt time.Time `json:"requested_at" db:"requested_at" bson:"requestedAt"`
	Reason      string    `json:"reason" db:"reason" bson:"reason"`

	Status ResetStatus `json:"status" db:"status" bson:"status"`

	// Set only on approval.
	ApprovedBy string     `json:"approved_by,omitempty" db:"approved_by" bson:"approvedBy,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty" db:"approved_at" bson:"approvedAt,omitempty"`

	// Set only on rejection.
	RejectedBy string     `json:"rejected_by,omitempty" db:"rejected_by" bson:"rejectedBy,omitempty"`
	RejectedAt *time.Time `json:"rejected_at,omitempty" db:"rejected_at" bson:"rejectedAt,omitempty"`
}

type ResetStatus string

const (
	ResetStatusPending  ResetStatus = "pending"
	ResetStatusApproved ResetStatus = "approved"
	ResetStatusRejected ResetStatus = "rejected"
)

// FingerprintInfo is the caller-facing view of a record. It never carries the raw template.
type FingerprintInfo struct {
	ID              string         `json:"id"`
	PatientID       string         `json:"patient_id"`
	FingerprintHash string         `json:"fingerprint_hash"`
	DeviceID        string         `json:"device_id,omitempty"`
	RegisteredBy    string         `json:"registered_by"`
	RegisteredAt    time.Time      `json:"registered_at"`
	Status          RecordStatus   `json:"status"`
	ResetRequests   []ResetRequest `json:"reset_requests"`
}

func (r *FingerprintRecord) Info() *FingerprintInfo {
	if r == nil {
		return nil
	}
	reqs := make([]ResetRequest, len(r.ResetRequests))
	copy(reqs, r.ResetRequests)
	return &FingerprintInfo{
		ID:              r.ID,
		PatientID:       r.PatientID,
		FingerprintHash: r.FingerprintHash,
		DeviceID:        r.DeviceID,
		RegisteredBy:    r.RegisteredBy,
		RegisteredAt:    r.RegisteredAt,
		Status:          r.Status,
		ResetRequests:   reqs,
	}
}

// PendingResets counts the reset requests on the record that are still pending.
func (r *FingerprintRecord) PendingResets() int {
	n := 0
	for _, rr := range r.ResetRequests {
		if rr.Status == ResetStatusPending {
			n++
		}
	}
	return n
}
