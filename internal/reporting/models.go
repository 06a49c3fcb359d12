package reporting

import (
	"time"

	"erlessed-biometric/internal/audit"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// VerificationSummaryRequest asks for aggregated biometric activity for one patient.
// Range is optional; a zero range covers everything the audit trail returns.
type VerificationSummaryRequest struct {
	PatientID string    `json:"patient_id"`
	Range     TimeRange `json:"range"`
	// Limit caps how many audit entries are scanned, newest first.
	Limit int `json:"limit,omitempty"`
}

type VerificationSummary struct {
	PatientID string `json:"patient_id"`

	EntriesScanned int                  `json:"entries_scanned"`
	ByAction       map[audit.Action]int `json:"by_action"`

	VerificationsAttempted   int     `json:"verifications_attempted"`
	VerificationsSucceeded   int     `json:"verifications_succeeded"`
	VerificationsFailed      int     `json:"verifications_failed"`
	SuccessRate              float64 `json:"success_rate"`
	AverageVerificationScore float64 `json:"average_verification_score"`

	LastSuccessfulVerification *time.Time `json:"last_successful_verification,omitempty"`
	LastFailedVerification     *time.Time `json:"last_failed_verification,omitempty"`
	LastRegistration           *time.Time `json:"last_registration,omitempty"`

	PendingResetRequests int `json:"pending_reset_requests"`
}
