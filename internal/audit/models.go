package audit

import "time"

// Entry is an immutable, append-only record of one biometric action.
//
// Invariants:
// - Entries are never updated or deleted.
// - patient_id and action are required.
// - Every register / verify / reset call writes exactly one entry, whatever its outcome.
//
// Storage (Postgres): table biometric_audit_logs, INSERT-only (trigger rejects UPDATE/DELETE).
// Storage (Mongo): collection biometric_audit_logs.
type Entry struct {
	// ID is a time-ordered (v7) uuid assigned by Service.Append.
	ID        string `json:"id" db:"id" bson:"_id"`
	PatientID string `json:"patient_id" db:"patient_id" bson:"patientId"`
	Action    Action `json:"action" db:"action" bson:"action"`

	// UserID is the authenticated actor; UserRole is the role at the time of the action.
	UserID   string `json:"user_id" db:"user_id" bson:"userId"`
	UserRole string `json:"user_role" db:"user_role" bson:"userRole"`

	DeviceID  string `json:"device_id,omitempty" db:"device_id" bson:"deviceId,omitempty"`
	IPAddress string `json:"ip_address" db:"ip_address" bson:"ipAddress"`
	UserAgent string `json:"user_agent" db:"user_agent" bson:"userAgent"`

	Timestamp time.Time `json:"timestamp" db:"timestamp" bson:"timestamp"`

	// Details always carries "success"; failures add "errorMessage", verifications add
	// "verificationScore". Stored as JSONB / embedded document.
	Details Details `json:"details" db:"details" bson:"details"`
}

type Action string

const (
	ActionRegister           Action = "register"
	ActionVerify             Action = "verify"
	ActionVerificationFailed Action = "verification_failed"
	ActionResetRequest       Action = "reset_request"
	ActionResetApproved      Action = "reset_approved"
	ActionResetRejected      Action = "reset_rejected"
)

func (a Action) Valid() bool {
	switch a {
	case ActionRegister, ActionVerify, ActionVerificationFailed,
		ActionResetRequest, ActionResetApproved, ActionResetRejected:
		return true
	default:
		return false
	}
}

// Details keys.
const (
	KeySuccess           = "success"
	KeyErrorMessage      = "errorMessage"
	KeyVerificationScore = "verificationScore"
	KeyFingerprintHash   = "fingerprintHash"
	KeyFingerprintID     = "fingerprintId"
	KeyResetRequestID    = "resetRequestId"
	KeyReason            = "reason"
)

type Details map[string]any

// Success reads the success flag; a missing or non-bool flag counts as failure.
func (d Details) Success() bool {
	v, ok := d[KeySuccess].(bool)
	return ok && v
}
