package biometric

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"erlessed-biometric/internal/audit"
	"erlessed-biometric/internal/rbac"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Caller-facing messages. Infrastructure detail never leaves the service; it goes to the
// audit trail and the operational log.
const (
	MsgAlreadyRegistered    = "Fingerprint already exists for this patient"
	MsgRegisteredToOther    = "This fingerprint is already registered to another patient"
	MsgRegistrationFailed   = "Registration failed. Please try again."
	MsgNotRegistered        = "No fingerprint registered for this patient"
	MsgMismatch             = "Fingerprint mismatch"
	MsgVerificationFailed   = "Verification failed. Please try again."
	MsgTooManyAttempts      = "Too many failed attempts. Please try again later."
	MsgResetRequestFailed   = "Reset request failed. Please try again."
	MsgResetApprovalFailed  = "Reset approval failed. Please try again."
	MsgResetRejectionFailed = "Reset rejection failed. Please try again."
	MsgNoPendingReset       = "No pending reset request for this patient"
	MsgNotAuthorizedToReset = "Not authorized to resolve biometric reset requests"
	MsgInvalidRequest       = "Invalid biometric request"
)

type RegisterRequest struct {
	PatientID    string `validate:"required,max=128"`
	RawSample    string `validate:"required"`
	RegisteredBy string `validate:"required,max=128"`
	Role         string `validate:"max=64"`
	DeviceID     string `validate:"max=128"`
	IPAddress    string `validate:"max=64"`
	UserAgent    string `validate:"max=512"`
}

type VerifyRequest struct {
	PatientID string `validate:"required,max=128"`
	RawSample string `validate:"required"`
	UserID    string `validate:"required,max=128"`
	UserRole  string `validate:"max=64"`
	DeviceID  string `validate:"max=128"`
	IPAddress string `validate:"max=64"`
	UserAgent string `validate:"max=512"`
}

type ResetRequestInput struct {
	PatientID   string `validate:"required,max=128"`
	RequestedBy string `validate:"required,max=128"`
	Role        string `validate:"max=64"`
	Reason      string `validate:"required,max=1024"`
	IPAddress   string `validate:"max=64"`
	UserAgent   string `validate:"max=512"`
}

// ResolveResetRequest approves or rejects a reset. Role is checked against
// rbac.CapResolveReset before anything is written.
type ResolveResetRequest struct {
	PatientID string `validate:"required,max=128"`
	ResetBy   string `validate:"required,max=128"`
	Role      string `validate:"required,max=64"`
	IPAddress string `validate:"max=64"`
	UserAgent string `validate:"max=512"`
}

type RegisterResult struct {
	Success       bool   `json:"success"`
	FingerprintID string `json:"fingerprint_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

type VerifyResult struct {
	Success           bool   `json:"success"`
	VerificationScore *int   `json:"verification_score,omitempty"`
	Error             string `json:"error,omitempty"`
}

type ResetResult struct {
	Success        bool   `json:"success"`
	ResetRequestID string `json:"reset_request_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Service orchestrates registration, verification and resets.
//
// Public operations never return Go errors: every failure becomes a result with a fixed
// message. Each register/verify/reset call writes exactly one audit entry after its
// result is decided; a failed audit write is logged and does not change the result.
type Service struct {
	store    Store
	audit    *audit.Service
	log      *zap.Logger
	limiter  AttemptLimiter
	validate *validator.Validate
	clock    func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewService(store Store, auditSvc *audit.Service, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		audit:    auditSvc,
		log:      log.Named("biometric"),
		validate: validator.New(),
		clock:    time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock swaps the time source. Tests only.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// WithRand swaps the jitter source used by MatchScore.
func (s *Service) WithRand(rng *rand.Rand) *Service {
	s.rngMu.Lock()
	s.rng = rng
	s.rngMu.Unlock()
	return s
}

// WithLimiter enables the failed-attempt lockout. nil disables it.
func (s *Service) WithLimiter(l AttemptLimiter) *Service {
	s.limiter = l
	return s
}

/* ===================== REGISTER ===================== */

func (s *Service) Register(ctx context.Context, req RegisterRequest) RegisterResult {
	entry := audit.Entry{
		PatientID: req.PatientID,
		Action:    audit.ActionRegister,
		UserID:    req.RegisteredBy,
		UserRole:  req.Role,
		DeviceID:  req.DeviceID,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}

	res, details := s.register(ctx, req)
	entry.Details = details
	s.record(ctx, entry)
	return res
}

func (s *Service) register(ctx context.Context, req RegisterRequest) (RegisterResult, audit.Details) {
	if err := s.validate.Struct(req); err != nil {
		return RegisterResult{Error: MsgInvalidRequest}, failure(err.Error())
	}

	existing, err := s.store.FindActive(ctx, req.PatientID)
	if err != nil {
		s.log.Error("register: find active", zap.String("patient_id", req.PatientID), zap.Error(err))
		return RegisterResult{Error: MsgRegistrationFailed}, failure(err.Error())
	}
	if existing != nil {
		return RegisterResult{Error: MsgAlreadyRegistered}, failure(MsgAlreadyRegistered)
	}

	hash := Digest(req.RawSample)

	holder, err := s.store.FindActiveByHash(ctx, hash)
	if err != nil {
		s.log.Error("register: find by hash", zap.String("patient_id", req.PatientID), zap.Error(err))
		return RegisterResult{Error: MsgRegistrationFailed}, failure(err.Error())
	}
	if holder != nil && holder.PatientID != req.PatientID {
		d := failure(MsgRegisteredToOther)
		d[audit.KeyFingerprintHash] = hash
		return RegisterResult{Error: MsgRegisteredToOther}, d
	}

	rec := FingerprintRecord{
		ID:              uuid.NewString(),
		PatientID:       req.PatientID,
		FingerprintHash: hash,
		FingerprintData: req.RawSample,
		DeviceID:        req.DeviceID,
		RegisteredBy:    req.RegisteredBy,
		RegisteredAt:    s.clock().UTC(),
		Status:          RecordStatusActive,
		ResetRequests:   []ResetRequest{},
	}

	// The pre-checks above only pick the message; the store is what rejects a race loser.
	if err := s.store.Insert(ctx, rec); err != nil {
		switch {
		case errors.Is(err, ErrActiveRecordExists):
			return RegisterResult{Error: MsgAlreadyRegistered}, failure(MsgAlreadyRegistered)
		case errors.Is(err, ErrDuplicateHash):
			d := failure(MsgRegisteredToOther)
			d[audit.KeyFingerprintHash] = hash
			return RegisterResult{Error: MsgRegisteredToOther}, d
		default:
			s.log.Error("register: insert", zap.String("patient_id", req.PatientID), zap.Error(err))
			return RegisterResult{Error: MsgRegistrationFailed}, failure(err.Error())
		}
	}

	return RegisterResult{Success: true, FingerprintID: rec.ID}, audit.Details{
		audit.KeySuccess:         true,
		audit.KeyFingerprintHash: hash,
		audit.KeyFingerprintID:   rec.ID,
	}
}

/* ===================== VERIFY ===================== */

func (s *Service) Verify(ctx context.Context, req VerifyRequest) VerifyResult {
	entry := audit.Entry{
		PatientID: req.PatientID,
		UserID:    req.UserID,
		UserRole:  req.UserRole,
		DeviceID:  req.DeviceID,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}

	res, action, details := s.verify(ctx, req)
	entry.Action = action
	entry.Details = details
	s.record(ctx, entry)
	return res
}

func (s *Service) verify(ctx context.Context, req VerifyRequest) (VerifyResult, audit.Action, audit.Details) {
	if err := s.validate.Struct(req); err != nil {
		return VerifyResult{Error: MsgInvalidRequest}, audit.ActionVerificationFailed, failure(err.Error())
	}

	if s.limiter != nil {
		blocked, err := s.limiter.Blocked(ctx, req.PatientID)
		if err != nil {
			// Fail open.
			s.log.Warn("verify: attempt limiter unavailable", zap.String("patient_id", req.PatientID), zap.Error(err))
		} else if blocked {
			return VerifyResult{Error: MsgTooManyAttempts}, audit.ActionVerificationFailed, failure(MsgTooManyAttempts)
		}
	}

	rec, err := s.store.FindActive(ctx, req.PatientID)
	if err != nil {
		s.log.Error("verify: find active", zap.String("patient_id", req.PatientID), zap.Error(err))
		return VerifyResult{Error: MsgVerificationFailed}, audit.ActionVerificationFailed, failure(err.Error())
	}
	if rec == nil {
		return VerifyResult{Error: MsgNotRegistered}, audit.ActionVerificationFailed, failure(MsgNotRegistered)
	}

	provided := Digest(req.RawSample)
	score := s.score(rec.FingerprintHash, provided)
	matched := IsMatch(score)

	details := audit.Details{
		audit.KeySuccess:           matched,
		audit.KeyVerificationScore: score,
	}
	res := VerifyResult{Success: matched, VerificationScore: &score}
	if !matched {
		details[audit.KeyErrorMessage] = MsgMismatch
		res.Error = MsgMismatch
	}

	s.trackAttempt(ctx, req.PatientID, matched)
	return res, audit.ActionVerify, details
}

func (s *Service) score(stored, provided string) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return MatchScore(stored, provided, s.rng)
}

func (s *Service) trackAttempt(ctx context.Context, patientID string, matched bool) {
	if s.limiter == nil {
		return
	}
	if matched {
		if err := s.limiter.Reset(ctx, patientID); err != nil {
			s.log.Warn("verify: reset attempt counter", zap.String("patient_id", patientID), zap.Error(err))
		}
		return
	}
	n, err := s.limiter.RecordFailure(ctx, patientID)
	if err != nil {
		s.log.Warn("verify: record failed attempt", zap.String("patient_id", patientID), zap.Error(err))
		return
	}
	s.log.Info("verify: fingerprint mismatch", zap.String("patient_id", patientID), zap.Int("failed_attempts", n))
}

/* ===================== RESETS ===================== */

func (s *Service) RequestReset(ctx context.Context, req ResetRequestInput) ResetResult {
	entry := audit.Entry{
		PatientID: req.PatientID,
		Action:    audit.ActionResetRequest,
		UserID:    req.RequestedBy,
		UserRole:  req.Role,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}

	res, details := s.requestReset(ctx, req)
	entry.Details = details
	s.record(ctx, entry)
	return res
}

func (s *Service) requestReset(ctx context.Context, req ResetRequestInput) (ResetResult, audit.Details) {
	if err := s.validate.Struct(req); err != nil {
		return ResetResult{Error: MsgInvalidRequest}, failure(err.Error())
	}

	rr := ResetRequest{
		ID:          uuid.NewString(),
		RequestedBy: req.RequestedBy,
		RequestedAt: s.clock().UTC(),
		Reason:      req.Reason,
		Status:      ResetStatusPending,
	}
	if err := s.store.AppendResetRequest(ctx, req.PatientID, rr); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ResetResult{Error: MsgNotRegistered}, failure(MsgNotRegistered)
		}
		s.log.Error("reset request: append", zap.String("patient_id", req.PatientID), zap.Error(err))
		return ResetResult{Error: MsgResetRequestFailed}, failure(err.Error())
	}

	return ResetResult{Success: true, ResetRequestID: rr.ID}, audit.Details{
		audit.KeySuccess:        true,
		audit.KeyResetRequestID: rr.ID,
		audit.KeyReason:         rr.Reason,
	}
}

// ApproveReset archives the patient's active record. A new registration is needed
// before the patient can verify again.
func (s *Service) ApproveReset(ctx context.Context, req ResolveResetRequest) Result {
	res, details := s.resolve(ctx, req, func(now time.Time) (Result, audit.Details) {
		if err := s.store.Archive(ctx, req.PatientID, req.ResetBy, now); err != nil {
			if errors.Is(err, ErrNotFound) {
				return Result{Error: MsgNotRegistered}, failure(MsgNotRegistered)
			}
			s.log.Error("reset approval: archive", zap.String("patient_id", req.PatientID), zap.Error(err))
			return Result{Error: MsgResetApprovalFailed}, failure(err.Error())
		}
		return Result{Success: true}, audit.Details{audit.KeySuccess: true}
	})
	s.record(ctx, resolveEntry(req, audit.ActionResetApproved, details))
	return res
}

// RejectReset marks the pending reset requests on the active record rejected. The
// record stays active.
func (s *Service) RejectReset(ctx context.Context, req ResolveResetRequest) Result {
	res, details := s.resolve(ctx, req, func(now time.Time) (Result, audit.Details) {
		n, err := s.store.RejectResetRequests(ctx, req.PatientID, req.ResetBy, now)
		if err != nil {
			switch {
			case errors.Is(err, ErrNotFound):
				return Result{Error: MsgNotRegistered}, failure(MsgNotRegistered)
			case errors.Is(err, ErrNoPendingReset):
				return Result{Error: MsgNoPendingReset}, failure(MsgNoPendingReset)
			}
			s.log.Error("reset rejection: update", zap.String("patient_id", req.PatientID), zap.Error(err))
			return Result{Error: MsgResetRejectionFailed}, failure(err.Error())
		}
		return Result{Success: true}, audit.Details{audit.KeySuccess: true, "rejectedRequests": n}
	})
	s.record(ctx, resolveEntry(req, audit.ActionResetRejected, details))
	return res
}

func (s *Service) resolve(
	ctx context.Context,
	req ResolveResetRequest,
	apply func(now time.Time) (Result, audit.Details),
) (Result, audit.Details) {
	if err := s.validate.Struct(req); err != nil {
		return Result{Error: MsgInvalidRequest}, failure(err.Error())
	}
	if !rbac.Can(req.Role, rbac.CapResolveReset) {
		s.log.Warn("reset resolution denied",
			zap.String("patient_id", req.PatientID),
			zap.String("user_id", req.ResetBy),
			zap.String("role", req.Role),
		)
		return Result{Error: MsgNotAuthorizedToReset}, failure(MsgNotAuthorizedToReset)
	}
	return apply(s.clock().UTC())
}

func resolveEntry(req ResolveResetRequest, action audit.Action, details audit.Details) audit.Entry {
	return audit.Entry{
		PatientID: req.PatientID,
		Action:    action,
		UserID:    req.ResetBy,
		UserRole:  req.Role,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Details:   details,
	}
}

/* ===================== QUERIES ===================== */

// GetAuditLogs returns the patient's audit trail, newest first.
func (s *Service) GetAuditLogs(ctx context.Context, patientID string, limit int) ([]audit.Entry, error) {
	return s.audit.ListByPatient(ctx, patientID, limit)
}

// GetFingerprintInfo returns the active record without its raw template, or nil.
func (s *Service) GetFingerprintInfo(ctx context.Context, patientID string) (*FingerprintInfo, error) {
	rec, err := s.store.FindActive(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return rec.Info(), nil
}

/* ===================== AUDIT ===================== */

// record appends e and only logs on failure. The write detaches from request
// cancellation so a client hang-up does not drop the entry.
func (s *Service) record(ctx context.Context, e audit.Entry) {
	if err := s.audit.Append(context.WithoutCancel(ctx), e); err != nil {
		s.log.Error("audit append failed",
			zap.String("patient_id", e.PatientID),
			zap.String("action", string(e.Action)),
			zap.Bool("success", e.Details.Success()),
			zap.Error(err),
		)
	}
}

func failure(msg string) audit.Details {
	return audit.Details{
		audit.KeySuccess:      false,
		audit.KeyErrorMessage: msg,
	}
}
