package reporting

import (
	"context"
	"errors"

	"erlessed-biometric/internal/audit"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// EntrySource is the read side of the audit trail. *audit.Service satisfies it.
type EntrySource interface {
	ListByPatient(ctx context.Context, patientID string, limit int) ([]audit.Entry, error)
}

type Service struct {
	src EntrySource
}

func NewService(src EntrySource) *Service { return &Service{src: src} }

// VerificationSummary folds the patient's audit trail into counters.
// verify entries count as attempts; verification_failed entries (no record, lockout,
// infrastructure errors) count as failed attempts without a score.
func (s *Service) VerificationSummary(ctx context.Context, req VerificationSummaryRequest) (VerificationSummary, error) {
	if req.PatientID == "" {
		return VerificationSummary{}, ErrInvalidRequest
	}
	if !req.Range.From.IsZero() && !req.Range.To.IsZero() && !req.Range.To.After(req.Range.From) {
		return VerificationSummary{}, ErrInvalidRequest
	}
	if s.src == nil {
		return VerificationSummary{}, errors.New("reporting: entry source not configured")
	}

	entries, err := s.src.ListByPatient(ctx, req.PatientID, req.Limit)
	if err != nil {
		return VerificationSummary{}, err
	}

	out := VerificationSummary{PatientID: req.PatientID, ByAction: map[audit.Action]int{}}
	var (
		scoreSum   float64
		scoreCount int
		resolved   bool
	)
	// entries arrive newest first, so the first hit for each "last" field wins.
	for _, e := range entries {
		if !inRange(req.Range, e) {
			continue
		}
		out.EntriesScanned++
		out.ByAction[e.Action]++

		ts := e.Timestamp
		ok := e.Details.Success()
		switch e.Action {
		case audit.ActionVerify, audit.ActionVerificationFailed:
			out.VerificationsAttempted++
			if ok {
				out.VerificationsSucceeded++
				if out.LastSuccessfulVerification == nil {
					out.LastSuccessfulVerification = &ts
				}
			} else {
				out.VerificationsFailed++
				if out.LastFailedVerification == nil {
					out.LastFailedVerification = &ts
				}
			}
			if v, has := score(e.Details); has {
				scoreSum += v
				scoreCount++
			}
		case audit.ActionRegister:
			if ok && out.LastRegistration == nil {
				out.LastRegistration = &ts
			}
		case audit.ActionResetRequest:
			if ok && !resolved {
				out.PendingResetRequests++
			}
		case audit.ActionResetApproved, audit.ActionResetRejected:
			// A resolution closes every request made before it.
			if ok {
				resolved = true
			}
		}
	}

	if out.VerificationsAttempted > 0 {
		out.SuccessRate = float64(out.VerificationsSucceeded) / float64(out.VerificationsAttempted)
	}
	if scoreCount > 0 {
		out.AverageVerificationScore = scoreSum / float64(scoreCount)
	}
	return out, nil
}

func inRange(r TimeRange, e audit.Entry) bool {
	if !r.From.IsZero() && e.Timestamp.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !e.Timestamp.Before(r.To) {
		return false
	}
	return true
}

// score reads verificationScore whatever numeric type the store decoded it as.
func score(d audit.Details) (float64, bool) {
	switch v := d[audit.KeyVerificationScore].(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
