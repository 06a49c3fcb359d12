package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit entries.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	// ListByPatient returns at most limit entries, newest first.
	ListByPatient(ctx context.Context, patientID string, limit int) ([]Entry, error)
}

// Service records biometric audit entries.
//
// Callers treat Append as best-effort: a failed write is reported, never allowed to
// change the outcome of the biometric action it describes.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// WithClock swaps the time source. Tests only.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

var (
	ErrInvalidEntry   = errors.New("audit: invalid entry")
	ErrInvalidRequest = errors.New("audit: invalid request")
)

func (s *Service) Append(ctx context.Context, e Entry) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.PatientID == "" {
		return ErrInvalidEntry
	}
	if !e.Action.Valid() {
		return ErrInvalidEntry
	}

	if e.ID == "" {
		// v7 ids sort in append order, also within one millisecond; stores that only
		// keep millisecond timestamps break ties on the id.
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("audit: entry id: %w", err)
		}
		e.ID = id.String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock().UTC()
	}
	details := make(Details, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	e.Details = details
	if _, ok := e.Details[KeySuccess]; !ok {
		e.Details[KeySuccess] = false
	}
	return s.repo.Append(ctx, e)
}

// ListByPatient returns the patient's entries newest first. limit <= 0 means
// DefaultListLimit; larger values are capped at MaxListLimit.
func (s *Service) ListByPatient(ctx context.Context, patientID string, limit int) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if patientID == "" {
		return nil, ErrInvalidRequest
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.repo.ListByPatient(ctx, patientID, limit)
}
