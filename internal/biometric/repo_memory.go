package biometric

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process. Uniqueness checks and writes happen under one
// lock, so it honours the same atomic contract as the database stores.
// Intended for tests and STORE_DRIVER=memory in local environments.
type MemoryStore struct {
	mu      sync.Mutex
	records []FingerprintRecord
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) FindActive(ctx context.Context, patientID string) (*FingerprintRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.activeIndex(patientID); i >= 0 {
		return cloneRecord(s.records[i]), nil
	}
	return nil, nil
}

func (s *MemoryStore) FindActiveByHash(ctx context.Context, hash string) (*FingerprintRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Status == RecordStatusActive && r.FingerprintHash == hash {
			return cloneRecord(r), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Insert(ctx context.Context, rec FingerprintRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Status == RecordStatusActive {
		for _, r := range s.records {
			if r.Status != RecordStatusActive {
				continue
			}
			if r.PatientID == rec.PatientID {
				return ErrActiveRecordExists
			}
			if r.FingerprintHash == rec.FingerprintHash {
				return ErrDuplicateHash
			}
		}
	}
	s.records = append(s.records, *cloneRecord(rec))
	return nil
}

func (s *MemoryStore) Archive(ctx context.Context, patientID, archivedBy string, archivedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.activeIndex(patientID)
	if i < 0 {
		return ErrNotFound
	}
	r := &s.records[i]
	at := archivedAt
	r.Status = RecordStatusArchived
	r.ArchivedAt = &at
	r.ArchivedBy = archivedBy
	for j := range r.ResetRequests {
		if r.ResetRequests[j].Status == ResetStatusPending {
			r.ResetRequests[j].Status = ResetStatusApproved
			r.ResetRequests[j].ApprovedBy = archivedBy
			r.ResetRequests[j].ApprovedAt = &at
		}
	}
	return nil
}

func (s *MemoryStore) AppendResetRequest(ctx context.Context, patientID string, req ResetRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.activeIndex(patientID)
	if i < 0 {
		return ErrNotFound
	}
	s.records[i].ResetRequests = append(s.records[i].ResetRequests, req)
	return nil
}

func (s *MemoryStore) RejectResetRequests(ctx context.Context, patientID, rejectedBy string, rejectedAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.activeIndex(patientID)
	if i < 0 {
		return 0, ErrNotFound
	}
	n := s.records[i].PendingResets()
	if n == 0 {
		return 0, ErrNoPendingReset
	}
	at := rejectedAt
	reqs := s.records[i].ResetRequests
	for j := range reqs {
		if reqs[j].Status == ResetStatusPending {
			reqs[j].Status = ResetStatusRejected
			reqs[j].RejectedBy = rejectedBy
			reqs[j].RejectedAt = &at
		}
	}
	return n, nil
}

// Records returns a copy of every record, archived ones included.
func (s *MemoryStore) Records() []FingerprintRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FingerprintRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *cloneRecord(r))
	}
	return out
}

func (s *MemoryStore) activeIndex(patientID string) int {
	for i, r := range s.records {
		if r.PatientID == patientID && r.Status == RecordStatusActive {
			return i
		}
	}
	return -1
}

func cloneRecord(r FingerprintRecord) *FingerprintRecord {
	out := r
	if r.ResetRequests != nil {
		out.ResetRequests = make([]ResetRequest, len(r.ResetRequests))
		copy(out.ResetRequests, r.ResetRequests)
	}
	return &out
}
