package biometric

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordCols = []string{
	"id", "patient_id", "fingerprint_hash", "fingerprint_data", "device_id", "registered_by",
	"registered_at", "status", "archived_at", "archived_by",
}

var resetCols = []string{
	"id", "requested_by", "requested_at", "reason", "status", "approved_by", "approved_at", "rejected_by", "rejected_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStore_FindActive(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE patient_id = $1 AND status = 'active'")).
		WithArgs("P1").
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow("f1", "P1", "h1", "raw", nil, "U1", at, "active", nil, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM fingerprint_reset_requests")).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows(resetCols).
			AddRow("r1", "U1", at, "device lost", "pending", nil, nil, nil, nil))

	rec, err := s.FindActive(context.Background(), "P1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "f1", rec.ID)
	assert.Equal(t, RecordStatusActive, rec.Status)
	assert.Empty(t, rec.DeviceID)
	assert.Nil(t, rec.ArchivedAt)
	require.Len(t, rec.ResetRequests, 1)
	assert.Equal(t, ResetStatusPending, rec.ResetRequests[0].Status)
	assert.Equal(t, 1, rec.PendingResets())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindActiveByHashNone(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE fingerprint_hash = $1 AND status = 'active'")).
		WithArgs("h1").
		WillReturnError(sql.ErrNoRows)

	rec, err := s.FindActiveByHash(context.Background(), "h1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPostgresStore_InsertMapsUniqueViolations(t *testing.T) {
	cases := []struct {
		constraint string
		want       error
	}{
		{activePatientIndex, ErrActiveRecordExists},
		{activeHashIndex, ErrDuplicateHash},
	}
	for _, tc := range cases {
		t.Run(tc.constraint, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fingerprints")).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tc.constraint})

			err := s.Insert(context.Background(), FingerprintRecord{ID: "f1", PatientID: "P1", FingerprintHash: "h1", Status: RecordStatusActive})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPostgresStore_InsertOtherErrorsWrapped(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("broken pipe")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fingerprints")).WillReturnError(boom)

	err := s.Insert(context.Background(), FingerprintRecord{ID: "f1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrActiveRecordExists)
}

func TestPostgresStore_Insert(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fingerprints")).
		WithArgs("f1", "P1", "h1", "raw", "scanner-7", "U1", at, RecordStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Insert(context.Background(), FingerprintRecord{
		ID:              "f1",
		PatientID:       "P1",
		FingerprintHash: "h1",
		FingerprintData: "raw",
		DeviceID:        "scanner-7",
		RegisteredBy:    "U1",
		RegisteredAt:    at,
		Status:          RecordStatusActive,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ArchiveApprovesPendingInOneTx(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE fingerprints")).
		WithArgs("P1", at, "CM1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("f1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fingerprint_reset_requests")).
		WithArgs("f1", "CM1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Archive(context.Background(), "P1", "CM1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ArchiveNotFoundRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE fingerprints")).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := s.Archive(context.Background(), "P1", "CM1", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendResetRequest(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	req := ResetRequest{ID: "r1", RequestedBy: "U1", RequestedAt: at, Reason: "device lost", Status: ResetStatusPending}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fingerprint_reset_requests")).
		WithArgs("P1", "r1", "U1", at, "device lost", ResetStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.AppendResetRequest(context.Background(), "P1", req))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fingerprint_reset_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.AppendResetRequest(context.Background(), "P2", req), ErrNotFound)
}

func TestPostgresStore_RejectResetRequests(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	counts := []string{"active", "rejected"}

	mock.ExpectQuery(regexp.QuoteMeta("SET status = 'rejected'")).
		WithArgs("P1", "CM1", at).
		WillReturnRows(sqlmock.NewRows(counts).AddRow(1, 2))
	n, err := s.RejectResetRequests(context.Background(), "P1", "CM1", at)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	mock.ExpectQuery(regexp.QuoteMeta("SET status = 'rejected'")).
		WillReturnRows(sqlmock.NewRows(counts).AddRow(1, 0))
	_, err = s.RejectResetRequests(context.Background(), "P1", "CM1", at)
	assert.ErrorIs(t, err, ErrNoPendingReset)

	mock.ExpectQuery(regexp.QuoteMeta("SET status = 'rejected'")).
		WillReturnRows(sqlmock.NewRows(counts).AddRow(0, 0))
	_, err = s.RejectResetRequests(context.Background(), "P1", "CM1", at)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
