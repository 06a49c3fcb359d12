package biometric

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("find active", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		at := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "f1"},
			{Key: "patientId", Value: "P1"},
			{Key: "fingerprintHash", Value: "h1"},
			{Key: "fingerprintData", Value: "raw"},
			{Key: "registeredBy", Value: "U1"},
			{Key: "registeredAt", Value: at},
			{Key: "status", Value: "active"},
		}))

		rec, err := NewMongoStore(mt.Coll).FindActive(context.Background(), "P1")
		require.NoError(mt, err)
		require.NotNil(mt, rec)
		assert.Equal(mt, "f1", rec.ID)
		assert.Equal(mt, RecordStatusActive, rec.Status)
		assert.NotNil(mt, rec.ResetRequests)
	})

	mt.Run("find active none", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		rec, err := NewMongoStore(mt.Coll).FindActiveByHash(context.Background(), "h1")
		require.NoError(mt, err)
		assert.Nil(mt, rec)
	})

	mt.Run("insert duplicate hash", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: erlessed.fingerprints index: " + activeHashIndex + " dup key",
		}))

		err := NewMongoStore(mt.Coll).Insert(context.Background(), FingerprintRecord{ID: "f2", PatientID: "P2", FingerprintHash: "h1", Status: RecordStatusActive})
		assert.ErrorIs(mt, err, ErrDuplicateHash)
	})

	mt.Run("insert duplicate patient", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: erlessed.fingerprints index: " + activePatientIndex + " dup key",
		}))

		err := NewMongoStore(mt.Coll).Insert(context.Background(), FingerprintRecord{ID: "f2", PatientID: "P1", FingerprintHash: "h2", Status: RecordStatusActive})
		assert.ErrorIs(mt, err, ErrActiveRecordExists)
	})

	mt.Run("archive", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}, {Key: "nModified", Value: 1}})
		require.NoError(mt, NewMongoStore(mt.Coll).Archive(context.Background(), "P1", "CM1", time.Now()))
	})

	mt.Run("archive not found", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 0}, {Key: "nModified", Value: 0}})
		err := NewMongoStore(mt.Coll).Archive(context.Background(), "P1", "CM1", time.Now())
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("append reset request", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}, {Key: "nModified", Value: 1}})
		err := NewMongoStore(mt.Coll).AppendResetRequest(context.Background(), "P1", ResetRequest{ID: "r1", Status: ResetStatusPending})
		require.NoError(mt, err)
	})

	mt.Run("reject counts pending requests", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: bson.D{
			{Key: "_id", Value: "f1"},
			{Key: "patientId", Value: "P1"},
			{Key: "status", Value: "active"},
			{Key: "resetRequests", Value: bson.A{
				bson.D{{Key: "id", Value: "r1"}, {Key: "status", Value: "pending"}},
				bson.D{{Key: "id", Value: "r2"}, {Key: "status", Value: "rejected"}},
				bson.D{{Key: "id", Value: "r3"}, {Key: "status", Value: "pending"}},
			}},
		}}})
		n, err := NewMongoStore(mt.Coll).RejectResetRequests(context.Background(), "P1", "CM1", time.Now())
		require.NoError(mt, err)
		assert.Equal(mt, 2, n)
	})

	mt.Run("reject without pending", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: bson.D{
			{Key: "_id", Value: "f1"},
			{Key: "patientId", Value: "P1"},
			{Key: "status", Value: "active"},
			{Key: "resetRequests", Value: bson.A{bson.D{{Key: "id", Value: "r1"}, {Key: "status", Value: "approved"}}}},
		}}})
		_, err := NewMongoStore(mt.Coll).RejectResetRequests(context.Background(), "P1", "CM1", time.Now())
		assert.ErrorIs(mt, err, ErrNoPendingReset)
	})

	mt.Run("reject without active record", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: nil}})
		_, err := NewMongoStore(mt.Coll).RejectResetRequests(context.Background(), "P1", "CM1", time.Now())
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("ensure indexes", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(mt, NewMongoStore(mt.Coll).EnsureIndexes(context.Background()))
	})
}
