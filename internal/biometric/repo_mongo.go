package biometric

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FingerprintsCollection is the document collection holding fingerprint records.
const FingerprintsCollection = "fingerprints"

// MongoStore persists fingerprints as documents with embedded reset requests.
// Uniqueness comes from partial unique indexes (see EnsureIndexes), so two concurrent
// registrations cannot both land.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// EnsureIndexes creates the active-record uniqueness indexes. Safe to call repeatedly.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	active := bson.D{{Key: "status", Value: string(RecordStatusActive)}}
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "patientId", Value: 1}},
			Options: options.Index().
				SetName(activePatientIndex).
				SetUnique(true).
				SetPartialFilterExpression(active),
		},
		{
			Keys: bson.D{{Key: "fingerprintHash", Value: 1}},
			Options: options.Index().
				SetName(activeHashIndex).
				SetUnique(true).
				SetPartialFilterExpression(active),
		},
	})
	if err != nil {
		return fmt.Errorf("create fingerprint indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) FindActive(ctx context.Context, patientID string) (*FingerprintRecord, error) {
	return s.findOne(ctx, bson.D{
		{Key: "patientId", Value: patientID},
		{Key: "status", Value: string(RecordStatusActive)},
	})
}

func (s *MongoStore) FindActiveByHash(ctx context.Context, hash string) (*FingerprintRecord, error) {
	return s.findOne(ctx, bson.D{
		{Key: "fingerprintHash", Value: hash},
		{Key: "status", Value: string(RecordStatusActive)},
	})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.D) (*FingerprintRecord, error) {
	var r FingerprintRecord
	if err := s.coll.FindOne(ctx, filter).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find fingerprint: %w", err)
	}
	if r.ResetRequests == nil {
		r.ResetRequests = []ResetRequest{}
	}
	return &r, nil
}

func (s *MongoStore) Insert(ctx context.Context, rec FingerprintRecord) error {
	if rec.ResetRequests == nil {
		rec.ResetRequests = []ResetRequest{}
	}
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), activeHashIndex) {
				return ErrDuplicateHash
			}
			return ErrActiveRecordExists
		}
		return fmt.Errorf("insert fingerprint: %w", err)
	}
	return nil
}

func (s *MongoStore) Archive(ctx context.Context, patientID, archivedBy string, archivedAt time.Time) error {
	filter := bson.D{
		{Key: "patientId", Value: patientID},
		{Key: "status", Value: string(RecordStatusActive)},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: string(RecordStatusArchived)},
		{Key: "archivedAt", Value: archivedAt},
		{Key: "archivedBy", Value: archivedBy},
		{Key: "resetRequests.$[p].status", Value: string(ResetStatusApproved)},
		{Key: "resetRequests.$[p].approvedBy", Value: archivedBy},
		{Key: "resetRequests.$[p].approvedAt", Value: archivedAt},
	}}}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"p.status": string(ResetStatusPending)}},
	})

	res, err := s.coll.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("archive fingerprint: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) AppendResetRequest(ctx context.Context, patientID string, req ResetRequest) error {
	filter := bson.D{
		{Key: "patientId", Value: patientID},
		{Key: "status", Value: string(RecordStatusActive)},
	}
	update := bson.D{{Key: "$push", Value: bson.D{{Key: "resetRequests", Value: req}}}}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("append reset request: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) RejectResetRequests(ctx context.Context, patientID, rejectedBy string, rejectedAt time.Time) (int, error) {
	filter := bson.D{
		{Key: "patientId", Value: patientID},
		{Key: "status", Value: string(RecordStatusActive)},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "resetRequests.$[p].status", Value: string(ResetStatusRejected)},
		{Key: "resetRequests.$[p].rejectedBy", Value: rejectedBy},
		{Key: "resetRequests.$[p].rejectedAt", Value: rejectedAt},
	}}}
	opts := options.FindOneAndUpdate().
		SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{bson.M{"p.status": string(ResetStatusPending)}},
		}).
		SetReturnDocument(options.Before)

	// The pre-image tells how many array elements the update rejected; update results
	// only count documents.
	var before FingerprintRecord
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&before); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("reject reset requests: %w", err)
	}
	n := before.PendingResets()
	if n == 0 {
		return 0, ErrNoPendingReset
	}
	return n, nil
}
