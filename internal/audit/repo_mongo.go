package audit

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LogsCollection is the document collection holding audit entries.
const LogsCollection = "biometric_audit_logs"

// MongoRepo appends audit entries as documents. Only InsertOne and Find are used.
type MongoRepo struct {
	coll *mongo.Collection
}

func NewMongoRepo(coll *mongo.Collection) *MongoRepo { return &MongoRepo{coll: coll} }

// EnsureIndexes creates the (patientId, timestamp desc) index used by ListByPatient.
func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "patientId", Value: 1}, {Key: "timestamp", Value: -1}},
		Options: options.Index().SetName("audit_patient_timestamp_idx"),
	})
	if err != nil {
		return fmt.Errorf("create audit index: %w", err)
	}
	return nil
}

func (r *MongoRepo) Append(ctx context.Context, e Entry) error {
	if _, err := r.coll.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *MongoRepo) ListByPatient(ctx context.Context, patientID string, limit int) ([]Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, bson.D{{Key: "patientId", Value: patientID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]Entry, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode audit entries: %w", err)
	}
	return out, nil
}
