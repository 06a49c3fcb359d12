package utils

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig controls mongo client behavior.
type MongoConfig struct {
	URI      string
	Database string

	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	PingTimeout    time.Duration
}

func (c MongoConfig) withDefaults() MongoConfig {
	out := c
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 10 * time.Second
	}
	if out.MaxPoolSize == 0 {
		out.MaxPoolSize = 50
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 5 * time.Second
	}
	return out
}

// OpenMongo connects to MongoDB and validates connectivity with a primary ping.
// The URI must not be logged; it may carry credentials.
func OpenMongo(ctx context.Context, cfg MongoConfig) (*mongo.Client, *mongo.Database, error) {
	cfg = cfg.withDefaults()
	if cfg.URI == "" {
		return nil, nil, fmt.Errorf("mongo uri is required")
	}
	if cfg.Database == "" {
		return nil, nil, fmt.Errorf("mongo database is required")
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping failed: %w", err)
	}
	return client, client.Database(cfg.Database), nil
}
