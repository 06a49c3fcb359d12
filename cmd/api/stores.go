package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"erlessed-biometric/internal/audit"
	"erlessed-biometric/internal/biometric"
	"erlessed-biometric/internal/config"
	"erlessed-biometric/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// stores holds the backends selected by STORE_DRIVER plus the optional Redis limiter.
type stores struct {
	fingerprints biometric.Store
	audit        audit.Repository
	limiter      biometric.AttemptLimiter

	db    *sql.DB
	mongo *mongo.Client
	rdb   *redis.Client
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	st := &stores{}

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		st.db = db
		st.fingerprints = biometric.NewPostgresStore(db)
		st.audit = audit.NewPostgresRepo(db)

	case config.DriverMongo:
		client, mdb, err := utils.OpenMongo(ctx, utils.MongoConfig{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		st.mongo = client
		fp := biometric.NewMongoStore(mdb.Collection(biometric.FingerprintsCollection))
		logs := audit.NewMongoRepo(mdb.Collection(audit.LogsCollection))
		if err := ensureMongoIndexes(ctx, fp, logs); err != nil {
			st.Close()
			return nil, err
		}
		st.fingerprints = fp
		st.audit = logs

	case config.DriverMemory:
		log.Warn("using in-memory stores; data is lost on restart")
		st.fingerprints = biometric.NewMemoryStore()
		st.audit = audit.NewMemoryRepo()

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if cfg.LockoutEnabled() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		st.rdb = rdb
		st.limiter = biometric.NewRedisAttemptLimiter(rdb, cfg.Biometric.MaxFailedAttempts, cfg.Biometric.LockoutWindow)
	} else {
		log.Info("REDIS_HOST not set; failed-attempt lockout disabled")
	}

	return st, nil
}

func ensureMongoIndexes(ctx context.Context, fp *biometric.MongoStore, logs *audit.MongoRepo) error {
	if err := fp.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("fingerprint indexes: %w", err)
	}
	if err := logs.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("audit indexes: %w", err)
	}
	return nil
}

// Health pings every configured backend.
func (s *stores) Health(ctx context.Context) error {
	if s.db != nil {
		if err := utils.HealthCheck(ctx, s.db, 2*time.Second); err != nil {
			return err
		}
	}
	if s.mongo != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.mongo.Ping(pingCtx, nil); err != nil {
			return fmt.Errorf("mongo ping: %w", err)
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}
	return nil
}

func (s *stores) Close() {
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.mongo.Disconnect(ctx)
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
