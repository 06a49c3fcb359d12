package biometric

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"erlessed-biometric/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// AttemptLimiter tracks failed verifications per patient.
// Implementations must be safe for concurrent use across processes.
type AttemptLimiter interface {
	// Blocked reports whether the patient has used up its failed attempts.
	Blocked(ctx context.Context, patientID string) (bool, error)
	// RecordFailure counts one mismatch and returns the running total for the window.
	RecordFailure(ctx context.Context, patientID string) (int, error)
	// Reset clears the counter after a successful verification.
	Reset(ctx context.Context, patientID string) error
}

// RedisAttemptLimiter counts failures in a fixed window that opens on the first miss.
type RedisAttemptLimiter struct {
	rdb         *redis.Client
	maxFailures int
	window      time.Duration
	prefix      string
}

func NewRedisAttemptLimiter(rdb *redis.Client, maxFailures int, window time.Duration) *RedisAttemptLimiter {
	return &RedisAttemptLimiter{
		rdb:         rdb,
		maxFailures: maxFailures,
		window:      window,
		prefix:      "biometric:verify:failures:",
	}
}

func (l *RedisAttemptLimiter) key(patientID string) string { return l.prefix + patientID }

func (l *RedisAttemptLimiter) Blocked(ctx context.Context, patientID string) (bool, error) {
	v, err := l.rdb.Get(ctx, l.key(patientID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("read failure counter: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return false, fmt.Errorf("parse failure counter %q: %w", v, err)
	}
	return n >= l.maxFailures, nil
}

func (l *RedisAttemptLimiter) RecordFailure(ctx context.Context, patientID string) (int, error) {
	n, err := utils.IncrementWindow(ctx, l.rdb, l.key(patientID), l.window)
	if err != nil {
		return 0, fmt.Errorf("bump failure counter: %w", err)
	}
	return int(n), nil
}

func (l *RedisAttemptLimiter) Reset(ctx context.Context, patientID string) error {
	if err := l.rdb.Del(ctx, l.key(patientID)).Err(); err != nil {
		return fmt.Errorf("clear failure counter: %w", err)
	}
	return nil
}
