package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/utils"
)

// PublishLock serializes publish cycles per lecture. Two concurrent publish
// calls for the same lecture would both pass the "no existing processed
// material" check and duplicate extraction work, so the orchestrator takes
// this lock for the whole cycle.
type PublishLock interface {
	// TryAcquire returns a release func when the lock was taken, or false
	// when another publish for the lecture is in flight.
	TryAcquire(ctx context.Context, lectureID uuid.UUID) (func(), bool, error)
}

// NewPublishLock returns a Redis-backed lock when REDIS_ADDR is configured,
// otherwise a process-local one. The local variant is correct for a single
// server instance, which is how the test environment runs.
func NewPublishLock(log *logger.Logger) PublishLock {
	slog := log.With("service", "PublishLock")
	addr := utils.GetEnv("REDIS_ADDR", "", slog)
	if addr == "" {
		slog.Info("REDIS_ADDR not set, using in-process publish lock")
		return NewLocalPublishLock()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis unreachable, falling back to in-process publish lock", "error", err.Error())
		_ = rdb.Close()
		return NewLocalPublishLock()
	}

	ttl := time.Duration(utils.GetEnvAsInt("PUBLISH_LOCK_TTL_MINUTES", 60, slog)) * time.Minute
	return &redisPublishLock{log: slog, rdb: rdb, ttl: ttl}
}

type redisPublishLock struct {
	log *logger.Logger
	rdb *redis.Client
	ttl time.Duration
}

func (l *redisPublishLock) TryAcquire(ctx context.Context, lectureID uuid.UUID) (func(), bool, error) {
	key := fmt.Sprintf("publish_lock:%s", lectureID.String())
	token := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("publish lock acquire: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// Release only our own token; the TTL already bounds a crashed
		// holder, so a failed DEL is just a slow unlock.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		if err := l.rdb.Eval(rctx, script, []string{key}, token).Err(); err != nil {
			l.log.Warn("Publish lock release failed", "key", key, "error", err.Error())
		}
	}
	return release, true, nil
}

type localPublishLock struct {
	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func NewLocalPublishLock() PublishLock {
	return &localPublishLock{inFlight: make(map[uuid.UUID]struct{})}
}

func (l *localPublishLock) TryAcquire(_ context.Context, lectureID uuid.UUID) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.inFlight[lectureID]; busy {
		return nil, false, nil
	}
	l.inFlight[lectureID] = struct{}{}
	release := func() {
		l.mu.Lock()
		delete(l.inFlight, lectureID)
		l.mu.Unlock()
	}
	return release, true, nil
}
