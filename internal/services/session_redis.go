package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisSessionStore keeps sessions in Redis so multiple instances share
// conversation state. Expiry rides on the key TTL; per-phone serialization
// uses a short SET NX lease released only by its owner.
type RedisSessionStore struct {
	rdb *redis.Client
}

const (
	sessionKeyPrefix = "orderease:session:"
	sessionLockTTL   = 10 * time.Second
	sessionLockWait  = 15 * time.Second
)

// Release the lock only when it still holds our token, so a lease that
// expired and got re-acquired by another worker is never deleted.
const luaReleaseSessionLock = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// NewRedisSessionStore connects to Redis and verifies the connection
func NewRedisSessionStore(addr string) (*RedisSessionStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return &RedisSessionStore{rdb: rdb}, nil
}

func sessionKey(phone string) string {
	return sessionKeyPrefix + phone
}

func sessionLockKey(phone string) string {
	return sessionKeyPrefix + "lock:" + phone
}

func (s *RedisSessionStore) Get(phone string) (*Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := s.rdb.Get(ctx, sessionKey(phone)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %v", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		// A corrupt session is unrecoverable; drop it and start fresh
		log.Printf("⚠️  Dropping corrupt session for %s: %v", phone, err)
		_ = s.Delete(phone)
		return nil, nil
	}
	return &session, nil
}

func (s *RedisSessionStore) Save(session *Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	session.LastActivity = now
	session.ExpiresAt = now.Add(sessionTTL)

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %v", err)
	}
	return s.rdb.Set(ctx, sessionKey(session.PhoneNumber), data, sessionTTL).Err()
}

func (s *RedisSessionStore) Delete(phone string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.rdb.Del(ctx, sessionKey(phone)).Err()
}

// WithLock acquires the per-phone lease, retrying briefly, and releases it
// after fn completes
func (s *RedisSessionStore) WithLock(phone string, fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), sessionLockWait)
	defer cancel()

	token := uuid.NewString()
	key := sessionLockKey(phone)

	for {
		ok, err := s.rdb.SetNX(ctx, key, token, sessionLockTTL).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire session lock: %v", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for session lock on %s", phone)
		case <-time.After(50 * time.Millisecond):
		}
	}

	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer releaseCancel()
		if _, err := s.rdb.Eval(releaseCtx, luaReleaseSessionLock, []string{key}, token).Int(); err != nil {
			log.Printf("⚠️  Failed to release session lock for %s: %v", phone, err)
		}
	}()

	return fn()
}

// NewSessionStore picks the Redis-backed store when REDIS_ADDR is set and
// falls back to the in-memory one otherwise
func NewSessionStore() SessionStore {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		log.Println("⚠️  REDIS_ADDR not set - using in-memory session store")
		return NewMemorySessionStore()
	}

	store, err := NewRedisSessionStore(addr)
	if err != nil {
		log.Printf("⚠️  Redis unavailable (%v) - using in-memory session store", err)
		return NewMemorySessionStore()
	}
	log.Printf("✅ Using Redis session store at %s", addr)
	return store
}
