package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kassandra-hq/kassandra/internal/app/domain/user"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

const sessionKeyPrefix = "kassandra:session:"

// SessionCache fronts the session store with an optional Redis cache. Cache
// failures fall back to the store; the store remains the source of truth.
type SessionCache struct {
	store storage.SessionStore
	redis *redis.Client
	log   *logger.Logger
}

// NewSessionCache creates a session cache. client may be nil to disable
// caching.
func NewSessionCache(store storage.SessionStore, client *redis.Client, log *logger.Logger) *SessionCache {
	if log == nil {
		log = logger.NewDefault("sessions")
	}
	return &SessionCache{store: store, redis: client, log: log}
}

// Create persists a session and primes the cache.
func (c *SessionCache) Create(ctx context.Context, sess user.Session) (user.Session, error) {
	created, err := c.store.CreateSession(ctx, sess)
	if err != nil {
		return user.Session{}, err
	}
	c.cacheSet(ctx, created)
	return created, nil
}

// GetByTokenHash looks a session up, preferring the cache. Expired sessions
// are treated as missing.
func (c *SessionCache) GetByTokenHash(ctx context.Context, tokenHash string) (user.Session, error) {
	if sess, ok := c.cacheGet(ctx, tokenHash); ok {
		if time.Now().UTC().After(sess.ExpiresAt) {
			return user.Session{}, storage.ErrNotFound
		}
		return sess, nil
	}

	sess, err := c.store.GetSessionByTokenHash(ctx, tokenHash)
	if err != nil {
		return user.Session{}, err
	}
	if time.Now().UTC().After(sess.ExpiresAt) {
		return user.Session{}, storage.ErrNotFound
	}
	c.cacheSet(ctx, sess)
	return sess, nil
}

// Touch records activity on a session.
func (c *SessionCache) Touch(ctx context.Context, sess user.Session) {
	now := time.Now().UTC()
	if err := c.store.TouchSession(ctx, sess.ID, now); err != nil {
		c.log.WithError(err).Debug("touch session")
	}
	sess.LastSeen = now
	c.cacheSet(ctx, sess)
}

// Delete removes a session from the store and the cache.
func (c *SessionCache) Delete(ctx context.Context, tokenHash string) error {
	if c.redis != nil {
		if err := c.redis.Del(ctx, sessionKeyPrefix+tokenHash).Err(); err != nil {
			c.log.WithError(err).Warn("evict cached session")
		}
	}
	return c.store.DeleteSessionByTokenHash(ctx, tokenHash)
}

func (c *SessionCache) cacheGet(ctx context.Context, tokenHash string) (user.Session, bool) {
	if c.redis == nil {
		return user.Session{}, false
	}
	data, err := c.redis.Get(ctx, sessionKeyPrefix+tokenHash).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Warn("session cache read")
		}
		return user.Session{}, false
	}
	var sess user.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		c.log.WithError(err).Warn("decode cached session")
		return user.Session{}, false
	}
	// TokenHash is excluded from JSON; restore it from the cache key.
	sess.TokenHash = tokenHash
	return sess, true
}

func (c *SessionCache) cacheSet(ctx context.Context, sess user.Session) {
	if c.redis == nil {
		return
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, sessionKeyPrefix+sess.TokenHash, data, ttl).Err(); err != nil {
		c.log.WithError(err).Warn("session cache write")
	}
}
