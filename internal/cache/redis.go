package cache

import (
	"errors"
	"time"

	"github.com/gomodule/redigo/redis"
	"golang.org/x/xerrors"
)

// RedisCache stores tokens with SETEX so redis handles expiry.
type RedisCache struct {
	pool *redis.Pool
	ttl  time.Duration
}

func NewRedisCache(url, password string, ttl time.Duration) *RedisCache {
	return &RedisCache{pool: newRedisPool(url, password), ttl: ttl}
}

func newRedisPool(url string, password string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     5,
		MaxActive:   0,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			if password != "" {
				return redis.DialURL(url, redis.DialPassword(password))
			}
			return redis.DialURL(url)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			_, err := c.Do("PING")
			return err
		},
	}
}

func (rc *RedisCache) Get(key string) (string, bool, error) {
	conn := rc.pool.Get()
	defer conn.Close()

	token, err := redis.String(conn.Do("GET", key))
	if errors.Is(err, redis.ErrNil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, xerrors.Errorf("redis get '%s': %w", key, err)
	}
	return token, true, nil
}

func (rc *RedisCache) Put(key, token string) error {
	conn := rc.pool.Get()
	defer conn.Close()

	seconds := int64(rc.ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	if _, err := conn.Do("SETEX", key, seconds, token); err != nil {
		return xerrors.Errorf("redis setex '%s': %w", key, err)
	}
	return nil
}

func (rc *RedisCache) Close() error {
	return rc.pool.Close()
}
