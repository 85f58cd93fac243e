package cache

import (
	"fmt"
	"time"

	"github.com/manatee-project/manatee-jobs/conf"
	"github.com/manatee-project/manatee-jobs/constants"
	"golang.org/x/xerrors"
)

// TokenCache keeps attestation tokens so repeated requests for the same job
// do not hit the data clean room again.
type TokenCache interface {
	// Get returns the cached token and whether it was found and not expired.
	Get(key string) (string, bool, error)
	// Put stores a token under key for the configured TTL.
	Put(key, token string) error
	Close() error
}

const (
	TypeLevelDB = "leveldb"
	TypeRedis   = "redis"
	TypeNone    = "none"
)

// AttestationKey is the cache key of the attestation token of a job.
func AttestationKey(creator string, id int64) string {
	return fmt.Sprintf("%s%s:%d", constants.REDIS_ATTESTATION_PREFIX, creator, id)
}

// New opens the cache selected by the [Cache] section.
func New(c conf.Cache) (TokenCache, error) {
	ttl := c.TTL()
	if ttl <= 0 {
		ttl = constants.DefaultAttestationCacheTTLDays * 24 * time.Hour
	}

	switch c.Type {
	case TypeLevelDB, "":
		return OpenDiskCache(c.Path, ttl)
	case TypeRedis:
		return NewRedisCache(c.RedisUrl, c.RedisPassword, ttl), nil
	case TypeNone:
		return nopCache{}, nil
	}
	return nil, xerrors.Errorf("unknown cache type: %s", c.Type)
}

type nopCache struct{}

func (nopCache) Get(string) (string, bool, error) { return "", false, nil }
func (nopCache) Put(string, string) error         { return nil }
func (nopCache) Close() error                     { return nil }
