package cache

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"golang.org/x/xerrors"
)

// DiskCache stores tokens in a local leveldb directory. Expiry is checked on
// read, expired entries are removed lazily.
type DiskCache struct {
	db  *leveldb.DB
	ttl time.Duration
	now func() time.Time
}

type diskEntry struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func OpenDiskCache(p string, ttl time.Duration) (*DiskCache, error) {
	if _, err := os.Stat(p); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := os.MkdirAll(p, 0700); err != nil {
			return nil, err
		}
	}

	db, err := leveldb.OpenFile(p, nil)
	if err != nil {
		return nil, xerrors.Errorf("opening token cache %s: %w", p, err)
	}
	return &DiskCache{db: db, ttl: ttl, now: time.Now}, nil
}

func (dc *DiskCache) Get(key string) (string, bool, error) {
	value, err := dc.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, xerrors.Errorf("reading key '%s': %w", key, err)
	}

	var entry diskEntry
	if err := json.Unmarshal(value, &entry); err != nil {
		return "", false, xerrors.Errorf("decoding key '%s': %w", key, err)
	}
	if !dc.now().Before(entry.ExpiresAt) {
		if err := dc.db.Delete([]byte(key), nil); err != nil {
			return "", false, xerrors.Errorf("deleting key '%s': %w", key, err)
		}
		return "", false, nil
	}
	return entry.Token, true, nil
}

func (dc *DiskCache) Put(key, token string) error {
	bytes, err := json.Marshal(diskEntry{Token: token, ExpiresAt: dc.now().Add(dc.ttl)})
	if err != nil {
		return err
	}
	if err := dc.db.Put([]byte(key), bytes, nil); err != nil {
		return xerrors.Errorf("writing key '%s': %w", key, err)
	}
	return nil
}

func (dc *DiskCache) Close() error {
	return dc.db.Close()
}
