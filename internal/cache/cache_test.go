package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/manatee-project/manatee-jobs/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttestationKey(t *testing.T) {
	assert.Equal(t, "attestation:alice:42", AttestationKey("alice", 42))
}

func TestDiskCache(t *testing.T) {
	dc, err := OpenDiskCache(filepath.Join(t.TempDir(), "tokens"), time.Hour)
	require.NoError(t, err)
	defer dc.Close()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	dc.now = func() time.Time { return now }

	_, ok, err := dc.Get("attestation:alice:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, dc.Put("attestation:alice:1", "eyJhbGciOi"))
	token, ok, err := dc.Get("attestation:alice:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "eyJhbGciOi", token)

	has, err := dc.db.Has([]byte("attestation:alice:1"), nil)
	require.NoError(t, err)
	assert.True(t, has)

	now = now.Add(time.Hour)
	_, ok, err = dc.Get("attestation:alice:1")
	require.NoError(t, err)
	assert.False(t, ok)

	has, err = dc.db.Has([]byte("attestation:alice:1"), nil)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestDiskCacheReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tokens")
	dc, err := OpenDiskCache(dir, time.Hour)
	require.NoError(t, err)
	require.NoError(t, dc.Put("k", "v"))
	require.NoError(t, dc.Close())

	dc, err = OpenDiskCache(dir, time.Hour)
	require.NoError(t, err)
	defer dc.Close()

	token, ok, err := dc.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", token)
}

func TestRedisCache(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	rc := NewRedisCache("redis://"+s.Addr(), "", 2*time.Hour)
	defer rc.Close()

	_, ok, err := rc.Get("attestation:alice:7")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rc.Put("attestation:alice:7", "token-7"))
	token, ok, err := rc.Get("attestation:alice:7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "token-7", token)
	assert.Equal(t, 2*time.Hour, s.TTL("attestation:alice:7"))

	s.FastForward(3 * time.Hour)
	_, ok, err = rc.Get("attestation:alice:7")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheUnreachable(t *testing.T) {
	rc := NewRedisCache("redis://127.0.0.1:1", "", time.Hour)
	defer rc.Close()

	_, _, err := rc.Get("k")
	assert.Error(t, err)
	assert.Error(t, rc.Put("k", "v"))
}

func TestNew(t *testing.T) {
	c, err := New(conf.Cache{Type: TypeLevelDB, Path: filepath.Join(t.TempDir(), "c"), TTLDays: 1})
	require.NoError(t, err)
	assert.IsType(t, &DiskCache{}, c)
	require.NoError(t, c.Close())

	c, err = New(conf.Cache{Type: TypeNone})
	require.NoError(t, err)
	require.NoError(t, c.Put("k", "v"))
	_, ok, err := c.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = New(conf.Cache{Type: "memcached"})
	assert.Error(t, err)
}
