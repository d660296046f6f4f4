package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]KVStore {
	t.Helper()

	pebbleKV, err := NewPebbleKV(&Config{Backend: "pebble", Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	redisKV, err := NewRedisKV(context.Background(), &Config{Backend: "redis", RedisAddress: mr.Addr()})
	require.NoError(t, err)

	stores := map[string]KVStore{
		"pebble": pebbleKV,
		"redis":  redisKV,
		"memory": NewMemoryKV(),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestKVStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, kv := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Get(ctx, []byte("missing"))
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, kv.Put(ctx, []byte("duelwatch:walletStats"), []byte(`{"a":1}`)))
			got, err := kv.Get(ctx, []byte("duelwatch:walletStats"))
			require.NoError(t, err)
			assert.Equal(t, `{"a":1}`, string(got))

			require.NoError(t, kv.Put(ctx, []byte("duelwatch:walletStats"), []byte(`{}`)))
			got, err = kv.Get(ctx, []byte("duelwatch:walletStats"))
			require.NoError(t, err)
			assert.Equal(t, `{}`, string(got))

			require.NoError(t, kv.Delete(ctx, []byte("duelwatch:walletStats")))
			_, err = kv.Get(ctx, []byte("duelwatch:walletStats"))
			assert.ErrorIs(t, err, ErrNotFound)

			// deleting a missing key is fine
			assert.NoError(t, kv.Delete(ctx, []byte("never-set")))
		})
	}
}

func TestKVStore_Iterate(t *testing.T) {
	ctx := context.Background()
	for name, kv := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, kv.Put(ctx, []byte("duelwatch:a"), []byte("1")))
			require.NoError(t, kv.Put(ctx, []byte("duelwatch:b"), []byte("2")))
			require.NoError(t, kv.Put(ctx, []byte("other:c"), []byte("3")))

			seen := map[string]string{}
			err := kv.Iterate(ctx, []byte("duelwatch:"), func(k, v []byte) bool {
				seen[string(k)] = string(v)
				return true
			})
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"duelwatch:a": "1", "duelwatch:b": "2"}, seen)

			count := 0
			err = kv.Iterate(ctx, []byte("duelwatch:"), func(k, v []byte) bool {
				count++
				return false
			})
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestKVStore_Closed(t *testing.T) {
	ctx := context.Background()
	for name, kv := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, kv.Close())
			assert.NoError(t, kv.Close())
			assert.ErrorIs(t, kv.Put(ctx, []byte("k"), []byte("v")), ErrClosed)
			_, err := kv.Get(ctx, []byte("k"))
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestPebbleKV_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")

	kv, err := NewPebbleKV(&Config{Backend: "pebble", Path: path})
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, []byte("k"), []byte("v")))
	require.NoError(t, kv.Close())

	kv, err = NewPebbleKV(&Config{Backend: "pebble", Path: path})
	require.NoError(t, err)
	defer kv.Close()

	got, err := kv.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, (&Config{Backend: "memory"}).Validate())
	assert.NoError(t, (&Config{Backend: "pebble", Path: "/tmp/x"}).Validate())
	assert.Error(t, (&Config{Backend: "pebble"}).Validate())
	assert.Error(t, (&Config{Backend: "redis"}).Validate())
	assert.Error(t, (&Config{Backend: "leveldb"}).Validate())
}

func TestOpen(t *testing.T) {
	kv, err := Open(context.Background(), &Config{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryKV{}, kv)

	_, err = Open(context.Background(), nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), &Config{Backend: "redis", RedisAddress: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Nil(t, prefixUpperBound(nil))
	assert.Equal(t, []byte("ab"), prefixUpperBound([]byte("aa")))
	assert.Equal(t, []byte{0x02}, prefixUpperBound([]byte{0x01, 0xff}))
	assert.Nil(t, prefixUpperBound([]byte{0xff, 0xff}))
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?`, escapeGlob("a*b?"))
}
