package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSlot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "credential.json")
	slot := NewFileSlot(path, "token")

	_, err := slot.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, slot.Save(ctx, "abc"))
	got, err := slot.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	// A second process reading the same slot sees the value.
	again, err := NewFileSlot(path, "token").Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", again)

	require.NoError(t, slot.Delete(ctx))
	_, err = slot.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCredential)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "empty credential file should be removed")
}

func TestFileSlot_NamedSlotsShareFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credential.json")
	a := NewFileSlot(path, "token")
	b := NewFileSlot(path, "admin")

	require.NoError(t, a.Save(ctx, "user-token"))
	require.NoError(t, b.Save(ctx, "admin-token"))
	require.NoError(t, a.Delete(ctx))

	got, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin-token", got)
}

func TestFileSlot_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := NewFileSlot(path, "token").Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCredential)
}

// ---- Mocks ----

type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisSlot(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	slot := NewRedisSlot(rdb, "token")
	now := time.Now()
	slot.now = func() time.Time { return now }

	_, err := slot.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, slot.Save(ctx, "opaque"))
	assert.Equal(t, "opaque", rdb.values["reklama:credential:token"])
	assert.Zero(t, rdb.ttls["reklama:credential:token"], "opaque tokens are kept without expiry")

	tok := signedToken(t, "oleg", now.Add(30*time.Minute))
	require.NoError(t, slot.Save(ctx, tok))
	ttl := rdb.ttls["reklama:credential:token"]
	assert.InDelta(t, (30 * time.Minute).Seconds(), ttl.Seconds(), 1)

	got, err := slot.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, tok, got)

	require.NoError(t, slot.Delete(ctx))
	_, err = slot.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCredential)
}
