package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IVANFROL/reklama-oleg/internal/apierr"
	"github.com/IVANFROL/reklama-oleg/internal/models"
)

// ---- Mocks ----

type failingSlot struct{ MemorySlot }

func (f *failingSlot) Save(context.Context, string) error { return errors.New("disk full") }

type fetchStub struct {
	calls    int
	identity models.Identity
	err      error
}

func (f *fetchStub) fetch(_ context.Context, _ string) (models.Identity, error) {
	f.calls++
	return f.identity, f.err
}

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

// ---- Tests ----

func TestStore_EstablishAndClear(t *testing.T) {
	ctx := context.Background()
	slot := NewMemorySlot()
	s := NewStore(slot, nil)

	_, ok := s.Current()
	assert.False(t, ok)

	e0 := s.Epoch()
	require.NoError(t, s.Establish(ctx, "tok-1", models.Identity{ID: 1, Username: "oleg", Balance: 40}))

	id, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "oleg", id.Username)
	assert.Greater(t, s.Epoch(), e0)

	stored, err := slot.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", stored)

	e1 := s.Epoch()
	require.NoError(t, s.Clear(ctx))
	_, ok = s.Current()
	assert.False(t, ok)
	_, ok = s.Credential()
	assert.False(t, ok)
	assert.Greater(t, s.Epoch(), e1)

	_, err = slot.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestStore_EstablishKeepsStateWhenSlotFails(t *testing.T) {
	s := NewStore(&failingSlot{}, nil)
	err := s.Establish(context.Background(), "tok", models.Identity{ID: 1})
	require.Error(t, err)
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestStore_InvalidateOnlyCurrentCredential(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemorySlot(), nil)
	require.NoError(t, s.Establish(ctx, "new", models.Identity{ID: 1}))

	s.Invalidate("old")
	_, ok := s.Current()
	assert.True(t, ok, "a rejected older credential must not end the new session")

	s.Invalidate("new")
	_, ok = s.Current()
	assert.False(t, ok)
}

func TestStore_UpdateIdentityChecksEpoch(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemorySlot(), nil)
	require.NoError(t, s.Establish(ctx, "tok", models.Identity{ID: 1, Balance: 0}))
	epoch := s.Epoch()

	assert.True(t, s.UpdateIdentity(models.Identity{ID: 1, Balance: 10}, epoch))
	id, _ := s.Current()
	assert.Equal(t, 10.0, id.Balance)

	require.NoError(t, s.Clear(ctx))
	assert.False(t, s.UpdateIdentity(models.Identity{ID: 1, Balance: 99}, epoch))
	_, ok := s.Current()
	assert.False(t, ok, "a late refetch must not resurrect a cleared session")
}

func TestStore_Restore(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing stored", func(t *testing.T) {
		f := &fetchStub{}
		s := NewStore(NewMemorySlot(), nil)
		_, ok, err := s.Restore(ctx, f.fetch)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, f.calls)
	})

	t.Run("valid credential", func(t *testing.T) {
		slot := NewMemorySlot()
		tok := signedToken(t, "oleg", time.Now().Add(time.Hour))
		slot.Save(ctx, tok)
		f := &fetchStub{identity: models.Identity{ID: 7, Username: "oleg"}}
		s := NewStore(slot, nil)

		id, ok, err := s.Restore(ctx, f.fetch)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(7), id.ID)
		cur, _ := s.Current()
		assert.Equal(t, "oleg", cur.Username)
	})

	t.Run("expired credential is cleared without a request", func(t *testing.T) {
		slot := NewMemorySlot()
		slot.Save(ctx, signedToken(t, "oleg", time.Now().Add(-time.Minute)))
		f := &fetchStub{}
		s := NewStore(slot, nil)

		_, ok, err := s.Restore(ctx, f.fetch)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, f.calls)
		_, err = slot.Load(ctx)
		assert.ErrorIs(t, err, ErrNoCredential)
	})

	t.Run("refused credential is cleared", func(t *testing.T) {
		for _, kind := range []apierr.Kind{apierr.KindUnauthenticated, apierr.KindUnauthorized, apierr.KindNotFound} {
			slot := NewMemorySlot()
			slot.Save(ctx, "opaque-token")
			f := &fetchStub{err: apierr.New("auth.me", kind, "")}
			s := NewStore(slot, nil)

			_, ok, err := s.Restore(ctx, f.fetch)
			require.NoError(t, err, kind)
			assert.False(t, ok, kind)
			_, hasCred := s.Credential()
			assert.False(t, hasCred, kind)
			_, err = slot.Load(ctx)
			assert.ErrorIs(t, err, ErrNoCredential, kind)
		}
	})

	t.Run("network failure keeps the credential", func(t *testing.T) {
		slot := NewMemorySlot()
		slot.Save(ctx, "opaque-token")
		f := &fetchStub{err: apierr.Network("auth.me", errors.New("connection refused"))}
		s := NewStore(slot, nil)

		_, ok, err := s.Restore(ctx, f.fetch)
		assert.ErrorIs(t, err, apierr.ErrNetwork)
		assert.False(t, ok)
		_, identityKnown := s.Current()
		assert.False(t, identityKnown, "no stale identity may be surfaced")
		cred, hasCred := s.Credential()
		assert.True(t, hasCred)
		assert.Equal(t, "opaque-token", cred)
	})
}

func TestInspectToken(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	info := InspectToken(signedToken(t, "oleg", exp))
	assert.False(t, info.Opaque)
	assert.Equal(t, "oleg", info.Subject)
	assert.True(t, info.ExpiresAt.Equal(exp))
	assert.False(t, info.Expired(time.Now()))
	assert.True(t, info.Expired(exp.Add(time.Second)))

	opaque := InspectToken("not-a-jwt")
	assert.True(t, opaque.Opaque)
	assert.False(t, opaque.Expired(time.Now().Add(100*365*24*time.Hour)))
}
