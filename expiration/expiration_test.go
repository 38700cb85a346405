package expiration_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/redistruct/redistruct"
	"github.com/redistruct/redistruct/expiration"
)

func newModel(t *testing.T, ttl time.Duration, extra ...redistruct.Option) (*redistruct.Descriptor, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	opts := append([]redistruct.Option{
		redistruct.Field("name"),
		redistruct.Field("email"),
		redistruct.IdentifierField("email"),
		redistruct.URI("redis://" + s.Addr()),
		redistruct.WithFeature(expiration.New(ttl)),
	}, extra...)
	d, err := redistruct.Define("session", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.CloseClient() })
	return d, s
}

func TestSaveAppliesDefaultTTL(t *testing.T) {
	d, s := newModel(t, time.Hour)
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	_, err := r.Save(ctx)
	require.NoError(t, err)
	require.Equal(t, time.Hour, s.TTL("session:a@example.com:object"))
}

func TestZeroTTLMeansNoExpiration(t *testing.T) {
	d, s := newModel(t, 0)
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	_, err := r.Save(ctx)
	require.NoError(t, err)
	require.Zero(t, s.TTL("session:a@example.com:object"))

	ttl, err := expiration.RemainingTTL(ctx, r)
	require.NoError(t, err)
	require.Equal(t, -time.Second, ttl)
}

func TestExpiredKeyDisappears(t *testing.T) {
	d, s := newModel(t, time.Minute)
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	_, err := r.Save(ctx)
	require.NoError(t, err)

	s.FastForward(2 * time.Minute)
	_, err = d.FindByIdentifier(ctx, "a@example.com")
	require.Error(t, err)
	require.True(t, redistruct.IsCode(err, redistruct.KeyNotFound))
}

func TestRemainingTTL(t *testing.T) {
	d, _ := newModel(t, time.Hour)
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	_, err := r.Save(ctx)
	require.NoError(t, err)

	ttl, err := expiration.RemainingTTL(ctx, r)
	require.NoError(t, err)
	require.Equal(t, time.Hour, ttl)
}

func TestRemainingTTLMissingKey(t *testing.T) {
	d, _ := newModel(t, time.Hour)
	r, _ := d.New("email", "ghost@example.com")
	ttl, err := expiration.RemainingTTL(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, -2*time.Second, ttl)
}

func TestUpdateExpirationCascades(t *testing.T) {
	d, s := newModel(t, 0,
		redistruct.List("visits"),
		redistruct.Set("tags", redistruct.RelationTTL(30*time.Minute)),
		redistruct.List("audit", redistruct.NoCascade()))
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	_, err := r.Save(ctx)
	require.NoError(t, err)
	visits, err := r.List("visits")
	require.NoError(t, err)
	require.NoError(t, visits.Push(ctx, "2026-08-25"))
	tags, err := r.SetField("tags")
	require.NoError(t, err)
	require.NoError(t, tags.Add(ctx, "vip"))
	audit, err := r.List("audit")
	require.NoError(t, err)
	require.NoError(t, audit.Push(ctx, "created"))

	require.NoError(t, expiration.UpdateExpiration(ctx, r, time.Hour))
	require.Equal(t, time.Hour, s.TTL("session:a@example.com:object"))
	require.Equal(t, time.Hour, s.TTL("session:a@example.com:visits"))
	require.Equal(t, 30*time.Minute, s.TTL("session:a@example.com:tags"))
	require.Zero(t, s.TTL("session:a@example.com:audit"))
}

func TestUpdateExpirationZeroPersists(t *testing.T) {
	d, s := newModel(t, time.Hour, redistruct.List("visits"))
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	_, err := r.Save(ctx)
	require.NoError(t, err)
	require.Equal(t, time.Hour, s.TTL("session:a@example.com:object"))

	require.NoError(t, expiration.UpdateExpiration(ctx, r, 0))
	require.Zero(t, s.TTL("session:a@example.com:object"))
}

func TestDefaultTTLReadsOptionBag(t *testing.T) {
	d, _ := newModel(t, 45*time.Second)
	require.Equal(t, 45*time.Second, expiration.DefaultTTL(d))
}
