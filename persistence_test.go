package redistruct

import (
	"context"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestSaveAndFindByIdentifier(t *testing.T) {
	d, s := customerModel(t)
	ctx := context.Background()

	r, err := d.New("name", "Ada", "email", "a@example.com", "token", "s3cret")
	require.NoError(t, err)
	ok, err := r.Save(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, r.Dirty())

	loaded, err := d.FindByIdentifier(ctx, "a@example.com")
	require.NoError(t, err)
	name, _ := loaded.Get("name")
	require.Equal(t, "Ada", name)
	require.False(t, loaded.IsSet("token"))

	require.Equal(t, "", s.HGet("customer:a@example.com:object", "token"))
}

func TestFindByIdentifierMissing(t *testing.T) {
	d, _ := customerModel(t)
	_, err := d.FindByIdentifier(context.Background(), "nobody@example.com")
	require.Error(t, err)
	require.True(t, IsCode(err, KeyNotFound))
}

func TestSaveWithoutIdentifierWritesNothing(t *testing.T) {
	d, s := customerModel(t)

	r, err := d.New("name", "Ada")
	require.NoError(t, err)
	_, err = r.Save(context.Background())
	require.Error(t, err)
	require.True(t, IsCode(err, MissingIdentifier))
	require.Empty(t, s.Keys())
}

func TestSaveRegistersMembershipIdempotently(t *testing.T) {
	d, _ := customerModel(t)
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	_, err := r.Save(ctx)
	require.NoError(t, err)
	_, err = r.Save(ctx)
	require.NoError(t, err)

	n, err := d.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	ids, err := d.Instances(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a@example.com"}, ids)
}

func TestDestroyRemovesEverything(t *testing.T) {
	d, s := customerModel(t)
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	_, err := r.Save(ctx)
	require.NoError(t, err)
	visits, err := r.List("visits")
	require.NoError(t, err)
	require.NoError(t, visits.Push(ctx, "2026-08-25"))
	require.True(t, s.Exists("customer:a@example.com:visits"))

	require.NoError(t, r.Destroy(ctx))
	require.False(t, s.Exists("customer:a@example.com:object"))
	require.False(t, s.Exists("customer:a@example.com:visits"))

	n, err := d.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = d.FindByIdentifier(ctx, "a@example.com")
	require.True(t, IsCode(err, KeyNotFound))
}

func TestRefreshReplacesState(t *testing.T) {
	d, s := customerModel(t)
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com", "token", "s3cret")
	_, err := r.Save(ctx)
	require.NoError(t, err)

	s.HSet("customer:a@example.com:object", "name", "Grace")
	require.NoError(t, r.Set("name", "stale"))

	require.NoError(t, r.Refresh(ctx))
	name, _ := r.Get("name")
	require.Equal(t, "Grace", name)
	require.False(t, r.IsSet("token"))
	require.False(t, r.Dirty())
}

func TestRefreshMissingKey(t *testing.T) {
	d, _ := customerModel(t)
	r, _ := d.New("email", "gone@example.com")
	err := r.Refresh(context.Background())
	require.Error(t, err)
	require.True(t, IsCode(err, KeyNotFound))
}

func TestUniqueFieldGuard(t *testing.T) {
	d, _ := customerModel(t, Unique("name"))
	ctx := context.Background()

	first, _ := d.New("name", "Ada", "email", "a@example.com")
	_, err := first.Save(ctx)
	require.NoError(t, err)

	// Re-saving the owner is not a conflict.
	_, err = first.Save(ctx)
	require.NoError(t, err)

	second, _ := d.New("name", "Ada", "email", "b@example.com")
	_, err = second.Save(ctx)
	require.Error(t, err)
	require.True(t, IsCode(err, RecordExists))

	third, _ := d.New("name", "Grace", "email", "c@example.com")
	_, err = third.Save(ctx)
	require.NoError(t, err)
}

func TestUniqueFieldReassignmentFreesOldValue(t *testing.T) {
	d, s := customerModel(t, Unique("name"))
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	_, err := r.Save(ctx)
	require.NoError(t, err)
	require.Equal(t, "a@example.com", s.HGet("customer:idx:name", "Ada"))

	require.NoError(t, r.Set("name", "Grace"))
	_, err = r.Save(ctx)
	require.NoError(t, err)
	require.Equal(t, "", s.HGet("customer:idx:name", "Ada"))
	require.Equal(t, "a@example.com", s.HGet("customer:idx:name", "Grace"))

	// The abandoned value is free for the next record.
	second, _ := d.New("name", "Ada", "email", "b@example.com")
	_, err = second.Save(ctx)
	require.NoError(t, err)
	require.Equal(t, "b@example.com", s.HGet("customer:idx:name", "Ada"))
}

func TestDestroyClearsStoredUniqueEntries(t *testing.T) {
	d, s := customerModel(t, Unique("name"))
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	_, err := r.Save(ctx)
	require.NoError(t, err)

	// Unsaved in-memory drift must not shadow the persisted index entry.
	require.NoError(t, r.Set("name", "Grace"))
	require.NoError(t, r.Destroy(ctx))
	require.Equal(t, "", s.HGet("customer:idx:name", "Ada"))
	require.Equal(t, "", s.HGet("customer:idx:name", "Grace"))

	fresh, _ := d.New("name", "Ada", "email", "c@example.com")
	_, err = fresh.Save(ctx)
	require.NoError(t, err)
}

func TestSaveIfNotExists(t *testing.T) {
	d, _ := customerModel(t)
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	require.NoError(t, r.SaveIfNotExists(ctx))

	dup, _ := d.New("name", "Imposter", "email", "a@example.com")
	err := dup.SaveIfNotExists(ctx)
	require.Error(t, err)
	require.True(t, IsCode(err, RecordExists))

	loaded, err := d.FindByIdentifier(ctx, "a@example.com")
	require.NoError(t, err)
	name, _ := loaded.Get("name")
	require.Equal(t, "Ada", name)
}

func TestSaveIfNotExistsConcurrentWriters(t *testing.T) {
	d, _ := customerModel(t)
	ctx := context.Background()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, name := range []string{"Ada", "Grace"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			r, err := d.New("name", name, "email", "a@example.com")
			if err != nil {
				errs <- err
				return
			}
			errs <- r.SaveIfNotExists(ctx)
		}(name)
	}
	wg.Wait()
	close(errs)

	wins, losses := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case IsCode(err, RecordExists):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, losses)
}

func TestSaveIfNotExistsRetriesOnWatchConflict(t *testing.T) {
	d, s := customerModel(t)
	ctx := context.Background()

	// First attempt: a racing writer creates the key between WATCH and EXEC,
	// aborting the transaction. The retry re-checks EXISTS and reports the
	// winner's record.
	raced := false
	d.OnBeforeSave(func(ctx context.Context, r *Record, pipe redis.Pipeliner) error {
		if !raced {
			raced = true
			s.HSet("customer:a@example.com:object", "name", "Winner")
		}
		return nil
	})

	r, _ := d.New("name", "Loser", "email", "a@example.com")
	err := r.SaveIfNotExists(ctx)
	require.Error(t, err)
	require.True(t, IsCode(err, RecordExists))
	require.True(t, raced)
	require.Equal(t, "Winner", s.HGet("customer:a@example.com:object", "name"))
}

func TestSaveIfNotExistsExhaustsRetries(t *testing.T) {
	d, s := customerModel(t)
	ctx := context.Background()

	// Every attempt sees the watched key touched and deleted by another
	// writer: EXISTS keeps reporting absent while the watch keeps failing.
	attempts := 0
	d.OnBeforeSave(func(ctx context.Context, r *Record, pipe redis.Pipeliner) error {
		attempts++
		s.HSet("customer:a@example.com:object", "name", "ghost")
		s.Del("customer:a@example.com:object")
		return nil
	})

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	err := r.SaveIfNotExists(ctx)
	require.Error(t, err)
	require.True(t, IsCode(err, OptimisticLockConflict))
	require.Equal(t, 4, attempts)
}

func TestCommitFieldsSkipsGuardsButRegistersMembership(t *testing.T) {
	d, _ := customerModel(t, Unique("name"))
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	ok, err := r.CommitFields(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := d.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestSaveFields(t *testing.T) {
	d, s := customerModel(t)
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	_, err := r.Save(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Set("name", "Grace"))
	ok, err := r.SaveFields(ctx, "name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Grace", s.HGet("customer:a@example.com:object", "name"))

	_, err = r.SaveFields(ctx, "token")
	require.Error(t, err)

	_, err = r.SaveFields(ctx, "ghost")
	require.Error(t, err)

	fresh, _ := d.New("email", "b@example.com")
	_, err = fresh.SaveFields(ctx, "name")
	require.Error(t, err)
}

func TestBatchUpdate(t *testing.T) {
	d, s := customerModel(t)
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	_, err := r.Save(ctx)
	require.NoError(t, err)

	ok, err := r.BatchUpdate(ctx, map[string]any{"name": "Grace"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Grace", s.HGet("customer:a@example.com:object", "name"))

	n, err := d.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestFastWriteAndFastRead(t *testing.T) {
	d, s := customerModel(t)
	ctx := context.Background()

	r, _ := d.New("email", "a@example.com")
	require.NoError(t, r.FastWrite(ctx, "name", "Ada"))
	require.Equal(t, "Ada", s.HGet("customer:a@example.com:object", "name"))

	n, err := d.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	v, found, err := r.FastRead(ctx, "name")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Ada", v)

	_, found, err = r.FastRead(ctx, "email")
	require.NoError(t, err)
	require.False(t, found)

	require.Error(t, r.FastWrite(ctx, "token", "x"))
}

func TestFastAccessSuppressed(t *testing.T) {
	d, _ := newTestModel(t, "customer",
		Field("name", NoFastWriter()),
		Field("email"),
		IdentifierField("email"))
	r, _ := d.New("email", "a@example.com")
	err := r.FastWrite(context.Background(), "name", "Ada")
	require.Error(t, err)
	_, _, err = r.FastRead(context.Background(), "name")
	require.Error(t, err)
}

func TestTouchRequiresIdentifier(t *testing.T) {
	d, _ := customerModel(t)
	ctx := context.Background()

	r, _ := d.New("name", "Ada")
	err := r.Touch(ctx)
	require.Error(t, err)
	require.True(t, IsCode(err, MissingIdentifier))

	require.NoError(t, r.SetIdentifier("a@example.com"))
	require.NoError(t, r.Touch(ctx))
	n, _ := d.Count(ctx)
	require.Equal(t, int64(1), n)
}

func TestRekeyRenamesAllState(t *testing.T) {
	d, s := customerModel(t, Unique("name"))
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "old@example.com")
	_, err := r.Save(ctx)
	require.NoError(t, err)
	visits, _ := r.List("visits")
	require.NoError(t, visits.Push(ctx, "2026-08-25"))

	require.NoError(t, r.Rekey(ctx, "new@example.com"))

	require.False(t, s.Exists("customer:old@example.com:object"))
	require.True(t, s.Exists("customer:new@example.com:object"))
	require.True(t, s.Exists("customer:new@example.com:visits"))
	require.Equal(t, "new@example.com",
		s.HGet("customer:new@example.com:object", "email"))

	ids, err := d.Instances(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"new@example.com"}, ids)

	id, err := r.Identifier()
	require.NoError(t, err)
	require.Equal(t, "new@example.com", id)

	loaded, err := d.FindByIdentifier(ctx, "new@example.com")
	require.NoError(t, err)
	name, _ := loaded.Get("name")
	require.Equal(t, "Ada", name)
}

func TestRekeyMissingSource(t *testing.T) {
	d, _ := customerModel(t)
	r, _ := d.New("email", "ghost@example.com")
	err := r.Rekey(context.Background(), "new@example.com")
	require.Error(t, err)
	require.True(t, IsCode(err, KeyNotFound))
}

func TestTimestampsStampedWhenDeclared(t *testing.T) {
	d, s := newTestModel(t, "event",
		Field("email"),
		Field("created"),
		Field("updated"),
		IdentifierField("email"))
	ctx := context.Background()

	r, _ := d.New("email", "a@example.com")
	_, err := r.Save(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, s.HGet("event:a@example.com:object", "created"))
	require.NotEmpty(t, s.HGet("event:a@example.com:object", "updated"))
}

func TestExists(t *testing.T) {
	d, _ := customerModel(t)
	ctx := context.Background()

	r, _ := d.New("name", "Ada", "email", "a@example.com")
	found, err := r.Exists(ctx)
	require.NoError(t, err)
	require.False(t, found)

	_, err = r.Save(ctx)
	require.NoError(t, err)
	found, err = r.Exists(ctx)
	require.NoError(t, err)
	require.True(t, found)
}
