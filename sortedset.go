package redistruct

import (
	"context"

	"github.com/redis/go-redis/v9"
)

func init() {
	RegisterKind("sortedset", func(b Binding) RelatedField {
		return &SortedSetField{baseField{d: b.Descriptor, rec: b.Record, def: b.Def}}
	})
}

// SortedSet declares an instance-level sorted-set collection.
func SortedSet(name string, ropts ...RelatedOption) Option {
	return Attach("sortedset", name, ropts...)
}

// ClassSortedSet declares a class-level sorted-set collection.
func ClassSortedSet(name string, ropts ...RelatedOption) Option {
	return ClassAttach("sortedset", name, ropts...)
}

// SortedSetField is a bound sorted-set collection. The implicit class
// membership registry is one of these.
type SortedSetField struct {
	baseField
}

func (f *SortedSetField) Kind() string { return "sortedset" }

// Add inserts or re-scores a member.
func (f *SortedSetField) Add(ctx context.Context, member any, score float64) error {
	c, key, err := f.conn(ctx)
	if err != nil {
		return err
	}
	enc, err := encodeValue(member)
	if err != nil {
		return err
	}
	return asStoreError(c.ZAdd(ctx, key, redis.Z{Score: score, Member: enc}).Err(), key)
}

// Score returns a member's score. Found is false for an absent member.
func (f *SortedSetField) Score(ctx context.Context, member any) (float64, bool, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return 0, false, err
	}
	enc, err := encodeValue(member)
	if err != nil {
		return 0, false, err
	}
	s, err := c.ZScore(ctx, key, enc).Result()
	if isNil(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, asStoreError(err, key)
	}
	return s, true, nil
}

// Range returns members by rank, ascending.
func (f *SortedSetField) Range(ctx context.Context, start, stop int64) ([]string, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return nil, err
	}
	out, err := c.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, asStoreError(err, key)
	}
	return out, nil
}

// RevRange returns members by rank, descending.
func (f *SortedSetField) RevRange(ctx context.Context, start, stop int64) ([]string, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return nil, err
	}
	out, err := c.ZRevRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, asStoreError(err, key)
	}
	return out, nil
}

// RangeByScore returns members whose score falls in [min, max], using the
// store's interval syntax ("-inf", "(1.5", ...).
func (f *SortedSetField) RangeByScore(ctx context.Context, min, max string) ([]string, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return nil, err
	}
	out, err := c.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: min, Max: max}).Result()
	if err != nil {
		return nil, asStoreError(err, key)
	}
	return out, nil
}

// Rank returns a member's ascending rank. Found is false for an absent
// member.
func (f *SortedSetField) Rank(ctx context.Context, member any) (int64, bool, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return 0, false, err
	}
	enc, err := encodeValue(member)
	if err != nil {
		return 0, false, err
	}
	rank, err := c.ZRank(ctx, key, enc).Result()
	if isNil(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, asStoreError(err, key)
	}
	return rank, true, nil
}

// Remove deletes members.
func (f *SortedSetField) Remove(ctx context.Context, members ...any) error {
	c, key, err := f.conn(ctx)
	if err != nil {
		return err
	}
	enc, err := encodeValues(members)
	if err != nil {
		return err
	}
	return asStoreError(c.ZRem(ctx, key, enc...).Err(), key)
}

// Size returns the member count.
func (f *SortedSetField) Size(ctx context.Context) (int64, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return 0, err
	}
	n, err := c.ZCard(ctx, key).Result()
	if err != nil {
		return 0, asStoreError(err, key)
	}
	return n, nil
}
