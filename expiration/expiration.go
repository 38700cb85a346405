// Package expiration layers a TTL policy onto a model: saves apply the
// model's default TTL to the primary key, and UpdateExpiration cascades a
// TTL to the record's related-collection keys, honoring per-relation
// overrides and opt-outs.
//
// A TTL of zero means "no expiration": saves leave the key persistent and
// cascades issue PERSIST.
package expiration

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/redistruct/redistruct"
)

// FeatureName keys the feature's option bag on a descriptor.
const FeatureName = "expiration"

// Feature installs the TTL policy.
type Feature struct {
	// TTL is the model's default expiration. Zero disables expiration.
	TTL time.Duration
}

// New builds the feature.
func New(ttl time.Duration) *Feature {
	return &Feature{TTL: ttl}
}

func (f *Feature) Name() string { return FeatureName }

// Install seeds the option bag and hooks every save transaction.
func (f *Feature) Install(d *redistruct.Descriptor) error {
	d.AddFeatureOptions(FeatureName, map[string]any{"default_ttl": f.TTL})
	d.OnBeforeSave(func(ctx context.Context, r *redistruct.Record, pipe redis.Pipeliner) error {
		ttl := DefaultTTL(d)
		if ttl <= 0 {
			return nil
		}
		key, err := r.Key()
		if err != nil {
			return err
		}
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return nil
}

// DefaultTTL reads the model's default TTL from its option bag.
func DefaultTTL(d *redistruct.Descriptor) time.Duration {
	if v, ok := d.FeatureOptions(FeatureName)["default_ttl"].(time.Duration); ok {
		return v
	}
	return 0
}

// UpdateExpiration applies a TTL to the record's primary key and cascades it
// to related-collection keys in one batched round trip. Relations declared
// with their own TTL use it instead of the cascading value; relations opted
// out of the cascade are skipped. A zero TTL makes the keys persistent.
func UpdateExpiration(ctx context.Context, r *redistruct.Record, ttl time.Duration) error {
	d := r.Descriptor()
	key, err := r.Key()
	if err != nil {
		return err
	}
	_, err = d.Pipelined(ctx, func(ctx context.Context, pipe redis.Pipeliner) error {
		applyTTL(ctx, pipe, key, ttl)
		for _, def := range d.RelatedFields() {
			if def.NoCascade {
				continue
			}
			rk, err := r.RelatedKey(def.Name)
			if err != nil {
				return err
			}
			t := ttl
			if def.TTL > 0 {
				t = def.TTL
			}
			applyTTL(ctx, pipe, rk, t)
		}
		return nil
	})
	return err
}

func applyTTL(ctx context.Context, pipe redis.Pipeliner, key string, ttl time.Duration) {
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
		return
	}
	pipe.Persist(ctx, key)
}

// RemainingTTL queries the primary key's remaining time to live. Negative
// results are the store's sentinels: -1s for a key with no expiration, -2s
// for a missing key.
func RemainingTTL(ctx context.Context, r *redistruct.Record) (time.Duration, error) {
	key, err := r.Key()
	if err != nil {
		return 0, err
	}
	conn, err := r.Descriptor().Connection(ctx)
	if err != nil {
		return 0, err
	}
	ttl, err := conn.TTL(ctx, key).Result()
	if err != nil {
		return 0, redistruct.Error{Code: redistruct.StoreError, Err: err, UserData: key}
	}
	return ttl, nil
}
