package redistruct

import "context"

func init() {
	RegisterKind("hashmap", func(b Binding) RelatedField {
		return &HashMapField{baseField{d: b.Descriptor, rec: b.Record, def: b.Def}}
	})
}

// HashMap declares an instance-level hash collection.
func HashMap(name string, ropts ...RelatedOption) Option {
	return Attach("hashmap", name, ropts...)
}

// ClassHashMap declares a class-level hash collection. Feature-specific
// index maps (lookup tables keyed by a field value) are these.
func ClassHashMap(name string, ropts ...RelatedOption) Option {
	return ClassAttach("hashmap", name, ropts...)
}

// HashMapField is a bound hash collection.
type HashMapField struct {
	baseField
}

func (f *HashMapField) Kind() string { return "hashmap" }

// Put stores a field/value pair.
func (f *HashMapField) Put(ctx context.Context, field string, value any) error {
	c, key, err := f.conn(ctx)
	if err != nil {
		return err
	}
	enc, err := encodeValue(value)
	if err != nil {
		return err
	}
	return asStoreError(c.HSet(ctx, key, field, enc).Err(), key)
}

// Fetch reads one field. Found is false when the hash or field is absent.
func (f *HashMapField) Fetch(ctx context.Context, field string) (string, bool, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return "", false, err
	}
	v, err := c.HGet(ctx, key, field).Result()
	if isNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, asStoreError(err, key)
	}
	return v, true, nil
}

// All returns every field/value pair.
func (f *HashMapField) All(ctx context.Context) (map[string]string, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return nil, err
	}
	out, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, asStoreError(err, key)
	}
	return out, nil
}

// Keys returns the field names.
func (f *HashMapField) Keys(ctx context.Context) ([]string, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return nil, err
	}
	out, err := c.HKeys(ctx, key).Result()
	if err != nil {
		return nil, asStoreError(err, key)
	}
	return out, nil
}

// Remove deletes fields.
func (f *HashMapField) Remove(ctx context.Context, fields ...string) error {
	c, key, err := f.conn(ctx)
	if err != nil {
		return err
	}
	return asStoreError(c.HDel(ctx, key, fields...).Err(), key)
}

// Size returns the field count.
func (f *HashMapField) Size(ctx context.Context) (int64, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return 0, err
	}
	n, err := c.HLen(ctx, key).Result()
	if err != nil {
		return 0, asStoreError(err, key)
	}
	return n, nil
}
