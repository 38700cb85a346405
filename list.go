package redistruct

import "context"

func init() {
	RegisterKind("list", func(b Binding) RelatedField {
		return &ListField{baseField{d: b.Descriptor, rec: b.Record, def: b.Def}}
	})
}

// List declares an instance-level list collection.
func List(name string, ropts ...RelatedOption) Option {
	return Attach("list", name, ropts...)
}

// ClassList declares a class-level list collection.
func ClassList(name string, ropts ...RelatedOption) Option {
	return ClassAttach("list", name, ropts...)
}

// ListField is a bound list collection.
type ListField struct {
	baseField
}

func (f *ListField) Kind() string { return "list" }

// Push appends values to the tail.
func (f *ListField) Push(ctx context.Context, values ...any) error {
	c, key, err := f.conn(ctx)
	if err != nil {
		return err
	}
	enc, err := encodeValues(values)
	if err != nil {
		return err
	}
	return asStoreError(c.RPush(ctx, key, enc...).Err(), key)
}

// Unshift prepends values to the head.
func (f *ListField) Unshift(ctx context.Context, values ...any) error {
	c, key, err := f.conn(ctx)
	if err != nil {
		return err
	}
	enc, err := encodeValues(values)
	if err != nil {
		return err
	}
	return asStoreError(c.LPush(ctx, key, enc...).Err(), key)
}

// Pop removes and returns the tail element. Found is false on an empty or
// missing list.
func (f *ListField) Pop(ctx context.Context) (string, bool, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return "", false, err
	}
	v, err := c.RPop(ctx, key).Result()
	if isNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, asStoreError(err, key)
	}
	return v, true, nil
}

// Shift removes and returns the head element.
func (f *ListField) Shift(ctx context.Context) (string, bool, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return "", false, err
	}
	v, err := c.LPop(ctx, key).Result()
	if isNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, asStoreError(err, key)
	}
	return v, true, nil
}

// Range returns the elements between start and stop, inclusive, with
// negative offsets counting from the tail.
func (f *ListField) Range(ctx context.Context, start, stop int64) ([]string, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return nil, err
	}
	out, err := c.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, asStoreError(err, key)
	}
	return out, nil
}

// Len returns the list length.
func (f *ListField) Len(ctx context.Context) (int64, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return 0, err
	}
	n, err := c.LLen(ctx, key).Result()
	if err != nil {
		return 0, asStoreError(err, key)
	}
	return n, nil
}

// Remove deletes count occurrences of a value (count semantics follow LREM).
func (f *ListField) Remove(ctx context.Context, count int64, value any) error {
	c, key, err := f.conn(ctx)
	if err != nil {
		return err
	}
	enc, err := encodeValue(value)
	if err != nil {
		return err
	}
	return asStoreError(c.LRem(ctx, key, count, enc).Err(), key)
}
