package redistruct

import "context"

func init() {
	RegisterKind("counter", func(b Binding) RelatedField {
		return &CounterField{baseField{d: b.Descriptor, rec: b.Record, def: b.Def}}
	})
}

// Counter declares an instance-level counter.
func Counter(name string, ropts ...RelatedOption) Option {
	return Attach("counter", name, ropts...)
}

// ClassCounter declares a class-level counter.
func ClassCounter(name string, ropts ...RelatedOption) Option {
	return ClassAttach("counter", name, ropts...)
}

// CounterField is a bound integer counter.
type CounterField struct {
	baseField
}

func (f *CounterField) Kind() string { return "counter" }

// Increment adds one and returns the new value.
func (f *CounterField) Increment(ctx context.Context) (int64, error) {
	return f.IncrementBy(ctx, 1)
}

// IncrementBy adds n and returns the new value.
func (f *CounterField) IncrementBy(ctx context.Context, n int64) (int64, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return 0, err
	}
	v, err := c.IncrBy(ctx, key, n).Result()
	if err != nil {
		return 0, asStoreError(err, key)
	}
	return v, nil
}

// Decrement subtracts one and returns the new value.
func (f *CounterField) Decrement(ctx context.Context) (int64, error) {
	return f.IncrementBy(ctx, -1)
}

// Value reads the counter; an absent key counts as zero.
func (f *CounterField) Value(ctx context.Context) (int64, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return 0, err
	}
	v, err := c.Get(ctx, key).Int64()
	if isNil(err) {
		return 0, nil
	}
	if err != nil {
		return 0, asStoreError(err, key)
	}
	return v, nil
}

// Reset sets the counter to zero.
func (f *CounterField) Reset(ctx context.Context) error {
	c, key, err := f.conn(ctx)
	if err != nil {
		return err
	}
	return asStoreError(c.Set(ctx, key, 0, 0).Err(), key)
}
