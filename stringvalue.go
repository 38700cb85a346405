package redistruct

import (
	"context"
	"time"
)

func init() {
	RegisterKind("string", func(b Binding) RelatedField {
		return &StringValueField{baseField{d: b.Descriptor, rec: b.Record, def: b.Def}}
	})
}

// StringValue declares an instance-level plain string value.
func StringValue(name string, ropts ...RelatedOption) Option {
	return Attach("string", name, ropts...)
}

// ClassStringValue declares a class-level plain string value.
func ClassStringValue(name string, ropts ...RelatedOption) Option {
	return ClassAttach("string", name, ropts...)
}

// StringValueField is a bound plain string value.
type StringValueField struct {
	baseField
}

func (f *StringValueField) Kind() string { return "string" }

// Store writes the value. A zero ttl leaves the key persistent.
func (f *StringValueField) Store(ctx context.Context, value any, ttl time.Duration) error {
	c, key, err := f.conn(ctx)
	if err != nil {
		return err
	}
	enc, err := encodeValue(value)
	if err != nil {
		return err
	}
	return asStoreError(c.Set(ctx, key, enc, ttl).Err(), key)
}

// Value reads the value. Found is false when the key is absent.
func (f *StringValueField) Value(ctx context.Context) (string, bool, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return "", false, err
	}
	v, err := c.Get(ctx, key).Result()
	if isNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, asStoreError(err, key)
	}
	return v, true, nil
}
