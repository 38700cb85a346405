package redistruct

import "context"

func init() {
	RegisterKind("set", func(b Binding) RelatedField {
		return &SetField{baseField{d: b.Descriptor, rec: b.Record, def: b.Def}}
	})
}

// Set declares an instance-level set collection.
func Set(name string, ropts ...RelatedOption) Option {
	return Attach("set", name, ropts...)
}

// ClassSet declares a class-level set collection.
func ClassSet(name string, ropts ...RelatedOption) Option {
	return ClassAttach("set", name, ropts...)
}

// SetField is a bound set collection.
type SetField struct {
	baseField
}

func (f *SetField) Kind() string { return "set" }

// Add inserts members.
func (f *SetField) Add(ctx context.Context, members ...any) error {
	c, key, err := f.conn(ctx)
	if err != nil {
		return err
	}
	enc, err := encodeValues(members)
	if err != nil {
		return err
	}
	return asStoreError(c.SAdd(ctx, key, enc...).Err(), key)
}

// Members returns all members.
func (f *SetField) Members(ctx context.Context) ([]string, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return nil, err
	}
	out, err := c.SMembers(ctx, key).Result()
	if err != nil {
		return nil, asStoreError(err, key)
	}
	return out, nil
}

// Contains reports membership.
func (f *SetField) Contains(ctx context.Context, member any) (bool, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return false, err
	}
	enc, err := encodeValue(member)
	if err != nil {
		return false, err
	}
	ok, err := c.SIsMember(ctx, key, enc).Result()
	if err != nil {
		return false, asStoreError(err, key)
	}
	return ok, nil
}

// Remove deletes members.
func (f *SetField) Remove(ctx context.Context, members ...any) error {
	c, key, err := f.conn(ctx)
	if err != nil {
		return err
	}
	enc, err := encodeValues(members)
	if err != nil {
		return err
	}
	return asStoreError(c.SRem(ctx, key, enc...).Err(), key)
}

// Size returns the member count.
func (f *SetField) Size(ctx context.Context) (int64, error) {
	c, key, err := f.conn(ctx)
	if err != nil {
		return 0, err
	}
	n, err := c.SCard(ctx, key).Result()
	if err != nil {
		return 0, asStoreError(err, key)
	}
	return n, nil
}
