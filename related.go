package redistruct

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// baseField carries the binding every collection kind shares: the owning
// descriptor, the owning record (nil for class-level attachments) and the
// declaration. Keys derive from the owner's namespace on every call; all
// operations resolve their connection per call and queue transparently when
// the context carries an open transaction block.
type baseField struct {
	d   *Descriptor
	rec *Record
	def RelatedDef
}

func (b baseField) Name() string { return b.def.Name }

func (b baseField) Key() (string, error) {
	if b.def.ClassLevel || b.rec == nil {
		return b.d.ClassKey(b.def.Name), nil
	}
	return b.rec.RelatedKey(b.def.Name)
}

func (b baseField) conn(ctx context.Context) (redis.Cmdable, string, error) {
	key, err := b.Key()
	if err != nil {
		return nil, "", err
	}
	c, err := resolveConn(ctx, b.d)
	if err != nil {
		return nil, "", err
	}
	return c, key, nil
}

// isNil detects the client's key-not-found sentinel.
func isNil(err error) bool {
	return err == redis.Nil
}

// encodeValues encodes a vararg value list into stored-string form.
func encodeValues(values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		enc, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

// Clear removes the collection's backing key.
func (b baseField) Clear(ctx context.Context) error {
	c, key, err := b.conn(ctx)
	if err != nil {
		return err
	}
	return asStoreError(c.Del(ctx, key).Err(), key)
}
