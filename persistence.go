package redistruct

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// Timestamp fields are stamped only when the model declares them.
const (
	createdField = "created"
	updatedField = "updated"
)

// Bounded backoff for WATCH conflicts in SaveIfNotExists.
const (
	lockRetryAttempts = 3
	lockRetryBase     = 50 * time.Millisecond
)

func (r *Record) stampTimestamps(includeCreated bool) {
	now := time.Now().Unix()
	if includeCreated {
		if _, ok := r.d.fieldTypes[createdField]; ok && !r.IsSet(createdField) {
			_ = r.Set(createdField, now)
		}
	}
	if _, ok := r.d.fieldTypes[updatedField]; ok {
		_ = r.Set(updatedField, now)
	}
}

// persistentHash collects the stored form of every set, persistable field in
// declaration order.
func (r *Record) persistentHash() (map[string]string, error) {
	out := make(map[string]string, len(r.d.fields))
	for _, f := range r.d.fields {
		if !r.d.fieldTypes[f].Category.persists() {
			continue
		}
		v, ok := r.values[f]
		if !ok {
			continue
		}
		enc, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		out[f] = enc
	}
	return out, nil
}

// checkUniqueGuards reads the current unique-index state before any write.
// Must run outside a transaction: queued reads return placeholders.
func (r *Record) checkUniqueGuards(ctx context.Context, id string) error {
	if len(r.d.uniqueFields) == 0 {
		return nil
	}
	conn, err := resolveConn(ctx, r.d)
	if err != nil {
		return err
	}
	for _, f := range r.d.uniqueFields {
		v, ok := r.values[f]
		if !ok {
			continue
		}
		enc, err := encodeValue(v)
		if err != nil {
			return err
		}
		owner, err := conn.HGet(ctx, r.d.uniqueIndexKey(f), enc).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return Error{Code: StoreError, Err: err, UserData: r.d.uniqueIndexKey(f)}
		}
		if owner != id {
			return Error{Code: RecordExists, UserData: "unique field " + f}
		}
	}
	return nil
}

// storedUniqueValues reads the persisted values of the unique fields ahead of
// a write or destroy, so index entries for superseded values can be removed
// in the same transaction. Inside a joined transaction block the read would
// return a queued placeholder, so it is skipped there.
func (r *Record) storedUniqueValues(ctx context.Context, key string) (map[string]string, error) {
	if len(r.d.uniqueFields) == 0 || txStateFrom(ctx) != nil {
		return nil, nil
	}
	conn, err := resolveConn(ctx, r.d)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(r.d.uniqueFields))
	for _, f := range r.d.uniqueFields {
		v, err := conn.HGet(ctx, key, f).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, Error{Code: StoreError, Err: err, UserData: key}
		}
		out[f] = v
	}
	return out, nil
}

// queueWrite queues the full write sequence of a save on an open pipeline:
// the batched hash write, secondary-index updates (dropping entries for the
// values being replaced), feature hooks, and the membership registration that
// keeps class-wide enumeration consistent.
func (r *Record) queueWrite(ctx context.Context, pipe redis.Pipeliner, key, id string, vals, stale map[string]string) error {
	if len(vals) > 0 {
		pipe.HSet(ctx, key, vals)
	}
	for _, f := range r.d.uniqueFields {
		v, ok := r.values[f]
		if !ok {
			continue
		}
		enc, err := encodeValue(v)
		if err != nil {
			return err
		}
		if old, had := stale[f]; had && old != enc {
			pipe.HDel(ctx, r.d.uniqueIndexKey(f), old)
		}
		pipe.HSet(ctx, r.d.uniqueIndexKey(f), enc, id)
	}
	for _, h := range r.d.beforeSave {
		if err := h(ctx, r, pipe); err != nil {
			return err
		}
	}
	r.d.queueRegisterInstance(ctx, pipe, id)
	return nil
}

func (d *Descriptor) queueRegisterInstance(ctx context.Context, conn redis.Cmdable, id string) *redis.IntCmd {
	return conn.ZAdd(ctx, d.ClassKey(membershipName), redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: id,
	})
}

// RegisterInstance adds (or re-scores) an identifier in the class membership
// registry. Idempotent: registering the same identifier twice keeps one
// entry.
func (d *Descriptor) RegisterInstance(ctx context.Context, id string) error {
	if id == "" {
		return Error{Code: MissingIdentifier, UserData: d.prefix}
	}
	conn, err := resolveConn(ctx, d)
	if err != nil {
		return err
	}
	return asStoreError(d.queueRegisterInstance(ctx, conn, id).Err(), d.ClassKey(membershipName))
}

// DeregisterInstance removes an identifier from the class membership
// registry.
func (d *Descriptor) DeregisterInstance(ctx context.Context, id string) error {
	if id == "" {
		return Error{Code: MissingIdentifier, UserData: d.prefix}
	}
	conn, err := resolveConn(ctx, d)
	if err != nil {
		return err
	}
	return asStoreError(conn.ZRem(ctx, d.ClassKey(membershipName), id).Err(), d.ClassKey(membershipName))
}

// Save persists the record atomically: timestamps, unique guards, then one
// transaction carrying the batched hash write, index updates, feature hooks
// and membership registration.
//
// The boolean is the operation's core outcome; precondition violations
// (missing identifier, wrong call context, unique conflicts) come back as
// typed errors instead of being folded into it. Calling Save inside an open
// transaction block is an operation-mode conflict: the unique-guard reads
// would return unusable placeholders from a queued block.
func (r *Record) Save(ctx context.Context) (bool, error) {
	if txStateFrom(ctx) != nil {
		return false, Error{Code: OperationModeConflict,
			UserData: "save inside an open transaction block"}
	}
	r.stampTimestamps(true)
	id, err := r.Identifier()
	if err != nil {
		return false, err
	}
	key, err := r.d.Key(id)
	if err != nil {
		return false, err
	}
	if err := r.checkUniqueGuards(ctx, id); err != nil {
		return false, err
	}
	stale, err := r.storedUniqueValues(ctx, key)
	if err != nil {
		return false, err
	}
	vals, err := r.persistentHash()
	if err != nil {
		return false, err
	}
	res, err := r.d.Transaction(ctx, func(ctx context.Context, pipe redis.Pipeliner) error {
		return r.queueWrite(ctx, pipe, key, id, vals, stale)
	})
	if err != nil {
		return false, err
	}
	r.markClean()
	for _, h := range r.d.afterSave {
		if err := h(ctx, r); err != nil {
			return true, err
		}
	}
	return res.Success, nil
}

// SaveIfNotExists persists the record only when its key is absent, using
// WATCH-based optimistic locking so racing creators of the same key produce
// exactly one winner. A concurrent creation surfaces as RecordExists; a
// watched-key change is retried with bounded exponential backoff and
// surfaces as OptimisticLockConflict only after retries are exhausted.
func (r *Record) SaveIfNotExists(ctx context.Context) error {
	client, err := resolveDialable(ctx, r.d)
	if err != nil {
		return err
	}
	r.stampTimestamps(true)
	id, err := r.Identifier()
	if err != nil {
		return err
	}
	key, err := r.d.Key(id)
	if err != nil {
		return err
	}
	if err := r.checkUniqueGuards(ctx, id); err != nil {
		return err
	}
	vals, err := r.persistentHash()
	if err != nil {
		return err
	}

	b := retry.WithMaxRetries(lockRetryAttempts, retry.NewExponential(lockRetryBase))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		err := client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return Error{Code: RecordExists, UserData: key}
			}
			// The key was just checked absent, so there are no stored values
			// whose index entries could go stale.
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				txCtx := withTxState(ctx, &txState{pipe: pipe, atomic: true})
				return r.queueWrite(txCtx, pipe, key, id, vals, nil)
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, redis.TxFailedErr) {
		return Error{Code: OptimisticLockConflict, Err: err, UserData: key}
	}
	if err != nil {
		return asStoreError(err, key)
	}
	r.markClean()
	for _, h := range r.d.afterSave {
		if err := h(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether the record's primary key is present in storage.
func (r *Record) Exists(ctx context.Context) (bool, error) {
	key, err := r.Key()
	if err != nil {
		return false, err
	}
	conn, err := resolveConn(ctx, r.d)
	if err != nil {
		return false, err
	}
	n, err := conn.Exists(ctx, key).Result()
	if err != nil {
		return false, Error{Code: StoreError, Err: err, UserData: key}
	}
	return n > 0, nil
}

// Refresh replaces the record's in-memory state wholesale from storage:
// transient fields reset to unset, every other declared field is overwritten
// from the stored hash, dirty tracking clears, provenance becomes unknown.
// Fails with KeyNotFound when the key no longer exists.
func (r *Record) Refresh(ctx context.Context) error {
	if txStateFrom(ctx) != nil {
		return Error{Code: OperationModeConflict,
			UserData: "refresh inside an open transaction block"}
	}
	key, err := r.Key()
	if err != nil {
		return err
	}
	conn, err := resolveConn(ctx, r.d)
	if err != nil {
		return err
	}
	n, err := conn.Exists(ctx, key).Result()
	if err != nil {
		return Error{Code: StoreError, Err: err, UserData: key}
	}
	if n == 0 {
		return Error{Code: KeyNotFound, UserData: key}
	}
	h, err := conn.HGetAll(ctx, key).Result()
	if err != nil {
		return Error{Code: StoreError, Err: err, UserData: key}
	}
	r.populateFromHash(h)
	return nil
}

// Destroy removes the record from storage in one atomic transaction: the
// primary key, every declared related-collection key, unique-index entries
// and the membership registration. The in-memory object survives as a
// detached value; further storage operations on it are meaningless. Joins an
// enclosing transaction when one is open.
func (r *Record) Destroy(ctx context.Context) error {
	id, err := r.Identifier()
	if err != nil {
		return err
	}
	key, err := r.d.Key(id)
	if err != nil {
		return err
	}
	stored, err := r.storedUniqueValues(ctx, key)
	if err != nil {
		return err
	}
	_, err = r.d.Transaction(ctx, func(ctx context.Context, pipe redis.Pipeliner) error {
		for _, h := range r.d.beforeDestroy {
			if err := h(ctx, r, pipe); err != nil {
				return err
			}
		}
		pipe.Del(ctx, key)
		for _, name := range r.d.relatedOrder {
			rk, err := r.d.RelatedKey(id, name)
			if err != nil {
				return err
			}
			pipe.Del(ctx, rk)
		}
		// Index entries belong to the persisted values; in-memory values may
		// have drifted since the last save, so both are dropped.
		for _, f := range r.d.uniqueFields {
			if old, had := stored[f]; had {
				pipe.HDel(ctx, r.d.uniqueIndexKey(f), old)
			}
			v, ok := r.values[f]
			if !ok {
				continue
			}
			enc, err := encodeValue(v)
			if err != nil {
				return err
			}
			if enc != stored[f] {
				pipe.HDel(ctx, r.d.uniqueIndexKey(f), enc)
			}
		}
		pipe.ZRem(ctx, r.d.ClassKey(membershipName), id)
		return nil
	})
	return err
}

// CommitFields writes all persistable fields without the full save
// lifecycle: no unique guards and no created-timestamp logic. Intended for
// records already known to exist. Still registers membership. Joins an
// enclosing transaction when one is open.
func (r *Record) CommitFields(ctx context.Context) (bool, error) {
	r.stampTimestamps(false)
	id, err := r.Identifier()
	if err != nil {
		return false, err
	}
	key, err := r.d.Key(id)
	if err != nil {
		return false, err
	}
	vals, err := r.persistentHash()
	if err != nil {
		return false, err
	}
	res, err := r.d.Transaction(ctx, func(ctx context.Context, pipe redis.Pipeliner) error {
		if len(vals) > 0 {
			pipe.HSet(ctx, key, vals)
		}
		for _, h := range r.d.beforeSave {
			if err := h(ctx, r, pipe); err != nil {
				return err
			}
		}
		r.d.queueRegisterInstance(ctx, pipe, id)
		return nil
	})
	if err != nil {
		return false, err
	}
	r.markClean()
	return res.Success || res.Joined, nil
}

// BatchUpdate assigns the named fields in memory and persists just those in
// one atomic write. Still registers membership.
func (r *Record) BatchUpdate(ctx context.Context, fields map[string]any) (bool, error) {
	for name, v := range fields {
		if err := r.Set(name, v); err != nil {
			return false, err
		}
	}
	r.stampTimestamps(false)
	names := make([]string, 0, len(fields)+1)
	for _, f := range r.d.fields {
		if _, named := fields[f]; named || f == updatedField {
			names = append(names, f)
		}
	}
	return r.SaveFields(ctx, names...)
}

// SaveFields persists only the explicitly listed, already-in-memory fields
// in one atomic write. Transient fields are rejected, unset fields fail
// loudly rather than writing empties. Still registers membership.
func (r *Record) SaveFields(ctx context.Context, names ...string) (bool, error) {
	id, err := r.Identifier()
	if err != nil {
		return false, err
	}
	key, err := r.d.Key(id)
	if err != nil {
		return false, err
	}
	vals := make(map[string]string, len(names))
	for _, name := range names {
		ft, ok := r.d.fieldTypes[name]
		if !ok {
			return false, Error{Code: Unknown, UserData: "undeclared field " + name}
		}
		if !ft.Category.persists() {
			return false, Error{Code: Unknown, UserData: "field " + name + " is transient"}
		}
		v, ok := r.values[name]
		if !ok {
			return false, Error{Code: Unknown, UserData: "field " + name + " is not set"}
		}
		enc, err := encodeValue(v)
		if err != nil {
			return false, err
		}
		vals[name] = enc
	}
	res, err := r.d.Transaction(ctx, func(ctx context.Context, pipe redis.Pipeliner) error {
		if len(vals) > 0 {
			pipe.HSet(ctx, key, vals)
		}
		r.d.queueRegisterInstance(ctx, pipe, id)
		return nil
	})
	if err != nil {
		return false, err
	}
	for _, name := range names {
		delete(r.changed, name)
	}
	return res.Success || res.Joined, nil
}

// Touch re-scores the record's membership entry without writing fields.
func (r *Record) Touch(ctx context.Context) error {
	id, err := r.Identifier()
	if err != nil {
		return err
	}
	if id == "" {
		return Error{Code: MissingIdentifier, UserData: r.d.prefix}
	}
	return r.d.RegisterInstance(ctx, id)
}

// Rekey renames the record to a new identifier: primary and related keys are
// renamed, the membership registry and unique indexes are rewritten, and the
// stored identifier field is updated, all in one transaction. The explicit
// counterpart to the rule that keys are never silently re-derived from a
// changed identifier.
func (r *Record) Rekey(ctx context.Context, newID string) error {
	if txStateFrom(ctx) != nil {
		return Error{Code: OperationModeConflict,
			UserData: "rekey inside an open transaction block"}
	}
	if newID == "" {
		return Error{Code: MissingIdentifier, UserData: r.d.prefix}
	}
	oldID, err := r.Identifier()
	if err != nil {
		return err
	}
	oldKey, err := r.d.Key(oldID)
	if err != nil {
		return err
	}
	newKey, err := r.d.Key(newID)
	if err != nil {
		return err
	}
	conn, err := resolveConn(ctx, r.d)
	if err != nil {
		return err
	}
	n, err := conn.Exists(ctx, oldKey).Result()
	if err != nil {
		return Error{Code: StoreError, Err: err, UserData: oldKey}
	}
	if n == 0 {
		return Error{Code: KeyNotFound, UserData: oldKey}
	}
	// RENAME fails on a missing source, so probe related keys up front.
	type renamePair struct{ from, to string }
	var renames []renamePair
	for _, name := range r.d.relatedOrder {
		from, err := r.d.RelatedKey(oldID, name)
		if err != nil {
			return err
		}
		to, err := r.d.RelatedKey(newID, name)
		if err != nil {
			return err
		}
		cnt, err := conn.Exists(ctx, from).Result()
		if err != nil {
			return Error{Code: StoreError, Err: err, UserData: from}
		}
		if cnt > 0 {
			renames = append(renames, renamePair{from: from, to: to})
		}
	}
	_, err = r.d.Transaction(ctx, func(ctx context.Context, pipe redis.Pipeliner) error {
		pipe.Rename(ctx, oldKey, newKey)
		for _, rn := range renames {
			pipe.Rename(ctx, rn.from, rn.to)
		}
		if f := r.d.identifierField; f != "" {
			pipe.HSet(ctx, newKey, f, newID)
		}
		for _, f := range r.d.uniqueFields {
			v, ok := r.values[f]
			if !ok {
				continue
			}
			enc, err := encodeValue(v)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, r.d.uniqueIndexKey(f), enc, newID)
		}
		pipe.ZRem(ctx, r.d.ClassKey(membershipName), oldID)
		r.d.queueRegisterInstance(ctx, pipe, newID)
		return nil
	})
	if err != nil {
		return err
	}
	if r.d.identifierField != "" {
		r.values[r.d.identifierField] = newID
		delete(r.provenance, r.d.identifierField)
	}
	return nil
}

// FindByIdentifier loads the record stored under an identifier. KeyNotFound
// when absent.
func (d *Descriptor) FindByIdentifier(ctx context.Context, id string) (*Record, error) {
	key, err := d.Key(id)
	if err != nil {
		return nil, err
	}
	conn, err := resolveConn(ctx, d)
	if err != nil {
		return nil, err
	}
	h, err := conn.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, Error{Code: StoreError, Err: err, UserData: key}
	}
	if len(h) == 0 {
		return nil, Error{Code: KeyNotFound, UserData: key}
	}
	r := d.NewFromHash(h)
	if f := d.identifierField; f != "" {
		if _, ok := r.values[f]; !ok {
			r.values[f] = id
		}
	}
	return r, nil
}

// Instances enumerates the identifiers currently registered for this model,
// oldest write first.
func (d *Descriptor) Instances(ctx context.Context) ([]string, error) {
	conn, err := resolveConn(ctx, d)
	if err != nil {
		return nil, err
	}
	ids, err := conn.ZRange(ctx, d.ClassKey(membershipName), 0, -1).Result()
	if err != nil {
		return nil, Error{Code: StoreError, Err: err, UserData: d.ClassKey(membershipName)}
	}
	return ids, nil
}

// Count returns the number of registered instances.
func (d *Descriptor) Count(ctx context.Context) (int64, error) {
	conn, err := resolveConn(ctx, d)
	if err != nil {
		return 0, err
	}
	n, err := conn.ZCard(ctx, d.ClassKey(membershipName)).Result()
	if err != nil {
		return 0, Error{Code: StoreError, Err: err, UserData: d.ClassKey(membershipName)}
	}
	return n, nil
}
