package redistruct

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Record is one runtime instance of a model: in-memory field values, lazily
// bound collection attachments, and an identifier that is explicit or
// derived. A record owns no connection; every storage operation resolves one
// through the descriptor's resolution chain.
type Record struct {
	d          *Descriptor
	values     map[string]any
	provenance map[string]GeneratorTag
	changed    map[string]struct{}
	related    map[string]RelatedField
}

func newRecord(d *Descriptor) *Record {
	return &Record{
		d:          d,
		values:     make(map[string]any),
		provenance: make(map[string]GeneratorTag),
		changed:    make(map[string]struct{}),
		related:    make(map[string]RelatedField),
	}
}

// New allocates a record and populates fields from name/value pairs:
// d.New("email", "a@example.com", "name", "Ada"). Init hooks run after
// population.
func (d *Descriptor) New(kv ...any) (*Record, error) {
	if len(kv)%2 != 0 {
		return nil, Error{Code: Unknown, UserData: "New expects name/value pairs"}
	}
	r := newRecord(d)
	for i := 0; i < len(kv); i += 2 {
		name, ok := kv[i].(string)
		if !ok {
			return nil, Error{Code: Unknown, UserData: "field name must be a string"}
		}
		if err := r.Set(name, kv[i+1]); err != nil {
			return nil, err
		}
	}
	r.runInitHooks()
	return r, nil
}

// NewFromHash builds a record from a stored hash. Transient fields stay
// unset, loaded values carry unknown provenance, and the record starts
// clean.
func (d *Descriptor) NewFromHash(h map[string]string) *Record {
	r := newRecord(d)
	r.populateFromHash(h)
	r.runInitHooks()
	return r
}

func (r *Record) populateFromHash(h map[string]string) {
	for _, f := range r.d.fields {
		ft := r.d.fieldTypes[f]
		if ft.Category == CategoryTransient {
			delete(r.values, f)
			continue
		}
		if v, ok := h[f]; ok {
			r.values[f] = v
		} else {
			delete(r.values, f)
		}
		delete(r.provenance, f)
	}
	r.markClean()
}

func (r *Record) runInitHooks() {
	for _, h := range r.d.initHooks {
		h(r)
	}
}

// Descriptor returns the record's model declaration.
func (r *Record) Descriptor() *Descriptor { return r.d }

// Get returns a field's in-memory value without triggering lazy generation.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Resolve returns a field's value in stored-string form, running the field's
// lazy generator on first access when one is installed. A generated value is
// fixed for the life of the record and tagged with the generator's
// provenance.
func (r *Record) Resolve(name string) (string, error) {
	if v, ok := r.values[name]; ok {
		return encodeValue(v)
	}
	spec, ok := r.d.generators[name]
	if !ok {
		return "", nil
	}
	v, err := spec.fn(r)
	if err != nil {
		return "", err
	}
	r.values[name] = v
	r.provenance[name] = spec.tag
	r.changed[name] = struct{}{}
	return v, nil
}

// Access reads a field through its claimed accessor name, honoring whatever
// the conflict policy routed the accessor to.
func (r *Record) Access(accessor string) (any, bool) {
	field, ok := r.d.ResolveAccessor(accessor)
	if !ok {
		return nil, false
	}
	return r.Get(field)
}

// Set assigns a field value. External assignment always clears provenance:
// downstream derivations that require generated values must not trust a
// value that arrived from outside.
func (r *Record) Set(name string, v any) error {
	if _, ok := r.d.fieldTypes[name]; !ok {
		return Error{Code: Unknown, UserData: "undeclared field " + name}
	}
	r.values[name] = v
	delete(r.provenance, name)
	r.changed[name] = struct{}{}
	return nil
}

// Unset removes a field's in-memory value.
func (r *Record) Unset(name string) {
	delete(r.values, name)
	delete(r.provenance, name)
	r.changed[name] = struct{}{}
}

// IsSet reports whether the field holds an in-memory value.
func (r *Record) IsSet(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Provenance returns the generator tag of a lazily generated field value,
// or the empty tag when the value came from outside.
func (r *Record) Provenance(name string) GeneratorTag {
	return r.provenance[name]
}

// Identifier yields the record's identifier: the identifier field's value
// (generated lazily when a generator is installed) or the derivation
// function's result. Empty means unset; key-dependent operations turn that
// into MissingIdentifier.
func (r *Record) Identifier() (string, error) {
	if r.d.identifierFunc != nil {
		return r.d.identifierFunc(r)
	}
	if r.d.identifierField != "" {
		return r.Resolve(r.d.identifierField)
	}
	return "", nil
}

// SetIdentifier assigns the identifier field explicitly (external
// provenance).
func (r *Record) SetIdentifier(id string) error {
	if r.d.identifierField == "" {
		return Error{Code: InvalidIdentifierSource,
			UserData: "model has no identifier field"}
	}
	return r.Set(r.d.identifierField, id)
}

// Key derives the record's primary storage key. Recomputed on every call and
// never stored; changing the identifier mid-life requires an explicit Rekey.
func (r *Record) Key() (string, error) {
	id, err := r.Identifier()
	if err != nil {
		return "", err
	}
	return r.d.Key(id)
}

// RelatedKey derives the storage key of one of the record's collections.
func (r *Record) RelatedKey(name string) (string, error) {
	id, err := r.Identifier()
	if err != nil {
		return "", err
	}
	return r.d.RelatedKey(id, name)
}

// Related binds a declared instance-level collection, caching the binding on
// the record.
func (r *Record) Related(name string) (RelatedField, error) {
	if rf, ok := r.related[name]; ok {
		return rf, nil
	}
	def, ok := r.d.related[name]
	if !ok {
		return nil, Error{Code: Unknown, UserData: "undeclared collection " + name}
	}
	factory, ok := LookupKind(def.Kind)
	if !ok {
		return nil, Error{Code: Unknown, UserData: "unregistered collection kind " + def.Kind}
	}
	rf := factory(Binding{Descriptor: r.d, Record: r, Def: def})
	r.related[name] = rf
	return rf, nil
}

// Dirty reports whether any field changed since the last save/refresh.
func (r *Record) Dirty() bool { return len(r.changed) > 0 }

func (r *Record) markClean() {
	for f := range r.changed {
		delete(r.changed, f)
	}
}

// FastWrite writes one field straight to storage: a single HSET plus the
// membership registration, with no timestamps and no expiration update. The
// in-memory value is updated to match.
func (r *Record) FastWrite(ctx context.Context, field string, v any) error {
	ft, ok := r.d.fieldTypes[field]
	if !ok {
		return Error{Code: Unknown, UserData: "undeclared field " + field}
	}
	if ft.FastWriterName == "" {
		return Error{Code: Unknown, UserData: "fast accessor suppressed for field " + field}
	}
	if !ft.Category.persists() {
		return Error{Code: Unknown, UserData: "field " + field + " is transient"}
	}
	key, err := r.Key()
	if err != nil {
		return err
	}
	id, err := r.Identifier()
	if err != nil {
		return err
	}
	enc, err := encodeValue(v)
	if err != nil {
		return err
	}
	conn, err := resolveConn(ctx, r.d)
	if err != nil {
		return err
	}
	if err := conn.HSet(ctx, key, field, enc).Err(); err != nil {
		return Error{Code: StoreError, Err: err, UserData: key}
	}
	if err := r.d.queueRegisterInstance(ctx, conn, id).Err(); err != nil {
		return asStoreError(err, key)
	}
	r.values[field] = v
	delete(r.provenance, field)
	delete(r.changed, field)
	return nil
}

// FastRead reads one field straight from storage, bypassing the in-memory
// value. Found is false when the hash or the field does not exist.
func (r *Record) FastRead(ctx context.Context, field string) (string, bool, error) {
	ft, ok := r.d.fieldTypes[field]
	if !ok {
		return "", false, Error{Code: Unknown, UserData: "undeclared field " + field}
	}
	if ft.FastWriterName == "" {
		return "", false, Error{Code: Unknown, UserData: "fast accessor suppressed for field " + field}
	}
	key, err := r.Key()
	if err != nil {
		return "", false, err
	}
	conn, err := resolveConn(ctx, r.d)
	if err != nil {
		return "", false, err
	}
	v, err := conn.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, Error{Code: StoreError, Err: err, UserData: key}
	}
	return v, true, nil
}
