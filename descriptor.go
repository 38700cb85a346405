package redistruct

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdentifierFunc derives a composite identifier from a record.
type IdentifierFunc func(*Record) (string, error)

// GeneratorFunc lazily produces a field value on first access.
type GeneratorFunc func(*Record) (string, error)

// GeneratorTag names the generator that produced a lazily generated value.
// The empty tag means the value came from outside (constructor, Set, or a
// storage load) and its provenance is unknown.
type GeneratorTag string

type generatorSpec struct {
	fn  GeneratorFunc
	tag GeneratorTag
}

// InitHook runs after a record's fields are populated.
type InitHook func(*Record)

// TxHook runs inside a record's save/destroy transaction and may queue
// additional commands on the open pipeline.
type TxHook func(ctx context.Context, r *Record, pipe redis.Pipeliner) error

// PostHook runs after a successful commit.
type PostHook func(ctx context.Context, r *Record) error

// RelatedDef declares one collection attachment.
type RelatedDef struct {
	// Name is the collection's declared name; it becomes the key's suffix
	// segment (instance level) or the whole class-key tail (class level).
	Name string
	// Kind is the registered collection kind.
	Kind string
	// ClassLevel attaches the collection to the model type rather than to
	// individual records.
	ClassLevel bool
	// TTL is the collection's own expiration, honored by expiration policy
	// features instead of the cascading value when set.
	TTL time.Duration
	// NoCascade excludes the collection from expiration cascades.
	NoCascade bool
}

// membershipName is the implicit class-level sorted set tracking which
// identifiers currently have a persisted record.
const membershipName = "instances"

// Descriptor is a model type's build-time declaration: ordered fields, field
// types, related collections, identifier source and key/connection routing.
// Effectively immutable once Define returns; all mutation happens through
// the definition options and feature installation.
type Descriptor struct {
	name      string
	prefix    string
	prefixSet bool
	suffix    string
	suffixSet bool
	delimiter string

	uri       string
	logicalDB int
	dbSet     bool

	identifierField string
	identifierFunc  IdentifierFunc

	fields       []string
	fieldTypes   map[string]*FieldType
	claimed      map[string]string
	generators   map[string]generatorSpec
	uniqueFields []string

	related      map[string]RelatedDef
	relatedOrder []string
	classRelated map[string]RelatedDef
	classOrder   []string

	featureOptions map[string]map[string]any
	features       []Feature

	initHooks     []InitHook
	beforeSave    []TxHook
	afterSave     []PostHook
	beforeDestroy []TxHook

	client atomic.Pointer[redis.Client]
}

// Option mutates a descriptor during Define.
type Option func(*Descriptor) error

// FieldOption tunes one field declaration.
type FieldOption func(*FieldType)

// RelatedOption tunes one collection attachment.
type RelatedOption func(*RelatedDef)

// Define builds a model descriptor. Options apply in order; the prefix
// defaults to the normalized model name, the suffix to the configured
// default ("object"). A descriptor with neither a name nor an explicit
// Prefix fails here, at definition time, since every key operation would
// fail later.
func Define(name string, opts ...Option) (*Descriptor, error) {
	cfg := CurrentConfig()
	d := &Descriptor{
		name:           name,
		delimiter:      cfg.Delimiter,
		fieldTypes:     make(map[string]*FieldType),
		claimed:        make(map[string]string),
		generators:     make(map[string]generatorSpec),
		related:        make(map[string]RelatedDef),
		classRelated:   make(map[string]RelatedDef),
		featureOptions: make(map[string]map[string]any),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if !d.prefixSet {
		if name == "" {
			return nil, Error{Code: Unknown,
				UserData: "anonymous model: set an explicit Prefix"}
		}
		d.prefix = normalizeName(name, d.delimiter)
	}
	if !d.suffixSet {
		d.suffix = cfg.Suffix
	}
	if d.identifierField != "" {
		if _, declared := d.fieldTypes[d.identifierField]; !declared {
			return nil, Error{Code: InvalidIdentifierSource,
				UserData: "identifier field " + d.identifierField + " is not declared"}
		}
	}
	if _, ok := d.classRelated[membershipName]; !ok {
		if err := classAttach(d, "sortedset", membershipName); err != nil {
			return nil, err
		}
	}
	for _, f := range d.features {
		if err := f.Install(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// MustDefine is Define, panicking on error. For package-level declarations.
func MustDefine(name string, opts ...Option) *Descriptor {
	d, err := Define(name, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// normalizeName lowercases a model name and joins path-ish separators with
// the key delimiter.
func normalizeName(name, delimiter string) string {
	n := strings.ToLower(name)
	for _, sep := range []string{"/", ".", " "} {
		n = strings.ReplaceAll(n, sep, delimiter)
	}
	return n
}

func validToken(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Field declares one persistent scalar field.
func Field(name string, fopts ...FieldOption) Option {
	return fieldWithCategory(name, CategoryPersistent, fopts)
}

// TransientField declares a field that never reaches storage and resets to
// unset on every refresh.
func TransientField(name string, fopts ...FieldOption) Option {
	return fieldWithCategory(name, CategoryTransient, fopts)
}

// EncryptedField declares a field whose stored value is opaque ciphertext
// managed by an encryption feature.
func EncryptedField(name string, fopts ...FieldOption) Option {
	return fieldWithCategory(name, CategoryEncrypted, fopts)
}

func fieldWithCategory(name string, c Category, fopts []FieldOption) Option {
	return func(d *Descriptor) error {
		ft := &FieldType{
			Name:           name,
			AccessorName:   name,
			FastWriterName: name + "!",
			Category:       c,
		}
		for _, fo := range fopts {
			fo(ft)
		}
		return d.RegisterFieldType(ft)
	}
}

// Accessor overrides the generated accessor name.
func Accessor(name string) FieldOption {
	return func(ft *FieldType) { ft.AccessorName = name }
}

// NoAccessor suppresses accessor generation (write-only or externally
// managed fields).
func NoAccessor() FieldOption {
	return func(ft *FieldType) { ft.AccessorName = "" }
}

// FastWriter overrides the storage-direct accessor name.
func FastWriter(name string) FieldOption {
	return func(ft *FieldType) { ft.FastWriterName = name }
}

// NoFastWriter suppresses the storage-direct accessor.
func NoFastWriter() FieldOption {
	return func(ft *FieldType) { ft.FastWriterName = "" }
}

// OnConflict sets the accessor-collision policy for this field.
func OnConflict(p ConflictPolicy) FieldOption {
	return func(ft *FieldType) { ft.Conflict = p }
}

// WithCategory overrides the field's category.
func WithCategory(c Category) FieldOption {
	return func(ft *FieldType) { ft.Category = c }
}

// IdentifierField declares the identifier source: a declared field name or
// an IdentifierFunc deriving a composite identifier. Anything else fails at
// definition time.
func IdentifierField(source any) Option {
	return func(d *Descriptor) error {
		switch s := source.(type) {
		case string:
			d.identifierField = s
			if ft, ok := d.fieldTypes[s]; ok && ft.Category == CategoryPersistent {
				ft.Category = CategoryIdentifier
			}
			return nil
		case IdentifierFunc:
			d.identifierFunc = s
			return nil
		case func(*Record) (string, error):
			d.identifierFunc = s
			return nil
		default:
			return Error{Code: InvalidIdentifierSource, UserData: source}
		}
	}
}

// Prefix sets the key prefix explicitly.
func Prefix(p string) Option {
	return func(d *Descriptor) error {
		d.prefix = p
		d.prefixSet = true
		return nil
	}
}

// Suffix sets the primary-record key suffix explicitly.
func Suffix(s string) Option {
	return func(d *Descriptor) error {
		d.suffix = s
		d.suffixSet = true
		return nil
	}
}

// NoDefaultSuffix omits the suffix segment from primary keys.
func NoDefaultSuffix() Option {
	return func(d *Descriptor) error {
		d.suffix = NoSuffix
		d.suffixSet = true
		return nil
	}
}

// Delimiter overrides the key-segment delimiter for this model.
func Delimiter(delim string) Option {
	return func(d *Descriptor) error {
		d.delimiter = delim
		return nil
	}
}

// LogicalDatabase routes this model to a logical database index.
func LogicalDatabase(db int) Option {
	return func(d *Descriptor) error {
		d.logicalDB = db
		d.dbSet = true
		return nil
	}
}

// URI overrides the connection string for this model.
func URI(uri string) Option {
	return func(d *Descriptor) error {
		d.uri = uri
		return nil
	}
}

// Unique declares a uniqueness constraint on a field, backed by a
// class-level index hash checked before every Save.
func Unique(field string) Option {
	return func(d *Descriptor) error {
		d.uniqueFields = append(d.uniqueFields, field)
		return nil
	}
}

// Attach declares an instance-level collection of a registered kind.
func Attach(kind, name string, ropts ...RelatedOption) Option {
	return func(d *Descriptor) error {
		return instanceAttach(d, kind, name, ropts...)
	}
}

// ClassAttach declares a class-level collection of a registered kind.
func ClassAttach(kind, name string, ropts ...RelatedOption) Option {
	return func(d *Descriptor) error {
		return classAttach(d, kind, name, ropts...)
	}
}

func instanceAttach(d *Descriptor, kind, name string, ropts ...RelatedOption) error {
	def, err := buildRelatedDef(d, kind, name, false, ropts)
	if err != nil {
		return err
	}
	d.related[name] = def
	d.relatedOrder = append(d.relatedOrder, name)
	return nil
}

func classAttach(d *Descriptor, kind, name string, ropts ...RelatedOption) error {
	def, err := buildRelatedDef(d, kind, name, true, ropts)
	if err != nil {
		return err
	}
	d.classRelated[name] = def
	d.classOrder = append(d.classOrder, name)
	return nil
}

func buildRelatedDef(d *Descriptor, kind, name string, classLevel bool, ropts []RelatedOption) (RelatedDef, error) {
	if !validToken(name) {
		return RelatedDef{}, Error{Code: Unknown, UserData: "invalid collection name " + name}
	}
	if _, ok := LookupKind(kind); !ok {
		return RelatedDef{}, Error{Code: Unknown, UserData: "unregistered collection kind " + kind}
	}
	// Collections claim their name alongside field accessors so a field and
	// a collection cannot silently shadow each other.
	if owner, taken := d.claimed[name]; taken {
		return RelatedDef{}, Error{Code: MethodConflict,
			UserData: "collection " + name + " collides with " + owner}
	}
	d.claimed[name] = name
	def := RelatedDef{Name: name, Kind: kind, ClassLevel: classLevel}
	for _, ro := range ropts {
		ro(&def)
	}
	return def, nil
}

// RelationTTL gives the collection its own expiration, used instead of the
// cascading value by expiration policy features.
func RelationTTL(ttl time.Duration) RelatedOption {
	return func(def *RelatedDef) { def.TTL = ttl }
}

// NoCascade excludes the collection from expiration cascades.
func NoCascade() RelatedOption {
	return func(def *RelatedDef) { def.NoCascade = true }
}

// WithFeature queues a feature for installation after the core declaration
// is complete.
func WithFeature(f Feature) Option {
	return func(d *Descriptor) error {
		d.features = append(d.features, f)
		return nil
	}
}

// Parent inherits the parent's fields, collections, key parameters and
// feature options. Feature options are deep-copied; a subclass never shares
// its parent's bags.
func Parent(p *Descriptor) Option {
	return func(d *Descriptor) error {
		d.fields = append(d.fields, p.fields...)
		for n, ft := range p.fieldTypes {
			cp := *ft
			d.fieldTypes[n] = &cp
		}
		for n, f := range p.claimed {
			d.claimed[n] = f
		}
		for n, g := range p.generators {
			d.generators[n] = g
		}
		d.uniqueFields = append(d.uniqueFields, p.uniqueFields...)
		for n, def := range p.related {
			d.related[n] = def
		}
		d.relatedOrder = append(d.relatedOrder, p.relatedOrder...)
		for n, def := range p.classRelated {
			d.classRelated[n] = def
		}
		d.classOrder = append(d.classOrder, p.classOrder...)
		for feature, bag := range p.featureOptions {
			cp := make(map[string]any, len(bag))
			for k, v := range bag {
				cp[k] = v
			}
			d.featureOptions[feature] = cp
		}
		if p.prefixSet {
			d.prefix, d.prefixSet = p.prefix, true
		}
		if p.suffixSet {
			d.suffix, d.suffixSet = p.suffix, true
		}
		d.delimiter = p.delimiter
		d.uri = p.uri
		d.logicalDB, d.dbSet = p.logicalDB, p.dbSet
		d.identifierField = p.identifierField
		d.identifierFunc = p.identifierFunc
		return nil
	}
}

// RegisterFieldType is the generic registration entry point used by Field
// and by feature-provided custom field types: append to the ordered field
// list, claim accessor names per the conflict policy, store the field type
// and freeze it.
func (d *Descriptor) RegisterFieldType(ft *FieldType) error {
	if !validToken(ft.Name) {
		return Error{Code: Unknown, UserData: "invalid field name " + ft.Name}
	}
	if ft.frozen {
		return Error{Code: Unknown,
			UserData: "field type " + ft.Name + " is already registered; redefine with a fresh value"}
	}
	if _, exists := d.fieldTypes[ft.Name]; exists {
		switch ft.Conflict {
		case ConflictRaise:
			return Error{Code: MethodConflict, UserData: "field " + ft.Name + " already defined"}
		case ConflictSkip:
			return nil
		}
		// Warn/Overwrite replace the field type without duplicating the
		// ordered-list entry.
		if err := ft.install(d); err != nil {
			return err
		}
		d.fieldTypes[ft.Name] = ft
		return nil
	}
	if err := ft.install(d); err != nil {
		return err
	}
	d.fields = append(d.fields, ft.Name)
	d.fieldTypes[ft.Name] = ft
	return nil
}

// SetFieldGenerator installs a lazy generator for a declared field. The
// generated value is tagged with the generator's provenance tag; externally
// set or loaded values clear it.
func (d *Descriptor) SetFieldGenerator(field string, fn GeneratorFunc, tag GeneratorTag) error {
	if _, ok := d.fieldTypes[field]; !ok {
		return Error{Code: Unknown, UserData: "generator for undeclared field " + field}
	}
	d.generators[field] = generatorSpec{fn: fn, tag: tag}
	return nil
}

// SetIdentifierField redirects the identifier source to a declared field.
// Used by identifier features after they register their field type.
func (d *Descriptor) SetIdentifierField(field string) error {
	if _, ok := d.fieldTypes[field]; !ok {
		return Error{Code: InvalidIdentifierSource,
			UserData: "identifier field " + field + " is not declared"}
	}
	d.identifierField = field
	return nil
}

// AddFeatureOptions seeds a feature's option bag with defaults, keeping any
// values already present. Bags are per-descriptor, never shared.
func (d *Descriptor) AddFeatureOptions(feature string, defaults map[string]any) {
	bag, ok := d.featureOptions[feature]
	if !ok {
		bag = make(map[string]any, len(defaults))
		d.featureOptions[feature] = bag
	}
	for k, v := range defaults {
		if _, present := bag[k]; !present {
			bag[k] = v
		}
	}
}

// FeatureOptions returns the feature's option bag, creating it when absent.
func (d *Descriptor) FeatureOptions(feature string) map[string]any {
	bag, ok := d.featureOptions[feature]
	if !ok {
		bag = make(map[string]any)
		d.featureOptions[feature] = bag
	}
	return bag
}

// OnInit registers a hook run after a record's fields are populated.
func (d *Descriptor) OnInit(h InitHook) { d.initHooks = append(d.initHooks, h) }

// OnBeforeSave registers a hook queued inside every save transaction.
func (d *Descriptor) OnBeforeSave(h TxHook) { d.beforeSave = append(d.beforeSave, h) }

// OnAfterSave registers a hook run after a successful save commit.
func (d *Descriptor) OnAfterSave(h PostHook) { d.afterSave = append(d.afterSave, h) }

// OnBeforeDestroy registers a hook queued inside every destroy transaction.
func (d *Descriptor) OnBeforeDestroy(h TxHook) { d.beforeDestroy = append(d.beforeDestroy, h) }

// Name returns the model name.
func (d *Descriptor) Name() string { return d.name }

// Prefix returns the key prefix.
func (d *Descriptor) Prefix() string { return d.prefix }

// Suffix returns the primary-record key suffix ("" when suppressed).
func (d *Descriptor) Suffix() string {
	if d.suffix == NoSuffix {
		return ""
	}
	return d.suffix
}

// Delimiter returns the key-segment delimiter.
func (d *Descriptor) Delimiter() string { return d.delimiter }

// Fields returns the declared field names in declaration order.
func (d *Descriptor) Fields() []string {
	out := make([]string, len(d.fields))
	copy(out, d.fields)
	return out
}

// FieldTypeOf returns the field type registered under a field name.
func (d *Descriptor) FieldTypeOf(name string) (*FieldType, bool) {
	ft, ok := d.fieldTypes[name]
	return ft, ok
}

// IdentifierFieldName returns the identifier field's name, "" when the
// identifier is derived by a function.
func (d *Descriptor) IdentifierFieldName() string { return d.identifierField }

// ResolveAccessor maps a claimed accessor name to the field it currently
// routes to.
func (d *Descriptor) ResolveAccessor(accessor string) (string, bool) {
	field, ok := d.claimed[accessor]
	return field, ok
}

// RelatedFields returns the instance-level attachment declarations in
// declaration order.
func (d *Descriptor) RelatedFields() []RelatedDef {
	out := make([]RelatedDef, 0, len(d.relatedOrder))
	for _, n := range d.relatedOrder {
		out = append(out, d.related[n])
	}
	return out
}

// HasRelated reports whether an instance-level collection is declared under
// the name.
func (d *Descriptor) HasRelated(name string) bool {
	_, ok := d.related[name]
	return ok
}

// RelatedOfKind returns the instance-level attachments of one kind, in
// declaration order.
func (d *Descriptor) RelatedOfKind(kind string) []RelatedDef {
	var out []RelatedDef
	for _, n := range d.relatedOrder {
		if def := d.related[n]; def.Kind == kind {
			out = append(out, def)
		}
	}
	return out
}

// ClassRelatedFields returns the class-level attachment declarations in
// declaration order.
func (d *Descriptor) ClassRelatedFields() []RelatedDef {
	out := make([]RelatedDef, 0, len(d.classOrder))
	for _, n := range d.classOrder {
		out = append(out, d.classRelated[n])
	}
	return out
}

// Key derives a record's primary storage key from its identifier. Never
// stored; recomputed on every call.
func (d *Descriptor) Key(identifier string) (string, error) {
	return BuildKey(d.delimiter, d.prefix, identifier, d.suffix)
}

// RelatedKey derives the key of an instance-level collection, attached under
// the owning record's key namespace.
func (d *Descriptor) RelatedKey(identifier, name string) (string, error) {
	return BuildKey(d.delimiter, d.prefix, identifier, name)
}

// ClassKey derives the key of a class-level collection. Carries no suffix.
func (d *Descriptor) ClassKey(name string) string {
	return BuildClassKey(d.delimiter, d.prefix, name)
}

func (d *Descriptor) uniqueIndexKey(field string) string {
	return d.ClassKey("idx" + d.delimiter + field)
}

// ClassRelated binds a declared class-level collection.
func (d *Descriptor) ClassRelated(name string) (RelatedField, error) {
	def, ok := d.classRelated[name]
	if !ok {
		return nil, Error{Code: Unknown, UserData: "undeclared class collection " + name}
	}
	factory, ok := LookupKind(def.Kind)
	if !ok {
		return nil, Error{Code: Unknown, UserData: "unregistered collection kind " + def.Kind}
	}
	return factory(Binding{Descriptor: d, Def: def}), nil
}
