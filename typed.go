package redistruct

// Typed bindings for the built-in collection kinds. Each helper resolves the
// declared attachment and asserts its kind, failing loudly on a mismatch
// rather than returning a half-usable value.

func typedRelated[T RelatedField](rf RelatedField, err error, name string) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	t, ok := rf.(T)
	if !ok {
		return zero, Error{Code: Unknown,
			UserData: "collection " + name + " is a " + rf.Kind()}
	}
	return t, nil
}

// List binds a declared list attachment.
func (r *Record) List(name string) (*ListField, error) {
	rf, err := r.Related(name)
	return typedRelated[*ListField](rf, err, name)
}

// SetField binds a declared set attachment.
func (r *Record) SetField(name string) (*SetField, error) {
	rf, err := r.Related(name)
	return typedRelated[*SetField](rf, err, name)
}

// SortedSet binds a declared sorted-set attachment.
func (r *Record) SortedSet(name string) (*SortedSetField, error) {
	rf, err := r.Related(name)
	return typedRelated[*SortedSetField](rf, err, name)
}

// HashMap binds a declared hash attachment.
func (r *Record) HashMap(name string) (*HashMapField, error) {
	rf, err := r.Related(name)
	return typedRelated[*HashMapField](rf, err, name)
}

// StringValue binds a declared string attachment.
func (r *Record) StringValue(name string) (*StringValueField, error) {
	rf, err := r.Related(name)
	return typedRelated[*StringValueField](rf, err, name)
}

// Counter binds a declared counter attachment.
func (r *Record) Counter(name string) (*CounterField, error) {
	rf, err := r.Related(name)
	return typedRelated[*CounterField](rf, err, name)
}

// ClassList binds a declared class-level list.
func (d *Descriptor) ClassList(name string) (*ListField, error) {
	rf, err := d.ClassRelated(name)
	return typedRelated[*ListField](rf, err, name)
}

// ClassSet binds a declared class-level set.
func (d *Descriptor) ClassSet(name string) (*SetField, error) {
	rf, err := d.ClassRelated(name)
	return typedRelated[*SetField](rf, err, name)
}

// ClassSortedSet binds a declared class-level sorted set. The membership
// registry is reachable as d.ClassSortedSet("instances").
func (d *Descriptor) ClassSortedSet(name string) (*SortedSetField, error) {
	rf, err := d.ClassRelated(name)
	return typedRelated[*SortedSetField](rf, err, name)
}

// ClassHashMap binds a declared class-level hash.
func (d *Descriptor) ClassHashMap(name string) (*HashMapField, error) {
	rf, err := d.ClassRelated(name)
	return typedRelated[*HashMapField](rf, err, name)
}

// ClassStringValue binds a declared class-level string.
func (d *Descriptor) ClassStringValue(name string) (*StringValueField, error) {
	rf, err := d.ClassRelated(name)
	return typedRelated[*StringValueField](rf, err, name)
}

// ClassCounter binds a declared class-level counter.
func (d *Descriptor) ClassCounter(name string) (*CounterField, error) {
	rf, err := d.ClassRelated(name)
	return typedRelated[*CounterField](rf, err, name)
}
