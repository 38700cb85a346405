// Package objectid installs lazily generated object identifiers on a model.
//
// The identifier value is produced on first access, fixed for the life of
// the record, and tagged with the generator's provenance. A value loaded
// from storage or set explicitly carries no provenance; derivations that
// must only work with values generated in-process (see ExternalID) check
// the tag before deriving.
package objectid

import (
	"github.com/google/uuid"

	"github.com/redistruct/redistruct"
)

// FeatureName keys the feature's option bag on a descriptor.
const FeatureName = "object_identifier"

// TagUUIDv7 is the provenance tag of the default generator.
const TagUUIDv7 redistruct.GeneratorTag = "objectid:uuid7"

// Feature installs an object-identifier field.
type Feature struct {
	// FieldName is the installed field's name. Default "objid".
	FieldName string
	// UseAsIdentifier redirects the model's identifier source to the
	// installed field.
	UseAsIdentifier bool
	// Generator produces new identifier values. Default UUIDv7.
	Generator func() (string, error)
	// Tag is the provenance tag recorded for generated values.
	Tag redistruct.GeneratorTag
}

// FeatureOption tunes the feature.
type FeatureOption func(*Feature)

// WithFieldName overrides the installed field's name.
func WithFieldName(name string) FeatureOption {
	return func(f *Feature) { f.FieldName = name }
}

// AsIdentifier makes the installed field the model's identifier source.
func AsIdentifier() FeatureOption {
	return func(f *Feature) { f.UseAsIdentifier = true }
}

// WithGenerator swaps the value generator and its provenance tag.
func WithGenerator(tag redistruct.GeneratorTag, gen func() (string, error)) FeatureOption {
	return func(f *Feature) {
		f.Tag = tag
		f.Generator = gen
	}
}

// New builds the feature with UUIDv7 generation under field "objid".
func New(opts ...FeatureOption) *Feature {
	f := &Feature{
		FieldName: "objid",
		Generator: uuidV7,
		Tag:       TagUUIDv7,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func uuidV7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (f *Feature) Name() string { return FeatureName }

// Install registers the field type, its lazy generator and the feature's
// option bag on the descriptor.
func (f *Feature) Install(d *redistruct.Descriptor) error {
	d.AddFeatureOptions(FeatureName, map[string]any{
		"field":     f.FieldName,
		"generator": string(f.Tag),
	})
	ft := &redistruct.FieldType{
		Name:           f.FieldName,
		AccessorName:   f.FieldName,
		FastWriterName: f.FieldName + "!",
		Category:       redistruct.CategoryObjectIdentifier,
	}
	if err := d.RegisterFieldType(ft); err != nil {
		return err
	}
	gen := func(*redistruct.Record) (string, error) { return f.Generator() }
	if err := d.SetFieldGenerator(f.FieldName, gen, f.Tag); err != nil {
		return err
	}
	if f.UseAsIdentifier {
		return d.SetIdentifierField(f.FieldName)
	}
	return nil
}
